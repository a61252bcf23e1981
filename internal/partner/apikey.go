package partner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/admission"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// defaultKeyExpiry applies when a creation request names no expiry.
const defaultKeyExpiry = 90 * 24 * time.Hour

// CreateKeyInput holds the API key creation fields.
type CreateKeyInput struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	// ExpiresInDays of 0 means the 90 day default; negative disables expiry.
	ExpiresInDays int `json:"expires_in_days"`
}

// CreatedKey carries the plaintext secret exactly once.
type CreatedKey struct {
	Key       domain.APIKey `json:"key"`
	Plaintext string        `json:"plaintext"`
}

// CreateKey issues a new API key for a partner. Only the SHA-256 hash of the
// secret is stored; the plaintext in the result is never recoverable again.
func (s *Service) CreateKey(ctx context.Context, partnerID uuid.UUID, input CreateKeyInput) (*CreatedKey, error) {
	if input.Name == "" {
		return nil, domain.ErrValidation("name is required")
	}
	perms := domain.NewPermissionSet(input.Permissions)
	if perms.IsEmpty() {
		return nil, domain.ErrValidation("at least one valid resource:action permission is required")
	}
	if _, err := s.Get(ctx, partnerID); err != nil {
		return nil, err
	}

	secret, err := randomHex(24)
	if err != nil {
		return nil, domain.ErrInternal("generate api key", err)
	}
	plaintext := "blk_" + secret
	prefix := plaintext[:12]

	key := &domain.APIKey{
		PartnerID:   partnerID,
		KeyPrefix:   prefix,
		KeyHash:     admission.HashKey(plaintext),
		Name:        input.Name,
		Permissions: perms,
		IsActive:    true,
	}
	switch {
	case input.ExpiresInDays > 0:
		at := s.now().Add(time.Duration(input.ExpiresInDays) * 24 * time.Hour)
		key.ExpiresAt = &at
	case input.ExpiresInDays == 0:
		at := s.now().Add(defaultKeyExpiry)
		key.ExpiresAt = &at
	}

	created, err := s.keys.Insert(ctx, s.db, key)
	if err != nil {
		return nil, domain.ErrInternal("insert api key", err)
	}
	s.logger.Info("api key created", "partner_id", partnerID, "key_id", created.ID, "prefix", prefix)
	return &CreatedKey{Key: *created, Plaintext: plaintext}, nil
}

// ListKeys returns a partner's keys, hashes omitted by the domain type.
func (s *Service) ListKeys(ctx context.Context, partnerID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keys.ListByPartner(ctx, s.db, partnerID)
	if err != nil {
		return nil, domain.ErrInternal("list api keys", err)
	}
	return keys, nil
}

// RevokeKey deactivates a key and drops it from the credential cache.
func (s *Service) RevokeKey(ctx context.Context, partnerID, keyID uuid.UUID) error {
	revoked, err := s.keys.Deactivate(ctx, s.db, keyID, partnerID)
	if err != nil {
		return domain.ErrInternal("deactivate api key", err)
	}
	if !revoked {
		return domain.ErrNotFound("api key", keyID.String())
	}
	s.cache.InvalidateByTag(ctx, "apikeys:"+partnerID.String())
	s.logger.Info("api key revoked", "partner_id", partnerID, "key_id", keyID)
	return nil
}

// AddIP whitelists an address or CIDR for a partner.
func (s *Service) AddIP(ctx context.Context, partnerID uuid.UUID, cidr, label string) (*domain.PartnerIP, error) {
	if cidr == "" {
		return nil, domain.ErrValidation("cidr is required")
	}
	if _, err := s.Get(ctx, partnerID); err != nil {
		return nil, err
	}
	entry, err := s.ips.Insert(ctx, s.db, &domain.PartnerIP{
		PartnerID: partnerID,
		CIDR:      cidr,
		Label:     label,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.ErrConflict(fmt.Sprintf("%s is already whitelisted", cidr))
		}
		return nil, domain.ErrInternal("insert whitelist entry", err)
	}
	s.cache.InvalidateByTag(ctx, "partnerips:"+partnerID.String())
	return entry, nil
}

// ListIPs returns a partner's whitelist.
func (s *Service) ListIPs(ctx context.Context, partnerID uuid.UUID) ([]domain.PartnerIP, error) {
	entries, err := s.ips.ListByPartner(ctx, s.db, partnerID)
	if err != nil {
		return nil, domain.ErrInternal("list whitelist", err)
	}
	return entries, nil
}

// RemoveIP deletes a whitelist entry.
func (s *Service) RemoveIP(ctx context.Context, partnerID, entryID uuid.UUID) error {
	removed, err := s.ips.Delete(ctx, s.db, entryID, partnerID)
	if err != nil {
		return domain.ErrInternal("delete whitelist entry", err)
	}
	if !removed {
		return domain.ErrNotFound("whitelist entry", entryID.String())
	}
	s.cache.InvalidateByTag(ctx, "partnerips:"+partnerID.String())
	return nil
}
