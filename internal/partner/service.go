// Package partner implements tenant administration: partner lifecycle and
// API key issuance.
package partner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/repository"
)

var codeRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)

// Invalidator drops cached credentials when they change.
type Invalidator interface {
	InvalidateByTag(ctx context.Context, tags ...string)
}

// Service handles partner and API key administration.
type Service struct {
	db        repository.DBTX
	partners  repository.PartnerRepository
	keys      repository.APIKeyRepository
	ips       repository.PartnerIPRepository
	encryptor *infra.Encryptor
	cache     Invalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the partner administration service.
func NewService(
	db repository.DBTX,
	partners repository.PartnerRepository,
	keys repository.APIKeyRepository,
	ips repository.PartnerIPRepository,
	encryptor *infra.Encryptor,
	cache Invalidator,
	logger *slog.Logger,
) *Service {
	return &Service{
		db: db, partners: partners, keys: keys, ips: ips,
		encryptor: encryptor, cache: cache, logger: logger, now: time.Now,
	}
}

// CreateInput holds the partner creation fields.
type CreateInput struct {
	Code            string             `json:"code"`
	Name            string             `json:"name"`
	Type            domain.PartnerType `json:"type"`
	CommissionModel string             `json:"commission_model"`
	CommissionRate  string             `json:"commission_rate"`
	ContactEmail    string             `json:"contact_email"`
}

var partnerTypes = map[domain.PartnerType]bool{
	domain.PartnerOperator:        true,
	domain.PartnerAggregator:      true,
	domain.PartnerAffiliate:       true,
	domain.PartnerPaymentProvider: true,
}

// Create registers a new partner in pending status with a fresh callback
// signing secret.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Partner, error) {
	if !codeRegex.MatchString(input.Code) {
		return nil, domain.ErrValidation("code must be 3-32 lowercase alphanumeric characters")
	}
	if input.Name == "" {
		return nil, domain.ErrValidation("name is required")
	}
	if !partnerTypes[input.Type] {
		return nil, domain.ErrValidation(fmt.Sprintf("unknown partner type %q", input.Type))
	}

	existing, err := s.partners.FindByCode(ctx, s.db, input.Code)
	if err != nil {
		return nil, domain.ErrInternal("find partner", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("partner code already in use")
	}

	secret, err := randomHex(32)
	if err != nil {
		return nil, domain.ErrInternal("generate shared secret", err)
	}
	sealed, err := s.encryptor.EncryptString(secret)
	if err != nil {
		return nil, domain.ErrInternal("seal shared secret", err)
	}

	created, err := s.partners.Create(ctx, s.db, &domain.Partner{
		Code:            input.Code,
		Name:            input.Name,
		Type:            input.Type,
		Status:          domain.PartnerPending,
		CommissionModel: input.CommissionModel,
		CommissionRate:  input.CommissionRate,
		ContactEmail:    input.ContactEmail,
		SharedSecret:    sealed,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.ErrConflict("partner code already in use")
		}
		return nil, domain.ErrInternal("create partner", err)
	}
	s.logger.Info("partner created", "partner_id", created.ID, "code", created.Code)
	return created, nil
}

// Get returns one partner.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Partner, error) {
	p, err := s.partners.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("find partner", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("partner", id.String())
	}
	return p, nil
}

// List returns partners matching the uniform filter.
func (s *Service) List(ctx context.Context, f repository.Filter, page repository.Page, sort repository.Sort) ([]domain.Partner, error) {
	partners, err := s.partners.List(ctx, s.db, f, page, sort)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return partners, nil
}

var statusTransitions = map[domain.PartnerStatus][]domain.PartnerStatus{
	domain.PartnerPending:   {domain.PartnerActive, domain.PartnerTerminated},
	domain.PartnerActive:    {domain.PartnerInactive, domain.PartnerSuspended, domain.PartnerTerminated},
	domain.PartnerInactive:  {domain.PartnerActive, domain.PartnerTerminated},
	domain.PartnerSuspended: {domain.PartnerActive, domain.PartnerTerminated},
}

// SetStatus moves a partner through its lifecycle. Termination is the soft
// delete; dependents are cut off through the status check in admission.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to domain.PartnerStatus) (*domain.Partner, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	legal := false
	for _, allowed := range statusTransitions[p.Status] {
		if allowed == to {
			legal = true
			break
		}
	}
	if !legal {
		return nil, domain.ErrConflict(fmt.Sprintf("cannot transition partner from %s to %s", p.Status, to))
	}

	if err := s.partners.UpdateStatus(ctx, s.db, id, to); err != nil {
		return nil, domain.ErrInternal("update partner status", err)
	}
	p.Status = to
	s.cache.InvalidateByTag(ctx, "apikeys:"+id.String())
	s.logger.Info("partner status changed", "partner_id", id, "status", to)
	return p, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
