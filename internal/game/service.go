// Package game implements session launch and the provider callback engine.
// Launches are idempotent per (player, game); callbacks are authenticated by
// timestamp, nonce and an HMAC over the raw body before any money moves.
package game

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/repository"
	"github.com/betlink/hub/internal/wallet"
)

// WalletOps is the slice of the wallet engine the callback engine drives.
type WalletOps interface {
	Credit(ctx context.Context, req domain.WalletOpRequest) (*domain.WalletOpResult, error)
	Debit(ctx context.Context, req domain.WalletOpRequest) (*domain.WalletOpResult, error)
	Rollback(ctx context.Context, req domain.RollbackRequest) (*domain.WalletOpResult, error)
	GetWallet(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error)
	EnsureWallet(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error)
}

var _ WalletOps = (*wallet.Engine)(nil)

// Cache is the slice of the shared cache the game engine uses: single-use
// callback nonce reservation and the catalog list cache.
type Cache interface {
	CheckAndStoreNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
	GetOrCompute(ctx context.Context, key string, tags []string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, bool, error)
}

// Config carries the tunables of the session and callback engine.
type Config struct {
	SessionTTL   time.Duration
	CallbackSkew time.Duration
	NonceTTL     time.Duration
	IframeHost   string
}

// Service is the game session and callback engine.
type Service struct {
	db        wallet.DB
	games     repository.GameRepository
	sessions  repository.SessionRepository
	gameTxs   repository.GameTxRepository
	partners  repository.PartnerRepository
	players   repository.PlayerRepository
	outbox    repository.OutboxRepository
	wallets   WalletOps
	cache     Cache
	encryptor *infra.Encryptor
	client    *http.Client
	breaker   *Breaker
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the game engine. The HTTP client's timeout bounds every
// outbound provider call.
func NewService(
	db wallet.DB,
	games repository.GameRepository,
	sessions repository.SessionRepository,
	gameTxs repository.GameTxRepository,
	partners repository.PartnerRepository,
	players repository.PlayerRepository,
	outbox repository.OutboxRepository,
	wallets WalletOps,
	cache Cache,
	encryptor *infra.Encryptor,
	client *http.Client,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CallbackSkew <= 0 {
		cfg.CallbackSkew = 300 * time.Second
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 600 * time.Second
	}
	return &Service{
		db: db, games: games, sessions: sessions, gameTxs: gameTxs,
		partners: partners, players: players, outbox: outbox,
		wallets: wallets, cache: cache, encryptor: encryptor,
		client: client, breaker: NewBreaker(5, 30*time.Second),
		cfg: cfg, logger: logger, now: time.Now,
	}
}

// Launch starts (or resumes) a game session and builds the provider launch
// URL. Launching the same (player, game) twice returns the existing active
// session.
func (s *Service) Launch(ctx context.Context, partnerID uuid.UUID, req domain.LaunchRequest) (*domain.LaunchResult, error) {
	if err := domain.ValidateCurrency(req.Currency); err != nil {
		return nil, err
	}

	g, err := s.games.FindGame(ctx, s.db, req.GameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", req.GameID.String())
	}
	if g.Status != "active" {
		return nil, domain.ErrValidation(fmt.Sprintf("game %s is not active", g.GameCode))
	}
	provider, err := s.games.FindProvider(ctx, s.db, g.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil || provider.Status != "active" {
		return nil, domain.ErrValidation("game provider is not active")
	}
	if !providerSupports(provider, req.Currency) {
		return nil, domain.ErrValidation(fmt.Sprintf("provider %s does not support currency %s", provider.Code, req.Currency))
	}

	w, err := s.wallets.EnsureWallet(ctx, req.PlayerID, partnerID, req.Currency)
	if err != nil {
		return nil, err
	}

	session, err := s.ensureSession(ctx, partnerID, req)
	if err != nil {
		return nil, err
	}

	launchURL, err := s.buildLaunchURL(ctx, provider, g, session, w, req)
	if err != nil {
		return nil, err
	}
	return &domain.LaunchResult{
		LaunchURL: launchURL,
		Token:     session.Token,
		ExpiresAt: session.StartedAt.Add(s.cfg.SessionTTL),
	}, nil
}

// ensureSession returns the active session for (player, game), inserting one
// under the player row lock when none exists. A unique violation means a
// concurrent launch won the race; its session is returned instead.
func (s *Service) ensureSession(ctx context.Context, partnerID uuid.UUID, req domain.LaunchRequest) (*domain.GameSession, error) {
	var session *domain.GameSession
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := s.players.Ensure(ctx, tx, req.PlayerID, partnerID); err != nil {
			return err
		}
		if _, err := s.players.Lock(ctx, tx, req.PlayerID); err != nil {
			return err
		}

		existing, err := s.sessions.ActiveForPlayerGame(ctx, tx, req.PlayerID, req.GameID)
		if err != nil {
			return err
		}
		if existing != nil {
			session = existing
			return nil
		}

		token, err := newSessionToken()
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"language": req.Language,
			"platform": req.Platform,
		})
		session, err = s.sessions.Insert(ctx, tx, &domain.GameSession{
			Token:       token,
			PlayerID:    req.PlayerID,
			PartnerID:   partnerID,
			GameID:      req.GameID,
			Status:      domain.SessionActive,
			SessionData: data,
		})
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewSessionLaunchedEvent(session))
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			existing, readErr := s.sessions.ActiveForPlayerGame(ctx, s.db, req.PlayerID, req.GameID)
			if readErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	return session, nil
}

func (s *Service) buildLaunchURL(ctx context.Context, provider *domain.GameProvider, g *domain.Game, session *domain.GameSession, w *domain.Wallet, req domain.LaunchRequest) (string, error) {
	switch provider.IntegrationType {
	case domain.IntegrationDirect:
		secret, err := s.encryptor.DecryptString(provider.APISecret)
		if err != nil {
			return "", domain.ErrInternal("decrypt provider secret", err)
		}
		q := launchQuery(session.Token, g.GameCode, w, req)
		q.Set("signature", LaunchSignature(secret, session.Token, g.GameCode, w.Currency, req.PlayerID.String()))
		return provider.APIEndpoint + "/launch?" + q.Encode(), nil

	case domain.IntegrationAggregator:
		return s.aggregatorLaunch(ctx, provider, g, session, w, req)

	case domain.IntegrationIframe:
		q := launchQuery(session.Token, g.GameCode, w, req)
		return s.cfg.IframeHost + "/play/" + g.ID.String() + "?" + q.Encode(), nil
	}
	return "", domain.ErrValidation(fmt.Sprintf("unknown integration type %s", provider.IntegrationType))
}

func launchQuery(token, gameCode string, w *domain.Wallet, req domain.LaunchRequest) url.Values {
	q := url.Values{}
	q.Set("token", token)
	q.Set("gameCode", gameCode)
	q.Set("currency", w.Currency)
	q.Set("language", req.Language)
	q.Set("playerId", req.PlayerID.String())
	q.Set("balance", w.Balance.StringFixed(2))
	q.Set("returnUrl", req.ReturnURL)
	q.Set("platform", req.Platform)
	return q
}

// aggregatorLaunch asks the provider for a session URL. The request is
// signed the same way as a direct launch, with a timestamp added.
func (s *Service) aggregatorLaunch(ctx context.Context, provider *domain.GameProvider, g *domain.Game, session *domain.GameSession, w *domain.Wallet, req domain.LaunchRequest) (string, error) {
	if err := s.breaker.Allow(provider.Code); err != nil {
		return "", err
	}

	secret, err := s.encryptor.DecryptString(provider.APISecret)
	if err != nil {
		return "", domain.ErrInternal("decrypt provider secret", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"token":     session.Token,
		"gameCode":  g.GameCode,
		"currency":  w.Currency,
		"language":  req.Language,
		"playerId":  req.PlayerID.String(),
		"balance":   w.Balance.StringFixed(2),
		"returnUrl": req.ReturnURL,
		"platform":  req.Platform,
		"timestamp": s.now().Unix(),
		"signature": LaunchSignature(secret, session.Token, g.GameCode, w.Currency, req.PlayerID.String()),
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.APIEndpoint+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.breaker.RecordFailure(provider.Code)
		return "", domain.ErrUpstream("provider launch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		s.breaker.RecordFailure(provider.Code)
		return "", domain.ErrUpstream(fmt.Sprintf("provider launch returned %d", resp.StatusCode), nil)
	}

	var out struct {
		GameURL string `json:"game_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.breaker.RecordFailure(provider.Code)
		return "", domain.ErrUpstream("decode provider response", err)
	}
	if out.GameURL == "" {
		s.breaker.RecordFailure(provider.Code)
		return "", domain.ErrUpstream("provider response missing game_url", nil)
	}
	s.breaker.RecordSuccess(provider.Code)
	return out.GameURL, nil
}

// EndSession terminates an active session by token.
func (s *Service) EndSession(ctx context.Context, partnerID uuid.UUID, token string) error {
	session, err := s.sessions.FindByToken(ctx, s.db, token)
	if err != nil {
		return err
	}
	if session == nil || session.PartnerID != partnerID {
		return domain.ErrNotFound("session", token)
	}
	if session.Status != domain.SessionActive {
		return domain.ErrConflict("session is not active")
	}
	return s.sessions.End(ctx, s.db, session.ID, domain.SessionEnded)
}

// ExpireStaleSessions marks active sessions older than the session TTL as
// expired. Run periodically by the worker.
func (s *Service) ExpireStaleSessions(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	n, err := s.sessions.ExpireStale(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale game sessions", "count", n)
	}
	return n, nil
}

// GetGame returns one catalog entry.
func (s *Service) GetGame(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	g, err := s.games.FindGame(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", id.String())
	}
	return g, nil
}

const catalogTTL = 5 * time.Minute

// ListGames returns the catalog filtered by the uniform query DSL. Results
// are cached per query under the "games" tag; the catalog changes rarely.
func (s *Service) ListGames(ctx context.Context, f repository.Filter, page repository.Page, sort repository.Sort) ([]domain.Game, error) {
	key := catalogKey(f, page, sort)
	raw, _, err := s.cache.GetOrCompute(ctx, key, []string{"games"}, catalogTTL, func(ctx context.Context) ([]byte, error) {
		games, err := s.games.ListGames(ctx, s.db, f, page, sort)
		if err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		return json.Marshal(games)
	})
	if err != nil {
		return nil, err
	}
	var games []domain.Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("decode cached catalog: %w", err)
	}
	return games, nil
}

// catalogKey derives a stable cache key from the list query.
func catalogKey(f repository.Filter, page repository.Page, sort repository.Sort) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	b.WriteString("games:list")
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%v", k, f[k])
	}
	fmt.Fprintf(&b, ":skip=%d:limit=%d:sort=%s:desc=%t", page.Skip, page.Limit, sort.Field, sort.Desc)
	return b.String()
}

// providerSupports checks the wallet currency against the provider's list.
// An empty list means the provider accepts any currency.
func providerSupports(p *domain.GameProvider, currency string) bool {
	if len(p.SupportedCurrencies) == 0 {
		return true
	}
	for _, c := range p.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
