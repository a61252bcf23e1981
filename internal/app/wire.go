// Package app assembles the repositories, services, and HTTP router shared
// by the api and worker binaries.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/betlink/hub/internal/admission"
	"github.com/betlink/hub/internal/aml"
	"github.com/betlink/hub/internal/auth"
	"github.com/betlink/hub/internal/cache"
	"github.com/betlink/hub/internal/game"
	"github.com/betlink/hub/internal/handler"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/partner"
	"github.com/betlink/hub/internal/report"
	"github.com/betlink/hub/internal/repository"
	"github.com/betlink/hub/internal/wallet"
)

// l1CacheSize bounds the in-process cache tier.
const l1CacheSize = 4096

// App holds every wired component. The api binary serves App.Router; the
// worker binary drives the schedulers directly.
type App struct {
	Cfg    *infra.Config
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Cache  *cache.Cache
	Tasks  *infra.TaskQueue
	Logger *slog.Logger

	Wallet    *wallet.Engine
	Games     *game.Service
	Analyzer  *aml.Analyzer
	Review    *aml.ReviewService
	Partners  *partner.Service
	Scheduler *report.Scheduler
	JWTMgr    *auth.JWTManager

	pipeline *admission.Pipeline
	limits   *admission.Limits
}

// New wires the application. The caller owns the pool and redis client
// lifetimes; Close releases only what New created.
func New(cfg *infra.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*App, error) {
	c, err := cache.New(rdb, l1CacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	encryptor, err := infra.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}

	jwtExpiry, err := time.ParseDuration(cfg.InternalJWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse jwt expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.InternalJWTKey, jwtExpiry, time.Hour)

	providerTimeout, err := time.ParseDuration(cfg.ProviderTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse provider timeout: %w", err)
	}
	requestTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse request timeout: %w", err)
	}

	tasks := infra.NewTaskQueue(1024, 8, logger)

	// Repositories
	playerRepo := repository.NewPlayerRepository()
	walletRepo := repository.NewWalletRepository()
	txRepo := repository.NewTransactionRepository()
	outboxRepo := repository.NewOutboxRepository()
	partnerRepo := repository.NewPartnerRepository()
	keyRepo := repository.NewAPIKeyRepository()
	ipRepo := repository.NewPartnerIPRepository()
	gameRepo := repository.NewGameRepository()
	sessionRepo := repository.NewSessionRepository()
	gameTxRepo := repository.NewGameTxRepository()
	amlRepo := repository.NewAMLRepository()
	auditRepo := repository.NewAuditRepository()
	jobRepo := repository.NewReportJobRepository()

	// Engines
	walletEngine := wallet.NewEngine(pool, playerRepo, walletRepo, txRepo, outboxRepo, c, logger)

	gameSvc := game.NewService(
		pool, gameRepo, sessionRepo, gameTxRepo, partnerRepo, playerRepo,
		outboxRepo, walletEngine, c, encryptor,
		&http.Client{Timeout: providerTimeout},
		game.Config{
			SessionTTL:   time.Duration(cfg.SessionTTLHours) * time.Hour,
			CallbackSkew: time.Duration(cfg.CallbackSkewSecs) * time.Second,
			NonceTTL:     time.Duration(cfg.NonceTTLSecs) * time.Second,
			IframeHost:   cfg.IframeHost,
		},
		logger,
	)

	analyzer := aml.NewAnalyzer(
		pool, txRepo, amlRepo, outboxRepo, encryptor,
		aml.NewThresholds(cfg.AMLThresholds()), nil, logger,
	)
	review := aml.NewReviewService(pool, amlRepo, outboxRepo, logger)

	partnerSvc := partner.NewService(pool, partnerRepo, keyRepo, ipRepo, encryptor, c, logger)

	store, err := report.NewStore(cfg.ReportStoragePath)
	if err != nil {
		return nil, fmt.Errorf("create report store: %w", err)
	}
	registry := report.NewRegistry(report.TransactionsDefinition(pool, txRepo))
	scheduler := report.NewScheduler(pool, jobRepo, outboxRepo, registry, store, cfg.ReportQueueSize, logger)

	// Admission
	keyTTL := time.Duration(cfg.APIKeyCacheTTLSecs) * time.Second
	authn := admission.NewAuthenticator(pool, keyRepo, c, tasks, keyTTL, logger)
	ips := admission.NewIPWhitelist(pool, ipRepo, c, cfg.EnableIPWhitelist, logger)
	limiter := admission.NewRateLimiter(c, nil, cfg.DefaultRateLimit, cfg.EnableRateLimiting, logger)
	auditor := admission.NewAuditor(pool, auditRepo, tasks, logger)
	pipeline := admission.NewPipeline(authn, ips, limiter, auditor, []string{"/health"})
	limits := admission.NewLimits(cfg.MaxConcurrentReqs, cfg.MaxRequestBodyMB, requestTimeout)

	return &App{
		Cfg: cfg, Pool: pool, Redis: rdb, Cache: c, Tasks: tasks, Logger: logger,
		Wallet: walletEngine, Games: gameSvc, Analyzer: analyzer, Review: review,
		Partners: partnerSvc, Scheduler: scheduler, JWTMgr: jwtMgr,
		pipeline: pipeline, limits: limits,
	}, nil
}

// Close drains the background task queue.
func (a *App) Close() {
	a.Tasks.Close()
}

// Router assembles the chi router: partner API behind the admission
// pipeline, back-office API behind staff JWTs.
func (a *App) Router() chi.Router {
	walletHandler := handler.NewWalletHandler(a.Wallet, a.Analyzer, a.Tasks)
	gameHandler := handler.NewGameHandler(a.Games)
	reportHandler := handler.NewReportHandler(a.Scheduler)
	partnerHandler := handler.NewPartnerHandler(a.Partners)
	amlHandler := handler.NewAMLHandler(a.Review)
	auditHandler := handler.NewAuditHandler(repository.NewAuditRepository(), a.Pool)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(a.Logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(a.Logger))
	r.Use(handler.JSONContentType)
	r.Use(a.limits.Middleware)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(a.Pool, a.Redis))

	// Partner API: every request passes the admission pipeline.
	r.Route("/v1", func(r chi.Router) {
		r.Use(a.pipeline.Middleware)

		r.Route("/wallet", func(r chi.Router) {
			// Credit and debit are gated per transaction type inside the
			// handler (wallet:deposit, wallet:bet, ...).
			r.Post("/credit", walletHandler.Credit)
			r.Post("/debit", walletHandler.Debit)
			r.With(admission.Require("wallet:rollback")).Post("/rollback", walletHandler.Rollback)
			r.With(admission.Require("wallet:read")).Get("/players/{player_id}/balance", walletHandler.GetBalance)
			r.With(admission.Require("wallet:read")).Get("/transactions", walletHandler.ListTransactions)
			r.With(admission.Require("wallet:read")).Get("/transactions/{id}", walletHandler.GetTransaction)
		})

		r.Route("/games", func(r chi.Router) {
			r.With(admission.Require("game:read")).Get("/", gameHandler.ListGames)
			r.With(admission.Require("game:read")).Get("/{game_id}", gameHandler.GetGame)
			r.With(admission.Require("game:launch")).Post("/launch", gameHandler.Launch)
			r.With(admission.Require("game:launch")).Delete("/sessions/{token}", gameHandler.EndSession)
			r.With(admission.Require("game:callback")).Post("/callback", gameHandler.Callback)
		})

		r.Route("/reports", func(r chi.Router) {
			r.With(admission.Require("report:create")).Post("/", reportHandler.Create)
			r.With(admission.Require("report:read")).Get("/{id}", reportHandler.Status)
			r.With(admission.Require("report:read")).Get("/{id}/download", reportHandler.Download)
		})
	})

	// Back-office API: staff JWTs, role gated.
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(handler.CORS(a.Cfg.CORSAllowedOrigins))
		r.Use(auth.AuthenticateStaff(a.JWTMgr))

		r.Route("/partners", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Post("/", partnerHandler.Create)
			r.Get("/", partnerHandler.List)
			r.Get("/{id}", partnerHandler.Get)
			r.Post("/{id}/status", partnerHandler.SetStatus)
			r.Post("/{id}/keys", partnerHandler.CreateKey)
			r.Get("/{id}/keys", partnerHandler.ListKeys)
			r.Delete("/{id}/keys/{key_id}", partnerHandler.RevokeKey)
			r.Post("/{id}/ips", partnerHandler.AddIP)
			r.Get("/{id}/ips", partnerHandler.ListIPs)
			r.Delete("/{id}/ips/{entry_id}", partnerHandler.RemoveIP)
		})

		r.Route("/aml", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.ReviewRoles()...))

			r.Get("/alerts", amlHandler.ListAlerts)
			r.Get("/alerts/{id}", amlHandler.GetAlert)
			r.Post("/alerts/{id}/status", amlHandler.TransitionAlert)
			r.Get("/reports", amlHandler.ListReports)
		})

		r.With(auth.RequireRole(auth.AllStaffRoles()...)).
			Get("/audit-logs", auditHandler.List)
	})

	return r
}
