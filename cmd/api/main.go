package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/application"
	appaccount "github.com/bryanwahyu/verdict/internal/application/account"
	appai "github.com/bryanwahyu/verdict/internal/application/ai"
	appverdict "github.com/bryanwahyu/verdict/internal/application/verdict"
	"github.com/bryanwahyu/verdict/internal/config"
	"github.com/bryanwahyu/verdict/internal/domain/account"
	domainai "github.com/bryanwahyu/verdict/internal/domain/ai"
	"github.com/bryanwahyu/verdict/internal/domain/verdict"
	"github.com/bryanwahyu/verdict/internal/infra/ai/gemini"
	"github.com/bryanwahyu/verdict/internal/infra/ai/openai"
	"github.com/bryanwahyu/verdict/internal/infra/ai/prompt"
	mysqlp "github.com/bryanwahyu/verdict/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/verdict/internal/infra/db/postgres"
	"github.com/bryanwahyu/verdict/internal/infra/httpserver"
	"github.com/bryanwahyu/verdict/internal/infra/logging"
	"github.com/bryanwahyu/verdict/internal/infra/storage"
	"github.com/bryanwahyu/verdict/internal/infra/token"
	"github.com/bryanwahyu/verdict/internal/middleware"
)

// meteredAnalyzer counts analysis calls for /metrics.
type meteredAnalyzer struct {
	next appverdict.Analyzer
}

func (m meteredAnalyzer) Analyze(ctx context.Context, req verdict.Request) (verdict.Payload, error) {
	done := middleware.TrackAnalysis()
	out, err := m.next.Analyze(ctx, req)
	done(err)
	return out, err
}

type stores struct {
	users    account.UserRepository
	sessions account.SessionRepository
	analyses verdict.Repository
}

func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, stores, error) {
	pool := mysqlp.Pool{MaxOpen: cfg.Database.MaxOpen, MaxIdle: cfg.Database.MaxIdle}

	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), pool)
		if err != nil {
			return nil, stores{}, err
		}
		if cfg.Database.AutoMigrate {
			if err := mysqlp.Migrate(ctx, db, log); err != nil {
				db.Close()
				return nil, stores{}, err
			}
		}
		return db, stores{
			users:    mysqlp.NewUserRepository(db),
			sessions: mysqlp.NewSessionRepository(db),
			analyses: mysqlp.NewAnalysisRepository(db),
		}, nil
	default:
		db, err := pgp.Connect(ctx, cfg.PostgresDSN(), pgp.Pool(pool))
		if err != nil {
			return nil, stores{}, err
		}
		if cfg.Database.AutoMigrate {
			if err := pgp.Migrate(ctx, db, log); err != nil {
				db.Close()
				return nil, stores{}, err
			}
		}
		return db, stores{
			users:    pgp.NewUserRepository(db),
			sessions: pgp.NewSessionRepository(db),
			analyses: pgp.NewAnalysisRepository(db),
		}, nil
	}
}

type draftStore interface {
	verdict.DraftStore
	Ping(ctx context.Context) error
}

func openDrafts(ctx context.Context, cfg config.DraftsConfig) (draftStore, error) {
	if cfg.Backend != "minio" {
		return storage.NewMemory(cfg.TTL), nil
	}
	return storage.New(ctx, storage.Options{
		Endpoint:  cfg.Minio.Endpoint,
		Region:    cfg.Minio.Region,
		Bucket:    cfg.Minio.BucketName,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		UseSSL:    cfg.Minio.UseSSL,
		TTL:       cfg.TTL,
	})
}

func dialer(cfg config.AIConfig) domainai.Dialer {
	if cfg.Provider == config.ProviderOpenAI {
		return openai.NewDialer(openai.Options{MaxOutputTokens: cfg.MaxOutputTokens})
	}
	return gemini.NewDialer(gemini.Options{MaxOutputTokens: cfg.MaxOutputTokens})
}

func main() {
	// path config.yaml
	path, explicit := "config.yaml", false
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path, explicit = v, true
	}

	// load config
	cfg, err := config.Load(path, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// connect database
	db, repos, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database init error")
	}
	defer db.Close()

	// draft store
	drafts, err := openDrafts(ctx, cfg.Drafts)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Drafts.Backend).Msg("draft store init error")
	}

	// analysis client
	primary, fallback := cfg.AI.Models()
	analyzer := appai.NewService(
		func() string { return config.ResolveAIKey(cfg.AI, nil) },
		dialer(cfg.AI),
		primary, fallback,
		logger,
	)
	if config.ResolveAIKey(cfg.AI, nil) == "" {
		logger.Warn().Str("provider", cfg.AI.Provider).Msg("no AI API key configured, submissions will fail until one is set")
	}

	// accounts
	clock := application.SystemClock{}
	tokens := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	gate := appaccount.NewGate(repos.users, repos.sessions, tokens, clock, logger)
	accounts := &appaccount.Service{
		Users:      repos.users,
		Sessions:   repos.sessions,
		Tokens:     tokens,
		Gate:       gate,
		Clock:      clock,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		HashCost:   cfg.Auth.PasswordHashCost,
		Log:        logger,
	}

	// analyses
	svc := &appverdict.Service{
		Repo:               repos.analyses,
		Drafts:             drafts,
		Analyzer:           meteredAnalyzer{next: analyzer},
		Clock:              clock,
		MinObjectionLength: cfg.Analysis.MinObjectionLength,
		Log:                logger,
	}
	workspaces := appverdict.NewWorkspaces(svc, gate.Lookup, logger)
	unsubscribe := gate.OnSessionChange(workspaces.HandleSessionEvent)
	defer unsubscribe()
	go workspaces.RunCleanup(ctx, 5*time.Minute)

	var limiter *middleware.RateLimiter
	if cfg.Auth.AttemptBurst > 0 {
		limiter = middleware.NewRateLimiter(cfg.Auth.AttemptBurst, cfg.Auth.AttemptsPerMinute)
		go limiter.RunCleanup(ctx)
	}

	ready := new(atomic.Bool)
	handler := httpserver.NewRouter(httpserver.Deps{
		Accounts:   accounts,
		Gate:       gate,
		Analyses:   svc,
		Workspaces: workspaces,
		Protocol:   prompt.Default(),
		Checkers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"drafts":   middleware.CheckFunc(drafts.Ping),
		},
		Ready:          ready,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Log:            logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// run server
	go func() {
		logger.Info().Str("addr", addr).Str("provider", cfg.AI.Provider).Str("model", primary).Msg("server listening")
		ready.Store(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	ready.Store(false)
	logger.Info().Msg("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
