package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/youjaegwon/coinwatch/internal/config"
	"github.com/youjaegwon/coinwatch/internal/event"
	"github.com/youjaegwon/coinwatch/internal/http/handler"
	"github.com/youjaegwon/coinwatch/internal/http/router"
	"github.com/youjaegwon/coinwatch/internal/mail"
	"github.com/youjaegwon/coinwatch/internal/market"
	"github.com/youjaegwon/coinwatch/internal/observability"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
	"github.com/youjaegwon/coinwatch/internal/service"
	"github.com/youjaegwon/coinwatch/internal/storage"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	db     *gorm.DB
	redis  *redis.Client
	events event.Publisher
}

// New wires the whole service: storage, observability runtime, services,
// handlers and the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	db, err := storage.OpenPostgres(cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	var events event.Publisher = event.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		events = event.NewKafkaPublisher(cfg.KafkaBrokers, logger)
	}

	var mailer mail.Mailer = mail.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	tokenSvc := service.NewTokenService(tokenRepo, cfg.TokenPepper, cfg.RefreshTokenTTL)
	authSvc := service.NewAuthService(userRepo, tokenSvc, jwtMgr, events, logger, cfg.AccessTokenTTL)
	sessionSvc := service.NewSessionService(tokenRepo)
	resetSvc := service.NewPasswordResetService(userRepo, resetRepo, tokenSvc, mailer, events, logger, cfg.PasswordResetTTL, cfg.PublicBaseURL)

	var marketHandler *handler.MarketHandler
	if cfg.MarketUpstreamBaseURL != "" {
		marketSvc := market.NewService(market.NewHTTPClient(cfg.MarketUpstreamBaseURL), redisClient, logger, cfg.MarketCacheTTL)
		marketHandler = handler.NewMarketHandler(marketSvc)
	}

	deps := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc, resetSvc),
		UserHandler:      handler.NewUserHandler(authSvc, sessionSvc),
		MarketHandler:    marketHandler,
		JWTManager:       jwtMgr,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		DBPinger: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		EnableOTelHTTP: cfg.EnableOTelHTTP,
	}
	if redisClient != nil {
		deps.RedisPinger = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		db:            db,
		redis:         redisClient,
		events:        events,
	}, nil
}

// Run serves until the context is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Logger.Info("shutting down")
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.close()
	return err
}

// CleanupExpiredTokens deletes long-expired ledger rows. Storage hygiene
// only; correctness never depends on this sweep running.
func (a *App) CleanupExpiredTokens(retention time.Duration) (int64, error) {
	tokenRepo := repository.NewTokenRepository(a.db)
	return tokenRepo.DeleteExpired(time.Now().Add(-retention))
}

func (a *App) close() {
	if c, ok := a.events.(*event.KafkaPublisher); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn("close kafka publisher", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis client", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("shutdown observability", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
