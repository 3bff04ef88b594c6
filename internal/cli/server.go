package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-session-service/internal/app"
	"live-session-service/internal/config"
	"live-session-service/internal/domain"
	"live-session-service/internal/infra/archive"
	"live-session-service/internal/infra/memory"
	"live-session-service/internal/infra/postgres"
	infraredis "live-session-service/internal/infra/redis"
	transport "live-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.PresentationLoader = memory.NewStaticPresentationLoader(samplePresentations())
	if pool != nil {
		loader = postgres.NewPresentationLoader(pool)
	}

	presentationTTL := config.TTLDuration(cfg.Presentation.TTL, 10*time.Minute)
	var presentations app.PresentationRepository
	if redisClient != nil {
		presentations = infraredis.NewPresentationRepository(redisClient, loader, presentationTTL, logger)
	} else {
		presentations = memory.NewPresentationRepository(loader, presentationTTL)
	}

	hooks := app.Hooks{}
	if redisClient != nil {
		hooks.Publisher = infraredis.NewEventPublisher(redisClient, logger)
		hooks.Leaderboards = infraredis.NewLeaderboardMirror(redisClient, redisTTL)
	}
	if pool != nil {
		hooks.Recorders = append(hooks.Recorders, postgres.NewHistoryRecorder(pool))
	}
	if cfg.Archive.Bucket != "" {
		s3Archive, err := archive.NewS3Archive(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Prefix:          cfg.Archive.Prefix,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}, logger)
		if err != nil {
			logger.Warn("session archive disabled", zap.Error(err))
		} else {
			hooks.Recorders = append(hooks.Recorders, s3Archive)
		}
	}

	var store app.SessionRepository
	if redisClient != nil {
		redisStore := infraredis.NewSessionStore(redisClient, redisTTL, uuid.NewString(), logger)
		if redisTTL > 0 {
			go redisStore.KeepAlive(runCtx, redisTTL/3)
		}
		store = redisStore
	} else {
		store = memory.NewSessionStore()
	}

	service := app.NewSessionService(store, presentations, app.Options{
		ServerURL:       cfg.Server.PublicURL,
		LeaderboardSize: cfg.Session.LeaderboardSize,
		IdleTimeout:     config.TTLDuration(cfg.Session.IdleTimeout, 30*time.Minute),
		MaxCodeAttempts: cfg.Session.MaxCodeAttempts,
		ReactionRate:    cfg.Session.ReactionRate,
		ReactionBurst:   cfg.Session.ReactionBurst,
		Hooks:           hooks,
		Logger:          logger,
	})
	wsHandler := transport.NewWSHandler(service, transport.WSOptions{
		OutboxSize:     cfg.Session.OutboxSize,
		PingInterval:   config.TTLDuration(cfg.Heartbeat.Interval, 30*time.Second),
		PongTimeout:    config.TTLDuration(cfg.Heartbeat.PongTimeout, 5*time.Second),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, wsHandler, cfg.Server.AllowedOrigins, logger),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting session service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	service.Shutdown(shutdownCtx)
	return err
}

// samplePresentations backs the server when no Postgres URL is configured.
func samplePresentations() map[string]domain.Presentation {
	return map[string]domain.Presentation{
		"demo": {
			ID:    "demo",
			Title: "Demo deck",
			Slides: []domain.Slide{
				{
					ID:     "q1",
					Kind:   domain.KindTrivia,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "A", Text: "3"},
						{ID: "B", Text: "4"},
						{ID: "C", Text: "5"},
					},
					CorrectOptionID: "B",
					TimeLimitMs:     20000,
				},
				{
					ID:          "q2",
					Kind:        domain.KindPoll,
					Prompt:      "Tabs or spaces?",
					Options:     []domain.Option{{ID: "tabs", Text: "Tabs"}, {ID: "spaces", Text: "Spaces"}},
					LiveResults: true,
				},
				{
					ID:           "q3",
					Kind:         domain.KindWordCloud,
					Prompt:       "One word for this session",
					LiveResults:  true,
					LockOptional: true,
				},
			},
		},
	}
}
