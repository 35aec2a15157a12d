package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	pgloader "quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/logging"
	transport "quiz-session-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func loadConfig(path string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}

// dialRedis connects to the configured Redis. It returns a nil client when no
// address is set.
func dialRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	redisClient, err := dialRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	loader, err := newQuizLoader(ctx, cfg, logger)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, config.DefaultQuizTTL)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		store = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, config.DefaultRedisTTL))
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis session store")
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
		logger.Info("using in-memory session store")
	}

	service := app.NewSessionService(store, quizRepo,
		app.WithLogger(logger),
		app.WithRetention(config.TTLDuration(cfg.Session.Retention, config.DefaultRetention)),
		app.WithCodeAttempts(cfg.CodeAttempts()),
	)

	listenPort := cfg.ListenPort(portFlag)
	server := &http.Server{
		Addr:         ":" + listenPort,
		Handler:      transport.NewRouter(service, logger, transport.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins}),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, config.DefaultReadTimeout),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, config.DefaultWriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", listenPort).Info("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return service.RunReaper(gctx, config.TTLDuration(cfg.Session.ReaperInterval, config.DefaultReaperInterval))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newQuizLoader picks the catalog source: Postgres when configured, otherwise the
// YAML catalog file.
func newQuizLoader(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (memory.QuizLoader, error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			pool.Close()
		}()
		logger.Info("loading quizzes from postgres")
		return pgloader.NewQuizLoader(pool), nil
	}
	if cfg.Quiz.CatalogFile == "" {
		logger.Warn("no quiz catalog configured; every session creation will fail with quiz not found")
		return memory.NewStaticQuizLoader(nil), nil
	}
	loader, err := memory.LoadCatalogFile(cfg.Quiz.CatalogFile)
	if err != nil {
		return nil, err
	}
	logger.WithField("quizzes", len(loader.Quizzes())).Info("loaded quiz catalog file")
	return loader, nil
}
