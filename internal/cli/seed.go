package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
)

// NewSeedCmd loads the YAML quiz catalog into Postgres and drops the reseeded
// quizzes from the Redis cache when one is configured.
func NewSeedCmd(configPath *string) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the quiz catalog file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if catalog == "" {
				catalog = cfg.Quiz.CatalogFile
			}
			if catalog == "" {
				return fmt.Errorf("no quiz catalog file given")
			}

			loader, err := memory.LoadCatalogFile(catalog)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
				return err
			}

			db := postgres.OpenDB(cfg.Postgres.URL)
			defer db.Close()
			quizzes := loader.Quizzes()
			n, err := postgres.SeedQuizzes(cmd.Context(), db, quizzes)
			if err != nil {
				return err
			}
			logger.WithField("quizzes", n).WithField("catalog", catalog).Info("quiz catalog seeded")

			client, err := dialRedis(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			if client == nil {
				return nil
			}
			defer client.Close()
			if err := dropCachedQuizzes(cmd.Context(), client, quizzes); err != nil {
				return err
			}
			logger.WithField("addr", cfg.Redis.Addr).Info("quiz cache invalidated")
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog file (defaults to quiz.catalog_file)")
	return cmd
}

func dropCachedQuizzes(ctx context.Context, client *redis.Client, quizzes []domain.Quiz) error {
	ids := make([]string, len(quizzes))
	for i, quiz := range quizzes {
		ids[i] = quiz.ID
	}
	return redisstore.NewQuizRepository(client, nil, 0).Invalidate(ctx, ids...)
}
