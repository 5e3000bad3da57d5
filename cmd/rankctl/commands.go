package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"draftlab/analytics/internal/bootstrap"
	"draftlab/analytics/internal/client"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/importer"
	"draftlab/analytics/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rankctl",
		Short:        "Draft analytics operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(importCmd())
	root.AddCommand(aggregateCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(indexCmd())
	return root
}

// run loads configuration, opens services and cancels on SIGINT/SIGTERM
func run(fn func(ctx context.Context, svc *bootstrap.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrap.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc)
}

func importCmd() *cobra.Command {
	var (
		position   string
		season     int
		source     string
		table      string
		collection string
		weights    string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Rank a position-season cohort from a CSV or JSON source and replace it",
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := models.ParsePosition(position)
			if err != nil {
				return err
			}

			return run(func(ctx context.Context, svc *bootstrap.Services) error {
				cfg := svc.Config
				if weights == "" {
					weights = cfg.RankingWeightsFile
				}
				rankingCfg, err := config.LoadRankingConfig(weights)
				if err != nil {
					return err
				}

				httpClient := client.NewClient(cfg.SourceTimeout, cfg.SourceMaxConcurrent)
				sources := importer.NewSources(httpClient, nil)
				if strings.HasPrefix(source, "s3://") {
					s3Client, err := importer.NewS3Client(ctx, cfg.AWSRegion)
					if err != nil {
						return err
					}
					sources = importer.NewSources(httpClient, s3Client)
				}

				var opts []importer.Option
				if svc.Redis != nil {
					opts = append(opts, importer.WithPageEvictor(svc.Redis))
				}
				imp := importer.New(svc.Store, rankingCfg.Pipeline(), cfg.BatchWriteSize, opts...)
				summary, err := imp.ImportSource(ctx, sources, source, importer.Cohort{
					Position:   pos,
					Season:     season,
					Table:      table,
					Collection: collection,
				})
				if err != nil {
					return err
				}

				cmd.Printf("Imported %d %s records for %d into %s (table %s): %d deleted, %d skipped, %d batches\n",
					summary.Written, summary.Position, summary.Season, summary.Collection, summary.Table,
					summary.Deleted, summary.Skipped, summary.Batches)
				tiers := make([]int, 0, len(summary.TierCounts))
				for tier := range summary.TierCounts {
					tiers = append(tiers, tier)
				}
				sort.Ints(tiers)
				for _, tier := range tiers {
					cmd.Printf("  tier %d: %d\n", tier, summary.TierCounts[tier])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&position, "position", "", "Position (QB, RB, WR, TE)")
	cmd.Flags().IntVar(&season, "season", 0, "Season year")
	cmd.Flags().StringVar(&source, "source", "", "Source file: local path, http(s):// URL or s3://bucket/key")
	cmd.Flags().StringVar(&table, "table", "", "Weight table; defaults to the position's table")
	cmd.Flags().StringVar(&collection, "collection", "", "Target collection; defaults to <position>Stats")
	cmd.Flags().StringVar(&weights, "weights", "", "Ranking weights YAML; defaults to RANKING_WEIGHTS_FILE")
	_ = cmd.MarkFlagRequired("position")
	_ = cmd.MarkFlagRequired("season")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func aggregateCmd() *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run the draft analytics aggregation once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *bootstrap.Services) error {
				agg := svc.Aggregator()
				runFn := agg.Run
				if incremental {
					runFn = agg.RunIncremental
				}

				result, err := runFn(ctx)
				if err != nil {
					return err
				}

				cmd.Printf("Aggregation %s (%s) processed %d sessions and wrote %d documents in %s\n",
					result.RunID, result.Mode, result.Sessions, result.Documents, result.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Only fold in sessions newer than the last incremental run")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the document store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *bootstrap.Services) error {
				if svc.DB == nil {
					return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
				}
				if err := svc.DB.Migrate(ctx); err != nil {
					return err
				}
				cmd.Println("Schema is up to date")
				return nil
			})
		},
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage composite query indexes",
	}

	var (
		collection string
		fields     []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a composite index and resolve matching index requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *bootstrap.Services) error {
				resolved, err := svc.QueryService().CreateIndex(ctx, collection, fields)
				if err != nil {
					return err
				}
				log.Info().Str("collection", collection).Strs("fields", fields).Msg("Index ready")
				cmd.Printf("Index on %s(%s) created, %d pending requests resolved\n",
					collection, strings.Join(fields, ","), resolved)
				return nil
			})
		},
	}
	create.Flags().StringVar(&collection, "collection", "", "Collection name")
	create.Flags().StringSliceVar(&fields, "fields", nil, "Index fields in order, comma separated")
	_ = create.MarkFlagRequired("collection")
	_ = create.MarkFlagRequired("fields")

	cmd.AddCommand(create)
	return cmd
}
