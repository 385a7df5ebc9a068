package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"catalog_sync/internal/config"
	"catalog_sync/internal/domain"
	"catalog_sync/internal/scheduler"
	"catalog_sync/internal/storage/postgres"
)

type options struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:          "catalogsync",
		Short:        "Keep a local copy of a Shopify catalog in sync",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.logger = setupLogger("info")

			cfg, err := config.Load(o.configPath)
			if err != nil {
				o.logger.Error("failed to load config", "error", err)
				return err
			}
			o.cfg = cfg
			o.logger = setupLogger(cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(
		newRunCmd(o),
		newSyncCmd(o),
		newStatusCmd(o),
		newResetCmd(o),
		newMigrateCmd(o),
		newDeleteCmd(o),
		newProductsCmd(o),
	)
	return root
}

// withApp builds the application for one command and closes it afterwards.
func (o *options) withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			o.logger.Warn("shutdown failed", "error", err)
		}
	}()
	return fn(a)
}

func newRunCmd(o *options) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recover interrupted jobs and run every enabled job on its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(o.logger)
			defer cancel()

			return o.withApp(ctx, func(a *app) error {
				sched := scheduler.NewScheduler(a.coord, scheduler.Config{
					RunTimeout: o.cfg.Sync.RunTimeout,
					RunOnStart: runOnStart,
				}, o.logger)

				o.logger.Info("starting catalog sync",
					"jobs", a.coord.JobNames(),
					"storage", o.cfg.Storage.Driver,
				)

				err := a.coord.Start(ctx, sched)
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run every scheduled job once at startup")
	return cmd
}

func newSyncCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <job>",
		Short: "Run one job now",
		Long: `Runs a single job to completion in the foreground. An unfinished
pass resumes from its stored cursor. Jobs: full_sync, incremental_sync,
order_sync, collection_sync, collection_products.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(o.logger)
			defer cancel()
			if o.cfg.Sync.RunTimeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, o.cfg.Sync.RunTimeout)
				defer cancel()
			}

			return o.withApp(ctx, func(a *app) error {
				stats, err := a.coord.Run(ctx, args[0])
				if stats != nil {
					printStats(cmd, stats)
				}
				return err
			})
		},
	}
}

func printStats(cmd *cobra.Command, stats *domain.SyncStats) {
	cmd.Printf("job:        %s\n", stats.Job)
	cmd.Printf("run:        %s\n", stats.RunID)
	cmd.Printf("completed:  %t\n", stats.Completed)
	cmd.Printf("pages:      %d\n", stats.Pages)
	cmd.Printf("fetched:    %d\n", stats.Fetched)
	cmd.Printf("upserted:   %d\n", stats.Upserted)
	cmd.Printf("skipped:    %d\n", stats.Skipped)
	cmd.Printf("unresolved: %d\n", stats.Unresolved)
	cmd.Printf("published:  %d\n", stats.Published)
	cmd.Printf("duration:   %s\n", stats.Duration.Round(time.Millisecond))
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored state of every job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd.Context(), func(a *app) error {
				states, err := a.coord.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStates(cmd, states)
				return nil
			})
		},
	}
}

func printStates(cmd *cobra.Command, states []domain.JobState) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tPROCESSED\tCURSOR\tLAST RUN\tLAST ERROR")
	for _, s := range states {
		cursor, lastRun, lastErr := "-", "-", ""
		if s.Cursor != nil {
			cursor = *s.Cursor
		}
		if !s.LastRunAt.IsZero() {
			lastRun = s.LastRunAt.UTC().Format(time.RFC3339)
		}
		if s.LastError != nil {
			lastErr = *s.LastError
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", s.Name, s.Status, s.TotalProcessed, cursor, lastRun, lastErr)
	}
	_ = w.Flush()
}

func newResetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <job>",
		Short: "Discard a job's cursor and counters so the next run starts over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd.Context(), func(a *app) error {
				if err := a.coord.Reset(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Job %s reset.\n", args[0])
				return nil
			})
		},
	}
}

func newMigrateCmd(o *options) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires the %s storage driver", config.DriverPostgres)
			}

			m, err := postgres.NewMigrator(o.cfg.Database.URL(), o.logger)
			if err != nil {
				return err
			}
			defer m.Close()

			if down > 0 {
				err = m.Down(down)
			} else {
				err = m.Up()
			}
			if err != nil {
				return err
			}

			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")
	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Apply an upstream delete signal",
	}

	run := func(kind string, del func(a *app, ctx context.Context, id int64) error) *cobra.Command {
		return &cobra.Command{
			Use:   kind + " <id>",
			Short: "Delete a " + kind + " by upstream id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("parse id %q: %w", args[0], err)
				}
				return o.withApp(cmd.Context(), func(a *app) error {
					if err := del(a, cmd.Context(), id); err != nil {
						return err
					}
					cmd.Printf("Deleted %s %d.\n", kind, id)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		run("product", func(a *app, ctx context.Context, id int64) error {
			return a.catalog.DeleteProduct(ctx, id)
		}),
		run("collection", func(a *app, ctx context.Context, id int64) error {
			return a.catalog.DeleteCollection(ctx, id)
		}),
	)
	return cmd
}

func newProductsCmd(o *options) *cobra.Command {
	var filters map[string]string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List local products matching filters",
		Example: `  catalogsync products --filter vendor=acme --filter tag=summer
  catalogsync products --filter price_min=20 --filter price_max=50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd.Context(), func(a *app) error {
				res, err := a.query.Products(cmd.Context(), filters)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tHANDLE\tTITLE\tPRICE\tAVAILABLE")
				for _, p := range res.Products {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s-%s\t%t\n",
						p.ExternalID, p.Handle, p.Title, p.PriceMin.StringFixed(2), p.PriceMax.StringFixed(2), p.Available)
				}
				_ = w.Flush()

				o.logger.Debug("product query",
					"filters", sortedKeys(filters),
					"cache_key", res.CacheKey,
					"cached", res.Cached,
					"approximate", res.Approximate,
				)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "filter as key=value; repeatable")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
