// Command ingest runs the ThreadJuice pipeline from the command line: one
// batch, a single URL, a quota report, or admin token hashing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/threadjuice/threadjuice/internal/app"
	"github.com/threadjuice/threadjuice/internal/config"
	"github.com/threadjuice/threadjuice/internal/ingest"
	"github.com/threadjuice/threadjuice/internal/logging"
	"github.com/threadjuice/threadjuice/internal/middleware"
)

var (
	v       *viper.Viper
	cfg     config.Config
	cfgFile string
	flush   = func() {}
)

func main() {
	_ = godotenv.Load()
	v = config.Viper()

	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ThreadJuice content ingestion",
		Long: `Collects viral posts from Reddit and Twitter, rewrites them into
persona-voiced stories and stores them. Settings come from the environment,
an optional .env file and an optional YAML config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			cfg = config.FromViper(v)
			f, err := logging.Setup(cfg.Log)
			if err != nil {
				return err
			}
			flush = f
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			flush()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db-driver", "", "Story store driver (postgres or sqlite)")
	_ = v.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("DB_DRIVER", rootCmd.PersistentFlags().Lookup("db-driver"))

	rootCmd.AddCommand(
		createRunCmd(),
		createURLCmd(),
		createQuotaCmd(),
		createMigrateCmd(),
		createHashTokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func createRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				report := a.Pipeline.Run(ctx, ingest.OptionsFromConfig(cfg))
				return printJSON(report)
			})
		},
	}

	cmd.Flags().Int("max-stories", 0, "Maximum stories to publish in this run")
	cmd.Flags().Int("workers", 0, "Concurrent story workers")
	cmd.Flags().Float64("min-drama", 0, "Minimum drama score for a candidate")
	cmd.Flags().String("subreddits", "", "Comma separated subreddits to fetch")
	cmd.Flags().String("accounts", "", "Comma separated Twitter accounts to fetch")
	cmd.Flags().Bool("simulate-on-empty", false, "Publish a simulated story when nothing ranks")
	_ = v.BindPFlag("PIPELINE_MAX_STORIES", cmd.Flags().Lookup("max-stories"))
	_ = v.BindPFlag("PIPELINE_WORKERS", cmd.Flags().Lookup("workers"))
	_ = v.BindPFlag("PIPELINE_MIN_DRAMA_SCORE", cmd.Flags().Lookup("min-drama"))
	_ = v.BindPFlag("REDDIT_SUBREDDITS", cmd.Flags().Lookup("subreddits"))
	_ = v.BindPFlag("TWITTER_ACCOUNTS", cmd.Flags().Lookup("accounts"))
	_ = v.BindPFlag("PIPELINE_SIMULATE_ON_EMPTY", cmd.Flags().Lookup("simulate-on-empty"))

	return cmd
}

func createURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>",
		Short: "Ingest a single Reddit, Twitter or web page URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				out, err := a.Pipeline.RunURL(ctx, args[0])
				if err != nil {
					return err
				}
				if out.Duplicate {
					fmt.Println("already ingested")
					return nil
				}
				return printJSON(out.Story)
			})
		},
	}
}

func createQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show per-service API quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				usage, err := a.Limiter.Status(ctx)
				if err != nil {
					return err
				}
				for _, u := range usage {
					fmt.Printf("%-8s day %d/%s  month %d/%s\n",
						u.Service, u.DailyUsed, limit(u.DailyLimit), u.MonthlyUsed, limit(u.MonthlyLimit))
				}
				return nil
			})
		},
	}
}

func createMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the story store and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				zap.S().Infow("migrations applied", "driver", cfg.DB.Driver)
				return nil
			})
		},
	}
}

func createHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to use as ADMIN_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := middleware.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

// withApp builds the application, runs fn with a context cancelled on
// SIGINT or SIGTERM, and releases everything afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func limit(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
