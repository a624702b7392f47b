package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/pulsefeed/internal/collect"
	"github.com/TobiSchelling/pulsefeed/internal/config"
	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/pipeline"
	"github.com/TobiSchelling/pulsefeed/internal/scheduler"
	"github.com/TobiSchelling/pulsefeed/internal/server"
	"github.com/TobiSchelling/pulsefeed/internal/service"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pulsefeed",
	Short:   "Trending topics and personalized news feeds",
	Long:    "pulsefeed collects articles, scores trending topics from reader engagement, and ranks a personalized feed per user.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env next to the binary may carry NEWSAPI_KEY and friends.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Warning: reading .env: %v", err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			setLogFlags("")
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setLogFlags(cfg.Logging.Level)
		return nil
	},
}

func setLogFlags(level string) {
	if verbose || strings.EqualFold(level, "DEBUG") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(interactCmd)
	rootCmd.AddCommand(feedConfigCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pulsefeed", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pulsefeed/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, scoring weights, and the refresh schedule.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Articles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Content fetched: %d\n", stats.FetchedArticles)
		fmt.Printf("  Categories: %d\n", stats.Categories)
		fmt.Println("\nEngagement:")
		fmt.Printf("  Interactions: %d\n", stats.Interactions)
		fmt.Printf("  Trending topics: %d\n", stats.TrendingTopics)
		fmt.Printf("  Feed configurations: %d\n", stats.FeedConfigurations)
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		for _, kind := range []string{pipeline.KindPipeline, pipeline.KindRefresh} {
			last, err := db.GetLastRun(ctx, kind)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Printf("  Last %s: never\n", kind)
				continue
			}
			status := "ok"
			if last.Error != nil {
				status = "error: " + *last.Error
			} else if last.FinishedAt == nil {
				status = "running"
			}
			fmt.Printf("  Last %s: %s (%s)\n", kind, last.StartedAt.Local().Format(time.DateTime), status)
		}
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting articles from sources...")

		collector := collect.NewCollector(cfg, db)
		result := collector.Collect(cmd.Context())

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if result.Failed > 0 {
			fmt.Printf("  Failed: %d\n", result.Failed)
		}

		printCounts("Articles by source", result.Sources)
		printCounts("Articles by category", result.Categories)
		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	type kv struct {
		key string
		val int
	}
	var sorted []kv
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].val != sorted[j].val {
			return sorted[i].val > sorted[j].val
		}
		return sorted[i].key < sorted[j].key
	})
	for _, s := range sorted {
		fmt.Printf("  %s: %d\n", s.key, s.val)
	}
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> fetch -> trending refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db, newService(db))

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(cmd.Context())
		} else {
			result = pipe.Run(cmd.Context())
		}
		printSteps(result)

		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'pulsefeed serve' to browse trending topics.")
		}
		return result.Err()
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	if result.RunID != "" {
		fmt.Printf("\nRun ID: %s\n", result.RunID)
	}
}

// --- serve command ---

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and, if enabled, the refresh scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := newService(db)
		srv, err := server.New(svc, db, server.Options{
			InteractionsPerSecond: cfg.Server.InteractionsPerSecond,
			InteractionBurst:      cfg.Server.InteractionBurst,
			Metrics:               cfg.Metrics.Enabled,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		if cfg.Schedule.Enabled || serveSchedule {
			sched, err := newRefreshScheduler(ctx, pipeline.New(cfg, db, svc), false)
			if err != nil {
				return err
			}
			defer func() { <-sched.Stop().Done() }()
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv.Handler(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Run the trending refresh scheduler even if disabled in config")
}

// --- schedule command ---

var scheduleFull bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the refresh scheduler in the foreground without the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched, err := newRefreshScheduler(ctx, pipeline.New(cfg, db, newService(db)), scheduleFull)
		if err != nil {
			return err
		}
		fmt.Printf("Next run: %s. Press Ctrl+C to stop\n", sched.Next().Format(time.DateTime))
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleFull, "full", false, "Run the whole pipeline on each tick instead of only the trending refresh")
}

// newRefreshScheduler starts a scheduler that runs the trending refresh (or
// the full pipeline when full is set) on the configured cron spec.
func newRefreshScheduler(ctx context.Context, pipe *pipeline.Pipeline, full bool) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	err = sched.Schedule(cfg.Schedule.Cron, func() {
		var result *pipeline.Result
		if full {
			result = pipe.Run(ctx)
		} else {
			result = pipe.Refresh(ctx)
		}
		if err := result.Err(); err != nil {
			log.Printf("Scheduled run %s failed: %v", result.RunID, err)
			return
		}
		log.Printf("Scheduled run %s complete: %s", result.RunID, result.Steps[len(result.Steps)-1].Summary)
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	log.Printf("Trending refresh scheduled: %s (%s)", cfg.Schedule.Cron, cfg.Schedule.Timezone)
	return sched, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}

func newService(db *database.DB) *service.Service {
	return service.New(db, cfg.ServiceOptions())
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
