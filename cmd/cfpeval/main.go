package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lirantal/devrel-cfp-committee/internal/config"
	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/logging"
	"github.com/lirantal/devrel-cfp-committee/internal/metrics"
	"github.com/lirantal/devrel-cfp-committee/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = logging.Nop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "cfpeval",
	Short:        "Evaluate conference talk proposals and their speakers",
	Long:         "cfpeval imports Sessionize proposals, scores each session and speaker with an LLM, and exports the results for the program committee.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(cfg.Logging.Mode, level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig resolves the config file. Without one the built-in defaults
// are used, unless --config names a file that does not exist.
func loadConfig() (*config.Config, error) {
	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return config.Default()
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return c, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cfpeval", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/cfpeval/",
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
		fmt.Println("Edit it to choose the LLM provider, conference and fixture paths.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Sessions:")
		fmt.Printf("  Total: %d\n", stats.TotalSessions)
		fmt.Printf("  Unprocessed: %d\n", stats.UnprocessedSessions)
		fmt.Printf("  Processed: %d\n", stats.ProcessedSessions)
		fmt.Println("\nSpeakers:")
		fmt.Printf("  Total: %d\n", stats.TotalSpeakers)
		fmt.Printf("  With sessions: %d\n", stats.SpeakersWithSessions)
		fmt.Printf("  Top speakers: %d\n", stats.TopSpeakers)
		fmt.Printf("  Session links: %d\n", stats.SessionSpeakerLinks)
		fmt.Println("\nSpeaker evaluations:")
		fmt.Printf("  Log entries: %d\n", stats.SpeakerEvaluations)
		fmt.Printf("  Speakers evaluated: %d\n", stats.EvaluatedSpeakers)
		fmt.Println("\nAverage scores:")
		fmt.Printf("  Session total: %s\n", formatAvg(stats.AvgSessionTotal))
		fmt.Printf("  Title: %s\n", formatAvg(stats.AvgTitle))
		fmt.Printf("  Description: %s\n", formatAvg(stats.AvgDescription))
		fmt.Printf("  Key takeaways: %s\n", formatAvg(stats.AvgKeyTakeaways))
		fmt.Printf("  Given before: %s\n", formatAvg(stats.AvgGivenBefore))
		fmt.Printf("  Expertise match: %s\n", formatAvg(stats.AvgExpertiseMatch))
		fmt.Printf("  Topics relevance: %s\n", formatAvg(stats.AvgTopicsRelevance))
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local results browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(db,
			server.WithLogger(logger.With("component", "server")),
			server.WithMetrics(metrics.NewManager()),
			server.WithFixture(cfg.Fixtures.Sessions),
		)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DatabasePath(), database.WithLogger(logger))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func formatAvg(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *f)
}
