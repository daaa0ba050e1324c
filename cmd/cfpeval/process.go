package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/evaluator"
	"github.com/lirantal/devrel-cfp-committee/internal/llm"
	"github.com/lirantal/devrel-cfp-committee/internal/metrics"
	"github.com/lirantal/devrel-cfp-committee/internal/pipeline"
	"github.com/lirantal/devrel-cfp-committee/internal/profile"
	"github.com/lirantal/devrel-cfp-committee/internal/taskqueue"
	"github.com/lirantal/devrel-cfp-committee/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(evaluateSpeakersCmd)
	rootCmd.AddCommand(resetCmd)
}

// runner bundles a workflow with the observers that need flushing.
type runner struct {
	workflow *pipeline.Workflow
	metrics  *metrics.Manager
	shutdown func(context.Context) error
}

func newRunner(ctx context.Context, db *database.DB, persist bool) (*runner, error) {
	provider, err := llm.CreateProvider(llm.Settings{
		Provider:     cfg.Evaluator.Provider,
		Model:        cfg.Evaluator.Model,
		OllamaURL:    cfg.Evaluator.OllamaURL,
		OpenAIModel:  cfg.Evaluator.OpenAIModel,
		OpenAIKeyEnv: cfg.Evaluator.OpenAIAPIKeyEnv,
		GeminiModel:  cfg.Evaluator.GeminiModel,
		GeminiKeyEnv: cfg.Evaluator.GeminiAPIKeyEnv,
		Timeout:      cfg.Evaluator.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	conference := evaluator.Conference{Name: cfg.Conference.Name, Audience: cfg.Conference.Audience}
	eval := evaluator.New(provider, conference, cfg.Evaluator.MaxTokens)

	tp, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: "cfpeval",
		TraceFile:   cfg.Telemetry.TraceFile,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.NewManager()
	opts := []pipeline.Option{
		pipeline.WithPersistence(persist),
		pipeline.WithSpeakerConcurrency(cfg.Pipeline.SpeakerConcurrency),
		pipeline.WithConference(conference),
		pipeline.WithLogger(logger),
		pipeline.WithObserver(
			pipeline.LogObserver(logger),
			m,
			telemetry.NewSpanObserver(tp),
		),
	}
	if cfg.Profile.Enabled {
		opts = append(opts, pipeline.WithEnricher(profile.NewFetcher(profile.Options{
			Timeout:  cfg.Profile.Timeout,
			MaxChars: cfg.Profile.MaxChars,
			MaxPosts: cfg.Profile.MaxPosts,
		}, logger.With("component", "profile"))))
	}

	return &runner{
		workflow: pipeline.New(eval, db, opts...),
		metrics:  m,
		shutdown: shutdown,
	}, nil
}

// close flushes spans and, when path is set, writes the collected metrics
// in the Prometheus text format.
func (rt *runner) close(db *database.DB, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.shutdown(ctx); err != nil {
		logger.Warn("Flushing traces failed", "error", err)
	}

	if path == "" {
		return
	}
	if stats, err := db.GetStats(); err == nil {
		rt.metrics.SetStoreStats(stats)
	}
	if err := prometheus.WriteToTextfile(path, rt.metrics.Registry()); err != nil {
		logger.Warn("Writing metrics file failed", "path", path, "error", err)
		return
	}
	fmt.Printf("Metrics written to %s\n", path)
}

// --- process command ---

var (
	dryRun      bool
	reportPath  string
	metricsPath string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Evaluate every unprocessed session and its speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		rt, err := newRunner(ctx, db, !dryRun)
		if err != nil {
			return err
		}
		defer rt.close(db, metricsPath)

		sessions, err := db.GetUnprocessedSessions()
		if err != nil {
			return fmt.Errorf("loading unprocessed sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No unprocessed sessions. Run 'cfpeval seed' or 'cfpeval reset' first.")
			return nil
		}
		if dryRun {
			fmt.Println("Dry run: results are not saved.")
		}
		fmt.Printf("Processing %d session(s)...\n", len(sessions))

		report := pipeline.NewReport(time.Now(), dryRun)
		fatal := make(chan error, 1)

		q := taskqueue.New(cfg.Pipeline.SessionConcurrency, func(ctx context.Context, s database.Session) error {
			out, err := rt.workflow.Run(ctx, s)
			if err != nil {
				report.AddFailure(s.ID, err)
				select {
				case fatal <- err:
				default:
				}
				return err
			}
			report.Add(out)
			printOutput(out)
			return nil
		},
			taskqueue.WithName("sessions"),
			taskqueue.WithLogger(logger),
			taskqueue.WithContext(ctx),
			taskqueue.WithErrorHandler(func(err error) {
				logger.Error("Session run failed", "error", err)
			}),
		)

		for _, s := range sessions {
			q.Push(s)
		}

		interrupted, runErr := q.Wait(ctx, fatal)
		if interrupted {
			fmt.Println("\nInterrupted: sessions in flight were finished, the rest left unprocessed.")
		}

		report.Finish(time.Now(), q.Stats().Discarded, interrupted)
		fmt.Println()
		fmt.Println(report.Summary())

		if reportPath != "" {
			if err := report.WriteJSON(reportPath); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", reportPath)
		}
		return runErr
	},
}

func init() {
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate without saving results")
	processCmd.Flags().StringVar(&reportPath, "report", "", "Write a JSON run report to this file")
	processCmd.Flags().StringVar(&metricsPath, "metrics", "", "Write run metrics in Prometheus text format to this file")
}

func printOutput(out *pipeline.Output) {
	marker := ""
	if out.SessionFallback {
		marker = " (fallback)"
	}
	fmt.Printf("  [%s] %s: %d/20%s\n", out.SessionID, out.Title, out.Total, marker)
	for _, sp := range out.Speakers {
		fmt.Printf("      %s\n", formatSpeakerResult(sp))
	}
}

func formatSpeakerResult(sp pipeline.SpeakerResult) string {
	line := fmt.Sprintf("%s: expertise %d/3, relevance %d/3",
		sp.FullName, sp.Assessment.ExpertiseMatch, sp.Assessment.TopicsRelevance)
	if sp.Fallback {
		line += " (fallback"
		if sp.Reason != "" {
			line += ": " + sp.Reason
		}
		line += ")"
	}
	return line
}

// --- evaluate-speakers command ---

var evaluateSpeakersCmd = &cobra.Command{
	Use:   "evaluate-speakers",
	Short: "Assess every stored speaker, independent of sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		rt, err := newRunner(ctx, db, true)
		if err != nil {
			return err
		}
		defer rt.close(db, metricsPath)

		result, runErr := rt.workflow.SpeakerRun(ctx)
		if result == nil {
			return runErr
		}

		for _, sp := range result.Speakers {
			fmt.Printf("  %s\n", formatSpeakerResult(sp))
		}
		fmt.Printf("\nAssessed %d speakers (%d fallback), %d failed, %d left unprocessed\n",
			len(result.Speakers), result.Fallbacks(), result.Failed, result.Discarded)
		if result.Interrupted {
			fmt.Println("Run was interrupted.")
		}
		return runErr
	},
}

func init() {
	evaluateSpeakersCmd.Flags().StringVar(&metricsPath, "metrics", "", "Write run metrics in Prometheus text format to this file")
}

// --- reset command ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every processed session as unprocessed again",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ResetProcessedSessions()
		if err != nil {
			return fmt.Errorf("resetting sessions: %w", err)
		}
		fmt.Printf("Reset %d session(s) to unprocessed.\n", n)
		return nil
	},
}
