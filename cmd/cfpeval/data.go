package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lirantal/devrel-cfp-committee/internal/correlate"
	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/export"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(speakersCmd)
	rootCmd.AddCommand(speakerEvaluationCmd)
}

// --- seed command ---

var (
	seedSessions string
	seedSpeakers string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import session and speaker feeds and link them",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()
		client := &http.Client{Timeout: time.Minute}

		sessionsSrc := cfg.Fixtures.Sessions
		if seedSessions != "" {
			sessionsSrc = seedSessions
		}
		speakersSrc := cfg.Fixtures.Speakers
		if seedSpeakers != "" {
			speakersSrc = seedSpeakers
		}

		data, err := sessionize.Load(ctx, client, sessionsSrc)
		if err != nil {
			return err
		}
		feed, err := sessionize.DecodeSessionFeed(data)
		if err != nil {
			return fmt.Errorf("%s: %w", sessionsSrc, err)
		}
		sessions := feed.Sessions()
		for _, s := range sessions {
			if err := db.UpsertSession(s); err != nil {
				return err
			}
		}
		fmt.Printf("Imported %d session(s) from %s (%s feed)\n", len(sessions), sessionsSrc, feed.Shape)

		data, err = sessionize.Load(ctx, client, speakersSrc)
		if err != nil {
			return err
		}
		speakers, err := sessionize.DecodeSpeakers(data)
		if err != nil {
			return fmt.Errorf("%s: %w", speakersSrc, err)
		}
		for _, sp := range speakers {
			if err := db.UpsertSpeaker(sp); err != nil {
				return err
			}
		}
		fmt.Printf("Imported %d speaker(s) from %s\n", len(speakers), speakersSrc)

		if err := runCorrelate(db); err != nil {
			return err
		}
		return statusCmd.RunE(cmd, args)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedSessions, "sessions", "", "Session feed file or Sessionize API URL")
	seedCmd.Flags().StringVar(&seedSpeakers, "speakers", "", "Speaker feed file or Sessionize API URL")
}

// --- correlate command ---

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Link stored sessions to stored speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return runCorrelate(db)
	},
}

func runCorrelate(db *database.DB) error {
	result, err := correlate.Run(db, logger)
	if err != nil {
		return fmt.Errorf("correlating: %w", err)
	}
	fmt.Println("\nCorrelation complete:")
	fmt.Printf("  Sessions scanned: %d\n", result.Sessions)
	fmt.Printf("  New links: %d\n", result.Linked)
	fmt.Printf("  Already linked: %d\n", result.AlreadyLinked)
	fmt.Printf("  Unknown speakers skipped: %d\n", result.Dropped)
	fmt.Println()
	return nil
}

// --- export command ---

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions with their evaluations and speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(exportFormat)
		if format != "csv" && format != "json" {
			return fmt.Errorf("unknown export format %q (want csv or json)", exportFormat)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		path := exportOutput
		if path == "" {
			path = "sessions-export." + format
		}

		var w io.Writer = os.Stdout
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()
			w = f
		}

		var summary *export.Summary
		if format == "csv" {
			summary, err = export.WriteCSV(db, w)
		} else {
			summary, err = export.WriteJSON(db, w)
		}
		if err != nil {
			return err
		}

		if path == "-" {
			return nil
		}
		fmt.Printf("Exported %d session(s) to %s\n", summary.Total, path)
		fmt.Printf("  Evaluated: %d\n", summary.Evaluated)
		fmt.Printf("  Unevaluated: %d\n", summary.Unevaluated)
		fmt.Printf("  With speakers: %d\n", summary.WithSpeaker)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Export format: csv or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file, - for stdout (default sessions-export.<format>)")
}

// --- filter command ---

var filterStatus string

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Write a session feed containing only sessions with a given status",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(cfg.Fixtures.Sessions)
		if err != nil {
			return fmt.Errorf("reading session feed: %w", err)
		}
		feed, err := sessionize.DecodeSessionFeed(data)
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Fixtures.Sessions, err)
		}

		if err := os.MkdirAll(cfg.Fixtures.Dir, 0o755); err != nil {
			return fmt.Errorf("creating fixtures directory: %w", err)
		}
		path, kept, err := export.WriteFilteredFixture(feed, filterStatus, cfg.Fixtures.Dir)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Printf("No sessions with status %q.\n", filterStatus)
			fmt.Printf("Available statuses: %s\n", strings.Join(statuses(feed), ", "))
			return nil
		}

		fmt.Printf("Wrote %d of %d session(s) to %s\n", len(kept), len(feed.Sessions()), path)
		for _, s := range kept {
			names := make([]string, 0, len(s.Speakers))
			for _, sp := range s.Speakers {
				names = append(names, sp.Name)
			}
			fmt.Printf("  - %s (%s)\n", s.Title, strings.Join(names, ", "))
		}
		return nil
	},
}

func init() {
	filterCmd.Flags().StringVar(&filterStatus, "status", "Nominated", "Sessionize status to keep")
}

func statuses(feed *sessionize.Feed) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range feed.Sessions() {
		if s.Status != "" && !seen[s.Status] {
			seen[s.Status] = true
			out = append(out, s.Status)
		}
	}
	sort.Strings(out)
	return out
}

// --- sessions command ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List processed and unprocessed sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		processed, err := db.GetProcessedSessions()
		if err != nil {
			return err
		}
		unprocessed, err := db.GetUnprocessedSessions()
		if err != nil {
			return err
		}

		fmt.Printf("Processed (%d):\n", len(processed))
		for _, s := range processed {
			total := 0
			if s.Total != nil {
				total = *s.Total
			}
			completed := ""
			if s.CompletedAt != nil {
				completed = *s.CompletedAt
			}
			fmt.Printf("  [%s] %2d/20  %s  (%s)\n", s.ID, total, s.Title, completed)
		}

		fmt.Printf("\nUnprocessed (%d):\n", len(unprocessed))
		for _, s := range unprocessed {
			fmt.Printf("  [%s] %s\n", s.ID, s.Title)
		}
		return nil
	},
}

// --- speakers command ---

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "List speakers with their session counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		speakers, err := db.GetAllSpeakers()
		if err != nil {
			return err
		}
		if len(speakers) == 0 {
			fmt.Println("No speakers imported. Run 'cfpeval seed' first.")
			return nil
		}
		counts, err := db.CountSessionsBySpeaker()
		if err != nil {
			return err
		}
		latest, err := db.GetLatestSpeakerEvaluations()
		if err != nil {
			return err
		}

		fmt.Printf("Speakers (%d):\n", len(speakers))
		for _, sp := range speakers {
			flag := " "
			if sp.IsTopSpeaker {
				flag = "*"
			}
			line := fmt.Sprintf("  %s [%s] %s - %d session(s)", flag, sp.ID, sp.FullName, counts[sp.ID])
			if ev, ok := latest[sp.ID]; ok {
				line += fmt.Sprintf(", expertise %d/3, relevance %d/3", ev.Scores.ExpertiseMatch, ev.Scores.TopicsRelevance)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- speaker-evaluation command ---

var showHistory bool

var speakerEvaluationCmd = &cobra.Command{
	Use:   "speaker-evaluation [speaker-id]",
	Short: "Show a speaker's current assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sp, err := db.GetSpeaker(args[0])
		if err != nil {
			return err
		}
		if sp == nil {
			return fmt.Errorf("speaker %s not found", args[0])
		}

		var evals []database.SpeakerEvaluation
		if showHistory {
			evals, err = db.GetSpeakerEvaluationHistory(sp.ID)
		} else {
			var ev *database.SpeakerEvaluation
			ev, err = db.GetLatestSpeakerEvaluation(sp.ID)
			if ev != nil {
				evals = []database.SpeakerEvaluation{*ev}
			}
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", sp.FullName, sp.ID)
		if len(evals) == 0 {
			fmt.Println("  Not assessed yet. Run 'cfpeval evaluate-speakers' or 'cfpeval process'.")
			return nil
		}
		for _, ev := range evals {
			fmt.Printf("\n  [%d] %s\n", ev.ID, ev.CreatedAt)
			if ev.ProfileURL != "" {
				fmt.Printf("  Profile: %s\n", ev.ProfileURL)
			}
			fmt.Printf("  Expertise match: %d/3 - %s\n", ev.Scores.ExpertiseMatch, ev.Scores.ExpertiseMatchJustification)
			fmt.Printf("  Topics relevance: %d/3 - %s\n", ev.Scores.TopicsRelevance, ev.Scores.TopicsRelevanceJustification)
		}
		return nil
	},
}

func init() {
	speakerEvaluationCmd.Flags().BoolVar(&showHistory, "history", false, "Show every assessment, newest first")
}
