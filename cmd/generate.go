package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/store"
	"github.com/tabloom/tabloom/internal/synth"
	"github.com/tabloom/tabloom/internal/utils"
)

var (
	genTitle      string
	genIdea       string
	genPasteFile  string
	genIntent     string
	genModel      string
	genSQL        bool
	genDryRun     bool
	genJSON       bool
	genTimeoutSec int
)

var generateCmd = &cobra.Command{
	Use:   "generate [dataset files...]",
	Short: "Generate a narrative report from datasets or an idea",
	Long: `Generate a report. With dataset file arguments (.csv, .tsv, .xlsx) the
datasets are profiled and the narrative is grounded in precomputed citations.
With --idea and no files, a qualitative report is written from the idea alone.
With --paste, the named text file is restructured into a report.`,
	Example: `  tabloom generate sales.csv costs.xlsx --intent "where is revenue concentrated"
  tabloom generate orders.csv --sql
  tabloom generate --idea "Q3 retention strategy for a subscription app"
  tabloom generate notes.csv --dry-run`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genTitle, "title", "", "report title (defaults to model-chosen)")
	generateCmd.Flags().StringVar(&genIdea, "idea", "", "free-text idea (generate mode, no files)")
	generateCmd.Flags().StringVar(&genPasteFile, "paste", "", "text file to restructure (paste mode)")
	generateCmd.Flags().StringVar(&genIntent, "intent", "", "reader goal used to filter content")
	generateCmd.Flags().StringVar(&genModel, "model", "", "model id (overrides config default)")
	generateCmd.Flags().BoolVar(&genSQL, "sql", false, "use the SQL analysis path instead of the profiler")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "run analysis only and print citations; no model calls")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print the full report as JSON instead of a summary")
	generateCmd.Flags().IntVar(&genTimeoutSec, "timeout-sec", 0, "overall generation deadline in seconds (overrides config)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args)
	if err != nil {
		return err
	}

	if genDryRun {
		if req.Mode != synth.ModeImport {
			return fmt.Errorf("--dry-run requires dataset files")
		}
		return printDryRun(cmd, req)
	}

	gen, err := newGenerateFunc()
	if err != nil {
		return err
	}
	st, err := newStore()
	if err != nil {
		return err
	}
	orch := synth.New(gen, st, newLogger(), synth.Options{DefaultModel: cfg.DefaultModel})

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if genTimeoutSec > 0 {
		timeout = time.Duration(genTimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	emit := func(ev synth.Event) {
		if genJSON {
			return
		}
		switch ev.Type {
		case synth.EventProgress:
			fmt.Fprintf(os.Stderr, "  [%3d%%] %s\n", ev.Percent, ev.Label)
		case synth.EventError:
			fmt.Fprintf(os.Stderr, "  ✗ %s\n", ev.Message)
		}
	}

	rep, err := orch.Run(ctx, req, emit)
	if err != nil {
		return err
	}

	if genJSON {
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return err
		}
		cmd.Println(string(b))
		return nil
	}

	cmd.Printf("✓ Report %s generated: %s\n", rep.ID, rep.Title)
	cmd.Printf("  quality score: %d\n", rep.Quality.Score)
	for _, w := range rep.Quality.Warnings {
		cmd.Printf("  ⚠ %s\n", w)
	}
	cmd.Printf("  view with: tabloom reports show %s\n", rep.ID)
	return nil
}

func buildRequest(args []string) (synth.Request, error) {
	switch {
	case len(args) > 0:
		if genIdea != "" || genPasteFile != "" {
			return synth.Request{}, fmt.Errorf("dataset files cannot be combined with --idea or --paste")
		}
		datasets, err := loadDatasets(args)
		if err != nil {
			return synth.Request{}, err
		}
		return synth.Request{
			Mode:     synth.ModeImport,
			Title:    genTitle,
			Intent:   genIntent,
			Datasets: datasets,
			UseSQL:   genSQL,
			Model:    genModel,
		}, nil
	case genPasteFile != "":
		b, err := os.ReadFile(genPasteFile)
		if err != nil {
			return synth.Request{}, fmt.Errorf("read paste file: %w", err)
		}
		return synth.Request{
			Mode:   synth.ModePaste,
			Title:  genTitle,
			Text:   string(b),
			Intent: genIntent,
			Model:  genModel,
		}, nil
	case genIdea != "":
		return synth.Request{
			Mode:   synth.ModeGenerate,
			Title:  genTitle,
			Idea:   genIdea,
			Intent: genIntent,
			Model:  genModel,
		}, nil
	default:
		return synth.Request{}, fmt.Errorf("nothing to do: pass dataset files, --idea, or --paste")
	}
}

func loadDatasets(paths []string) ([]*dataset.Dataset, error) {
	datasets := make([]*dataset.Dataset, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		ds, err := dataset.Decode(b, filepath.Base(p))
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

// printDryRun runs the profiler path locally and prints what the model would
// be allowed to cite.
func printDryRun(cmd *cobra.Command, req synth.Request) error {
	analysis := synth.BuildAnalysis(req.Datasets)
	cmd.Println(analysis.Summary)
	cmd.Println("[CITATIONS]")
	for _, c := range analysis.Citations.Rendered() {
		cmd.Printf("- %s\n", c)
	}
	if len(analysis.Candidates) > 0 {
		cmd.Println("\n[CHART CANDIDATES]")
		for _, c := range analysis.Candidates {
			cmd.Printf("- %s: %s (%s, %d points, score %.1f)\n", c.ID, c.Title, c.Type, len(c.Points), c.Score)
		}
	}
	return nil
}

func newStore() (*store.FileStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return store.NewFileStore(cfg.ReportsDir)
}
