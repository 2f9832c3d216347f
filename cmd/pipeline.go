package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Build the processed dashboard datasets",
	Long:  "Runs the processing steps that turn the raw inputs under data.raw_dir into the CSV files under data.processed_dir.",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run processing steps",
	Long: `Run processing steps in dependency order.

By default every step runs. Use --phase to restrict to one phase (country,
projection, city) or --steps for specific steps. A failing step is logged
and the run continues; the command exits non-zero if any step failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}
		opts, err := parseRunOpts(cmd)
		if err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "pipeline.run"))
		phase := "all"
		if opts.Phase != nil {
			phase = opts.Phase.String()
		}
		log.Info("starting pipeline",
			zap.String("phase", phase),
			zap.Strings("steps", opts.Steps),
			zap.String("processed_dir", cfg.Data.ProcessedDir),
		)

		env := pipeline.NewEnv(cfg)
		manifest := pipeline.NewManifest(cfg.Data.Processed(pipeline.ManifestFile))
		engine := pipeline.NewEngine(env, pipeline.NewRegistry(), manifest)
		if err := engine.Run(cmd.Context(), opts); err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		fmt.Println("Pipeline complete")
		return nil
	},
}

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processing steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatSteps(os.Stdout, pipeline.NewRegistry().All())
		return nil
	},
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run history",
	Long:  "Displays the step runs recorded in the processed dir manifest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := pipeline.NewManifest(cfg.Data.Processed(pipeline.ManifestFile))
		return showStatus(cmd.Context(), os.Stdout, m, pipeline.NewRegistry().All())
	},
}

func init() {
	pipelineRunCmd.Flags().String("phase", "", "restrict to phase: country, projection, city")
	pipelineRunCmd.Flags().String("steps", "", "comma-separated step names (e.g., wup_level1,wup_national)")
	pipelineCmd.AddCommand(pipelineRunCmd, pipelineListCmd, pipelineStatusCmd)
	rootCmd.AddCommand(pipelineCmd)
}

// parseRunOpts extracts pipeline.RunOpts from the cobra command flags.
func parseRunOpts(cmd *cobra.Command) (pipeline.RunOpts, error) {
	phaseStr, _ := cmd.Flags().GetString("phase")
	stepsStr, _ := cmd.Flags().GetString("steps")

	var opts pipeline.RunOpts
	if phaseStr != "" {
		p, err := pipeline.ParsePhase(phaseStr)
		if err != nil {
			return opts, err
		}
		opts.Phase = &p
	}
	for _, s := range strings.Split(stepsStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.Steps = append(opts.Steps, s)
		}
	}
	return opts, nil
}

// formatSteps writes a table of steps and their outputs to out.
func formatSteps(out io.Writer, steps []pipeline.Step) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STEP\tPHASE\tOUTPUTS")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------")
	for _, s := range steps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name(), s.Phase(), strings.Join(s.Outputs(), ", "))
	}
	_ = w.Flush()
}

// showStatus prints the run history followed by the last successful run
// of every step.
func showStatus(ctx context.Context, out io.Writer, m *pipeline.Manifest, steps []pipeline.Step) error {
	entries, err := m.ListAll(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline status")
	}
	if len(entries) == 0 {
		zap.L().Info("no runs recorded, run 'pipeline run' to build the datasets")
		return nil
	}
	formatStatusEntries(out, entries)

	last := make(map[string]*time.Time, len(steps))
	for _, s := range steps {
		t, err := m.LastSuccess(ctx, s.Name())
		if err != nil {
			return eris.Wrap(err, "pipeline status")
		}
		last[s.Name()] = t
	}
	_, _ = fmt.Fprintln(out)
	formatLastSuccess(out, steps, last)
	return nil
}

// formatLastSuccess writes one row per step with the start time of its most
// recent successful run.
func formatLastSuccess(out io.Writer, steps []pipeline.Step, last map[string]*time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STEP\tPHASE\tLAST SUCCESS")
	_, _ = fmt.Fprintln(w, "----\t-----\t------------")
	for _, s := range steps {
		when := "never"
		if t := last[s.Name()]; t != nil {
			when = t.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name(), s.Phase(), when)
	}
	_ = w.Flush()
}

// formatStatusEntries writes a tabular representation of manifest entries to w.
func formatStatusEntries(out io.Writer, entries []pipeline.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTEP\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "---\t----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(e.RunID),
			e.Step,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Rows,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
