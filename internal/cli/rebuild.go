package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/spf13/cobra"
)

var rebuildOpts lifecycle.Options

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild memory collections whose data changed",
	Long: `Rebuild the memory collections whose source data changed since the last
successful build. A new version is recorded and snapshotted when at least one
collection was rebuilt or the system prompt changed.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildOpts.Force, "force", false, "rebuild every collection regardless of changes")
	rebuildCmd.Flags().BoolVar(&rebuildOpts.DryRun, "dry-run", false, "report what would be rebuilt without touching anything")
	rebuildCmd.Flags().BoolVar(&rebuildOpts.SkipProceduralGen, "skip-procedural-gen", false, "do not generate procedural rules after an episodic rebuild")
	rebuildCmd.Flags().BoolVar(&rebuildOpts.CreateVersion, "create-version", false, "record a version even when nothing changed")
	rebuildCmd.Flags().BoolVar(&rebuildOpts.Validate, "validate", false, "validate data files first and abort on errors")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		opts := rebuildOpts
		opts.Trigger = "cli"

		ctx := tracing.NewCycleContext(cmd.Context(), "cli")
		report, err := a.service.Rebuild(ctx, opts)
		out := cmd.OutOrStdout()
		if report != nil {
			printReport(out, report)
		}
		if err != nil {
			if errors.Is(err, lifecycle.ErrInvalidData) {
				return fmt.Errorf("rebuild aborted: %w", err)
			}
			return fmt.Errorf("rebuild failed: %w", err)
		}
		if report.Outcome == "failed" {
			return fmt.Errorf("rebuild failed for %d categories", len(report.Failures))
		}
		return nil
	})
}

func printPlan(out io.Writer, plan lifecycle.Plan) {
	for _, c := range plan.Categories {
		mark := " "
		if c.WillRebuild {
			mark = "*"
		}
		fmt.Fprintf(out, " %s %-14s +%d ~%d -%d", mark, c.Category, c.Changes.Added, c.Changes.Modified, c.Changes.Deleted)
		if c.Error != "" {
			fmt.Fprintf(out, "  error: %s", c.Error)
		}
		fmt.Fprintln(out)
	}
	if plan.GenerateRules {
		fmt.Fprintln(out, "   procedural rules will be regenerated from episodic data")
	}
	fmt.Fprintf(out, "Total changes: %d\n", plan.TotalChanges)
}

func printReport(out io.Writer, r *lifecycle.Report) {
	if r.Validation != nil && !r.Validation.OK() {
		fmt.Fprintln(out, "Validation errors:")
		for _, issue := range r.Validation.Errors() {
			fmt.Fprintf(out, "  %s\n", issue)
		}
	}
	if len(r.Plan.Categories) > 0 {
		printPlan(out, r.Plan)
	}

	switch {
	case r.Options.DryRun:
		fmt.Fprintln(out, "Dry run: nothing was changed")
	case r.UpToDate:
		fmt.Fprintln(out, "Memory is up to date")
	}
	if r.Build != nil {
		for _, c := range r.Build.Rebuilt() {
			fmt.Fprintf(out, "Rebuilt %s\n", c)
		}
	}
	for c, msg := range r.Failures {
		fmt.Fprintf(out, "Failed %s: %s\n", c, msg)
	}
	if r.VersionID != "" {
		fmt.Fprintf(out, "Created version %s", r.VersionID)
		if r.SnapshotCreated {
			fmt.Fprint(out, " (snapshot saved)")
		}
		fmt.Fprintln(out)
	}
	if r.SnapshotsRemoved > 0 {
		fmt.Fprintf(out, "Removed %d old snapshots\n", r.SnapshotsRemoved)
	}
	fmt.Fprintf(out, "Outcome: %s in %dms\n", r.Outcome, r.DurationMS)
}
