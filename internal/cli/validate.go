package cli

import (
	"fmt"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/datavalidate"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the memory data files",
	Long: `Check the semantic, episodic, procedural and system prompt directories.
Episodic and procedural JSON files are checked against their schemas. Exits
non-zero when errors are found; warnings are reported but do not fail.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	v, err := datavalidate.New()
	if err != nil {
		return err
	}
	report := v.Validate(datavalidate.Dirs{
		Semantic:      cfg.CategoryDir(changetracker.CategorySemantic),
		Episodic:      cfg.CategoryDir(changetracker.CategoryEpisodic),
		Procedural:    cfg.CategoryDir(changetracker.CategoryProcedural),
		SystemPrompts: cfg.CategoryDir(changetracker.CategorySystemPrompt),
	})

	out := cmd.OutOrStdout()
	st := report.Stats
	fmt.Fprintf(out, "Checked %d files\n", report.FilesChecked)
	fmt.Fprintf(out, "  semantic:   %d files\n", st.SemanticFiles)
	fmt.Fprintf(out, "  episodic:   %d files, %d examples\n", st.EpisodicFiles, st.EpisodicExamples)
	fmt.Fprintf(out, "  procedural: %d files, %d rules\n", st.ProceduralFiles, st.ProceduralRules)
	fmt.Fprintf(out, "  prompts:    %d files\n", st.PromptFiles)

	for _, w := range report.Warnings() {
		fmt.Fprintf(out, "WARN  %s\n", w)
	}
	for _, e := range report.Errors() {
		fmt.Fprintf(out, "ERROR %s\n", e)
	}
	if !report.OK() {
		return fmt.Errorf("validation failed with %d errors", len(report.Errors()))
	}
	fmt.Fprintln(out, "All data is valid")
	return nil
}
