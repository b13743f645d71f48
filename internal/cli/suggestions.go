package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/twinself/pkg/builder"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/harun/twinself/pkg/suggestions"
	"github.com/spf13/cobra"
)

var (
	suggestionsOpts     suggestions.Options
	suggestionQuery     string
	suggestionResponse  string
	suggestionsListJSON bool
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Manage user-suggested answers",
	Long: `User suggestions are corrected answers collected from chat users. They
wait in an inbox until processed into the episodic data directory.`,
}

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending suggestions",
	Args:  cobra.NoArgs,
	RunE:  runSuggestionsList,
}

var suggestionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a suggestion to the inbox",
	Args:  cobra.NoArgs,
	RunE:  runSuggestionsAdd,
}

var suggestionsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert pending suggestions into episodic examples",
	Long: `Write the pending suggestions to the episodic feedback file. With --merge
they are appended and questions already present are skipped; otherwise the
file is replaced. With --archive the inbox is copied to the archive directory
and emptied.`,
	Args: cobra.NoArgs,
	RunE: runSuggestionsProcess,
}

func init() {
	suggestionsListCmd.Flags().BoolVar(&suggestionsListJSON, "json", false, "print JSON")

	suggestionsAddCmd.Flags().StringVar(&suggestionQuery, "query", "", "the user's question")
	suggestionsAddCmd.Flags().StringVar(&suggestionResponse, "response", "", "the answer the twin should give")
	_ = suggestionsAddCmd.MarkFlagRequired("query")
	_ = suggestionsAddCmd.MarkFlagRequired("response")

	suggestionsProcessCmd.Flags().BoolVar(&suggestionsOpts.Merge, "merge", false, "merge with existing feedback examples")
	suggestionsProcessCmd.Flags().BoolVar(&suggestionsOpts.Archive, "archive", false, "archive and empty the inbox")
	suggestionsProcessCmd.Flags().BoolVar(&suggestionsOpts.DryRun, "dry-run", false, "show what would be done")

	suggestionsCmd.AddCommand(suggestionsListCmd, suggestionsAddCmd, suggestionsProcessCmd)
	rootCmd.AddCommand(suggestionsCmd)
}

// withInbox opens only the suggestion inbox, so no provider keys are needed.
func withInbox(fn func(*suggestions.Inbox) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	inbox, err := lifecycle.NewInbox(cfg, log.Zerolog())
	if err != nil {
		return err
	}
	return fn(inbox)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func runSuggestionsList(cmd *cobra.Command, args []string) error {
	return withInbox(func(inbox *suggestions.Inbox) error {
		return listSuggestions(cmd, inbox)
	})
}

func listSuggestions(cmd *cobra.Command, inbox *suggestions.Inbox) error {
	pending, err := inbox.Pending()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if suggestionsListJSON {
		if pending == nil {
			pending = []builder.Example{}
		}
		return writeJSON(out, pending)
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending suggestions.")
		return nil
	}
	for i, s := range pending {
		fmt.Fprintf(out, "%d. Q: %s\n   A: %s\n", i+1, s.UserQuery, truncate(s.YourResponse, 80))
	}
	fmt.Fprintf(out, "Total: %d pending\n", len(pending))
	return nil
}

func runSuggestionsAdd(cmd *cobra.Command, args []string) error {
	return withInbox(func(inbox *suggestions.Inbox) error {
		n, err := inbox.Add(builder.Example{UserQuery: suggestionQuery, YourResponse: suggestionResponse})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Suggestion saved (%d pending)\n", n)
		return nil
	})
}

func runSuggestionsProcess(cmd *cobra.Command, args []string) error {
	return withInbox(func(inbox *suggestions.Inbox) error {
		return processSuggestions(cmd, inbox)
	})
}

func processSuggestions(cmd *cobra.Command, inbox *suggestions.Inbox) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loading suggestions from: %s\n", inbox.Path())

	res, err := inbox.Process(suggestionsOpts)
	if err != nil {
		return err
	}
	if res.Pending == 0 {
		fmt.Fprintln(out, "No suggestions to process.")
		return nil
	}

	fmt.Fprintf(out, "Found %d suggestion(s)\n", res.Pending)
	if res.Preview != nil {
		data, _ := json.MarshalIndent(res.Preview, "", "  ")
		fmt.Fprintf(out, "Preview of first entry:\n%s\n", data)
	}
	if suggestionsOpts.Merge {
		fmt.Fprintf(out, "  New unique entries: %d\n", res.Added)
		fmt.Fprintf(out, "  Duplicates skipped: %d\n", res.Duplicates)
	}

	if res.DryRun {
		fmt.Fprintln(out, "Dry run: no files were modified")
		fmt.Fprintf(out, "Would save %d entries to: %s\n", res.Total, res.OutputFile)
		if res.ArchiveFile != "" {
			fmt.Fprintf(out, "Would archive suggestions to: %s\n", res.ArchiveFile)
		}
		return nil
	}

	fmt.Fprintf(out, "Saved %d entries to: %s\n", res.Total, res.OutputFile)
	if res.ArchiveFile != "" {
		fmt.Fprintf(out, "Archived to: %s\n", res.ArchiveFile)
		fmt.Fprintf(out, "Cleared: %s\n", inbox.Path())
	}
	fmt.Fprintln(out, "Update memory with: twinself rebuild")
	return nil
}
