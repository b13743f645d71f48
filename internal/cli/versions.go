package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	memversion "github.com/harun/twinself/pkg/version"
	"github.com/spf13/cobra"
)

var versionsJSON bool

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect recorded memory versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			versions := a.service.Registry().ListVersions()
			if versionsJSON {
				return writeJSON(cmd.OutOrStdout(), versions)
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintln(out, "No versions recorded yet")
				return nil
			}
			for _, v := range versions {
				mark := " "
				if v.IsActive {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s  %s  %s\n", mark, v.VersionID, formatTimestamp(v), formatCollections(v.Collections))
			}
			return nil
		})
	},
}

var versionsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			v, ok := a.service.Registry().ActiveVersion()
			if !ok {
				return fmt.Errorf("no active version")
			}
			return showVersion(cmd.OutOrStdout(), v)
		})
	},
}

var versionsShowCmd = &cobra.Command{
	Use:   "show <version-id>",
	Short: "Show one version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			v, ok := a.service.Registry().Get(args[0])
			if !ok {
				return fmt.Errorf("version %s not found", args[0])
			}
			return showVersion(cmd.OutOrStdout(), v)
		})
	},
}

var versionsDiffCmd = &cobra.Command{
	Use:   "diff <from> <to>",
	Short: "Compare collection counts and data hashes of two versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			diff, ok := a.service.Diff(args[0], args[1])
			if !ok {
				return fmt.Errorf("one or both versions not found: %s, %s", args[0], args[1])
			}
			if versionsJSON {
				return writeJSON(cmd.OutOrStdout(), diff)
			}
			printDiff(cmd.OutOrStdout(), diff)
			return nil
		})
	},
}

func init() {
	versionsCmd.PersistentFlags().BoolVar(&versionsJSON, "json", false, "print JSON")
	versionsCmd.AddCommand(versionsListCmd, versionsActiveCmd, versionsShowCmd, versionsDiffCmd)
	rootCmd.AddCommand(versionsCmd)
}

func showVersion(out io.Writer, v *memversion.MemoryVersion) error {
	if versionsJSON {
		return writeJSON(out, v)
	}
	fmt.Fprintf(out, "Version:  %s\n", v.VersionID)
	fmt.Fprintf(out, "Created:  %s\n", formatTimestamp(*v))
	fmt.Fprintf(out, "Active:   %t\n", v.IsActive)
	if p := v.PromptFile(); p != "" {
		fmt.Fprintf(out, "Prompt:   %s\n", p)
	}
	fmt.Fprintln(out, "Collections:")
	for _, name := range sortedKeys(v.Collections) {
		fmt.Fprintf(out, "  %-32s %d\n", name, v.Collections[name])
	}
	fmt.Fprintln(out, "Data hashes:")
	for _, name := range sortedKeys(v.DataHash) {
		fmt.Fprintf(out, "  %-32s %s\n", name, v.DataHash[name])
	}
	return nil
}

func printDiff(out io.Writer, d memversion.Diff) {
	fmt.Fprintf(out, "%s -> %s\n", d.From, d.To)
	for _, name := range sortedKeys(d.CollectionChanges) {
		c := d.CollectionChanges[name]
		fmt.Fprintf(out, "  %-32s %d -> %d (%+d)\n", name, c.Before, c.After, c.Delta)
	}
	for _, name := range sortedKeys(d.HashChanges) {
		if h := d.HashChanges[name]; h.Changed {
			fmt.Fprintf(out, "  %-32s data changed\n", name)
		}
	}
}

func formatTimestamp(v memversion.MemoryVersion) string {
	t, err := v.Time()
	if err != nil {
		return v.Timestamp
	}
	return t.Local().Format(time.DateTime)
}

func formatCollections(c map[string]int) string {
	total := 0
	for _, n := range c {
		total += n
	}
	return fmt.Sprintf("%d collections, %d points", len(c), total)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
