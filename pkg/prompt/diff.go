package prompt

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is a line diff between two prompts.
type Diff struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Text    string `json:"text"`
}

// Empty reports whether both prompts are identical.
func (d Diff) Empty() bool { return d.Added == 0 && d.Removed == 0 }

// DiffVersions compares the prompts captured in two version snapshots.
func (l *Loader) DiffVersions(from, to string) (Diff, error) {
	a, err := l.Snapshot(from)
	if err != nil {
		return Diff{}, err
	}
	b, err := l.Snapshot(to)
	if err != nil {
		return Diff{}, err
	}
	return LineDiff(from, to, a.Content, b.Content), nil
}

// DiffFiles compares two prompt files in the prompts directory.
func (l *Loader) DiffFiles(from, to string) (Diff, error) {
	a, err := l.Get(from)
	if err != nil {
		return Diff{}, err
	}
	b, err := l.Get(to)
	if err != nil {
		return Diff{}, err
	}
	return LineDiff(from, to, a.Content, b.Content), nil
}

// LineDiff renders a unified-style line diff with "-", "+" and " " prefixes.
func LineDiff(fromName, toName, a, b string) Diff {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	d := Diff{From: fromName, To: toName}
	var sb strings.Builder
	sb.WriteString("--- " + fromName + "\n")
	sb.WriteString("+++ " + toName + "\n")
	for _, df := range diffs {
		prefix := " "
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range splitLines(df.Text) {
			switch prefix {
			case "+":
				d.Added++
			case "-":
				d.Removed++
			}
			sb.WriteString(prefix + line + "\n")
		}
	}
	d.Text = sb.String()
	return d
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
