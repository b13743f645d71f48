// Package suggestions collects corrected answers from users and turns them
// into episodic examples.
package suggestions

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/pkg/builder"
	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
)

const archiveTimeLayout = "20060102_150405"

// ErrInvalidSuggestion is returned by Add when a field is blank.
var ErrInvalidSuggestion = errors.New("user_query and your_response are required")

// Config holds inbox configuration
type Config struct {
	InboxPath  string
	OutputPath string // episodic file written by Process
	ArchiveDir string
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Options controls one Process call.
type Options struct {
	Merge   bool `json:"merge"`   // append to the output file, skipping known queries
	Archive bool `json:"archive"` // copy the inbox to the archive and empty it
	DryRun  bool `json:"dry_run"`
}

// Result reports what Process did or, on a dry run, would do.
type Result struct {
	Pending     int              `json:"pending"`
	Added       int              `json:"added"`
	Duplicates  int              `json:"duplicates"`
	Total       int              `json:"total"`
	OutputFile  string           `json:"output_file"`
	ArchiveFile string           `json:"archive_file,omitempty"`
	DryRun      bool             `json:"dry_run"`
	Preview     *builder.Example `json:"preview,omitempty"`
}

// Inbox is the JSON array of suggestions waiting to become episodic data.
type Inbox struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates an inbox; the files are created lazily.
func New(cfg Config) (*Inbox, error) {
	if cfg.InboxPath == "" || cfg.OutputPath == "" || cfg.ArchiveDir == "" {
		return nil, errors.New("inbox, output and archive paths are required")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Inbox{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "suggestions").Logger(),
		now:    now,
	}, nil
}

// Path returns the inbox file.
func (b *Inbox) Path() string { return b.cfg.InboxPath }

// Add appends one suggestion and returns how many are pending.
func (b *Inbox) Add(s builder.Example) (int, error) {
	s.UserQuery = strings.TrimSpace(s.UserQuery)
	s.YourResponse = strings.TrimSpace(s.YourResponse)
	if s.UserQuery == "" || s.YourResponse == "" {
		return 0, ErrInvalidSuggestion
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pending, err := readExamples(b.cfg.InboxPath)
	if err != nil {
		return 0, err
	}
	pending = append(pending, s)
	if err := fsutil.WriteJSONAtomic(b.cfg.InboxPath, pending); err != nil {
		return 0, &memerrors.PersistenceError{Op: "save", Path: b.cfg.InboxPath, Err: err}
	}

	observability.RecordSuggestions("received", 1)
	b.logger.Info().Int("pending", len(pending)).Msg("User suggestion saved")
	return len(pending), nil
}

// Pending returns the suggestions in the inbox; a missing inbox is empty.
func (b *Inbox) Pending() ([]builder.Example, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readExamples(b.cfg.InboxPath)
}

// Process converts the pending suggestions into episodic examples in the
// output file. Without Merge the output file is replaced.
func (b *Inbox) Process(opts Options) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := Result{OutputFile: b.cfg.OutputPath, DryRun: opts.DryRun}
	pending, err := readExamples(b.cfg.InboxPath)
	if err != nil {
		return res, err
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res, nil
	}
	preview := pending[0]
	res.Preview = &preview

	entries := pending
	res.Added = len(pending)
	if opts.Merge {
		existing, err := readExamples(b.cfg.OutputPath)
		if err != nil {
			return res, err
		}
		var unique []builder.Example
		unique, res.Duplicates = dedupe(existing, pending)
		res.Added = len(unique)
		entries = append(existing, unique...)
	}
	res.Total = len(entries)
	if opts.Archive {
		res.ArchiveFile = b.archivePath()
	}

	if opts.DryRun {
		return res, nil
	}

	if err := fsutil.WriteJSONAtomic(b.cfg.OutputPath, entries); err != nil {
		return res, &memerrors.PersistenceError{Op: "save", Path: b.cfg.OutputPath, Err: err}
	}
	if opts.Archive {
		if err := fsutil.CopyFile(b.cfg.InboxPath, res.ArchiveFile); err != nil {
			return res, fmt.Errorf("failed to archive suggestions: %w", err)
		}
		if err := fsutil.WriteJSONAtomic(b.cfg.InboxPath, []builder.Example{}); err != nil {
			return res, &memerrors.PersistenceError{Op: "save", Path: b.cfg.InboxPath, Err: err}
		}
	}

	observability.RecordSuggestions("added", res.Added)
	observability.RecordSuggestions("duplicate", res.Duplicates)
	b.logger.Info().
		Int("pending", res.Pending).
		Int("added", res.Added).
		Int("duplicates", res.Duplicates).
		Str("output", res.OutputFile).
		Str("archive", res.ArchiveFile).
		Msg("User suggestions processed")
	return res, nil
}

// dedupe drops suggestions with an empty query or a query already present.
func dedupe(existing, pending []builder.Example) ([]builder.Example, int) {
	seen := make(map[string]bool, len(existing)+len(pending))
	for _, e := range existing {
		seen[e.UserQuery] = true
	}
	var unique []builder.Example
	duplicates := 0
	for _, s := range pending {
		if s.UserQuery == "" || seen[s.UserQuery] {
			duplicates++
			continue
		}
		seen[s.UserQuery] = true
		unique = append(unique, s)
	}
	return unique, duplicates
}

func (b *Inbox) archivePath() string {
	base := "user_suggestions_" + b.now().Format(archiveTimeLayout)
	path := filepath.Join(b.cfg.ArchiveDir, base+".json")
	for i := 1; fsutil.Exists(path); i++ {
		path = filepath.Join(b.cfg.ArchiveDir, fmt.Sprintf("%s_%d.json", base, i))
	}
	return path
}

func readExamples(path string) ([]builder.Example, error) {
	var out []builder.Example
	if _, err := fsutil.ReadJSON(path, &out); err != nil {
		return nil, &memerrors.DataLoadingError{Path: path, Err: err}
	}
	return out, nil
}
