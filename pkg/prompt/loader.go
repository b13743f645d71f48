package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/version"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultPromptFile is the fallback prompt when no version binds one.
const DefaultPromptFile = "default_prompt.md"

// SnapshotPromptFile is the prompt copy kept inside each snapshot.
const SnapshotPromptFile = "system_prompt.md"

// ErrNoPrompt is returned when neither a bound, default nor any other prompt exists.
var ErrNoPrompt = errors.New("no system prompt available")

// ActiveVersions resolves the currently active version.
type ActiveVersions interface {
	ActiveVersion() (*version.MemoryVersion, bool)
	Get(id string) (*version.MemoryVersion, bool)
}

// SnapshotPaths locates the snapshot directory of a version.
type SnapshotPaths interface {
	Path(versionID string) string
}

// Config holds loader configuration
type Config struct {
	Dir       string
	Versions  ActiveVersions
	Snapshots SnapshotPaths
	CacheSize int
	Logger    zerolog.Logger
}

// Prompt is a loaded system prompt.
type Prompt struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	VersionID string `json:"version_id,omitempty"`
}

// Info describes one prompt file in the prompts directory.
type Info struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Preview  string    `json:"preview"`
}

// Loader resolves and reads system prompts.
type Loader struct {
	dir       string
	versions  ActiveVersions
	snapshots SnapshotPaths
	cache     *lru.Cache[string, string]
	logger    zerolog.Logger
}

func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Dir == "" {
		return nil, errors.New("prompts directory is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 32
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Loader{
		dir:       cfg.Dir,
		versions:  cfg.Versions,
		snapshots: cfg.Snapshots,
		cache:     cache,
		logger:    cfg.Logger,
	}, nil
}

// Dir returns the prompts directory.
func (l *Loader) Dir() string { return l.dir }

// Resolve returns the path of the prompt that Active would load.
func (l *Loader) Resolve() (string, string, error) {
	if l.versions != nil {
		if v, ok := l.versions.ActiveVersion(); ok {
			if p := v.PromptFile(); p != "" && fsutil.FileExists(p) {
				return p, v.VersionID, nil
			}
		}
	}

	def := filepath.Join(l.dir, DefaultPromptFile)
	if fsutil.FileExists(def) {
		return def, "", nil
	}

	names, err := l.names()
	if err != nil {
		return "", "", err
	}
	if len(names) == 0 {
		return "", "", ErrNoPrompt
	}
	return filepath.Join(l.dir, names[0]), "", nil
}

// Active loads the prompt bound to the active version, falling back to
// default_prompt.md and then the first markdown file in the prompts directory.
func (l *Loader) Active() (Prompt, error) {
	path, versionID, err := l.Resolve()
	if err != nil {
		return Prompt{}, err
	}
	content, err := l.read(path)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Name: filepath.Base(path), Path: path, Content: content, VersionID: versionID}, nil
}

// Get loads a prompt file by name from the prompts directory.
func (l *Loader) Get(name string) (Prompt, error) {
	path, err := l.path(name)
	if err != nil {
		return Prompt{}, err
	}
	content, err := l.read(path)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Name: name, Path: path, Content: content}, nil
}

// List describes the markdown prompts in the prompts directory, sorted by name.
func (l *Loader) List() ([]Info, error) {
	names, err := l.names()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.dir, name)
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		content, err := l.read(path)
		if err != nil {
			continue
		}
		infos = append(infos, Info{Name: name, Size: st.Size(), Modified: st.ModTime(), Preview: preview(content)})
	}
	return infos, nil
}

// Snapshot loads the prompt captured in a version's snapshot.
func (l *Loader) Snapshot(versionID string) (Prompt, error) {
	if l.snapshots == nil {
		return Prompt{}, errors.New("snapshot lookup not configured")
	}
	path := filepath.Join(l.snapshots.Path(versionID), SnapshotPromptFile)
	content, err := l.read(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("no prompt captured for %s: %w", versionID, err)
	}
	return Prompt{Name: SnapshotPromptFile, Path: path, Content: content, VersionID: versionID}, nil
}

// RestoreFromVersion copies a version's snapshot prompt back to the file the
// version is bound to. An existing file is only replaced when force is set.
func (l *Loader) RestoreFromVersion(versionID string, force bool) (string, error) {
	if l.versions == nil {
		return "", errors.New("version lookup not configured")
	}
	v, ok := l.versions.Get(versionID)
	if !ok {
		return "", fmt.Errorf("version %s not found", versionID)
	}
	dst := v.PromptFile()
	if dst == "" {
		return "", fmt.Errorf("version %s has no system prompt bound", versionID)
	}
	p, err := l.Snapshot(versionID)
	if err != nil {
		return "", err
	}
	if fsutil.FileExists(dst) && !force {
		return "", fmt.Errorf("prompt file %s already exists", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(dst, []byte(p.Content), 0644); err != nil {
		return "", err
	}
	l.Invalidate()
	l.logger.Info().Str("version_id", versionID).Str("path", dst).Msg("System prompt restored from snapshot")
	return dst, nil
}

// Create writes a new prompt file, from a template in the prompts directory
// or a skeleton when template is empty.
func (l *Loader) Create(name, template, description string, force bool) (string, error) {
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	dst, err := l.path(name)
	if err != nil {
		return "", err
	}
	if fsutil.FileExists(dst) && !force {
		return "", fmt.Errorf("prompt %s already exists", name)
	}

	var content string
	if template != "" {
		tpl, err := l.Get(template)
		if err != nil {
			return "", err
		}
		content = tpl.Content
	} else {
		if description == "" {
			description = "Custom system prompt"
		}
		content = fmt.Sprintf(skeleton, name, time.Now().Format("2006-01-02"), description)
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(dst, []byte(content), 0644); err != nil {
		return "", err
	}
	l.Invalidate()
	return dst, nil
}

// Invalidate drops all cached prompt contents.
func (l *Loader) Invalidate() {
	l.cache.Purge()
}

func (l *Loader) read(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s@%d:%d", path, st.ModTime().UnixNano(), st.Size())
	if content, ok := l.cache.Get(key); ok {
		return content, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	l.cache.Add(key, content)
	return content, nil
}

func (l *Loader) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid prompt name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

func (l *Loader) names() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func preview(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 60 {
		line = string(r[:60]) + "..."
	}
	return line
}

const skeleton = `# System Prompt - %s

## Role
Define the assistant's role here.

## Communication Style
Describe the communication style.

## Guidelines
- Guideline 1
- Guideline 2

## Version Info
- Created: %s
- Purpose: %s
`
