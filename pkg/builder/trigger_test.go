package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	trigger *Trigger
	tracker *changetracker.Tracker
	dirs    map[changetracker.Category]string
	calls   []changetracker.Category
	fail    map[changetracker.Category]error
}

func newHarness(t *testing.T, hook AfterBuildFunc) *harness {
	t.Helper()
	base := t.TempDir()
	tracker, err := changetracker.New(changetracker.Config{
		CachePath: filepath.Join(base, "build_cache.json"),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	h := &harness{
		tracker: tracker,
		dirs:    map[changetracker.Category]string{},
		fail:    map[changetracker.Category]error{},
	}
	targets := map[changetracker.Category]Target{}
	for _, c := range Order {
		category := c
		dir := filepath.Join(base, string(category))
		h.dirs[category] = dir
		targets[category] = Target{
			Dir:        dir,
			Collection: "me_" + string(category) + "_memory_v1",
			Routine: RoutineFunc(func(ctx context.Context, sourceDir, collection string) error {
				h.calls = append(h.calls, category)
				return h.fail[category]
			}),
		}
	}

	h.trigger, err = NewTrigger(Config{Tracker: tracker, Targets: targets, AfterBuild: hook, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return h
}

func (h *harness) write(t *testing.T, category changetracker.Category, name, content string) {
	t.Helper()
	path := filepath.Join(h.dirs[category], name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (h *harness) seed(t *testing.T) {
	h.write(t, changetracker.CategorySemantic, "bio.md", "# About me")
	h.write(t, changetracker.CategoryEpisodic, "chats.json", `[]`)
	h.write(t, changetracker.CategoryProcedural, "rules.json", `[]`)
}

func TestTrigger_IncrementalCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t)

	res := h.trigger.Run(context.Background(), false)
	assert.Equal(t, Order, h.calls)
	assert.Equal(t, Order, res.Rebuilt())
	assert.Empty(t, res.Failures())
	assert.Equal(t, 1, res.Changes()[changetracker.CategorySemantic].Added)

	h.calls = nil
	res = h.trigger.Run(context.Background(), false)
	assert.Empty(t, h.calls, "unchanged data must not rebuild")
	assert.Empty(t, res.Rebuilt())

	h.write(t, changetracker.CategoryEpisodic, "chats.json", `[{"user_query":"hi","your_response":"hello"}]`)
	h.calls = nil
	res = h.trigger.Run(context.Background(), false)
	assert.Equal(t, []changetracker.Category{changetracker.CategoryEpisodic}, h.calls)
	assert.Equal(t, 1, res.Changes()[changetracker.CategoryEpisodic].Modified)
}

func TestTrigger_Force(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t)
	h.trigger.Run(context.Background(), false)

	h.calls = nil
	res := h.trigger.Run(context.Background(), true)
	assert.Equal(t, Order, h.calls)
	for _, o := range res.Outcomes {
		assert.True(t, o.Forced)
		assert.Equal(t, 0, o.Changes.TotalChanges)
	}
}

func TestTrigger_FailureKeepsCacheAndContinues(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t)
	h.fail[changetracker.CategorySemantic] = errors.New("embedding backend down")

	res := h.trigger.Run(context.Background(), false)
	assert.Equal(t, Order, h.calls)
	assert.Equal(t, []changetracker.Category{changetracker.CategoryEpisodic, changetracker.CategoryProcedural}, res.Rebuilt())
	assert.Equal(t, map[changetracker.Category]string{
		changetracker.CategorySemantic: "embedding backend down",
	}, res.Failures())
	assert.Empty(t, h.tracker.Cached(changetracker.CategorySemantic))

	delete(h.fail, changetracker.CategorySemantic)
	h.calls = nil
	res = h.trigger.Run(context.Background(), false)
	assert.Equal(t, []changetracker.Category{changetracker.CategorySemantic}, h.calls)
	assert.Empty(t, res.Failures())
}

func TestTrigger_AfterBuildForcesProcedural(t *testing.T) {
	var hooked []changetracker.Category
	var h *harness
	h = newHarness(t, func(ctx context.Context, category changetracker.Category) (bool, error) {
		hooked = append(hooked, category)
		if category == changetracker.CategoryEpisodic {
			h.write(t, changetracker.CategoryProcedural, "generated_procedural_rules.json", `[{"rule_name":"a","rule_content":"b"}]`)
			return true, nil
		}
		return false, nil
	})
	h.seed(t)
	h.trigger.Run(context.Background(), false)

	h.write(t, changetracker.CategoryEpisodic, "more.json", `[]`)
	h.calls, hooked = nil, nil
	res := h.trigger.Run(context.Background(), false)

	assert.Equal(t, []changetracker.Category{changetracker.CategoryEpisodic, changetracker.CategoryProcedural}, h.calls)
	assert.Equal(t, []changetracker.Category{changetracker.CategoryEpisodic, changetracker.CategoryProcedural}, hooked)
	for _, o := range res.Outcomes {
		if o.Category == changetracker.CategoryProcedural {
			assert.True(t, o.Forced)
			assert.True(t, o.Rebuilt)
		}
	}

	h.calls = nil
	h.trigger.Run(context.Background(), false)
	assert.Empty(t, h.calls, "generated rules were cached by the procedural rebuild")
}

func TestTrigger_HookErrorIsRecorded(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, category changetracker.Category) (bool, error) {
		return false, errors.New("rate limited")
	})
	h.seed(t)

	res := h.trigger.Run(context.Background(), false)
	assert.Empty(t, res.Failures())
	assert.Equal(t, "rate limited", res.Outcomes[1].HookError)
}

func TestTrigger_AbsentDirectoriesSkip(t *testing.T) {
	h := newHarness(t, nil)

	res := h.trigger.Run(context.Background(), false)
	assert.Empty(t, h.calls)
	assert.Len(t, res.Outcomes, 3)
}

func TestNewTrigger_RequiresAllTargets(t *testing.T) {
	tracker, err := changetracker.New(changetracker.Config{CachePath: filepath.Join(t.TempDir(), "c.json")})
	require.NoError(t, err)

	_, err = NewTrigger(Config{Tracker: tracker, Targets: map[changetracker.Category]Target{
		changetracker.CategorySemantic: {Collection: "x", Routine: RoutineFunc(nil)},
	}})
	assert.Error(t, err)

	_, err = NewTrigger(Config{})
	assert.Error(t, err)
}
