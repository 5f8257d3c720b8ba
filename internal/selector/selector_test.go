package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/paperdash/internal/model"
)

const (
	timeout = time.Second
	tick    = time.Millisecond
)

// fakeSource serves three options per level with ids parent*10+1..3, and
// can be told to fail or to block a level.
type fakeSource struct {
	mu    sync.Mutex
	fail  map[model.Level]bool
	calls []string
}

func (f *fakeSource) Options(_ context.Context, level model.Level, parentID int64) ([]model.SelectOption, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%d", level, parentID))
	fail := f.fail[level]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("backend down")
	}
	var opts []model.SelectOption
	for i := int64(1); i <= 3; i++ {
		id := parentID*10 + i
		opts = append(opts, model.SelectOption{ID: id, Name: fmt.Sprintf("%s %d", level.Label(), id)})
	}
	return opts, nil
}

func newTestSelector(t *testing.T) (*Selector, *fakeSource, *[]Notice) {
	t.Helper()
	src := &fakeSource{fail: map[model.Level]bool{}}
	var notices []Notice
	s := New(src, func(n Notice) { notices = append(notices, n) })
	require.NoError(t, s.LoadYears(context.Background()))
	return s, src, &notices
}

func TestSelectCascade(t *testing.T) {
	ctx := context.Background()
	s, src, _ := newTestSelector(t)

	require.NoError(t, s.SelectYear(ctx, 1))
	require.NoError(t, s.SelectSemester(ctx, 11))
	require.NoError(t, s.SelectSubject(ctx, 111))
	require.NoError(t, s.SelectUnit(ctx, 1111))
	require.NoError(t, s.SelectTopic(ctx, 11111))

	assert.Equal(t, model.Selection{Year: 1, Semester: 11, Subject: 111, Unit: 1111, Topic: 11111}, s.Selection())
	assert.Equal(t, []string{"year/0", "semester/1", "subject/11", "unit/111", "topic/1111"}, src.calls)
	assert.Equal(t, "Unit 1111", s.SelectedName(model.LevelUnit))

	// Re-selecting the year wipes everything below it.
	require.NoError(t, s.SelectYear(ctx, 2))
	assert.Equal(t, model.Selection{Year: 2}, s.Selection())
	assert.Len(t, s.Options(model.LevelSemester), 3)
	for _, l := range []model.Level{model.LevelSubject, model.LevelUnit, model.LevelTopic} {
		assert.Empty(t, s.Options(l), "level %s", l)
	}
}

func TestSelectClearWithZero(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSelector(t)
	require.NoError(t, s.SelectYear(ctx, 1))
	require.NoError(t, s.SelectSemester(ctx, 12))

	require.NoError(t, s.SelectSemester(ctx, 0))
	assert.Equal(t, model.Selection{Year: 1}, s.Selection())
	assert.Empty(t, s.Options(model.LevelSubject))
	assert.False(t, s.Enabled(model.LevelSubject))
}

// Selecting level k always leaves levels > k cleared and empty, whatever
// happened before.
func TestSelectPropertyDescendantsCleared(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 200; run++ {
		s, _, _ := newTestSelector(t)
		for step := 0; step < 12; step++ {
			level := model.Levels[rng.IntN(len(model.Levels))]
			if !s.Enabled(level) {
				err := s.Select(ctx, level, 1)
				assert.ErrorIs(t, err, ErrDisabled)
				continue
			}
			opts := s.Options(level)
			var id int64
			if len(opts) > 0 && rng.IntN(5) > 0 {
				id = opts[rng.IntN(len(opts))].ID
			}
			require.NoError(t, s.Select(ctx, level, id))

			sel := s.Selection()
			assert.Equal(t, id, sel.Get(level))
			for l := level + 1; l <= model.LevelTopic; l++ {
				assert.Zero(t, sel.Get(l), "run %d step %d: level %s kept selection", run, step, l)
				if l > level+1 || id == 0 {
					assert.Empty(t, s.Options(l), "run %d step %d: level %s kept options", run, step, l)
				}
			}
			// A non-empty level always has a selected parent.
			for _, l := range model.Levels[1:] {
				if len(s.Options(l)) > 0 {
					assert.NotZero(t, sel.Get(l-1), "level %s has options without parent", l)
				}
			}
		}
	}
}

func TestSelectDisabledLevel(t *testing.T) {
	s, src, _ := newTestSelector(t)
	err := s.SelectSubject(context.Background(), 5)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, model.Selection{}, s.Selection())
	assert.Equal(t, []string{"year/0"}, src.calls)
}

func TestSelectUnknownOption(t *testing.T) {
	s, _, _ := newTestSelector(t)
	err := s.SelectYear(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Equal(t, model.Selection{}, s.Selection())
}

func TestFailedLoadKeepsParent(t *testing.T) {
	ctx := context.Background()
	s, src, notices := newTestSelector(t)
	src.fail[model.LevelSemester] = true

	err := s.SelectYear(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), s.Selection().Year, "parent selection must not roll back")
	assert.Empty(t, s.Options(model.LevelSemester))
	assert.False(t, s.Loading(model.LevelSemester))
	require.Len(t, *notices, 1)
	assert.Equal(t, model.LevelSemester, (*notices)[0].Level)
}

func TestRestore(t *testing.T) {
	src := &fakeSource{fail: map[model.Level]bool{}}
	s := New(src, nil)
	err := s.Restore(context.Background(), model.Selection{Year: 2, Semester: 21, Subject: 211})
	require.NoError(t, err)
	assert.Equal(t, model.Selection{Year: 2, Semester: 21, Subject: 211}, s.Selection())
	assert.Len(t, s.Options(model.LevelUnit), 3)
	assert.True(t, s.Enabled(model.LevelUnit))
	assert.False(t, s.Enabled(model.LevelTopic))
}

// gatedSource blocks loads for parent ids listed in gates until released.
type gatedSource struct {
	fakeSource
	gates map[int64]chan struct{}
}

func (g *gatedSource) Options(ctx context.Context, level model.Level, parentID int64) ([]model.SelectOption, error) {
	if ch, ok := g.gates[parentID]; ok {
		<-ch
	}
	return g.fakeSource.Options(ctx, level, parentID)
}

// A slow response for a superseded selection must not overwrite the newer one.
func TestStaleResponseDiscarded(t *testing.T) {
	ctx := context.Background()
	src := &gatedSource{
		fakeSource: fakeSource{fail: map[model.Level]bool{}},
		gates:      map[int64]chan struct{}{1: make(chan struct{})},
	}
	s := New(src, nil)
	require.NoError(t, s.LoadYears(ctx))

	slowDone := make(chan error, 1)
	go func() { slowDone <- s.SelectYear(ctx, 1) }()

	// Wait until the slow load is in flight before superseding it.
	require.Eventually(t, func() bool { return s.Loading(model.LevelSemester) }, timeout, tick)
	require.NoError(t, s.SelectYear(ctx, 2))

	close(src.gates[1])
	require.NoError(t, <-slowDone)

	assert.Equal(t, int64(2), s.Selection().Year)
	opts := s.Options(model.LevelSemester)
	require.Len(t, opts, 3)
	assert.Equal(t, int64(21), opts[0].ID, "semesters of year 2 expected, got stale list")
}
