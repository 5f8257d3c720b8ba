// Package selector implements the year → semester → subject → unit → topic
// cascade. Choosing a level clears everything below it and loads the
// options of the next level.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/paperdash/internal/model"
)

var (
	// ErrDisabled is returned when a level is chosen before its parent.
	ErrDisabled = errors.New("parent level not selected")
	// ErrUnknownOption is returned for an id missing from a loaded list.
	ErrUnknownOption = errors.New("option not in list")
)

// OptionSource loads the options of one level under a parent id.
// *api.Client satisfies it.
type OptionSource interface {
	Options(ctx context.Context, level model.Level, parentID int64) ([]model.SelectOption, error)
}

// Notice reports a failed option load. It is informational: the parent
// selection stays and the list stays empty.
type Notice struct {
	Level model.Level
	Err   error
}

const numLevels = 5

// Selector holds the cascade state. It is safe for concurrent use; when two
// loads for the same level overlap, only the most recently started one may
// update the state.
type Selector struct {
	src    OptionSource
	notify func(Notice)

	mu      sync.Mutex
	sel     model.Selection
	options [numLevels][]model.SelectOption
	gen     [numLevels]uint64
	loading [numLevels]bool
}

// New creates a selector. notify may be nil.
func New(src OptionSource, notify func(Notice)) *Selector {
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Selector{src: src, notify: notify}
}

// LoadYears (re)loads the root list.
func (s *Selector) LoadYears(ctx context.Context) error {
	s.mu.Lock()
	s.options[model.LevelYear] = nil
	s.gen[model.LevelYear]++
	myGen := s.gen[model.LevelYear]
	s.loading[model.LevelYear] = true
	s.mu.Unlock()

	return s.fetch(ctx, model.LevelYear, 0, myGen)
}

// SelectYear chooses a year; id 0 clears it.
func (s *Selector) SelectYear(ctx context.Context, id int64) error {
	return s.Select(ctx, model.LevelYear, id)
}

// SelectSemester chooses a semester; id 0 clears it.
func (s *Selector) SelectSemester(ctx context.Context, id int64) error {
	return s.Select(ctx, model.LevelSemester, id)
}

// SelectSubject chooses a subject; id 0 clears it.
func (s *Selector) SelectSubject(ctx context.Context, id int64) error {
	return s.Select(ctx, model.LevelSubject, id)
}

// SelectUnit chooses a unit; id 0 clears it.
func (s *Selector) SelectUnit(ctx context.Context, id int64) error {
	return s.Select(ctx, model.LevelUnit, id)
}

// SelectTopic chooses a topic; id 0 clears it.
func (s *Selector) SelectTopic(ctx context.Context, id int64) error {
	return s.Select(ctx, model.LevelTopic, id)
}

// Select stores id at level, clears every level below it (selections and
// option lists), and when id is non-zero loads the next level's options.
// It blocks until that load finishes. A failed load is returned and also
// sent to the notifier; the selection itself is kept.
func (s *Selector) Select(ctx context.Context, level model.Level, id int64) error {
	if level < model.LevelYear || level > model.LevelTopic {
		return fmt.Errorf("unknown level %v", level)
	}

	s.mu.Lock()
	if !s.enabledLocked(level) {
		s.mu.Unlock()
		return fmt.Errorf("select %s: %w", level, ErrDisabled)
	}
	if id != 0 && len(s.options[level]) > 0 && !containsID(s.options[level], id) {
		s.mu.Unlock()
		return fmt.Errorf("select %s %d: %w", level, id, ErrUnknownOption)
	}

	s.sel = s.sel.With(level, id)
	for l := level + 1; l <= model.LevelTopic; l++ {
		s.sel = s.sel.With(l, 0)
		s.options[l] = nil
		s.loading[l] = false
		s.gen[l]++
	}

	child := level + 1
	if id == 0 || child > model.LevelTopic {
		s.mu.Unlock()
		return nil
	}
	myGen := s.gen[child]
	s.loading[child] = true
	s.mu.Unlock()

	return s.fetch(ctx, child, id, myGen)
}

// Restore replays a whole selection chain from the root, stopping at the
// first unselected level. Years are loaded first.
func (s *Selector) Restore(ctx context.Context, sel model.Selection) error {
	if err := s.LoadYears(ctx); err != nil {
		return err
	}
	for _, l := range model.Levels {
		id := sel.Get(l)
		if id == 0 {
			return nil
		}
		if err := s.Select(ctx, l, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Selector) fetch(ctx context.Context, level model.Level, parentID int64, myGen uint64) error {
	opts, err := s.src.Options(ctx, level, parentID)

	s.mu.Lock()
	if s.gen[level] != myGen {
		s.mu.Unlock()
		slog.Debug("discarding superseded options", "level", level, "parent_id", parentID)
		return nil
	}
	s.loading[level] = false
	if err != nil {
		s.options[level] = nil
		s.mu.Unlock()
		s.notify(Notice{Level: level, Err: err})
		return fmt.Errorf("load %s options: %w", level, err)
	}
	s.options[level] = opts
	s.mu.Unlock()
	return nil
}

// Selection returns the current chain.
func (s *Selector) Selection() model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Options returns a copy of the option list at level.
func (s *Selector) Options(level model.Level) []model.SelectOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 || level >= numLevels {
		return nil
	}
	return append([]model.SelectOption(nil), s.options[level]...)
}

// Loading reports whether a load for level is in flight.
func (s *Selector) Loading(level model.Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 || level >= numLevels {
		return false
	}
	return s.loading[level]
}

// Enabled reports whether level is interactive: years always are, every
// other level only once its parent is chosen.
func (s *Selector) Enabled(level model.Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabledLocked(level)
}

func (s *Selector) enabledLocked(level model.Level) bool {
	if level == model.LevelYear {
		return true
	}
	return s.sel.Get(level-1) != 0
}

// SelectedName returns the display name of the chosen option at level, or
// "" when nothing (or an unknown id) is chosen.
func (s *Selector) SelectedName(level model.Level) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.sel.Get(level)
	for _, o := range s.options[level] {
		if o.ID == id {
			return o.Name
		}
	}
	return ""
}

func containsID(opts []model.SelectOption, id int64) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
