package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pavelanni/paperdash/internal/model"
)

type fakeSource struct {
	options map[model.Level][]model.SelectOption
	fail    map[model.Level]error
}

func (f fakeSource) Options(_ context.Context, level model.Level, _ int64) ([]model.SelectOption, error) {
	if err := f.fail[level]; err != nil {
		return nil, err
	}
	return f.options[level], nil
}

func newSource() fakeSource {
	return fakeSource{options: map[model.Level][]model.SelectOption{
		model.LevelYear:     {{ID: 1, Name: "2024"}},
		model.LevelSemester: {{ID: 2, Name: "Semester 1"}},
		model.LevelSubject:  {{ID: 3, Name: "Physics"}, {ID: 4, Name: "Chemistry"}},
		model.LevelUnit:     {{ID: 5, Name: "Mechanics"}},
		model.LevelTopic:    {{ID: 6, Name: "Kinematics"}},
	}}
}

// step feeds msg to m and runs the returned command once, feeding its
// message back when it is one of ours.
func step(t *testing.T, m pickerModel, msg tea.Msg) pickerModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(pickerModel)
	if cmd == nil {
		return m
	}
	if loaded, ok := cmd().(optionsLoadedMsg); ok {
		next, _ = m.Update(loaded)
		m = next.(pickerModel)
	}
	return m
}

func initModel(t *testing.T, src fakeSource) pickerModel {
	t.Helper()
	m := newPickerModel(context.Background(), src)
	next, _ := m.Update(m.Init()())
	return next.(pickerModel)
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestPickWalksWholeCascade(t *testing.T) {
	m := initModel(t, newSource())
	if m.level != model.LevelYear || len(m.list.Items()) != 1 {
		t.Fatalf("expected one year loaded, got level=%v items=%d", m.level, len(m.list.Items()))
	}

	m = step(t, m, enter) // year
	m = step(t, m, enter) // semester
	if m.level != model.LevelSubject {
		t.Fatalf("expected subject level, got %v", m.level)
	}
	m = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = step(t, m, enter) // Chemistry
	m = step(t, m, enter) // unit
	m = step(t, m, enter) // topic

	if !m.done {
		t.Fatal("expected picker to finish after topic")
	}
	res := m.result()
	if res.Selection.Subject != 4 || res.Selection.Topic != 6 {
		t.Fatalf("unexpected selection %+v", res.Selection)
	}
	if res.UnitName != "Mechanics" || res.TopicName != "Kinematics" {
		t.Fatalf("unexpected names %q %q", res.UnitName, res.TopicName)
	}
}

func TestPickCanStopAfterSubject(t *testing.T) {
	m := initModel(t, newSource())
	done := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if done.done {
		t.Fatal("must not finish before a subject is chosen")
	}

	for range 3 {
		m = step(t, m, enter)
	}
	if m.level != model.LevelUnit {
		t.Fatalf("expected unit level, got %v", m.level)
	}
	if !strings.Contains(m.View(), "2024 › Semester 1 › Physics") {
		t.Fatalf("breadcrumb missing from view:\n%s", m.View())
	}
	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if !m.done || m.result().Selection.Unit != 0 {
		t.Fatalf("expected done with no unit, got done=%v sel=%+v", m.done, m.result().Selection)
	}
}

func TestPickFinishesWhenSubjectHasNoUnits(t *testing.T) {
	src := newSource()
	delete(src.options, model.LevelUnit)
	m := initModel(t, src)
	for range 3 {
		m = step(t, m, enter)
	}
	if !m.done {
		t.Fatal("expected picker to finish when the subject has no units")
	}
}

func TestPickShowsLoadError(t *testing.T) {
	src := newSource()
	src.fail = map[model.Level]error{model.LevelSemester: errors.New("boom")}
	m := initModel(t, src)
	m = step(t, m, enter)

	if m.err == nil || m.level != model.LevelSemester {
		t.Fatalf("expected semester load error, got level=%v err=%v", m.level, m.err)
	}
	if !strings.Contains(m.View(), "could not load semester options") {
		t.Fatalf("error missing from view:\n%s", m.View())
	}
	// The parent selection survives a failed child load.
	if m.sel.Selection().Year != 1 {
		t.Fatalf("year selection lost: %+v", m.sel.Selection())
	}
}

func TestPickEscCancels(t *testing.T) {
	m := initModel(t, newSource())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !next.(pickerModel).canceled || cmd == nil {
		t.Fatal("expected esc to cancel and quit")
	}
}
