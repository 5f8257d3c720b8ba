// Package tui is the terminal picker for the academic cascade.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/selector"
)

// ErrPickCanceled is returned when the user leaves the picker without
// choosing a subject.
var ErrPickCanceled = errors.New("pick canceled")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#c7d2fe")).Background(lipgloss.Color("#312e81")).Padding(0, 1)
	crumbStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c757d"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#d16d7a")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type optionItem struct{ opt model.SelectOption }

func (i optionItem) Title() string       { return i.opt.Name }
func (i optionItem) Description() string { return fmt.Sprintf("id %d", i.opt.ID) }
func (i optionItem) FilterValue() string { return i.opt.Name }

// optionsLoadedMsg reports that the options of level were (re)loaded.
type optionsLoadedMsg struct {
	level model.Level
	err   error
}

type pickerModel struct {
	ctx      context.Context
	sel      *selector.Selector
	level    model.Level
	list     list.Model
	loading  bool
	err      error
	done     bool
	canceled bool
}

func newPickerModel(ctx context.Context, src selector.OptionSource) pickerModel {
	l := list.New(nil, list.NewDefaultDelegate(), 60, 16)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	return pickerModel{
		ctx:     ctx,
		sel:     selector.New(src, nil),
		level:   model.LevelYear,
		list:    l,
		loading: true,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return m.loadYears()
}

func (m pickerModel) loadYears() tea.Cmd {
	sel := m.sel
	ctx := m.ctx
	return func() tea.Msg {
		return optionsLoadedMsg{level: model.LevelYear, err: sel.LoadYears(ctx)}
	}
}

// choose selects id at level; the reply carries the child level, whose
// options the selector loads as part of the selection.
func (m pickerModel) choose(level model.Level, id int64) tea.Cmd {
	sel := m.sel
	ctx := m.ctx
	return func() tea.Msg {
		err := sel.Select(ctx, level, id)
		return optionsLoadedMsg{level: level + 1, err: err}
	}
}

// canFinish reports whether a subject is chosen; unit and topic are
// optional.
func (m pickerModel) canFinish() bool {
	return m.sel.Selection().Subject != 0
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case optionsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.level > model.LevelTopic {
			m.done = true
			return m, tea.Quit
		}
		m.level = msg.level
		opts := m.sel.Options(msg.level)
		if len(opts) == 0 && msg.err == nil && m.canFinish() {
			m.done = true
			return m, tea.Quit
		}
		items := make([]list.Item, 0, len(opts))
		for _, o := range opts {
			items = append(items, optionItem{opt: o})
		}
		m.list.ResetFilter()
		cmd := m.list.SetItems(items)
		m.list.Select(0)
		return m, cmd

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, max(msg.Height-6, 4))
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.canceled = true
			return m, tea.Quit
		case "s":
			if m.canFinish() {
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		case "r":
			if m.err != nil && m.level == model.LevelYear {
				m.loading = true
				return m, m.loadYears()
			}
			return m, nil
		case "enter":
			if m.loading {
				return m, nil
			}
			it, ok := m.list.SelectedItem().(optionItem)
			if !ok {
				return m, nil
			}
			m.loading = true
			return m, m.choose(m.level, it.opt.ID)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) breadcrumb() string {
	var parts []string
	for _, l := range model.Levels {
		if l >= m.level {
			break
		}
		if name := m.sel.SelectedName(l); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " › ")
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select " + strings.ToLower(m.level.Label())))
	b.WriteString("\n")
	if crumb := m.breadcrumb(); crumb != "" {
		b.WriteString(crumbStyle.Render(crumb))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.loading:
		b.WriteString("loading…\n")
	case m.err != nil:
		b.WriteString(errStyle.Render(fmt.Sprintf("could not load %s options: %v", m.level, m.err)))
		b.WriteString("\n")
	default:
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}
	help := "enter select · / filter · esc quit"
	if m.canFinish() {
		help += " · s done"
	}
	if m.err != nil && m.level == model.LevelYear {
		help += " · r retry"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

// Result is what the picker settled on.
type Result struct {
	Selection model.Selection
	UnitName  string
	TopicName string
}

func (m pickerModel) result() Result {
	return Result{
		Selection: m.sel.Selection(),
		UnitName:  m.sel.SelectedName(model.LevelUnit),
		TopicName: m.sel.SelectedName(model.LevelTopic),
	}
}

// Pick runs the interactive cascade until a subject (and optionally unit
// and topic) is chosen.
func Pick(ctx context.Context, src selector.OptionSource) (Result, error) {
	mm, err := tea.NewProgram(newPickerModel(ctx, src), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return Result{}, err
	}
	out := mm.(pickerModel)
	if out.canceled || !out.done {
		return Result{}, ErrPickCanceled
	}
	return out.result(), nil
}
