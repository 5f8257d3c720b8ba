package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pavelanni/paperdash/internal/analytics"
	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/generate"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/paper"
	"github.com/pavelanni/paperdash/internal/tui"
)

const lastPickKey = "last_pick"

func addGenerationFlags(f *pflag.FlagSet) {
	f.String("payload-format", string(model.PayloadTenths), "Generation payload contract (tenths, percent)")
	f.Bool("require-unit-topic", true, "Require unit and topic before generating")
	f.String("engine", string(model.EngineLLM), "Default generation engine (llm, hybrid, rules)")
	f.Int("total-marks", 100, "Default total marks of a generated paper")
}

func optionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options <level> [parent-id]",
		Short: "List academic options (year, semester, subject, unit, topic)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			level, err := model.ParseLevel(args[0])
			if err != nil {
				return err
			}
			var parent int64
			if level != model.LevelYear {
				if len(args) < 2 {
					return fmt.Errorf("%s options need a parent id", level)
				}
				if parent, err = strconv.ParseInt(args[1], 10, 64); err != nil {
					return fmt.Errorf("parse parent id: %w", err)
				}
			}
			opts, err := a.api.Options(cmd.Context(), level, parent)
			if err != nil {
				return err
			}
			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, opts)
			}
			rows := make([][]string, 0, len(opts))
			for _, o := range opts {
				rows = append(rows, []string{strconv.FormatInt(o.ID, 10), o.Name})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name"}, rows)
			return nil
		}),
	}
	addFormatFlag(cmd.Flags(), formatTable)
	return cmd
}

// savedPick is the last interactive selection, reused by generate.
type savedPick struct {
	Selection model.Selection `json:"selection"`
	UnitName  string          `json:"unit_name,omitempty"`
	TopicName string          `json:"topic_name,omitempty"`
}

func pickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Choose year, semester, subject, unit and topic interactively",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			res, err := tui.Pick(cmd.Context(), a.api)
			if err != nil {
				return err
			}
			p := savedPick{Selection: res.Selection, UnitName: res.UnitName, TopicName: res.TopicName}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := a.store.SetValue(lastPickKey, string(data)); err != nil {
				return fmt.Errorf("save pick: %w", err)
			}
			return writeStructured(cmd.OutOrStdout(), formatYAML, p)
		}),
	}
}

func loadPick(a *app) (savedPick, bool) {
	raw, err := a.store.GetValue(lastPickKey)
	if err != nil || raw == "" {
		return savedPick{}, false
	}
	var p savedPick
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("ignoring unreadable saved pick", "error", err)
		return savedPick{}, false
	}
	return p, true
}

// optionName looks up the display name of id among level's options
// under parent.
func optionName(ctx context.Context, a *app, level model.Level, parent, id int64) string {
	opts, err := a.api.Options(ctx, level, parent)
	if err != nil {
		slog.Warn("could not resolve option name", "level", level, "id", id, "error", err)
		return ""
	}
	for _, o := range opts {
		if o.ID == id {
			return o.Name
		}
	}
	return ""
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a question paper",
		Long: `Generate a question paper for a subject and, optionally, a unit and topic.

Without --subject the selection saved by "paperdash pick" is used; --pick
runs the picker first. Setting one of --easy, --medium or --hard rebalances
the other two; setting two or three uses the values as given.`,
		RunE: withApp(runGenerate),
	}
	f := cmd.Flags()
	f.Int64("subject", 0, "Subject id")
	f.Int64("unit", 0, "Unit id")
	f.Int64("topic", 0, "Topic id")
	f.Bool("pick", false, "Choose the subject interactively first")
	f.Int("easy", 0, "Easy percentage")
	f.Int("medium", 0, "Medium percentage")
	f.Int("hard", 0, "Hard percentage")
	addGenerationFlags(f)
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string, a *app) error {
	ctx := cmd.Context()
	v := a.v
	cfg, err := dashboardConfig(v, "")
	if err != nil {
		return err
	}

	var st generate.State
	switch {
	case v.GetBool("pick"):
		res, err := tui.Pick(ctx, a.api)
		if err != nil {
			return err
		}
		st.Selection, st.UnitName, st.TopicName = res.Selection, res.UnitName, res.TopicName
	case v.GetInt64("subject") != 0:
		st.Selection = model.Selection{
			Subject: v.GetInt64("subject"),
			Unit:    v.GetInt64("unit"),
			Topic:   v.GetInt64("topic"),
		}
		if st.Selection.Unit != 0 {
			st.UnitName = optionName(ctx, a, model.LevelUnit, st.Selection.Subject, st.Selection.Unit)
		}
		if st.Selection.Topic != 0 {
			st.TopicName = optionName(ctx, a, model.LevelTopic, st.Selection.Unit, st.Selection.Topic)
		}
	default:
		p, ok := loadPick(a)
		if !ok {
			return errors.New("no subject given: pass --subject, --pick, or run paperdash pick first")
		}
		st.Selection, st.UnitName, st.TopicName = p.Selection, p.UnitName, p.TopicName
	}

	prefs, err := a.store.GetPreferences()
	if err != nil {
		slog.Warn("failed to read preferences", "error", err)
	}
	st.Engine = cfg.DefaultEngine
	if prefs.Engine != "" && !cmd.Flags().Changed("engine") {
		st.Engine = prefs.Engine
	}
	st.Distribution = prefs.Distribution
	var changed []model.Difficulty
	for _, d := range model.Difficulties {
		if cmd.Flags().Changed(string(d)) {
			changed = append(changed, d)
		}
	}
	switch len(changed) {
	case 0:
	case 1:
		if err := st.Distribution.Set(changed[0], v.GetInt(string(changed[0]))); err != nil {
			return err
		}
	default:
		st.Distribution = model.Distribution{Easy: v.GetInt("easy"), Medium: v.GetInt("medium"), Hard: v.GetInt("hard")}
	}
	st.TotalMarks = cfg.TotalMarks

	errOut := cmd.ErrOrStderr()
	gen := generate.New(a.api, generate.Config{
		Format:           cfg.PayloadFormat,
		RequireUnitTopic: cfg.RequireUnitTopic,
	}, generate.WithProgress(func(p int) {
		fmt.Fprintf(errOut, "\rgenerating… %3d%%", p)
	}))
	res, err := gen.Generate(ctx, st)
	fmt.Fprintln(errOut)
	if err != nil {
		if msgID, ok := generate.IsValidation(err); ok {
			return errors.New(appI18n.T(ctx, msgID))
		}
		if msg := generate.FailureMessage(err); msg != "" && !errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("generation failed: %s", msg)
		}
		return err
	}

	prefs.Engine = st.Engine
	prefs.Distribution = st.Distribution
	if err := a.store.SavePreferences(prefs); err != nil {
		slog.Warn("failed to save preferences", "error", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, okStyle.Render("paper "+res.PaperID+" generated"))
	fmt.Fprintln(out, "download:", res.DownloadURL)
	return nil
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List generated papers",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			entries, err := a.api.History(cmd.Context())
			if err != nil {
				return err
			}
			var engine model.Engine
			if e := a.v.GetString("engine"); e != "" {
				if engine, err = model.ParseEngine(e); err != nil {
					return err
				}
			}
			entries = paper.Filter(entries, a.v.GetString("query"), engine)
			if n := a.v.GetInt("limit"); n > 0 && len(entries) > n {
				entries = entries[:n]
			}

			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, entries)
			}
			if len(entries) == 0 {
				printNote(cmd.OutOrStdout(), "no papers yet")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				marks, created := "", ""
				if e.TotalMarks != nil {
					marks = humanize.Ftoa(*e.TotalMarks)
				}
				if e.CreatedAt != nil {
					created = humanize.Time(*e.CreatedAt)
				}
				rows = append(rows, []string{e.ID, e.SubjectName, e.AIEngine, marks, created})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Subject", "Engine", "Marks", "Created"}, rows)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringP("query", "q", "", "Search subject name or paper id")
	f.String("engine", "", "Only papers from this engine")
	f.IntP("limit", "n", 0, "Show at most this many papers")
	addFormatFlag(f, formatTable)
	return cmd
}

func paperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Inspect a generated paper",
	}
	cmd.AddCommand(paperShowCmd(), paperAnalyticsCmd(), paperDownloadCmd(), paperExportCmd())
	return cmd
}

func fetchPaper(ctx context.Context, a *app, id string) (*model.PaperDetail, error) {
	raw, err := a.api.Paper(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := paper.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func paperShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a paper's questions and stats",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			p, err := fetchPaper(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(out, format, p)
			}

			title := p.Title
			if title == "" {
				title = "Paper " + p.ID
			}
			fmt.Fprintln(out, headerStyle.Render(title))
			if p.SubjectName != "" {
				printNote(out, p.SubjectName)
			}
			if len(p.Questions) == 0 {
				printNote(out, "this paper has no questions")
				return nil
			}
			rows := make([][]string, 0, len(p.Questions))
			for _, q := range p.Questions {
				rows = append(rows, []string{strconv.Itoa(q.Number), q.Text, string(q.Difficulty), string(q.BloomLevel), humanize.Ftoa(q.Marks)})
			}
			printTable(out, []string{"#", "Question", "Difficulty", "Bloom", "Marks"}, rows)
			st := p.Stats
			fmt.Fprintf(out, "%s questions, %s marks, %.1f average\n",
				humanize.Comma(int64(st.TotalQuestions)), humanize.Ftoa(st.TotalMarks), st.AverageMarks)
			return nil
		}),
	}
	addFormatFlag(cmd.Flags(), formatTable)
	return cmd
}

// paperAnalytics fetches the backend aggregate and falls back to figures
// computed from the paper itself.
func paperAnalytics(ctx context.Context, a *app, id string) (*model.PaperAnalytics, bool, error) {
	pa, err := a.api.PaperAnalytics(ctx, id)
	if err == nil {
		return pa, false, nil
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return nil, false, err
	}
	slog.Warn("paper analytics unavailable, deriving from paper", "paper_id", id, "error", err)
	p, perr := fetchPaper(ctx, a, id)
	if perr != nil {
		return nil, false, perr
	}
	return analytics.FromPaper(p), true, nil
}

func paperAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics <id>",
		Short: "Print a paper's analytics breakdowns",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			pa, local, err := paperAnalytics(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(out, format, analytics.Charts(pa))
			}
			if local {
				printNote(out, appI18n.T(cmd.Context(), "AnalyticsFromPaper"))
			}
			series := []struct {
				name   string
				counts model.Counts
			}{
				{analytics.ChartDifficulty, pa.DifficultyDistribution},
				{analytics.ChartBloom, pa.BloomTaxonomy},
				{analytics.ChartTopics, pa.TopicCoverage},
				{analytics.ChartMarks, pa.MarksAllocation},
			}
			for _, s := range series {
				points := analytics.FormatRadialData(s.counts)
				if len(points) == 0 {
					continue
				}
				fmt.Fprintln(out, headerStyle.Render(s.name))
				rows := make([][]string, 0, len(points))
				for _, p := range points {
					rows = append(rows, []string{p.Name, humanize.Ftoa(p.Value), strings.Repeat("█", int(p.Percent/5))})
				}
				printTable(out, []string{"Name", "Value", ""}, rows)
			}
			return nil
		}),
	}
	addFormatFlag(cmd.Flags(), formatTable)
	return cmd
}

func paperDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <id>",
		Short: "Print the PDF download URL",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.api.DownloadURL(args[0]))
			return nil
		}),
	}
}

func paperExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a normalized paper with its charts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			p, err := fetchPaper(ctx, a, args[0])
			if err != nil {
				return err
			}
			doc := model.PaperExport{
				ExportedAt: time.Now().UTC(),
				APIBase:    a.api.BaseURL(),
				Paper:      *p,
			}
			if pa, _, err := paperAnalytics(ctx, a, args[0]); err == nil {
				doc.Charts = analytics.Charts(pa)
			} else if errors.Is(err, api.ErrUnauthorized) {
				return err
			}

			w, closeFn, err := openOutput(a.v.GetString("output"))
			if err != nil {
				return err
			}
			if err := writeStructured(w, a.v.GetString("format"), doc); err != nil {
				closeFn()
				return fmt.Errorf("write export: %w", err)
			}
			return closeFn()
		}),
	}
	f := cmd.Flags()
	addFormatFlag(f, formatYAML)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}
