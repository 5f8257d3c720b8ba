package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pavelanni/paperdash/internal/analytics"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/students"
)

func studentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Manage uploaded student results",
	}
	cmd.AddCommand(studentsListCmd(), studentsImportCmd(), studentsAnalyticsCmd(), studentsExportCmd())
	return cmd
}

func studentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List students with their paper count and average score",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			roster, err := students.New(a.api, a.store).Reload(cmd.Context())
			if err != nil {
				return err
			}
			sums := students.Summaries(roster)
			out := cmd.OutOrStdout()
			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(out, format, sums)
			}
			if len(sums) == 0 {
				printNote(out, appI18n.T(cmd.Context(), "StudentsEmpty"))
				return nil
			}
			rows := make([][]string, 0, len(sums))
			for _, s := range sums {
				rows = append(rows, []string{s.StudentID, s.Name, strconv.Itoa(s.TotalPapers), fmt.Sprintf("%.1f%%", s.AverageScore), s.Status})
			}
			printTable(out, []string{"Student", "Name", "Papers", "Average", "Status"}, rows)
			if fleet := analytics.Fleet(roster.Rows); fleet.Results > 0 {
				printNote(out, appI18n.Td(cmd.Context(), "FleetSummary", map[string]any{
					"Students": fleet.Students,
					"Papers":   fleet.Papers,
					"Average":  fmt.Sprintf("%.1f", fleet.AverageScore),
				}))
			}
			return nil
		}),
	}
	addFormatFlag(cmd.Flags(), formatTable)
	return cmd
}

func studentsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <results.csv>",
		Short: "Upload a CSV of student results",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			res, err := students.New(a.api, a.store).UploadCSV(ctx, filepath.Base(path), f)
			var verr *students.ValidationError
			if errors.As(err, &verr) {
				return errors.New(appI18n.T(ctx, verr.MessageID))
			}
			if res == nil {
				return err
			}
			if err != nil {
				printNote(cmd.ErrOrStderr(), err.Error())
			}
			for _, note := range res.Notes(ctx) {
				printNote(cmd.ErrOrStderr(), note)
			}
			msg := appI18n.Tp(ctx, "ResultsImported", res.Imported)
			if res.Message != "" {
				msg += " " + res.Message
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
			return nil
		}),
	}
}

func studentsAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics <student-id>",
		Short: "Show one student's performance",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			sa, err := students.New(a.api, a.store).ViewAnalytics(ctx, args[0])
			if errors.Is(err, students.ErrNoData) {
				printNote(cmd.OutOrStdout(), appI18n.T(ctx, "NoStudentData"))
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			format := a.v.GetString("format")
			if format != formatTable {
				return writeStructured(out, format, sa)
			}
			if sa.Source == model.SourceLocal {
				printNote(out, appI18n.T(ctx, "LocalFallbackNotice"))
			}
			b := sa.DifficultyBreakdown
			printTable(out, []string{"", ""}, [][]string{
				{"papers", strconv.Itoa(sa.TotalPapers)},
				{"average", fmt.Sprintf("%.1f%%", sa.AverageScore)},
				{"easy", humanize.Ftoa(b.Easy)},
				{"medium", humanize.Ftoa(b.Medium)},
				{"hard", humanize.Ftoa(b.Hard)},
			})
			if len(sa.PerformanceTrend) > 0 {
				rows := make([][]string, 0, len(sa.PerformanceTrend))
				for _, p := range sa.PerformanceTrend {
					rows = append(rows, []string{p.PaperID, fmt.Sprintf("%.1f%%", p.Score)})
				}
				printTable(out, []string{"Paper", "Score"}, rows)
			}
			return nil
		}),
	}
	addFormatFlag(cmd.Flags(), formatTable)
	return cmd
}

func studentsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the roster as a spreadsheet or a structured document",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			roster, err := students.New(a.api, a.store).Reload(cmd.Context())
			if err != nil {
				return err
			}

			outPath := a.v.GetString("output")
			if a.v.GetBool("xlsx") {
				if outPath == "" || outPath == "-" {
					outPath = "students-" + time.Now().Format("2006-01-02") + ".xlsx"
				}
				w, closeFn, err := openOutput(outPath)
				if err != nil {
					return err
				}
				if err := students.WriteXLSX(w, roster); err != nil {
					closeFn()
					return err
				}
				if err := closeFn(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("wrote "+outPath))
				return nil
			}

			doc := model.RosterExport{
				ExportedAt: time.Now().UTC(),
				Fleet:      analytics.Fleet(roster.Rows),
				Students:   []model.StudentAnalytics{},
			}
			for _, id := range analytics.StudentIDs(roster.Rows) {
				doc.Students = append(doc.Students, analytics.StudentFallback(roster.Rows, id))
			}
			w, closeFn, err := openOutput(outPath)
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
	f.Bool("xlsx", false, "Write an Excel workbook instead of YAML/JSON")
	addFormatFlag(f, formatYAML)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}
