package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"epdtimeline/internal/config"
	"epdtimeline/internal/layout"
	"epdtimeline/internal/timeline"
)

type layoutOptions struct {
	date  string
	width float64
	json  bool
}

func newLayoutCommand(root *rootOptions) *cobra.Command {
	lo := &layoutOptions{}
	cmd := &cobra.Command{
		Use:   "layout [ics files...]",
		Short: "Print the packed timeline of one day.",
		Long: `Packs one day of events and prints each event's column and pixel
geometry. With file arguments the configured feeds are replaced by them.`,
		Example: `
epdtimeline layout --date 2025-03-13
epdtimeline layout --width 600 --json work.ics home.ics
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.ICS = feedsFromFiles(args)
			}

			day := time.Now().In(cfg.Location())
			if lo.date != "" {
				day, err = time.ParseInLocation(time.DateOnly, lo.date, cfg.Location())
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			dl, err := timeline.New(cfg).Day(cmd.Context(), day, lo.width)
			if err != nil {
				return err
			}
			if lo.json {
				return printLayoutJSON(cmd.OutOrStdout(), dl)
			}
			printLayoutTable(cmd.OutOrStdout(), dl)
			return nil
		},
	}
	cmd.Flags().StringVar(&lo.date, "date", "", "Day to lay out (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(&lo.width, "width", 0, "Container width in pixels (default from config)")
	cmd.Flags().BoolVar(&lo.json, "json", false, "Output as JSON.")
	return cmd
}

func feedsFromFiles(paths []string) []config.ICSConfig {
	out := make([]config.ICSConfig, 0, len(paths))
	for _, p := range paths {
		out = append(out, config.ICSConfig{URL: p, ID: filepath.Base(p)})
	}
	return out
}

func printLayoutTable(w io.Writer, dl *timeline.DayLayout) {
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "%s  width=%s grid=%s scroll=%s\n",
		bold(dl.Date.Format("Mon 2006-01-02")), num(dl.Width), num(dl.GridHeight), num(dl.ScrollOffset))

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold("TIME"), bold("COL"), bold("TOP"), bold("LEFT"), bold("WIDTH"), bold("HEIGHT"), bold("TITLE"))
	for _, p := range dl.Events {
		occ := dl.Occurrences[p.Index]
		tbl.AddRow(
			occ.Start.Format("15:04")+"-"+occ.End.Format("15:04"),
			fmt.Sprintf("%d/%d", p.Column+1, p.Columns),
			num(p.Top), num(p.Left), num(p.Width), num(p.Height),
			p.Title,
		)
	}
	fmt.Fprintln(w, tbl)

	for _, o := range dl.AllDay {
		fmt.Fprintf(w, "all day: %s\n", o.Summary)
	}
	for _, r := range dl.Rejected {
		fmt.Fprintln(w, red(fmt.Sprintf("rejected %q: %v", dl.Occurrences[r.Index].Summary, r.Err)))
	}
}

func printLayoutJSON(w io.Writer, dl *timeline.DayLayout) error {
	type out struct {
		Date         string                    `json:"date"`
		Width        float64                   `json:"width"`
		GridHeight   float64                   `json:"grid_height"`
		ScrollOffset float64                   `json:"scroll_offset"`
		Events       []layout.Positioned       `json:"events"`
		Rejected     []*layout.ValidationError `json:"rejected,omitempty"`
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out{
		Date:         dl.Date.Format(time.DateOnly),
		Width:        dl.Width,
		GridHeight:   dl.GridHeight,
		ScrollOffset: dl.ScrollOffset,
		Events:       dl.Events,
		Rejected:     dl.Rejected,
	})
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
