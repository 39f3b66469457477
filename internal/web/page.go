package web

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"time"

	"epdtimeline/internal/layout"
	appLog "epdtimeline/internal/log"
	"epdtimeline/internal/timeline"
)

// gutterWidth is the hour label column left of the event area.
const gutterWidth = 64

var pageTmpl = template.Must(template.New("timeline").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  html, body { margin: 0; padding: 0; background: #fff; color: #000; font-family: sans-serif; }
  header { height: 48px; line-height: 48px; padding-left: 8px; font-size: 24px; font-weight: bold; border-bottom: 2px solid #000; }
  .allday { padding: 4px 8px; border-bottom: 1px solid #000; font-size: 15px; }
  .allday span { display: inline-block; margin-right: 12px; padding: 0 4px; border: 1px solid #000; }
  .grid { position: relative; }
  .hour { position: absolute; left: 0; right: 0; border-top: 1px solid #000; }
  .hour span { display: inline-block; width: {{.Gutter}}px; font-size: 14px; padding-left: 4px; }
  .events { position: absolute; top: 0; bottom: 0; left: {{.Gutter}}px; }
  .event { position: absolute; box-sizing: border-box; overflow: hidden; border: 2px solid #000; background: #fff; padding: 1px 4px; font-size: 14px; line-height: 17px; }
  .event b { display: block; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
  .event.accent { border-color: #d00; color: #d00; }
</style>
</head>
<body>
<div id="timeline" data-ready="true" data-scroll-offset="{{.ScrollOffset}}" style="width: {{.TotalWidth}}px">
<header>{{.Title}}</header>
{{if .AllDay}}<div class="allday">{{range .AllDay}}<span>{{.}}</span>{{end}}</div>{{end}}
<div class="grid" style="height: {{.GridHeight}}px">
{{range .Hours}}<div class="hour" style="top: {{.Top}}px"><span>{{.Label}}</span></div>
{{end}}<div class="events" style="width: {{.Width}}px">
{{range .Events}}<div class="event{{if .Accent}} accent{{end}}" style="top: {{.Top}}px; left: {{.Left}}px; width: {{.Width}}px; height: {{.Height}}px" title="{{.Time}}">
<b>{{.Title}}</b>{{if .Summary}}{{.Summary}}{{end}}
</div>
{{end}}</div>
</div>
</div>
<script>window.scrollTo(0, {{.ScrollOffset}});</script>
</body>
</html>
`))

type pageView struct {
	Title        string
	Gutter       int
	Width        string
	TotalWidth   string
	GridHeight   string
	ScrollOffset float64
	AllDay       []string
	Hours        []hourLine
	Events       []eventBox
}

type hourLine struct {
	Top   string
	Label string
}

type eventBox struct {
	Top, Left, Width, Height string
	Title, Summary, Time     string
	Accent                   bool
}

// handleTimelinePage renders one packed day as static HTML for the capture
// pipeline and for browsers.
//
// GET /timeline?date=2025-03-13&width=1200
func (s *Server) handleTimelinePage(w http.ResponseWriter, r *http.Request) {
	day, width, ok := s.dayParams(w, r)
	if !ok {
		return
	}

	dl, err := s.svc.Day(r.Context(), day, width)
	if err != nil {
		s.writeDayError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, newPageView(dl)); err != nil {
		appLog.Error("timeline page: render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func newPageView(dl *timeline.DayLayout) pageView {
	opts := dl.Options
	v := pageView{
		Title:        dl.Date.Format("Monday, January 2"),
		Gutter:       gutterWidth,
		Width:        px(dl.Width),
		TotalWidth:   px(dl.Width + gutterWidth),
		GridHeight:   px(dl.GridHeight),
		ScrollOffset: dl.ScrollOffset,
	}

	for _, o := range dl.AllDay {
		v.AllDay = append(v.AllDay, o.Summary)
	}

	end := opts.EndHour
	if end == 0 {
		end = 24
	}
	for h := opts.StartHour; h < end; h++ {
		t := dl.Date.Add(time.Duration(h * float64(time.Hour)))
		v.Hours = append(v.Hours, hourLine{
			Top:   px(layout.OffsetAt(t, opts)),
			Label: t.Format("15:04"),
		})
	}

	// The panel has one accent ink, so any calendar color is drawn in red.
	for _, p := range dl.Events {
		v.Events = append(v.Events, eventBox{
			Top:     px(p.Top),
			Left:    px(p.Left),
			Width:   px(p.Width),
			Height:  px(p.Height),
			Title:   p.Title,
			Summary: p.Summary,
			Time:    fmt.Sprintf("%s-%s", p.Start.Format("15:04"), p.End.Format("15:04")),
			Accent:  p.Color != "",
		})
	}
	return v
}

// px formats a pixel value with at most two decimals.
func px(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
