package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//epdtimeline//test//EN
BEGIN:VEVENT
UID:a@test
DTSTART:20250313T090000Z
DTEND:20250313T100000Z
SUMMARY:Planning
END:VEVENT
BEGIN:VEVENT
UID:b@test
DTSTART:20250313T093000Z
DTEND:20250313T110000Z
SUMMARY:Review
END:VEVENT
BEGIN:VEVENT
UID:c@test
DTSTART:20250313T103000Z
DTEND:20250313T113000Z
SUMMARY:Sync
END:VEVENT
END:VCALENDAR
`

func setup(t *testing.T) (cfgPath, feedPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	feedPath = filepath.Join(dir, "work.ics")

	cfg := "timezone: UTC\n" +
		"cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"timeline:\n  start_hour: 8\n  end_hour: 20\n  pixels_per_hour: 100\n  width: 600\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(feedPath, []byte(strings.ReplaceAll(testFeed, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, feedPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLayoutCommand_JSON(t *testing.T) {
	cfgPath, feedPath := setup(t)
	out, err := run(t, "layout", "--config", cfgPath, "--date", "2025-03-13", "--json", feedPath)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}

	var got struct {
		Date         string  `json:"date"`
		Width        float64 `json:"width"`
		ScrollOffset float64 `json:"scroll_offset"`
		Events       []struct {
			Title   string  `json:"title"`
			Top     float64 `json:"top"`
			Left    float64 `json:"left"`
			Width   float64 `json:"width"`
			Column  int     `json:"column"`
			Columns int     `json:"columns"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Date != "2025-03-13" || got.Width != 600 || len(got.Events) != 3 {
		t.Fatalf("got %+v", got)
	}

	// Planning and Review overlap; Sync reuses Planning's column.
	want := []struct {
		title  string
		top    float64
		left   float64
		column int
	}{
		{"Planning", 100, 0, 0},
		{"Review", 150, 300, 1},
		{"Sync", 250, 0, 0},
	}
	for i, w := range want {
		e := got.Events[i]
		if e.Title != w.title || e.Top != w.top || e.Left != w.left || e.Column != w.column || e.Columns != 2 || e.Width != 300 {
			t.Errorf("event %d: got %+v", i, e)
		}
	}
}

func TestLayoutCommand_Table(t *testing.T) {
	cfgPath, feedPath := setup(t)
	out, err := run(t, "layout", "--config", cfgPath, "--date", "2025-03-13", "--width", "400", feedPath)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	for _, want := range []string{"TITLE", "09:00-10:00", "1/2", "2/2", "Review", "width=400"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLayoutCommand_Errors(t *testing.T) {
	cfgPath, feedPath := setup(t)
	if _, err := run(t, "layout", "--config", cfgPath, "--date", "13/03/2025", feedPath); err == nil {
		t.Error("expected error for bad date")
	}
	if _, err := run(t, "layout", "--config", cfgPath, "--width", "-1", feedPath); err == nil {
		t.Error("expected error for negative width")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("got %q, want version %q", out, version)
	}
}
