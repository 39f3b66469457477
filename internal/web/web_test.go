package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"epdtimeline/internal/config"
	"epdtimeline/internal/timeline"
)

const feed = `BEGIN:VCALENDAR
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
DTEND:20250313T103000Z
SUMMARY:<Review>
COLOR:red
END:VEVENT
END:VCALENDAR
`

func newTestServer(t *testing.T) (*config.Config, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.ics")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(feed, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.PreviewPath = filepath.Join(dir, "preview.png")
	cfg.Timeline = config.TimelineConfig{StartHour: 8, EndHour: 20, PixelsPerHour: 100, Width: 600, MinEventHeight: 17}
	cfg.ICS = []config.ICSConfig{{URL: path, ID: "test"}}

	return cfg, NewServer(cfg, timeline.New(cfg)).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestTimeline(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/timeline?date=2025-03-13&width=400", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var resp timelineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "2025-03-13" || resp.Width != 400 || resp.GridHeight != 1200 {
		t.Errorf("got %+v", resp)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(resp.Events))
	}
	for i, want := range []struct {
		uid       string
		top, left float64
		column    int
	}{
		{"a@test", 100, 0, 0},
		{"b@test", 150, 200, 1},
	} {
		got := resp.Events[i]
		if got.UID != want.uid || got.Top != want.top || got.Left != want.left || got.Column != want.column || got.Width != 200 {
			t.Errorf("event %d: got %+v", i, got)
		}
	}
	if resp.ScrollOffset != 0 {
		t.Errorf("got scroll offset %v, want 0", resp.ScrollOffset)
	}
}

func TestTimeline_BadParams(t *testing.T) {
	_, h := newTestServer(t)
	for _, target := range []string{
		"/api/timeline?date=13-03-2025",
		"/api/timeline?width=wide",
		"/api/timeline?date=2025-03-13&width=-5",
	} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", target, rec.Code)
		}
	}
}

func TestLayout(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantEvents int
		wantReject int
		wantWidth  float64
	}{
		{
			name:   "packs and rejects",
			target: "/api/layout?width=300",
			body: `{"events":[
				{"start":"2025-03-13T09:00:00Z","end":"2025-03-13T10:00:00Z","title":"A"},
				{"start":"2025-03-13T09:30","end":"2025-03-13T10:30","title":"B"},
				{"start":"2025-03-13T11:00","end":"2025-03-13T10:00","title":"backwards"},
				{"start":"","end":"2025-03-13T10:00","title":"no start"}
			]}`,
			wantStatus: http.StatusOK,
			wantEvents: 2,
			wantReject: 2,
			wantWidth:  150,
		},
		{
			name:   "zero width uses configured width",
			target: "/api/layout?width=0",
			body: `{"events":[
				{"start":"2025-03-13T09:00:00Z","end":"2025-03-13T10:00:00Z","title":"A"}
			]}`,
			wantStatus: http.StatusOK,
			wantEvents: 1,
			wantWidth:  600,
		},
		{
			name:       "negative width",
			target:     "/api/layout?width=-10",
			body:       `{"events":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad body",
			target:     "/api/layout",
			body:       `{"events":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty",
			target:     "/api/layout",
			body:       `{"events":[]}`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("got %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var resp struct {
				Events   []timelineEventDTO `json:"events"`
				Rejected []struct {
					Index int    `json:"index"`
					Error string `json:"error"`
				} `json:"rejected"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Events) != tt.wantEvents || len(resp.Rejected) != tt.wantReject {
				t.Fatalf("got %d events, %d rejected", len(resp.Events), len(resp.Rejected))
			}
			for _, e := range resp.Events {
				if e.Width != tt.wantWidth {
					t.Errorf("%s: got width %v, want %v", e.Title, e.Width, tt.wantWidth)
				}
			}
		})
	}
}

func TestLayout_MethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/api/layout", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("got %d, want 405", rec.Code)
	}
}

func TestEvents(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/events?days=3&backfill=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.DisplayTimeZone != "UTC" || !resp.RangeEnd.After(resp.RangeStart) {
		t.Errorf("got %+v", resp)
	}
	if resp.Occurrences == nil {
		t.Error("occurrences should encode as an empty list, not null")
	}
}

func TestTimelinePage(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/timeline?date=2025-03-13&width=400", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		`data-ready="true"`,
		"Thursday, March 13",
		"top: 150px; left: 200px; width: 200px; height: 100px",
		"&lt;Review&gt;",
		`class="event accent"`,
		"<span>08:00</span>",
		"<span>19:00</span>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "<Review>") {
		t.Error("summary was not escaped")
	}
}

func TestPreview(t *testing.T) {
	cfg, h := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/preview.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("got %d before capture, want 404", rec.Code)
	}
	if err := os.WriteFile(cfg.PreviewPath, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := do(t, h, http.MethodGet, "/preview.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestBasicAuth(t *testing.T) {
	cfg, _ := newTestServer(t)
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := NewServer(cfg, timeline.New(cfg)).Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: got %d, want 200 without credentials", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/events", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("events: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("events with credentials: got %d", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	cfg, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, cfg, timeline.New(cfg)) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
