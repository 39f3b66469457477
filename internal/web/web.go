package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"epdtimeline/internal/config"
	"epdtimeline/internal/layout"
	appLog "epdtimeline/internal/log"
	"epdtimeline/internal/model"
	"epdtimeline/internal/timeline"
)

// maxLayoutBody caps POST /api/layout request bodies.
const maxLayoutBody = 1 << 20

// Server serves the timeline API, the rendered timeline page and the last
// captured preview.
type Server struct {
	cfg *config.Config
	svc *timeline.Service
	mux *http.ServeMux

	// /api/events responses keyed by query, so repeated polling from a
	// browser doesn't re-slice the snapshot.
	eventsMu    sync.RWMutex
	eventsCache map[eventsKey]*eventsCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *timeline.Service) *Server {
	s := &Server{
		cfg:         cfg,
		svc:         svc,
		mux:         http.NewServeMux(),
		eventsCache: make(map[eventsKey]*eventsCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdtimeline", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, svc *timeline.Service) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, cfg, svc)
}

// Serve is StartServer on an already bound listener.
func Serve(ctx context.Context, ln net.Listener, cfg *config.Config, svc *timeline.Service) error {
	srv := &http.Server{
		Handler:           NewServer(cfg, svc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("POST /api/layout", s.handleLayout)
	s.mux.HandleFunc("GET /timeline", s.handleTimelinePage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG from cfg.PreviewPath.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.PreviewPath)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences     []occurrenceDTO `json:"occurrences"`
	TruncatedUIDs   []string        `json:"truncated_uids,omitempty"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
}

type eventsKey struct {
	days, backfill int
}

type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	SourceID    string    `json:"source_id"`
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Color       string    `json:"color,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

func toDTO(o model.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		SourceID:    o.SourceID,
		UID:         o.UID,
		InstanceKey: o.InstanceKey,
		Summary:     o.Summary,
		Description: o.Description,
		Location:    o.Location,
		Color:       o.Color,
		AllDay:      o.AllDay,
		Start:       o.Start,
		End:         o.End,
	}
}

// handleEvents returns expanded occurrences for the configured feeds.
//
// GET /api/events?days=7&backfill=1
//   - days:     local days ahead of today to include (default 7)
//   - backfill: local days before today to include (default 1)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}
	key := eventsKey{days: days, backfill: backfill}

	const eventsCacheTTL = 30 * time.Second
	s.eventsMu.RLock()
	ec := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if ec != nil && time.Since(ec.updatedAt) < eventsCacheTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	loc := s.svc.Location()
	today := midnight(time.Now(), loc)
	rangeStart := today.AddDate(0, 0, -backfill)
	rangeEnd := today.AddDate(0, 0, days)

	appLog.Debug("api events request",
		"days", days,
		"backfill", backfill,
		"range_start", rangeStart.Format(time.RFC3339),
		"range_end", rangeEnd.Format(time.RFC3339),
	)

	snap, err := s.svc.Occurrences(r.Context(), rangeStart, rangeEnd)
	if err != nil {
		appLog.Error("api events: load failed", err)
		writeError(w, http.StatusBadGateway, "failed to load events")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(snap.Occurrences))
	for _, o := range snap.Occurrences {
		dtos = append(dtos, toDTO(o))
	}
	resp := eventsResponse{
		Occurrences:     dtos,
		TruncatedUIDs:   snap.TruncatedEvents,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
	}

	s.eventsMu.Lock()
	s.eventsCache[key] = &eventsCache{resp: resp, updatedAt: time.Now()}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// timelineResponse is the JSON shape for /api/timeline and /api/layout.
type timelineResponse struct {
	Date          string                    `json:"date,omitempty"`
	Width         float64                   `json:"width"`
	GridHeight    float64                   `json:"grid_height"`
	ScrollOffset  float64                   `json:"scroll_offset"`
	StartHour     float64                   `json:"start_hour"`
	EndHour       float64                   `json:"end_hour"`
	PixelsPerHour float64                   `json:"pixels_per_hour"`
	Events        []timelineEventDTO        `json:"events"`
	Rejected      []*layout.ValidationError `json:"rejected,omitempty"`
	AllDay        []occurrenceDTO           `json:"all_day,omitempty"`
}

type timelineEventDTO struct {
	layout.Positioned
	UID      string `json:"uid,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// handleTimeline packs one day of the configured feeds.
//
// GET /api/timeline?date=2025-03-13&width=1200
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	day, width, ok := s.dayParams(w, r)
	if !ok {
		return
	}

	dl, err := s.svc.Day(r.Context(), day, width)
	if err != nil {
		s.writeDayError(w, err)
		return
	}

	resp := timelineResponse{
		Date:          dl.Date.Format(time.DateOnly),
		Width:         dl.Width,
		GridHeight:    dl.GridHeight,
		ScrollOffset:  dl.ScrollOffset,
		StartHour:     dl.Options.StartHour,
		EndHour:       dl.Options.EndHour,
		PixelsPerHour: dl.Options.PixelsPerHour,
		Events:        make([]timelineEventDTO, 0, len(dl.Events)),
		Rejected:      dl.Rejected,
	}
	for _, p := range dl.Events {
		occ := dl.Occurrences[p.Index]
		resp.Events = append(resp.Events, timelineEventDTO{Positioned: p, UID: occ.UID, SourceID: occ.SourceID})
	}
	for _, o := range dl.AllDay {
		resp.AllDay = append(resp.AllDay, toDTO(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

type layoutRequest struct {
	Events []layout.RawEvent `json:"events"`
}

// handleLayout packs caller-supplied events with the configured geometry.
// Timestamps without an offset are read in the configured timezone. A
// missing or zero width means the configured one.
//
// POST /api/layout?width=600  {"events":[{"start":"...","end":"...","title":"..."}]}
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	width, err := parseWidth(r.URL.Query().Get("width"), s.cfg.Timeline.Width)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if width == 0 {
		width = s.cfg.Timeline.Width
	}

	var req layoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLayoutBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	opts := s.cfg.Timeline.Options()
	res, err := layout.PackRaw(req.Events, width, opts, s.svc.Location())
	if err != nil {
		var cfgErr *layout.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		appLog.Error("api layout: pack failed", err)
		writeError(w, http.StatusInternalServerError, "layout failed")
		return
	}

	resp := timelineResponse{
		Width:         width,
		GridHeight:    layout.GridHeight(opts),
		ScrollOffset:  layout.InitialScrollOffset(res.Events, opts),
		StartHour:     opts.StartHour,
		EndHour:       opts.EndHour,
		PixelsPerHour: opts.PixelsPerHour,
		Events:        make([]timelineEventDTO, 0, len(res.Events)),
		Rejected:      res.Rejected,
	}
	for _, p := range res.Events {
		resp.Events = append(resp.Events, timelineEventDTO{Positioned: p})
	}
	writeJSON(w, http.StatusOK, resp)
}

// dayParams reads ?date= and ?width=, writing a 400 on bad input.
func (s *Server) dayParams(w http.ResponseWriter, r *http.Request) (time.Time, float64, bool) {
	q := r.URL.Query()
	loc := s.svc.Location()

	day := time.Now().In(loc)
	if v := q.Get("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return time.Time{}, 0, false
		}
		day = d
	}

	width, err := parseWidth(q.Get("width"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, 0, false
	}
	return day, width, true
}

func (s *Server) writeDayError(w http.ResponseWriter, err error) {
	var cfgErr *layout.ConfigError
	if errors.As(err, &cfgErr) {
		writeError(w, http.StatusBadRequest, cfgErr.Error())
		return
	}
	appLog.Error("timeline: day failed", err)
	writeError(w, http.StatusBadGateway, "failed to load timeline")
}

func parseWidth(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New("width must be a number")
	}
	return f, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
