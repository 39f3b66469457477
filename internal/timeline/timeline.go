// Package timeline runs the feed pipeline for the configured sources
// (fetch, parse, expand) and packs single days with internal/layout.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"epdtimeline/internal/config"
	"epdtimeline/internal/ics"
	"epdtimeline/internal/layout"
	appLog "epdtimeline/internal/log"
	"epdtimeline/internal/model"
)

// snapshotTTL bounds how long on-demand requests reuse a snapshot before
// refetching. The cron loop refreshes independently of it.
const snapshotTTL = 5 * time.Minute

// Snapshot is one expansion of all configured feeds over a window.
type Snapshot struct {
	Occurrences     []model.Occurrence
	TruncatedEvents []string
	RangeStart      time.Time
	RangeEnd        time.Time
	UpdatedAt       time.Time
	FetchErrors     int
}

func (s *Snapshot) covers(from, to time.Time) bool {
	return !from.Before(s.RangeStart) && !to.After(s.RangeEnd)
}

// DayLayout is a packed day, ready for rendering.
type DayLayout struct {
	Date         time.Time
	Width        float64
	Options      layout.Options
	GridHeight   float64
	ScrollOffset float64

	Events   []layout.Positioned
	Rejected []*layout.ValidationError

	// Occurrences is parallel to the packer input: Events[i].Index indexes it.
	Occurrences []model.Occurrence
	AllDay      []model.Occurrence
}

// Service owns the current snapshot. It is safe for concurrent use by the
// HTTP handlers and the refresh loop.
type Service struct {
	cfg     *config.Config
	fetcher *ics.Fetcher
	now     func() time.Time

	mu   sync.RWMutex
	snap *Snapshot

	// refreshMu serializes refreshes so concurrent stale readers share one.
	refreshMu sync.Mutex
}

// New creates a Service for cfg.
func New(cfg *config.Config) *Service {
	return &Service{
		cfg:     cfg,
		fetcher: ics.NewFetcher(cfg.CacheDir),
		now:     time.Now,
	}
}

// Location is the display timezone.
func (s *Service) Location() *time.Location {
	return s.cfg.Location()
}

// Sources builds fetch sources from the config, skipping entries without a
// URL. The ID falls back to the name and then the URL.
func Sources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		out = append(out, ics.Source{ID: id, URL: c.URL, Color: c.Color})
	}
	return out
}

// Window is the range the refresh loop keeps expanded: yesterday through
// HorizonDays ahead, in display-local days.
func (s *Service) Window() (time.Time, time.Time) {
	today, _ := ics.DayBounds(s.now(), s.Location())
	return today.AddDate(0, 0, -1), today.AddDate(0, 0, s.cfg.HorizonDays+1)
}

// Current returns the latest snapshot, or nil before the first refresh.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refresh re-runs the pipeline over Window and replaces the snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refresh(ctx)
}

// refresh requires refreshMu.
func (s *Service) refresh(ctx context.Context) error {
	from, to := s.Window()
	snap, err := s.load(ctx, from, to)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	appLog.Info("timeline refreshed",
		"occurrences", len(snap.Occurrences),
		"range_start", from.Format(time.RFC3339),
		"range_end", to.Format(time.RFC3339),
		"fetch_errors", snap.FetchErrors,
	)
	return nil
}

// Occurrences returns occurrences intersecting [from, to). A fresh snapshot
// covering the range is reused; ranges inside Window trigger a refresh;
// anything else is expanded on demand without touching the snapshot.
func (s *Service) Occurrences(ctx context.Context, from, to time.Time) (*Snapshot, error) {
	if snap := s.fresh(from, to); snap != nil {
		return snap.slice(from, to), nil
	}

	winFrom, winTo := s.Window()
	if !from.Before(winFrom) && !to.After(winTo) {
		s.refreshMu.Lock()
		defer s.refreshMu.Unlock()
		// Another caller may have refreshed while we waited.
		if snap := s.fresh(from, to); snap != nil {
			return snap.slice(from, to), nil
		}
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
		return s.Current().slice(from, to), nil
	}

	return s.load(ctx, from, to)
}

// fresh returns the current snapshot if it covers [from, to) and is younger
// than snapshotTTL.
func (s *Service) fresh(from, to time.Time) *Snapshot {
	snap := s.Current()
	if snap == nil || !snap.covers(from, to) || s.now().Sub(snap.UpdatedAt) >= snapshotTTL {
		return nil
	}
	return snap
}

// Day packs the timed events of the given local day into a container of the
// given width. A zero width means the configured one.
func (s *Service) Day(ctx context.Context, day time.Time, width float64) (*DayLayout, error) {
	if width == 0 {
		width = s.cfg.Timeline.Width
	}
	opts := s.cfg.Timeline.Options()
	if err := opts.Validate(width); err != nil {
		return nil, err
	}

	loc := s.Location()
	from, to := ics.DayBounds(day, loc)
	snap, err := s.Occurrences(ctx, from, to)
	if err != nil {
		return nil, err
	}

	events, picked := ics.DayEvents(snap.Occurrences, from, loc)
	res, err := layout.Pack(events, width, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range res.Rejected {
		occ := picked[r.Index]
		appLog.Warn("timeline: event rejected", "uid", occ.UID, "source", occ.SourceID, "reason", r.Err.Error())
	}

	var allDay []model.Occurrence
	for _, o := range snap.Occurrences {
		if o.AllDay {
			allDay = append(allDay, o)
		}
	}

	return &DayLayout{
		Date:         from,
		Width:        width,
		Options:      opts,
		GridHeight:   layout.GridHeight(opts),
		ScrollOffset: layout.InitialScrollOffset(res.Events, opts),
		Events:       res.Events,
		Rejected:     res.Rejected,
		Occurrences:  picked,
		AllDay:       allDay,
	}, nil
}

// load runs fetch, parse and expand over [from, to). Individual feed
// failures are logged and counted; the call only fails when every
// configured feed failed.
func (s *Service) load(ctx context.Context, from, to time.Time) (*Snapshot, error) {
	sources := Sources(s.cfg)
	snap := &Snapshot{RangeStart: from, RangeEnd: to, UpdatedAt: s.now()}
	if len(sources) == 0 {
		return snap, nil
	}

	results, errs := s.fetcher.FetchAll(ctx, sources)
	snap.FetchErrors = len(errs)
	if len(results) == 0 {
		return nil, fmt.Errorf("timeline: all %d feeds failed: %w", len(sources), errors.Join(errs...))
	}

	var parsed []ics.ParsedEvent
	for _, r := range results {
		events, err := ics.ParseICS(r.Source, r.Body)
		if err != nil {
			snap.FetchErrors++
			continue
		}
		parsed = append(parsed, events...)
	}

	res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: s.Location(),
		RangeStart:      from,
		RangeEnd:        to,
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	snap.Occurrences = res.Occurrences
	snap.TruncatedEvents = res.TruncatedEvents
	return snap, nil
}

// slice returns a copy of the snapshot restricted to [from, to).
func (s *Snapshot) slice(from, to time.Time) *Snapshot {
	out := *s
	out.RangeStart, out.RangeEnd = from, to
	out.Occurrences = make([]model.Occurrence, 0, len(s.Occurrences))
	for _, o := range s.Occurrences {
		if o.Start.Before(to) && (from.Before(o.End) || (o.Start.Equal(o.End) && !o.Start.Before(from))) {
			out.Occurrences = append(out.Occurrences, o)
		}
	}
	return &out
}
