// Package layout computes the positioned rectangles of a single day's
// timeline. Given a snapshot of events it derives each event's vertical
// position from its own time span and its horizontal slot from the overlap
// cluster it belongs to, so that events overlapping in time never overlap
// on screen.
//
// Every call is a pure, one-shot computation over its arguments: nothing is
// cached between calls and the input slice is never modified.
package layout

import (
	"sort"
	"time"
)

const (
	// DefaultPixelsPerHour is the vertical scale used when none is configured.
	DefaultPixelsPerHour = 100
	// DefaultMinHeight keeps zero-duration events one text line tall.
	DefaultMinHeight = 17
)

// Options controls how events are mapped onto the grid.
type Options struct {
	// StartHour is the hour (0 <= h < 24) drawn at the top of the grid.
	// Only Top depends on it. Events starting earlier get a negative Top.
	StartHour float64

	// EndHour is the hour drawn at the bottom of the grid. It is used by
	// GridHeight and never influences packing. Zero means 24.
	EndHour float64

	// PixelsPerHour is the vertical scale. Affects Top and Height.
	PixelsPerHour float64

	// InsetLeft and InsetRight shrink the container width before it is
	// divided between columns. Left is measured from the container edge,
	// so the first column starts at InsetLeft.
	InsetLeft  float64
	InsetRight float64

	// MinHeight is the floor applied to Height so that very short or
	// zero-duration events stay visible.
	MinHeight float64
}

// DefaultOptions returns the options for a full 0-24h grid at 100px/hour.
func DefaultOptions() Options {
	return Options{
		StartHour:     0,
		EndHour:       24,
		PixelsPerHour: DefaultPixelsPerHour,
		MinHeight:     DefaultMinHeight,
	}
}

func (o Options) endHour() float64 {
	if o.EndHour == 0 {
		return 24
	}
	return o.EndHour
}

// Event is one input event. Title, Summary and Color are display payload and
// are not looked at by the packer.
type Event struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Title   string    `json:"title"`
	Summary string    `json:"summary,omitempty"`
	Color   string    `json:"color,omitempty"`
}

// Positioned is an event annotated with pixel geometry. Index refers back to
// the event's position in the slice passed to Pack.
type Positioned struct {
	Index int `json:"index"`

	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Column is the slot assigned inside the event's cluster and Columns
	// the number of slots that cluster needed.
	Column  int `json:"column"`
	Columns int `json:"columns"`

	Title   string    `json:"title"`
	Summary string    `json:"summary,omitempty"`
	Color   string    `json:"color,omitempty"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Result is the outcome of one packing pass.
type Result struct {
	// Events is ordered by start time, ties by index.
	Events []Positioned `json:"events"`
	// Rejected lists the events that failed validation and were skipped.
	Rejected []*ValidationError `json:"rejected,omitempty"`
}

// item pairs an event with its original index.
type item struct {
	index int
	ev    Event
}

// Pack lays out events inside a container of the given width.
//
// Events are sorted by start (ties by original index), split into clusters
// of transitively overlapping events, and each cluster is given the minimum
// number of columns. Every event of a cluster gets an equal share of the
// available width, even when some of its neighbours end early; freed width is
// not reclaimed.
//
// Invalid events are skipped and reported in Result.Rejected. Invalid options
// fail the whole call with a *ConfigError.
func Pack(events []Event, containerWidth float64, opts Options) (Result, error) {
	if err := opts.Validate(containerWidth); err != nil {
		return Result{}, err
	}

	items := make([]item, 0, len(events))
	var rejected []*ValidationError
	for i, ev := range events {
		if err := ValidateEvent(ev); err != nil {
			rejected = append(rejected, &ValidationError{Index: i, Err: err})
			continue
		}
		items = append(items, item{index: i, ev: ev})
	}

	res := pack(items, containerWidth, opts)
	res.Rejected = rejected
	return res, nil
}

func pack(items []item, containerWidth float64, opts Options) Result {
	out := Result{Events: make([]Positioned, 0, len(items))}
	if len(items) == 0 {
		return out
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ev.Start.Equal(b.ev.Start) {
			return a.ev.Start.Before(b.ev.Start)
		}
		return a.index < b.index
	})

	available := containerWidth - opts.InsetLeft - opts.InsetRight
	for _, c := range clusterize(items) {
		cols, k := assignColumns(c)
		width := available / float64(k)
		for i, it := range c {
			p := place(it, opts)
			p.Column = cols[i]
			p.Columns = k
			p.Width = width
			p.Left = opts.InsetLeft + width*float64(cols[i])
			out.Events = append(out.Events, p)
		}
	}
	return out
}

// place computes the vertical geometry of a single event.
func place(it item, opts Options) Positioned {
	ev := it.ev
	height := ev.End.Sub(ev.Start).Hours() * opts.PixelsPerHour
	if height < opts.MinHeight {
		height = opts.MinHeight
	}
	return Positioned{
		Index:   it.index,
		Top:     (hoursSinceMidnight(ev.Start) - opts.StartHour) * opts.PixelsPerHour,
		Height:  height,
		Title:   ev.Title,
		Summary: ev.Summary,
		Color:   ev.Color,
		Start:   ev.Start,
		End:     ev.End,
	}
}

// hoursSinceMidnight measures t against midnight of its own calendar day in
// its own location.
func hoursSinceMidnight(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Hours()
}
