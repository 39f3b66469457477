package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Event validation errors.
var (
	ErrMissingStart   = errors.New("event has no start time")
	ErrMissingEnd     = errors.New("event has no end time")
	ErrEndBeforeStart = errors.New("event ends before it starts")
	ErrUnparsableTime = errors.New("unparsable timestamp")
)

// ValidationError reports a single event that was skipped.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("layout: event %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error as {"index": n, "error": "..."}.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}{e.Index, e.Err.Error()})
}

// ConfigError reports options that make the whole call meaningless.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("layout: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ValidateEvent checks that an event can be placed on the grid.
func ValidateEvent(ev Event) error {
	if ev.Start.IsZero() {
		return ErrMissingStart
	}
	if ev.End.IsZero() {
		return ErrMissingEnd
	}
	if ev.End.Before(ev.Start) {
		return ErrEndBeforeStart
	}
	return nil
}

// Validate reports a *ConfigError when the options cannot produce a layout
// for the given container width.
func (o Options) Validate(containerWidth float64) error {
	switch {
	case !finite(o.PixelsPerHour) || o.PixelsPerHour <= 0:
		return &ConfigError{Field: "pixels per hour", Value: o.PixelsPerHour, Reason: "must be positive"}
	case !finite(containerWidth) || containerWidth <= 0:
		return &ConfigError{Field: "container width", Value: containerWidth, Reason: "must be positive"}
	case !finite(o.StartHour) || o.StartHour < 0 || o.StartHour >= 24:
		return &ConfigError{Field: "start hour", Value: o.StartHour, Reason: "must be in [0,24)"}
	case !finite(o.EndHour) || (o.EndHour != 0 && (o.EndHour <= o.StartHour || o.EndHour > 24)):
		return &ConfigError{Field: "end hour", Value: o.EndHour, Reason: "must be after start hour and at most 24"}
	case !finite(o.MinHeight) || o.MinHeight < 0:
		return &ConfigError{Field: "min height", Value: o.MinHeight, Reason: "must not be negative"}
	case !finite(o.InsetLeft) || !finite(o.InsetRight):
		return &ConfigError{Field: "insets", Value: o.InsetLeft + o.InsetRight, Reason: "must be finite"}
	}
	if available := containerWidth - o.InsetLeft - o.InsetRight; available <= 0 {
		return &ConfigError{Field: "available width", Value: available, Reason: "insets leave no room for events"}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RawEvent is the wire form of an event, with timestamps still as text.
type RawEvent struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Color   string `json:"color,omitempty"`
}

// Accepted timestamp layouts, tried in order. Layouts without an offset are
// read in the caller's location.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"20060102T150405Z07:00",
	"20060102T150405",
}

// ParseTime parses a timestamp strictly. A nil loc means time.Local.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparsableTime)
	}
	if loc == nil {
		loc = time.Local
	}
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTime, s)
}

// Decode converts one raw event into an Event.
func (r RawEvent) Decode(loc *time.Location) (Event, error) {
	if strings.TrimSpace(r.Start) == "" {
		return Event{}, ErrMissingStart
	}
	if strings.TrimSpace(r.End) == "" {
		return Event{}, ErrMissingEnd
	}
	start, err := ParseTime(r.Start, loc)
	if err != nil {
		return Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTime(r.End, loc)
	if err != nil {
		return Event{}, fmt.Errorf("end: %w", err)
	}
	ev := Event{Start: start, End: end, Title: r.Title, Summary: r.Summary, Color: r.Color}
	if err := ValidateEvent(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// PackRaw decodes raw events and packs the ones that are valid. Indices in
// the result, including those of rejected events, refer to raw.
func PackRaw(raw []RawEvent, containerWidth float64, opts Options, loc *time.Location) (Result, error) {
	if err := opts.Validate(containerWidth); err != nil {
		return Result{}, err
	}

	items := make([]item, 0, len(raw))
	var rejected []*ValidationError
	for i, r := range raw {
		ev, err := r.Decode(loc)
		if err != nil {
			rejected = append(rejected, &ValidationError{Index: i, Err: err})
			continue
		}
		items = append(items, item{index: i, ev: ev})
	}

	res := pack(items, containerWidth, opts)
	res.Rejected = rejected
	return res, nil
}
