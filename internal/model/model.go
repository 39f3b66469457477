package model

import (
	"time"

	"epdtimeline/internal/layout"
)

// Occurrence is a single concrete instance of a calendar event, after
// recurrence expansion and conversion to the display timezone.
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey identifies one instance of a recurring event. It is the
	// RFC 3339 rendering of the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	Color       string // RFC 7986 COLOR, or the source's configured color

	AllDay bool

	Start time.Time
	End   time.Time
}

// LayoutEvent converts the occurrence into packer input. The title is the
// summary and the secondary line is the location, falling back to the
// description.
func (o Occurrence) LayoutEvent() layout.Event {
	summary := o.Location
	if summary == "" {
		summary = o.Description
	}
	return layout.Event{
		Start:   o.Start,
		End:     o.End,
		Title:   o.Summary,
		Summary: summary,
		Color:   o.Color,
	}
}
