package ics

import (
	"time"

	"epdtimeline/internal/layout"
	"epdtimeline/internal/model"
)

// DayBounds returns local midnight of day and of the following day in loc.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DayEvents selects the timed occurrences touching the given local day and
// converts them into packer input, clipped to the day so that events running
// past midnight are measured from the top of this day's grid. All-day
// occurrences belong in a separate strip and are skipped. The returned
// occurrences are parallel to the events and unclipped, so a positioned
// event's Index maps back to its occurrence.
func DayEvents(occs []model.Occurrence, day time.Time, loc *time.Location) ([]layout.Event, []model.Occurrence) {
	from, to := DayBounds(day, loc)

	events := make([]layout.Event, 0, len(occs))
	picked := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.AllDay || !intersects(o.Start, o.End, from, to) {
			continue
		}
		ev := o.LayoutEvent()
		if ev.Start.Before(from) {
			ev.Start = from
		}
		if ev.End.After(to) {
			ev.End = to
		}
		events = append(events, ev)
		picked = append(picked, o)
	}
	return events, picked
}
