package layout

import "time"

// clusterize splits start-sorted items into maximal groups connected by
// half-open [start, end) overlap, in a single sweep.
//
// A positive-duration event overlaps the current cluster iff it starts
// before the latest end seen so far. A zero-duration event at instant t only
// overlaps events that strictly contain t, so it joins iff a member that
// started before t ends after t. Otherwise it is a cluster of its own, and
// the current cluster stays open while any member runs past t.
func clusterize(items []item) [][]item {
	var (
		clusters [][]item
		cur      []item

		activeEnd  time.Time // latest end over all members
		settledEnd time.Time // latest end over members starting before groupStart
		groupStart time.Time // start of the most recent members
		groupEnd   time.Time // latest end over members starting at groupStart
	)

	for _, it := range items {
		s, e := it.ev.Start, it.ev.End

		if len(cur) > 0 && s.After(groupStart) {
			settledEnd = later(settledEnd, groupEnd)
			groupStart, groupEnd = s, s
		}

		zero := !e.After(s)
		joins := false
		if len(cur) > 0 {
			if zero {
				joins = s.Before(settledEnd)
			} else {
				joins = s.Before(activeEnd)
			}
		}

		// Members that started at s may still be running. A zero-duration
		// event beside them stands alone and leaves the sweep open.
		if !joins && zero && s.Before(activeEnd) {
			clusters = append(clusters, []item{it})
			continue
		}

		if !joins {
			if len(cur) > 0 {
				clusters = append(clusters, cur)
			}
			cur = nil
			activeEnd = s
			settledEnd = time.Time{}
			groupStart, groupEnd = s, s
		}

		cur = append(cur, it)
		activeEnd = later(activeEnd, e)
		groupEnd = later(groupEnd, e)
	}

	if len(cur) > 0 {
		clusters = append(clusters, cur)
	}
	return clusters
}

// column tracks the last event placed in a slot.
type column struct {
	lastStart time.Time
	end       time.Time
}

// assignColumns places each event of a start-sorted cluster in the lowest
// column that is free at the event's start, opening a new column when none
// is. It returns the column per item and the column count.
//
// A column is free when its last event ended at or before the start. A
// zero-duration event may also go into a column whose last event starts at
// the same instant, since that event cannot strictly contain it.
func assignColumns(cluster []item) ([]int, int) {
	assigned := make([]int, len(cluster))
	var cols []column

	for i, it := range cluster {
		s, e := it.ev.Start, it.ev.End
		zero := !e.After(s)

		idx := -1
		for c := range cols {
			if !cols[c].end.After(s) || (zero && !cols[c].lastStart.Before(s)) {
				idx = c
				break
			}
		}

		switch {
		case idx == -1:
			cols = append(cols, column{lastStart: s, end: e})
			idx = len(cols) - 1
		case !cols[idx].end.After(s):
			cols[idx] = column{lastStart: s, end: e}
		}
		// A zero-duration event tucked in front of a same-start event
		// leaves the column's tracking untouched.

		assigned[i] = idx
	}

	return assigned, len(cols)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
