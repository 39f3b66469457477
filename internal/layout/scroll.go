package layout

import "time"

// GridHeight is the pixel height of the display window.
func GridHeight(opts Options) float64 {
	return (opts.endHour() - opts.StartHour) * opts.PixelsPerHour
}

// OffsetAt returns the vertical offset of t's wall-clock time on the grid.
// It uses the same measure as Top.
func OffsetAt(t time.Time, opts Options) float64 {
	return (hoursSinceMidnight(t) - opts.StartHour) * opts.PixelsPerHour
}

// InitialScrollOffset returns where a scrollable view should start so the
// earliest event sits one hour below the top edge. It is zero for an empty
// list and never negative.
func InitialScrollOffset(events []Positioned, opts Options) float64 {
	if len(events) == 0 {
		return 0
	}
	minTop := events[0].Top
	for _, p := range events[1:] {
		if p.Top < minTop {
			minTop = p.Top
		}
	}
	if off := minTop - opts.PixelsPerHour; off > 0 {
		return off
	}
	return 0
}
