package domain

import "slices"

// TrackingToken is how far a tracking processor got in the global log. Gaps
// holds positions below Position, ascending, that were missing when the
// processor passed them. Their transactions may still commit.
type TrackingToken struct {
	Position int64   `json:"position"`
	Gaps     []int64 `json:"gaps,omitempty"`
}

// ReadFrom is the position to read after so that late gap records are seen.
func (t TrackingToken) ReadFrom() int64 {
	if len(t.Gaps) > 0 {
		return t.Gaps[0] - 1
	}
	return t.Position
}

// Pending reports whether the record at position still has to be handled.
func (t TrackingToken) Pending(position int64) bool {
	if position > t.Position {
		return true
	}
	_, found := slices.BinarySearch(t.Gaps, position)
	return found
}

// Advance returns the token after the record at position was handled. Any
// positions jumped over become gaps; gaps more than window positions behind
// the new position are dropped. A window of zero or less keeps every gap.
func (t TrackingToken) Advance(position, window int64) TrackingToken {
	if position <= t.Position {
		return TrackingToken{
			Position: t.Position,
			Gaps:     compact(slices.DeleteFunc(slices.Clone(t.Gaps), func(g int64) bool { return g == position })),
		}
	}

	floor := t.Position + 1
	if window > 0 && position-window > floor {
		floor = position - window
	}
	gaps := slices.Clone(t.Gaps)
	if window > 0 {
		gaps = slices.DeleteFunc(gaps, func(g int64) bool { return g < position-window })
	}
	for g := floor; g < position; g++ {
		gaps = append(gaps, g)
	}
	return TrackingToken{Position: position, Gaps: compact(gaps)}
}

// WithoutGaps returns the token minus every gap drop reports true for.
func (t TrackingToken) WithoutGaps(drop func(position int64) bool) TrackingToken {
	return TrackingToken{
		Position: t.Position,
		Gaps:     compact(slices.DeleteFunc(slices.Clone(t.Gaps), drop)),
	}
}

func compact(gaps []int64) []int64 {
	if len(gaps) == 0 {
		return nil
	}
	return gaps
}
