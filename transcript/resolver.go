package transcript

import (
	"math"
	"slices"
)

// BestSpeaker returns the speaker of the turn that overlaps w the longest.
// Equal overlaps go to the earlier-starting turn, then to the turn listed
// first. UnknownSpeaker is returned when nothing overlaps w.
//
// It scans every turn and serves as the reference for Resolver.
func BestSpeaker(w Word, turns []Turn) string {
	best := -1
	bestOverlap := 0.0
	for i, t := range turns {
		o := w.Interval().Overlap(t.Interval())
		if o <= 0 {
			continue
		}
		if best < 0 || o > bestOverlap || (o == bestOverlap && t.Start < turns[best].Start) {
			best, bestOverlap = i, o
		}
	}
	if best < 0 {
		return UnknownSpeaker
	}
	return turns[best].Speaker
}

// Resolver picks speakers for a stream of words with the same result as
// BestSpeaker, keeping only the turns that can still overlap upcoming words.
// Words must be passed in non-decreasing start order.
type Resolver struct {
	turns  []Turn
	next   int
	active []Turn
}

// NewResolver copies turns and orders the copy by start. The sort is stable
// so turns with equal starts keep their input order.
func NewResolver(turns []Turn) *Resolver {
	sorted := slices.Clone(turns)
	slices.SortStableFunc(sorted, func(a, b Turn) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return &Resolver{turns: sorted}
}

func (r *Resolver) Resolve(w Word) string {
	for r.next < len(r.turns) && r.turns[r.next].Start < w.End {
		r.active = append(r.active, r.turns[r.next])
		r.next++
	}

	// Turns ending at or before this word's start cannot reach later words.
	kept := r.active[:0]
	for _, t := range r.active {
		if t.End > w.Start {
			kept = append(kept, t)
		}
	}
	r.active = kept

	speaker := UnknownSpeaker
	bestOverlap := 0.0
	for _, t := range r.active {
		if o := w.Interval().Overlap(t.Interval()); o > bestOverlap {
			speaker, bestOverlap = t.Speaker, o
		}
	}
	return speaker
}

type naiveResolver []Turn

func (n naiveResolver) Resolve(w Word) string { return BestSpeaker(w, n) }

func validTime(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
