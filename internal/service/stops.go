package service

import (
	"slices"

	"github.com/paulmach/orb"
)

// Reorder moves the stop at from to position to and renumbers every index.
// Out-of-range positions are clamped. The input slice is not modified.
func Reorder(stops []Stop, from, to int) []Stop {
	out := slices.Clone(stops)
	if len(out) == 0 {
		return out
	}
	from = clamp(from, 0, len(out)-1)
	to = clamp(to, 0, len(out)-1)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	out = slices.Insert(out, to, moved)
	return reindex(out)
}

// DedupeStops keeps the first stop at each coordinate, drops unplaceable
// stops and renumbers the result.
func DedupeStops(stops []Stop) []Stop {
	seen := make(map[orb.Point]bool, len(stops))
	out := make([]Stop, 0, len(stops))
	for _, s := range stops {
		if !s.Record.Placeable() {
			continue
		}
		p := s.Record.Point()
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, s)
	}
	return reindex(out)
}

// SortStops orders stops by their current index and renumbers them.
func SortStops(stops []Stop) []Stop {
	out := slices.Clone(stops)
	slices.SortStableFunc(out, func(a, b Stop) int { return a.Index - b.Index })
	return reindex(out)
}

// StopIDs returns the record ids in stop order.
func StopIDs(stops []Stop) []int64 {
	ids := make([]int64, len(stops))
	for i, s := range stops {
		ids[i] = s.Record.ID
	}
	return ids
}

func reindex(stops []Stop) []Stop {
	for i := range stops {
		stops[i].Index = i
	}
	return stops
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
