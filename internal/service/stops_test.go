package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stop(id int64, lon, lat float64) Stop {
	return Stop{Record: PointRecord{ID: id, Longitude: Float(lon), Latitude: Float(lat)}}
}

func indices(stops []Stop) []int {
	out := make([]int, len(stops))
	for i, s := range stops {
		out[i] = s.Index
	}
	return out
}

func TestReorder(t *testing.T) {
	stops := reindex([]Stop{stop(1, 0, 0), stop(2, 1, 1), stop(3, 2, 2), stop(4, 3, 3)})

	testCases := []struct {
		name     string
		from, to int
		wantIDs  []int64
	}{
		{"move forward", 0, 2, []int64{2, 3, 1, 4}},
		{"move back", 3, 0, []int64{4, 1, 2, 3}},
		{"same place", 1, 1, []int64{1, 2, 3, 4}},
		{"clamped", -5, 10, []int64{2, 3, 4, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reorder(stops, tc.from, tc.to)
			assert.Equal(t, tc.wantIDs, StopIDs(got))
			assert.Equal(t, []int{0, 1, 2, 3}, indices(got))
		})
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, StopIDs(stops), "input must not change")
}

func TestReorder_PreservesRecords(t *testing.T) {
	stops := reindex([]Stop{stop(1, 0, 0), stop(2, 1, 1)})
	stops[0].Notes = "gire a la izquierda"

	got := Reorder(stops, 0, 1)
	assert.Equal(t, stops[0].Record, got[1].Record)
	assert.Equal(t, "gire a la izquierda", got[1].Notes)
	assert.Empty(t, Reorder(nil, 0, 1))
}

func TestDedupeStops(t *testing.T) {
	unplaced := Stop{Record: PointRecord{ID: 9}}
	got := DedupeStops([]Stop{stop(1, 0, 0), stop(2, 0, 0), unplaced, stop(3, 1, 1)})
	assert.Equal(t, []int64{1, 3}, StopIDs(got))
	assert.Equal(t, []int{0, 1}, indices(got))
}

func TestSortStops(t *testing.T) {
	a, b, c := stop(1, 0, 0), stop(2, 1, 1), stop(3, 2, 2)
	a.Index, b.Index, c.Index = 5, 2, 9
	got := SortStops([]Stop{a, b, c})
	assert.Equal(t, []int64{2, 1, 3}, StopIDs(got))
	assert.Equal(t, []int{0, 1, 2}, indices(got))
}
