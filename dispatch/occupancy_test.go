package dispatch

import "testing"

func TestEstimateOccupancyExactMultipleIsOne(t *testing.T) {
	grid := ResolvedGrid{Ranges: []GridRange{{Lo: 0, Hi: 16, Extent: 16}}}
	ratios := EstimateOccupancy(grid)
	if len(ratios) != 1 || ratios[0] != 1 {
		t.Fatalf("ratios = %v, want [1]", ratios)
	}
}

func TestEstimateOccupancyPaddedAxisIsLessThanOne(t *testing.T) {
	grid := ResolvedGrid{Ranges: []GridRange{{Lo: 0, Hi: 8, Extent: 5}}}
	ratios := EstimateOccupancy(grid)
	if ratios[0] != 5.0/8.0 {
		t.Fatalf("ratio = %v, want %v", ratios[0], 5.0/8.0)
	}
}

func TestMeanOccupancyAveragesAxes(t *testing.T) {
	grid := ResolvedGrid{Ranges: []GridRange{
		{Lo: 0, Hi: 8, Extent: 8},  // 1.0
		{Lo: 0, Hi: 8, Extent: 4},  // 0.5
	}}
	mean := MeanOccupancy(grid)
	if mean != 0.75 {
		t.Fatalf("mean = %v, want 0.75", mean)
	}
}

func TestMeanOccupancyEmptyGridIsOne(t *testing.T) {
	if got := MeanOccupancy(ResolvedGrid{}); got != 1 {
		t.Fatalf("MeanOccupancy(empty) = %v, want 1", got)
	}
}
