package dispatch

import "gonum.org/v1/gonum/floats"

// EstimateOccupancy is a diagnostic-only helper, never consulted on the
// bind/launch path, that reports what fraction of launched work items on
// each axis fall within the kernel's logical extent once ceilDiv padding
// is applied. A ratio of 1.0 means the axis needed no padding at all.
func EstimateOccupancy(grid ResolvedGrid) []float64 {
	ratios := make([]float64, len(grid.Ranges))
	for i, r := range grid.Ranges {
		launched := float64(r.Hi - r.Lo)
		logical := float64(r.Extent)
		if launched == 0 {
			ratios[i] = 1
			continue
		}
		ratios[i] = logical / launched
	}
	return ratios
}

// MeanOccupancy folds EstimateOccupancy's per-axis ratios into a single
// scalar using gonum/floats, the same helper library the teacher pack
// pulls in indirectly for numeric reductions.
func MeanOccupancy(grid ResolvedGrid) float64 {
	ratios := EstimateOccupancy(grid)
	if len(ratios) == 0 {
		return 1
	}
	return floats.Sum(ratios) / float64(len(ratios))
}
