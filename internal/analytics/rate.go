package analytics

import "math"

// FloorOrOne floors x, except that a positive x below 1 becomes 1 so a
// non-zero share never reads as 0%.
func FloorOrOne(x float64) int {
	if x > 0 && x < 1 {
		return 1
	}
	return int(math.Floor(x))
}

// Rate is count as a floor-or-one percentage of total, or 0 when total is 0.
func Rate(count, total int) int {
	if total <= 0 {
		return 0
	}
	return FloorOrOne(float64(count) / float64(total) * 100)
}
