package celltrack

// OverlapFraction returns the fraction of the smaller object covered by the intersection.
// The value does not depend on argument order: OverlapFraction(n, a, b) == OverlapFraction(n, b, a).
// Objects without pixels never overlap anything.
func OverlapFraction(intersection, areaA, areaB int) float64 {
	smaller := minInt(areaA, areaB)
	if smaller <= 0 || intersection <= 0 {
		return 0.0
	}
	return float64(intersection) / float64(smaller)
}

// intersectionArea counts pixels labeled idA in frame a and idB in frame b.
// Only pixels inside window are visited, so window should be the intersection of both bounding boxes.
func intersectionArea(a, b *Frame, idA, idB int, window Rectangle) int {
	n := 0
	for y := window.MinY; y < window.MaxY; y++ {
		row := y * a.Width
		for x := window.MinX; x < window.MaxX; x++ {
			idx := row + x
			if int(a.Labels[idx]) == idA && int(b.Labels[idx]) == idB {
				n++
			}
		}
	}
	return n
}
