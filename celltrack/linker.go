package celltrack

import (
	"time"
)

// GapReason tells why two adjacent frames were not linked
type GapReason uint8

const (
	// GapNone means frames were linked
	GapNone GapReason = iota
	// GapUnreadable means one of frames could not be loaded
	GapUnreadable
	// GapCorrupt means one of frames has too much missing data
	GapCorrupt
	// GapTimeExceeded means frames are further apart than timegap
	GapTimeExceeded
)

func (reason GapReason) String() string {
	switch reason {
	case GapNone:
		return "none"
	case GapUnreadable:
		return "unreadable"
	case GapCorrupt:
		return "corrupt"
	case GapTimeExceeded:
		return "time-exceeded"
	default:
		return "unknown"
	}
}

// Link is a directed weighted edge between objects of adjacent frames
type Link struct {
	SourceFrame int
	TargetFrame int
	SourceTime  time.Time
	TargetTime  time.Time
	Source      int
	Target      int
	// Fraction of the smaller object covered by the intersection
	Weight float64
}

// PairLinks holds links between two adjacent frames together with linking counters
type PairLinks struct {
	SourceFrame int
	TargetFrame int
	Gap         GapReason
	// Ordered by source id, then weight descending, then target id
	Links []Link
	// Object pairs with non-empty intersection
	Candidates int
	// Candidates rejected by othresh
	BelowThreshold int
	// Source objects which had more than nmaxlinks links
	TruncatedObjects int
	// Links dropped by the nmaxlinks cap
	DroppedLinks int
}

// LinkFrames computes overlap links from objects of frame a to objects of frame b.
// Frame b is expected to follow frame a. Frames are not modified.
func LinkFrames(cfg Config, a, b *Frame) PairLinks {
	res := PairLinks{
		SourceFrame: a.Index,
		TargetFrame: b.Index,
	}
	if a.Corrupt(cfg.MissThreshold) || b.Corrupt(cfg.MissThreshold) {
		res.Gap = GapCorrupt
		return res
	}
	if b.Time.Sub(a.Time) > cfg.TimeGap {
		res.Gap = GapTimeExceeded
		return res
	}
	if a.Width != b.Width || a.Height != b.Height {
		// Masks on different grids can't be compared pixel-wise
		res.Gap = GapUnreadable
		return res
	}

	boxesA := a.boundingBoxes()
	boxesB := b.boundingBoxes()
	candidates := make(linkHeap, 0)
	for i := range boxesA {
		sourceID := i + 1
		if boxesA[i].Empty() {
			continue
		}
		candidates = candidates[:0]
		for j := range boxesB {
			window := boxesA[i].Intersect(boxesB[j])
			if window.Empty() {
				continue
			}
			targetID := j + 1
			n := intersectionArea(a, b, sourceID, targetID, window)
			if n == 0 {
				continue
			}
			res.Candidates++
			weight := OverlapFraction(n, a.Areas[i], b.Areas[j])
			if weight < cfg.OverlapThreshold {
				res.BelowThreshold++
				continue
			}
			candidates.Push(&Link{
				SourceFrame: a.Index,
				TargetFrame: b.Index,
				SourceTime:  a.Time,
				TargetTime:  b.Time,
				Source:      sourceID,
				Target:      targetID,
				Weight:      weight,
			})
		}
		// Strongest links first: the heap enforces weight desc, target asc
		for kept := 0; candidates.Len() > 0 && kept < cfg.MaxLinks; kept++ {
			res.Links = append(res.Links, *candidates.Pop())
		}
		if candidates.Len() > 0 {
			res.TruncatedObjects++
			res.DroppedLinks += candidates.Len()
		}
	}
	if res.TruncatedObjects > 0 {
		Logf("[celltrack] frames %d->%d (%s): %d objects exceeded nmaxlinks=%d, %d links dropped",
			a.Index, b.Index, a.Time.Format(time.RFC3339), res.TruncatedObjects, cfg.MaxLinks, res.DroppedLinks)
	}
	return res
}
