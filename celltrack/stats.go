package celltrack

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// TrackStats is derived, read-only summary of a single track
type TrackStats struct {
	TrackID   int
	Lifetime  time.Duration
	StartTime time.Time
	EndTime   time.Time

	// Per time step series, all of track length
	BaseTimes  []time.Time
	FrameIndex []int
	ObjectID   []int
	MeanLat    []float64
	MeanLon    []float64
	Area       []float64
	PixelCount []int

	// Extrema
	MaxArea     float64
	MaxAreaTime time.Time
	MinArea     float64

	StartCentroid Point
	EndCentroid   Point
	// Great-circle distance between start and end centroids, km
	Displacement float64
	// Displacement over elapsed time, km/h. Zero for single-frame tracks
	Speed float64

	StartSplit  int
	EndMerge    int
	StartStatus StartStatus
	EndStatus   EndStatus
}

// AggregateStats computes TrackStats for every track using object summaries indexed as objects[frame][object-1].
// Output order follows input order. Tracks are processed by the worker pool.
func AggregateStats(ctx context.Context, cfg Config, interval time.Duration, tracks []*Track, objects [][]ObjectSummary) ([]TrackStats, error) {
	stats := make([]TrackStats, len(tracks))
	err := forEach(ctx, cfg.workers(), len(tracks), func(ctx context.Context, i int) error {
		stats[i] = trackStats(interval, tracks[i], objects)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't aggregate track statistics")
	}
	return stats, nil
}

func lookupObject(objects [][]ObjectSummary, frame, object int) (ObjectSummary, bool) {
	if frame < 0 || frame >= len(objects) {
		return ObjectSummary{}, false
	}
	row := objects[frame]
	if object < 1 || object > len(row) {
		return ObjectSummary{}, false
	}
	return row[object-1], true
}

func trackStats(interval time.Duration, track *Track, objects [][]ObjectSummary) TrackStats {
	n := track.Len()
	stats := TrackStats{
		TrackID:     track.ID,
		Lifetime:    track.Duration(interval),
		StartTime:   track.StartTime(),
		EndTime:     track.EndTime(),
		BaseTimes:   make([]time.Time, n),
		FrameIndex:  make([]int, n),
		ObjectID:    make([]int, n),
		MeanLat:     make([]float64, n),
		MeanLon:     make([]float64, n),
		Area:        make([]float64, n),
		PixelCount:  make([]int, n),
		StartSplit:  track.StartSplit,
		EndMerge:    track.EndMerge,
		StartStatus: track.StartStatus,
		EndStatus:   track.EndStatus,
	}
	for i, member := range track.Members {
		stats.BaseTimes[i] = member.Time
		stats.FrameIndex[i] = member.Frame
		stats.ObjectID[i] = member.Object
		summary, ok := lookupObject(objects, member.Frame, member.Object)
		if !ok {
			stats.MeanLat[i] = math.NaN()
			stats.MeanLon[i] = math.NaN()
			continue
		}
		stats.MeanLat[i] = summary.Centroid.Lat
		stats.MeanLon[i] = summary.Centroid.Lon
		stats.Area[i] = summary.Area
		stats.PixelCount[i] = summary.PixelCount
	}

	maxIdx := floats.MaxIdx(stats.Area)
	stats.MaxArea = stats.Area[maxIdx]
	stats.MaxAreaTime = stats.BaseTimes[maxIdx]
	stats.MinArea = floats.Min(stats.Area)

	stats.StartCentroid = firstValidCentroid(stats.MeanLat, stats.MeanLon, false)
	stats.EndCentroid = firstValidCentroid(stats.MeanLat, stats.MeanLon, true)
	if stats.StartCentroid.Valid() && stats.EndCentroid.Valid() {
		stats.Displacement = greatCircleDistance(stats.StartCentroid, stats.EndCentroid)
		if elapsed := stats.EndTime.Sub(stats.StartTime).Hours(); elapsed > 0 {
			stats.Speed = stats.Displacement / elapsed
		}
	}
	return stats
}

// firstValidCentroid scans series from the start (or from the end when reverse is set)
func firstValidCentroid(lats, lons []float64, reverse bool) Point {
	for k := range lats {
		i := k
		if reverse {
			i = len(lats) - 1 - k
		}
		p := NewPoint(lats[i], lons[i])
		if p.Valid() {
			return p
		}
	}
	return missingPoint()
}
