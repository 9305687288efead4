package celltrack

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeFrameCentroid(t *testing.T) {
	grid := testGrid(6, 6)
	frame := paintFrame(frameAt(0), 6, 6, NewRect(0, 0, 2, 2), NewRect(3, 3, 1, 1))

	summaries := summarizeFrame(frame, grid, 4.0)
	require.Len(t, summaries, 2)

	assert.Equal(t, 1, summaries[0].ID)
	assert.Equal(t, 4, summaries[0].PixelCount)
	assert.InDelta(t, 64.0, summaries[0].Area, eps)
	assert.InDelta(t, 30.05, summaries[0].Centroid.Lat, eps)
	assert.InDelta(t, -99.95, summaries[0].Centroid.Lon, eps)
	assert.Equal(t, NewRect(0, 0, 2, 2), summaries[0].BBox)

	assert.InDelta(t, 30.3, summaries[1].Centroid.Lat, eps)
	assert.InDelta(t, -99.7, summaries[1].Centroid.Lon, eps)
}

func TestSummarizeFrameAreaWeighted(t *testing.T) {
	grid := &Grid{
		Width:     2,
		Height:    1,
		Lat:       []float64{10.0, 11.0},
		Lon:       []float64{20.0, 20.0},
		PixelArea: []float64{1.0, 3.0},
	}
	frame := paintFrame(frameAt(0), 2, 1, NewRect(0, 0, 2, 1))

	summaries := summarizeFrame(frame, grid, 4.0)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 10.75, summaries[0].Centroid.Lat, eps)
	assert.InDelta(t, 4.0, summaries[0].Area, eps)
}

func TestSummarizeFrameAntimeridian(t *testing.T) {
	grid := &Grid{
		Width:  2,
		Height: 1,
		Lat:    []float64{0.0, 0.0},
		Lon:    []float64{179.9, -179.7},
	}
	frame := paintFrame(frameAt(0), 2, 1, NewRect(0, 0, 2, 1))

	summaries := summarizeFrame(frame, grid, 4.0)
	require.Len(t, summaries, 1)
	// Pixels straddle 180 degrees: centroid lies between them, not near 0
	assert.InDelta(t, -179.9, summaries[0].Centroid.Lon, eps)
}

func TestSummarizeFrameEmptyObject(t *testing.T) {
	grid := testGrid(4, 4)
	frame := paintFrame(frameAt(0), 4, 4, NewRect(0, 0, 1, 1))
	frame.Areas = append(frame.Areas, 0)

	summaries := summarizeFrame(frame, grid, 4.0)
	require.Len(t, summaries, 2)
	assert.False(t, summaries[1].Centroid.Valid())
}

func statsFixture() ([]*Track, [][]ObjectSummary) {
	track := &Track{
		ID: 7,
		Members: []Member{
			{Frame: 0, Time: frameAt(0), Object: 1},
			{Frame: 1, Time: frameAt(1), Object: 2},
			{Frame: 2, Time: frameAt(2), Object: 1},
		},
		StartSplit:  3,
		EndMerge:    5,
		StartStatus: StartSplit,
		EndStatus:   EndMerged,
	}
	objects := [][]ObjectSummary{
		{{ID: 1, PixelCount: 2, Area: 32, Centroid: NewPoint(35.0, -97.0)}},
		{{ID: 1, PixelCount: 1, Area: 16, Centroid: NewPoint(0, 0)}, {ID: 2, PixelCount: 4, Area: 64, Centroid: NewPoint(35.5, -97.0)}},
		{{ID: 1, PixelCount: 3, Area: 48, Centroid: NewPoint(36.0, -97.0)}},
	}
	return []*Track{track}, objects
}

func TestAggregateStats(t *testing.T) {
	tracks, objects := statsFixture()
	stats, err := AggregateStats(context.Background(), testConfig(), time.Hour, tracks, objects)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, 7, s.TrackID)
	assert.Equal(t, 3*time.Hour, s.Lifetime)
	assert.Equal(t, []time.Time{frameAt(0), frameAt(1), frameAt(2)}, s.BaseTimes)
	assert.Equal(t, []int{0, 1, 2}, s.FrameIndex)
	assert.Equal(t, []int{1, 2, 1}, s.ObjectID)
	assert.Equal(t, []float64{35.0, 35.5, 36.0}, s.MeanLat)
	assert.Equal(t, []float64{32, 64, 48}, s.Area)
	assert.Equal(t, []int{2, 4, 3}, s.PixelCount)
	assert.Equal(t, 64.0, s.MaxArea)
	assert.Equal(t, frameAt(1), s.MaxAreaTime)
	assert.Equal(t, 32.0, s.MinArea)
	assert.InDelta(t, earthRadiusKm*math.Pi/180.0, s.Displacement, 1e-6)
	assert.InDelta(t, s.Displacement/2.0, s.Speed, 1e-6)
	assert.Equal(t, 3, s.StartSplit)
	assert.Equal(t, 5, s.EndMerge)
	assert.Equal(t, StartSplit, s.StartStatus)
	assert.Equal(t, EndMerged, s.EndStatus)
}

func TestAggregateStatsMissingStep(t *testing.T) {
	tracks, objects := statsFixture()
	// Second step refers to an object without summary
	objects[1] = objects[1][:1]

	stats, err := AggregateStats(context.Background(), testConfig(), time.Hour, tracks, objects)
	require.NoError(t, err)
	s := stats[0]
	assert.True(t, math.IsNaN(s.MeanLat[1]))
	assert.True(t, math.IsNaN(s.MeanLon[1]))
	assert.Zero(t, s.Area[1])
	// Missing steps are not interpolated and do not affect end points
	assert.Equal(t, NewPoint(35.0, -97.0), s.StartCentroid)
	assert.Equal(t, NewPoint(36.0, -97.0), s.EndCentroid)
}

func TestAggregateStatsIdempotent(t *testing.T) {
	tracks, objects := statsFixture()
	objects[1] = objects[1][:1]
	cfg := testConfig()

	first, err := AggregateStats(context.Background(), cfg, time.Hour, tracks, objects)
	require.NoError(t, err)
	second, err := AggregateStats(context.Background(), cfg, time.Hour, tracks, objects)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("AggregateStats is not idempotent (-first +second):\n%s", diff)
	}
}
