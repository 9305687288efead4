package frameio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2011, 5, 20, 0, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	celltrack.SetLogger(nil)
	os.Exit(m.Run())
}

// square returns 8x8 frame holding one 4x4 object at column x
func square(t time.Time, x int) *celltrack.Frame {
	frame := &celltrack.Frame{
		Time:   t,
		Width:  8,
		Height: 8,
		Labels: make([]int32, 64),
		Areas:  []int{16},
	}
	for row := 2; row < 6; row++ {
		for col := x; col < x+4; col++ {
			frame.Labels[row*8+col] = 1
		}
	}
	return frame
}

func TestTimeFromName(t *testing.T) {
	got, ok, err := TimeFromName("/data/irlabels_20110520_1330.json.gz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2011, 5, 20, 13, 30, 0, 0, time.UTC)))

	_, ok, err = TimeFromName("grid.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = TimeFromName("irlabels_20111340_2599.json")
	assert.Error(t, err)
}

func TestDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose
	for _, hour := range []int{2, 0, 1} {
		_, err := WriteFrame(dir, "irlabels", square(baseTime.Add(time.Duration(hour)*time.Hour), hour))
		require.NoError(t, err)
	}
	require.NoError(t, WriteGrid(filepath.Join(dir, "grid.json"), celltrack.NewRegularGrid(8, 8, 30, -100, 0.1, 0.1)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	src, err := OpenDir(dir)
	require.NoError(t, err)
	require.Equal(t, 3, src.Len())
	for i := 0; i < src.Len(); i++ {
		assert.True(t, src.Time(i).Equal(baseTime.Add(time.Duration(i)*time.Hour)), "frame %d at %s", i, src.Time(i))
	}
	assert.Equal(t, "irlabels_20110520_0100.json.gz", src.Name(1))

	frame, err := src.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, frame.Time.Equal(src.Time(1)))
	assert.Equal(t, square(baseTime, 1).Labels, frame.Labels)
	assert.Equal(t, []int{16}, frame.Areas)
}

func TestDirDuplicateTimeStamps(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteFrame(dir, "a", square(baseTime, 0))
	require.NoError(t, err)
	_, err = WriteFrame(dir, "b", square(baseTime, 0))
	require.NoError(t, err)

	_, err = OpenDir(dir)
	assert.True(t, errors.Is(err, celltrack.ErrUnsortedFrames))
}

func TestDirLoadBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "irlabels_20110520_0000.json.gz"), []byte("not gzip"), 0644))
	src, err := OpenDir(dir)
	require.NoError(t, err)
	_, err = src.Load(context.Background(), 0)
	assert.Error(t, err)
}

func TestReadGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"width": 3, "height": 2, "lat0": 10, "lon0": 20, "dlat": 0.5, "dlon": 0.25}`), 0644))

	grid, err := ReadGrid(path)
	require.NoError(t, err)
	assert.Equal(t, 3, grid.Width)
	assert.InDelta(t, 10.5, grid.Lat[5], 1e-9)
	assert.InDelta(t, 20.5, grid.Lon[5], 1e-9)
	assert.Nil(t, grid.PixelArea)

	require.NoError(t, os.WriteFile(path, []byte(`{"width": 3, "height": 2, "lat": [1, 2]}`), 0644))
	_, err = ReadGrid(path)
	assert.True(t, errors.Is(err, celltrack.ErrFrameShape))
}

func TestTrackerOverDir(t *testing.T) {
	dir := t.TempDir()
	for hour := 0; hour < 5; hour++ {
		frame := square(baseTime.Add(time.Duration(hour)*time.Hour), hour)
		if hour == 4 {
			frame.MissingFraction = 0.5
		}
		_, err := WriteFrame(dir, "irlabels", frame)
		require.NoError(t, err)
	}
	src, err := OpenDir(dir)
	require.NoError(t, err)

	cfg := celltrack.DefaultConfig()
	cfg.Workers = 2
	tracker, err := celltrack.NewTracker(cfg, celltrack.NewRegularGrid(8, 8, 30, -100, 0.1, 0.1))
	require.NoError(t, err)
	res, err := tracker.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 4, res.Tracks[0].Len())

	frame, err := src.Load(context.Background(), 2)
	require.NoError(t, err)
	out := t.TempDir()
	path, err := WriteTrackMask(out, src.Time(2), frame.Width, frame.Height, res.TrackMask(2, frame.Labels))
	require.NoError(t, err)
	assert.Equal(t, "tracks_20110520_0200.json.gz", filepath.Base(path))

	masks, err := OpenDir(out)
	require.NoError(t, err)
	mask, err := masks.Load(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(res.Tracks[0].ID), mask.Labels[2*8+2])
	assert.Zero(t, mask.Labels[0])

	// Corrupt frame 4 gets no mask
	all := filepath.Join(out, "all")
	n, err := WriteTrackMasks(context.Background(), res, src, all)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	names, err := filepath.Glob(filepath.Join(all, "tracks_*"))
	require.NoError(t, err)
	require.Len(t, names, 4)
	assert.Equal(t, "tracks_20110520_0000.json.gz", filepath.Base(names[0]))
	assert.Equal(t, "tracks_20110520_0300.json.gz", filepath.Base(names[3]))
	masks, err = OpenDir(all)
	require.NoError(t, err)
	mask, err = masks.Load(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(res.Tracks[0].ID), mask.Labels[2*8+3])
}
