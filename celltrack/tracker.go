// Package celltrack assigns persistent identities to objects (convective cells, cloud systems)
// labeled independently in every frame of a gridded time series. Objects are linked only by
// spatial overlap; linked pairs are assembled into tracks with explicit split and merge references,
// filtered by lifetime and summarized per track.
package celltrack

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Diagnostics accounts for every recoverable condition met during a run
type Diagnostics struct {
	Frames           int
	UnreadableFrames int
	CorruptFrames    int
	TimeGaps         int
	Links            int
	BelowThreshold   int
	TruncatedObjects int
	DroppedLinks     int
	TracksBuilt      int
	TracksKept       int
}

// Result is the outcome of a tracking run
type Result struct {
	Config        Config
	FrameInterval time.Duration
	Frames        []FrameInfo
	// Surviving tracks, ascending id
	Tracks []*Track
	// Statistics of surviving tracks, same order as Tracks
	Stats       []TrackStats
	Diagnostics Diagnostics

	all  *TrackSet
	kept map[int]struct{}
}

// AllTracks returns every track built before filtering
func (res *Result) AllTracks() []*Track {
	return res.all.Tracks
}

// TrackNumber returns id of surviving track holding object of frame, 0 otherwise
func (res *Result) TrackNumber(frame, object int) int {
	id := res.all.TrackOf(frame, object)
	if _, ok := res.kept[id]; !ok {
		return 0
	}
	return id
}

// TrackMask relabels object mask of frame with surviving track ids
func (res *Result) TrackMask(frame int, labels []int32) []int32 {
	mask := make([]int32, len(labels))
	for i, label := range labels {
		if label > 0 {
			mask[i] = int32(res.TrackNumber(frame, int(label)))
		}
	}
	return mask
}

// Tracker runs the whole pipeline: FrameLinker, TrackGraphBuilder, TrackFilter, StatsAggregator
type Tracker struct {
	cfg  Config
	grid *Grid
}

// NewTracker creates a new instance of Tracker for frames on grid
func NewTracker(cfg Config, grid *Grid) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, errors.Wrap(ErrFrameShape, "grid is required")
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:  cfg,
		grid: grid,
	}, nil
}

// Run tracks objects of every frame of src inside configured time window.
// Stages are separated by barriers; ctx is honoured between them.
func (tracker *Tracker) Run(ctx context.Context, src FrameSource) (*Result, error) {
	cfg := tracker.cfg
	window, err := tracker.selectWindow(src)
	if err != nil {
		return nil, err
	}
	n := len(window)

	// Stage 1: load and summarize frames
	frames := make([]*Frame, n)
	objects := make([][]ObjectSummary, n)
	failures := make([]error, n)
	err = forEach(ctx, cfg.workers(), n, func(ctx context.Context, i int) error {
		frame, err := tracker.loadFrame(ctx, src, window[i])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures[i] = err
			return nil
		}
		frame.Index = i
		frames[i] = frame
		if !frame.Corrupt(cfg.MissThreshold) {
			objects[i] = summarizeFrame(frame, tracker.grid, cfg.PixelRadius)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "frame loading aborted")
	}

	diag := Diagnostics{Frames: n}
	infos := make([]FrameInfo, n)
	usable := 0
	for i := range infos {
		infos[i] = FrameInfo{Index: i, Source: window[i], Time: src.Time(window[i])}
		switch {
		case frames[i] == nil:
			diag.UnreadableFrames++
			Logf("[celltrack] frame %d (%s) skipped: %v", i, infos[i].Time.Format(time.RFC3339), failures[i])
		case frames[i].Corrupt(cfg.MissThreshold):
			diag.CorruptFrames++
			Logf("[celltrack] frame %d (%s) skipped: missing fraction %.3f exceeds miss_thresh %.3f",
				i, infos[i].Time.Format(time.RFC3339), frames[i].MissingFraction, cfg.MissThreshold)
		default:
			infos[i].Usable = true
			infos[i].Objects = frames[i].NumObjects()
			infos[i].Areas = frames[i].Areas
			usable++
		}
	}
	if usable == 0 {
		return nil, errors.Wrapf(ErrNoFrames, "all %d frames in window are unreadable or corrupt", n)
	}

	// Stage 2: link every consecutive pair
	pairs := make([]PairLinks, maxInt(n-1, 0))
	err = forEach(ctx, cfg.workers(), len(pairs), func(_ context.Context, i int) error {
		if frames[i] == nil || frames[i+1] == nil {
			pairs[i] = PairLinks{SourceFrame: i, TargetFrame: i + 1, Gap: GapUnreadable}
			return nil
		}
		pairs[i] = LinkFrames(cfg, frames[i], frames[i+1])
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "frame linking aborted")
	}
	// Masks are not needed past linking
	clear(frames)
	for i := range pairs {
		diag.Links += len(pairs[i].Links)
		diag.BelowThreshold += pairs[i].BelowThreshold
		diag.TruncatedObjects += pairs[i].TruncatedObjects
		diag.DroppedLinks += pairs[i].DroppedLinks
		if pairs[i].Gap == GapTimeExceeded {
			diag.TimeGaps++
			Logf("[celltrack] time gap between frame %d (%s) and frame %d (%s) exceeds %s",
				i, infos[i].Time.Format(time.RFC3339), i+1, infos[i+1].Time.Format(time.RFC3339), cfg.TimeGap)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "tracking cancelled before graph assembly")
	}

	// Stage 3: sequential graph assembly
	set, err := BuildTracks(cfg, infos, pairs)
	if err != nil {
		return nil, errors.Wrap(err, "can't build tracks")
	}
	diag.TracksBuilt = len(set.Tracks)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "tracking cancelled before filtering")
	}

	// Stage 4: lifetime filter
	kept := FilterTracks(cfg, set)
	diag.TracksKept = len(kept)
	keptIDs := make(map[int]struct{}, len(kept))
	for _, track := range kept {
		keptIDs[track.ID] = struct{}{}
	}

	// Stage 5: statistics
	interval := resolveFrameInterval(cfg, infos)
	stats, err := AggregateStats(ctx, cfg, interval, kept, objects)
	if err != nil {
		return nil, err
	}
	Logf("[celltrack] %d frames (%d unreadable, %d corrupt, %d time gaps), %d links, %d tracks built, %d kept",
		diag.Frames, diag.UnreadableFrames, diag.CorruptFrames, diag.TimeGaps, diag.Links, diag.TracksBuilt, diag.TracksKept)

	return &Result{
		Config:        cfg,
		FrameInterval: interval,
		Frames:        infos,
		Tracks:        kept,
		Stats:         stats,
		Diagnostics:   diag,
		all:           set,
		kept:          keptIDs,
	}, nil
}

// selectWindow returns source indices of frames inside the time window
func (tracker *Tracker) selectWindow(src FrameSource) ([]int, error) {
	window := make([]int, 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		if i > 0 && !src.Time(i).After(src.Time(i-1)) {
			return nil, errors.Wrapf(ErrUnsortedFrames, "frame %d at %s does not follow %s",
				i, src.Time(i).Format(time.RFC3339), src.Time(i-1).Format(time.RFC3339))
		}
		if tracker.cfg.inWindow(src.Time(i)) {
			window = append(window, i)
		}
	}
	if len(window) == 0 {
		return nil, errors.Wrapf(ErrNoFrames, "none of %d frames fall into the window", src.Len())
	}
	return window, nil
}

func (tracker *Tracker) loadFrame(ctx context.Context, src FrameSource, i int) (*Frame, error) {
	frame, err := src.Load(ctx, i)
	if err != nil {
		return nil, errors.Wrapf(err, "can't load frame %d", i)
	}
	expected := src.Time(i)
	if frame.Time.IsZero() {
		frame.Time = expected
	} else if !frame.Time.Equal(expected) {
		return nil, errors.Errorf("frame %d reports time %s, expected %s", i, frame.Time.Format(time.RFC3339), expected.Format(time.RFC3339))
	}
	if err := frame.normalize(); err != nil {
		return nil, errors.Wrapf(err, "frame %d", i)
	}
	if frame.Width != tracker.grid.Width || frame.Height != tracker.grid.Height {
		return nil, errors.Wrapf(ErrFrameShape, "frame %d is %dx%d, grid is %dx%d",
			i, frame.Width, frame.Height, tracker.grid.Width, tracker.grid.Height)
	}
	return frame, nil
}

// resolveFrameInterval returns configured interval or the smallest positive spacing between frames
func resolveFrameInterval(cfg Config, frames []FrameInfo) time.Duration {
	if cfg.FrameInterval > 0 {
		return cfg.FrameInterval
	}
	var interval time.Duration
	for i := 1; i < len(frames); i++ {
		d := frames[i].Time.Sub(frames[i-1].Time)
		if d > 0 && (interval == 0 || d < interval) {
			interval = d
		}
	}
	if interval == 0 {
		interval = time.Hour
	}
	return interval
}
