package celltrack

import (
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// Config holds every tracking parameter. It is passed by value into each stage and never mutated.
type Config struct {
	// Maximum time between two frames that still allows linking (timegap)
	TimeGap time.Duration
	// Nominal spacing between frames. Zero means infer it from frame times
	FrameInterval time.Duration
	// Minimum overlap fraction for a link to be retained (othresh)
	OverlapThreshold float64
	// Maximum number of outgoing links kept per object (nmaxlinks)
	MaxLinks int
	// Maximum number of objects in one track (nmaxclouds)
	MaxTrackObjects int
	// Inclusive range of track lengths in frames (lengthrange)
	MinLength int
	MaxLength int
	// Frames with larger missing-data fraction are treated as corrupt (miss_thresh)
	MissThreshold float64
	// Grid spacing in km, used when grid carries no per-pixel area
	PixelRadius float64
	// Optional time window. Zero values leave that side unbounded
	StartTime time.Time
	EndTime   time.Time
	// Drop tracks touching the first or the last usable frame of the window
	DropBoundaryTracks bool
	// Size of worker pool. Zero means runtime.NumCPU()
	Workers int
}

// DefaultConfig returns parameters used for tracking geostationary IR cloud systems
func DefaultConfig() Config {
	return Config{
		TimeGap:          66 * time.Minute,
		OverlapThreshold: 0.5,
		MaxLinks:         10,
		MaxTrackObjects:  3000,
		MinLength:        2,
		MaxLength:        30,
		MissThreshold:    0.2,
		PixelRadius:      4.0,
	}
}

// Validate checks every parameter bound
func (cfg Config) Validate() error {
	switch {
	case cfg.TimeGap <= 0:
		return errors.Wrapf(ErrInvalidConfig, "timegap must be positive, got %s", cfg.TimeGap)
	case cfg.FrameInterval < 0:
		return errors.Wrapf(ErrInvalidConfig, "frame interval must not be negative, got %s", cfg.FrameInterval)
	case cfg.OverlapThreshold < 0 || cfg.OverlapThreshold > 1:
		return errors.Wrapf(ErrInvalidConfig, "othresh must be within [0, 1], got %f", cfg.OverlapThreshold)
	case cfg.MaxLinks < 1:
		return errors.Wrapf(ErrInvalidConfig, "nmaxlinks must be at least 1, got %d", cfg.MaxLinks)
	case cfg.MaxTrackObjects < 1:
		return errors.Wrapf(ErrInvalidConfig, "nmaxclouds must be at least 1, got %d", cfg.MaxTrackObjects)
	case cfg.MinLength < 1 || cfg.MaxLength < cfg.MinLength:
		return errors.Wrapf(ErrInvalidConfig, "lengthrange must satisfy 1 <= min <= max, got [%d, %d]", cfg.MinLength, cfg.MaxLength)
	case cfg.MissThreshold < 0 || cfg.MissThreshold > 1:
		return errors.Wrapf(ErrInvalidConfig, "miss_thresh must be within [0, 1], got %f", cfg.MissThreshold)
	case cfg.PixelRadius <= 0:
		return errors.Wrapf(ErrInvalidConfig, "pixel_radius must be positive, got %f", cfg.PixelRadius)
	case cfg.Workers < 0:
		return errors.Wrapf(ErrInvalidConfig, "workers must not be negative, got %d", cfg.Workers)
	case !cfg.StartTime.IsZero() && !cfg.EndTime.IsZero() && cfg.EndTime.Before(cfg.StartTime):
		return errors.Wrapf(ErrInvalidConfig, "end time %s precedes start time %s", cfg.EndTime, cfg.StartTime)
	}
	return nil
}

func (cfg Config) workers() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

// inWindow reports whether t falls inside [StartTime, EndTime]
func (cfg Config) inWindow(t time.Time) bool {
	if !cfg.StartTime.IsZero() && t.Before(cfg.StartTime) {
		return false
	}
	if !cfg.EndTime.IsZero() && t.After(cfg.EndTime) {
		return false
	}
	return true
}
