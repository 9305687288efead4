package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/pkg/errors"
)

const (
	maxFileSize = 1 * 1024 * 1024
	// Plain date layout of startdate / enddate
	dateLayout = "20060102"
)

// TrackingConfig is the JSON form of tracking parameters.
// Every field is optional; omitted ones fall back to celltrack.DefaultConfig values.
type TrackingConfig struct {
	// Maximum time between two linkable frames, hours
	TimeGap *float64 `json:"timegap,omitempty"`
	// Nominal frame spacing, hours. 0 infers it from frame times
	FrameIntervalHours *float64 `json:"frame_interval_hours,omitempty"`
	OverlapThreshold   *float64 `json:"othresh,omitempty"`
	MaxLinks           *int     `json:"nmaxlinks,omitempty"`
	MaxTrackObjects    *int     `json:"nmaxclouds,omitempty"`
	// Inclusive [min, max] number of frames
	LengthRange   *[2]int  `json:"lengthrange,omitempty"`
	MissThreshold *float64 `json:"miss_thresh,omitempty"`
	// Grid spacing in km
	PixelRadius *float64 `json:"pixel_radius,omitempty"`
	// "20060102" (whole day) or RFC3339
	StartDate *string `json:"startdate,omitempty"`
	EndDate   *string `json:"enddate,omitempty"`

	RemoveStartEndTracks *bool `json:"remove_start_end_tracks,omitempty"`
	Workers              *int  `json:"workers,omitempty"`
}

// Load reads TrackingConfig from a JSON file.
// The file must have .json extension and be smaller than 1MB.
func Load(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "can't stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "can't read config file")
	}
	cfg := &TrackingConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "can't parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// LoadTracking reads tracking parameters from JSON file at path.
// Empty path yields celltrack.DefaultConfig values.
func LoadTracking(path string) (celltrack.Config, error) {
	raw := &TrackingConfig{}
	if path != "" {
		var err error
		raw, err = Load(path)
		if err != nil {
			return celltrack.Config{}, err
		}
	}
	return raw.Tracking()
}

// Validate checks fields that can be checked without building celltrack.Config
func (c *TrackingConfig) Validate() error {
	if c.TimeGap != nil && (*c.TimeGap <= 0 || math.IsNaN(*c.TimeGap)) {
		return errors.Errorf("timegap must be positive, got %f", *c.TimeGap)
	}
	if c.FrameIntervalHours != nil && (*c.FrameIntervalHours < 0 || math.IsNaN(*c.FrameIntervalHours)) {
		return errors.Errorf("frame_interval_hours must not be negative, got %f", *c.FrameIntervalHours)
	}
	if c.LengthRange != nil && c.LengthRange[0] > c.LengthRange[1] {
		return errors.Errorf("lengthrange must be ascending, got %v", *c.LengthRange)
	}
	if _, err := c.GetStartTime(); err != nil {
		return err
	}
	if _, err := c.GetEndTime(); err != nil {
		return err
	}
	return nil
}

// GetTimeGap returns timegap or 1.1 hours
func (c *TrackingConfig) GetTimeGap() time.Duration {
	if c.TimeGap == nil {
		return celltrack.DefaultConfig().TimeGap
	}
	return hours(*c.TimeGap)
}

// GetFrameInterval returns frame interval or 0 (inferred)
func (c *TrackingConfig) GetFrameInterval() time.Duration {
	if c.FrameIntervalHours == nil {
		return 0
	}
	return hours(*c.FrameIntervalHours)
}

func (c *TrackingConfig) GetOverlapThreshold() float64 {
	if c.OverlapThreshold == nil {
		return celltrack.DefaultConfig().OverlapThreshold
	}
	return *c.OverlapThreshold
}

func (c *TrackingConfig) GetMaxLinks() int {
	if c.MaxLinks == nil {
		return celltrack.DefaultConfig().MaxLinks
	}
	return *c.MaxLinks
}

func (c *TrackingConfig) GetMaxTrackObjects() int {
	if c.MaxTrackObjects == nil {
		return celltrack.DefaultConfig().MaxTrackObjects
	}
	return *c.MaxTrackObjects
}

// GetLengthRange returns inclusive [min, max] track length
func (c *TrackingConfig) GetLengthRange() (int, int) {
	if c.LengthRange == nil {
		def := celltrack.DefaultConfig()
		return def.MinLength, def.MaxLength
	}
	return c.LengthRange[0], c.LengthRange[1]
}

func (c *TrackingConfig) GetMissThreshold() float64 {
	if c.MissThreshold == nil {
		return celltrack.DefaultConfig().MissThreshold
	}
	return *c.MissThreshold
}

func (c *TrackingConfig) GetPixelRadius() float64 {
	if c.PixelRadius == nil {
		return celltrack.DefaultConfig().PixelRadius
	}
	return *c.PixelRadius
}

// GetStartTime returns beginning of the time window, zero when unbounded
func (c *TrackingConfig) GetStartTime() (time.Time, error) {
	if c.StartDate == nil || *c.StartDate == "" {
		return time.Time{}, nil
	}
	t, _, err := parseDate(*c.StartDate)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid startdate %q", *c.StartDate)
	}
	return t, nil
}

// GetEndTime returns end of the time window, zero when unbounded.
// A plain "20060102" date covers the whole day: the window ends at 23:59:59.999999999 UTC,
// so frames stamped after 23:00 of that day are still tracked.
func (c *TrackingConfig) GetEndTime() (time.Time, error) {
	if c.EndDate == nil || *c.EndDate == "" {
		return time.Time{}, nil
	}
	t, wholeDay, err := parseDate(*c.EndDate)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid enddate %q", *c.EndDate)
	}
	if wholeDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (c *TrackingConfig) GetRemoveStartEndTracks() bool {
	if c.RemoveStartEndTracks == nil {
		return false
	}
	return *c.RemoveStartEndTracks
}

// GetWorkers returns size of worker pool, 0 meaning one per CPU
func (c *TrackingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// Tracking converts c into validated celltrack.Config
func (c *TrackingConfig) Tracking() (celltrack.Config, error) {
	start, err := c.GetStartTime()
	if err != nil {
		return celltrack.Config{}, err
	}
	end, err := c.GetEndTime()
	if err != nil {
		return celltrack.Config{}, err
	}
	minLength, maxLength := c.GetLengthRange()
	cfg := celltrack.Config{
		TimeGap:            c.GetTimeGap(),
		FrameInterval:      c.GetFrameInterval(),
		OverlapThreshold:   c.GetOverlapThreshold(),
		MaxLinks:           c.GetMaxLinks(),
		MaxTrackObjects:    c.GetMaxTrackObjects(),
		MinLength:          minLength,
		MaxLength:          maxLength,
		MissThreshold:      c.GetMissThreshold(),
		PixelRadius:        c.GetPixelRadius(),
		StartTime:          start,
		EndTime:            end,
		DropBoundaryTracks: c.GetRemoveStartEndTracks(),
		Workers:            c.GetWorkers(),
	}
	if err := cfg.Validate(); err != nil {
		return celltrack.Config{}, err
	}
	return cfg, nil
}

func hours(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

// parseDate accepts "20060102" (reported as whole day) and RFC3339. Times are UTC.
func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
