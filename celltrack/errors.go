package celltrack

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoFrames is returned when the requested window holds no usable frame
	ErrNoFrames = errors.New("no usable frames in the requested time window")
	// ErrUnsortedFrames is returned when frame times are not strictly increasing
	ErrUnsortedFrames = errors.New("frames are not in strictly increasing time order")
	// ErrInvalidConfig wraps every configuration validation failure
	ErrInvalidConfig = errors.New("invalid tracking configuration")
	// ErrFrameShape is returned when a label mask does not match its declared or grid dimensions
	ErrFrameShape = errors.New("frame shape mismatch")
	// ErrTrackLimit is matched by *TrackLimitError
	ErrTrackLimit = errors.New("track exceeds maximum number of objects")
)

// TrackLimitError reports a track whose membership would exceed the configured bound
type TrackLimitError struct {
	TrackID int
	Frame   int
	Time    time.Time
	Limit   int
}

func (e *TrackLimitError) Error() string {
	return fmt.Sprintf("track %d exceeds %d objects at frame %d (%s)", e.TrackID, e.Limit, e.Frame, e.Time.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrTrackLimit) true for *TrackLimitError
func (e *TrackLimitError) Is(target error) bool {
	return target == ErrTrackLimit
}
