package frameio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/pkg/errors"
)

// FileName returns name of frame file with given prefix and time stamp
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", prefix, t.UTC().Format(timeLayout), gzSuffix)
}

// WriteFrame stores frame into dir and returns path of created file
func WriteFrame(dir, prefix string, frame *celltrack.Frame) (string, error) {
	if len(frame.Labels) != frame.Width*frame.Height {
		return "", errors.Wrapf(celltrack.ErrFrameShape, "mask %dx%d holds %d labels", frame.Width, frame.Height, len(frame.Labels))
	}
	t := frame.Time.UTC()
	path := filepath.Join(dir, FileName(prefix, t))
	ff := frameFile{
		Time:            &t,
		Width:           frame.Width,
		Height:          frame.Height,
		Labels:          frame.Labels,
		Areas:           frame.Areas,
		MissingFraction: frame.MissingFraction,
	}
	if err := writeJSON(path, &ff); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTrackMask stores mask relabeled with track numbers, 0 for background and filtered objects
func WriteTrackMask(dir string, t time.Time, width, height int, mask []int32) (string, error) {
	return WriteFrame(dir, "tracks", &celltrack.Frame{
		Time:   t,
		Width:  width,
		Height: height,
		Labels: mask,
	})
}

// WriteTrackMasks reloads every usable frame of res from src and stores its track mask into dir.
// It returns number of masks written.
func WriteTrackMasks(ctx context.Context, res *celltrack.Result, src *Dir, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrapf(err, "can't create %s", dir)
	}
	written := 0
	for i, info := range res.Frames {
		if !info.Usable {
			continue
		}
		frame, err := src.Load(ctx, info.Source)
		if err != nil {
			return written, err
		}
		if _, err := WriteTrackMask(dir, info.Time, frame.Width, frame.Height, res.TrackMask(i, frame.Labels)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
