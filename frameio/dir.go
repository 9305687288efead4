// Package frameio stores label masks of a frame series as one gzipped (or plain) JSON file per frame.
// Frame time is encoded in the file name as YYYYMMDD_HHMM.
package frameio

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	timeLayout = "20060102_1504"
	gzSuffix   = ".json.gz"
	jsonSuffix = ".json"
)

var timeStampRe = regexp.MustCompile(`(\d{8}_\d{4})`)

// frameFile is the on-disk form of celltrack.Frame
type frameFile struct {
	Time            *time.Time `json:"time,omitempty"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Labels          []int32    `json:"labels"`
	Areas           []int      `json:"areas,omitempty"`
	MissingFraction float64    `json:"missing_fraction"`
}

// Dir is a celltrack.FrameSource backed by frame files of a single directory
type Dir struct {
	path  string
	files []string
	times []time.Time
}

// OpenDir lists frame files of dir ordered by the time stamp in their names.
// Files without a time stamp (e.g. the grid file) are ignored.
func OpenDir(dir string) (*Dir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "can't list frame directory %s", dir)
	}
	src := &Dir{path: dir}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, gzSuffix) || strings.HasSuffix(name, jsonSuffix)) {
			continue
		}
		t, ok, err := TimeFromName(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		src.files = append(src.files, name)
		src.times = append(src.times, t)
	}
	sort.Stable(byTime{src})
	for i := 1; i < len(src.times); i++ {
		if src.times[i].Equal(src.times[i-1]) {
			return nil, errors.Wrapf(celltrack.ErrUnsortedFrames, "files %s and %s share time stamp", src.files[i-1], src.files[i])
		}
	}
	return src, nil
}

// TimeFromName extracts UTC time stamp YYYYMMDD_HHMM from file name
func TimeFromName(name string) (time.Time, bool, error) {
	match := timeStampRe.FindString(filepath.Base(name))
	if match == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(timeLayout, match)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "bad time stamp in %s", name)
	}
	return t, true, nil
}

func (src *Dir) Len() int {
	return len(src.files)
}

func (src *Dir) Time(i int) time.Time {
	return src.times[i]
}

// Name returns file name of frame i
func (src *Dir) Name(i int) string {
	return src.files[i]
}

// Load decodes frame i
func (src *Dir) Load(ctx context.Context, i int) (*celltrack.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ff frameFile
	if err := readJSON(filepath.Join(src.path, src.files[i]), &ff); err != nil {
		return nil, err
	}
	frame := &celltrack.Frame{
		Width:           ff.Width,
		Height:          ff.Height,
		Labels:          ff.Labels,
		Areas:           ff.Areas,
		MissingFraction: ff.MissingFraction,
	}
	if ff.Time != nil {
		frame.Time = ff.Time.UTC()
	}
	return frame, nil
}

type byTime struct {
	*Dir
}

func (s byTime) Less(i, j int) bool {
	return s.times[i].Before(s.times[j])
}

func (s byTime) Swap(i, j int) {
	s.times[i], s.times[j] = s.times[j], s.times[i]
	s.files[i], s.files[j] = s.files[j], s.files[i]
}

// readJSON decodes file at path, transparently gunzipping .gz files
func readJSON(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "can't open %s", path)
	}
	defer file.Close()
	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return errors.Wrapf(err, "can't read gzip header of %s", path)
		}
		defer zr.Close()
		r = zr
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrapf(err, "can't decode %s", path)
	}
	return nil
}

// writeJSON encodes v into path, gzipping when path ends with .gz
func writeJSON(path string, v any) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "can't close %s", path)
		}
	}()
	if !strings.HasSuffix(path, ".gz") {
		return errors.Wrapf(json.NewEncoder(file).Encode(v), "can't encode %s", path)
	}
	zw := gzip.NewWriter(file)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		return errors.Wrapf(err, "can't encode %s", path)
	}
	return errors.Wrapf(zw.Close(), "can't flush %s", path)
}
