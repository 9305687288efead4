package celltrack

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Grid describes geography shared by all frames of a series.
// Lat, Lon and PixelArea are row-major and aligned with frame labels.
type Grid struct {
	Width  int
	Height int
	Lat    []float64
	Lon    []float64
	// Optional area of every pixel in km^2
	PixelArea []float64
}

// NewRegularGrid creates grid with constant latitude/longitude spacing starting at (lat0, lon0) for pixel (0, 0)
func NewRegularGrid(width, height int, lat0, lon0, dLat, dLon float64) *Grid {
	grid := Grid{
		Width:  width,
		Height: height,
		Lat:    make([]float64, width*height),
		Lon:    make([]float64, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			grid.Lat[y*width+x] = lat0 + float64(y)*dLat
			grid.Lon[y*width+x] = lon0 + float64(x)*dLon
		}
	}
	return &grid
}

// Validate checks that coordinate arrays match grid dimensions
func (grid *Grid) Validate() error {
	n := grid.Width * grid.Height
	if grid.Width <= 0 || grid.Height <= 0 {
		return errors.Wrapf(ErrFrameShape, "grid has non-positive size %dx%d", grid.Width, grid.Height)
	}
	if len(grid.Lat) != n || len(grid.Lon) != n {
		return errors.Wrapf(ErrFrameShape, "grid %dx%d has %d latitudes and %d longitudes", grid.Width, grid.Height, len(grid.Lat), len(grid.Lon))
	}
	if grid.PixelArea != nil && len(grid.PixelArea) != n {
		return errors.Wrapf(ErrFrameShape, "grid %dx%d has %d pixel areas", grid.Width, grid.Height, len(grid.PixelArea))
	}
	return nil
}

func (grid *Grid) pixelArea(idx int, pixelRadius float64) float64 {
	if grid.PixelArea != nil {
		return grid.PixelArea[idx]
	}
	return pixelRadius * pixelRadius
}

// Frame is a single labeled scene produced by the segmenter
type Frame struct {
	// Position of frame inside the tracked window. Assigned by the pipeline
	Index int
	Time  time.Time
	// Mask dimensions
	Width  int
	Height int
	// Row-major object ids, 0 is background
	Labels []int32
	// Pixel count of object id at index id-1
	Areas []int
	// Fraction of the domain without valid data
	MissingFraction float64
}

// NumObjects returns number of object ids in frame, including ids without pixels
func (f *Frame) NumObjects() int {
	return len(f.Areas)
}

// Corrupt reports whether frame has too much missing data to be linked
func (f *Frame) Corrupt(missThreshold float64) bool {
	return f.MissingFraction > missThreshold
}

// normalize checks mask shape and makes Areas agree with the mask
func (f *Frame) normalize() error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Labels) != f.Width*f.Height {
		return errors.Wrapf(ErrFrameShape, "mask %dx%d holds %d labels", f.Width, f.Height, len(f.Labels))
	}
	maxLabel := 0
	for _, label := range f.Labels {
		if label < 0 {
			return errors.Wrapf(ErrFrameShape, "negative object id %d", label)
		}
		if int(label) > maxLabel {
			maxLabel = int(label)
		}
	}
	nObjects := maxInt(maxLabel, len(f.Areas))
	counts := make([]int, nObjects)
	for _, label := range f.Labels {
		if label > 0 {
			counts[label-1]++
		}
	}
	if f.Areas != nil && len(f.Areas) == nObjects {
		consistent := true
		for i := range counts {
			if counts[i] != f.Areas[i] {
				consistent = false
				break
			}
		}
		if consistent {
			return nil
		}
		Logf("[celltrack] frame %s: object areas disagree with label mask, recounting", f.Time.Format(time.RFC3339))
	}
	f.Areas = counts
	return nil
}

// boundingBoxes returns bounding box of object id at index id-1
func (f *Frame) boundingBoxes() []Rectangle {
	boxes := make([]Rectangle, len(f.Areas))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			label := f.Labels[y*f.Width+x]
			if label > 0 {
				boxes[label-1] = boxes[label-1].extend(x, y)
			}
		}
	}
	return boxes
}

// FrameSource gives access to time-ordered frames of a series.
// Time must be cheap; Load may perform I/O and is called from several goroutines.
type FrameSource interface {
	Len() int
	Time(i int) time.Time
	Load(ctx context.Context, i int) (*Frame, error)
}

// SliceSource is an in-memory FrameSource
type SliceSource []*Frame

func (s SliceSource) Len() int {
	return len(s)
}

func (s SliceSource) Time(i int) time.Time {
	return s[i].Time
}

// Load returns shallow copy of frame i so the pipeline may stamp its index
func (s SliceSource) Load(ctx context.Context, i int) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := *s[i]
	return &frame, nil
}

// ObjectSummary holds per-object quantities needed after the label mask is released
type ObjectSummary struct {
	ID         int
	PixelCount int
	// Area in km^2
	Area float64
	// Area-weighted centroid. NaN when object has no pixels
	Centroid Point
	BBox     Rectangle
}

// summarizeFrame computes ObjectSummary for every object id of frame, indexed by id-1
func summarizeFrame(f *Frame, grid *Grid, pixelRadius float64) []ObjectSummary {
	nObjects := f.NumObjects()
	lats := make([][]float64, nObjects)
	lons := make([][]float64, nObjects)
	weights := make([][]float64, nObjects)
	summaries := make([]ObjectSummary, nObjects)
	for i := range summaries {
		summaries[i].ID = i + 1
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			idx := y*f.Width + x
			label := f.Labels[idx]
			if label <= 0 {
				continue
			}
			k := label - 1
			w := grid.pixelArea(idx, pixelRadius)
			summaries[k].PixelCount++
			summaries[k].Area += w
			summaries[k].BBox = summaries[k].BBox.extend(x, y)
			lats[k] = append(lats[k], grid.Lat[idx])
			lon := grid.Lon[idx]
			if len(lons[k]) > 0 {
				lon = unwrapLon(lon, lons[k][0])
			}
			lons[k] = append(lons[k], lon)
			weights[k] = append(weights[k], w)
		}
	}
	for k := range summaries {
		if summaries[k].PixelCount == 0 {
			summaries[k].Centroid = missingPoint()
			continue
		}
		summaries[k].Centroid = Point{
			Lat: stat.Mean(lats[k], weights[k]),
			Lon: normalizeLon(stat.Mean(lons[k], weights[k])),
		}
	}
	return summaries
}
