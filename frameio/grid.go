package frameio

import (
	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/pkg/errors"
)

// gridFile holds either explicit coordinates of every pixel or a regular lat/lon spacing
type gridFile struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Lat       []float64 `json:"lat,omitempty"`
	Lon       []float64 `json:"lon,omitempty"`
	PixelArea []float64 `json:"pixel_area,omitempty"`

	Lat0 float64 `json:"lat0,omitempty"`
	Lon0 float64 `json:"lon0,omitempty"`
	DLat float64 `json:"dlat,omitempty"`
	DLon float64 `json:"dlon,omitempty"`
}

// ReadGrid loads grid geography from path (.json or .json.gz)
func ReadGrid(path string) (*celltrack.Grid, error) {
	var gf gridFile
	if err := readJSON(path, &gf); err != nil {
		return nil, err
	}
	var grid *celltrack.Grid
	if len(gf.Lat) == 0 && len(gf.Lon) == 0 {
		if gf.DLat == 0 || gf.DLon == 0 {
			return nil, errors.Wrapf(celltrack.ErrFrameShape, "grid %s has neither coordinates nor spacing", path)
		}
		grid = celltrack.NewRegularGrid(gf.Width, gf.Height, gf.Lat0, gf.Lon0, gf.DLat, gf.DLon)
	} else {
		grid = &celltrack.Grid{
			Width:  gf.Width,
			Height: gf.Height,
			Lat:    gf.Lat,
			Lon:    gf.Lon,
		}
	}
	if len(gf.PixelArea) > 0 {
		grid.PixelArea = gf.PixelArea
	}
	if err := grid.Validate(); err != nil {
		return nil, errors.Wrapf(err, "grid %s", path)
	}
	return grid, nil
}

// WriteGrid stores explicit coordinates of grid into path
func WriteGrid(path string, grid *celltrack.Grid) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	return writeJSON(path, &gridFile{
		Width:     grid.Width,
		Height:    grid.Height,
		Lat:       grid.Lat,
		Lon:       grid.Lon,
		PixelArea: grid.PixelArea,
	})
}
