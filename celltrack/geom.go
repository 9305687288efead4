package celltrack

import (
	"math"

	"github.com/soniakeys/unit"
)

// Earth radius at 40 degrees latitude, km
const earthRadiusKm = 6374.2

// Rectangle is a bounding box in pixel coordinates. MaxX and MaxY are exclusive.
type Rectangle struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// NewRect creates rectangle from its top-left corner and size
func NewRect(x, y, width, height int) Rectangle {
	return Rectangle{
		MinX: x,
		MinY: y,
		MaxX: x + width,
		MaxY: y + height,
	}
}

// Width returns number of pixel columns covered by rectangle
func (r Rectangle) Width() int {
	return r.MaxX - r.MinX
}

// Height returns number of pixel rows covered by rectangle
func (r Rectangle) Height() int {
	return r.MaxY - r.MinY
}

// Empty reports whether rectangle covers no pixels
func (r Rectangle) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// Intersect returns the largest rectangle contained by both r and other.
// Result is empty when they do not overlap.
func (r Rectangle) Intersect(other Rectangle) Rectangle {
	return Rectangle{
		MinX: maxInt(r.MinX, other.MinX),
		MinY: maxInt(r.MinY, other.MinY),
		MaxX: minInt(r.MaxX, other.MaxX),
		MaxY: minInt(r.MaxY, other.MaxY),
	}
}

// Overlaps reports whether r and other share at least one pixel
func (r Rectangle) Overlaps(other Rectangle) bool {
	return !r.Intersect(other).Empty()
}

// extend grows rectangle so it covers pixel (x, y). Empty rectangle becomes 1x1 box.
func (r Rectangle) extend(x, y int) Rectangle {
	if r.Empty() {
		return NewRect(x, y, 1, 1)
	}
	r.MinX = minInt(r.MinX, x)
	r.MinY = minInt(r.MinY, y)
	r.MaxX = maxInt(r.MaxX, x+1)
	r.MaxY = maxInt(r.MaxY, y+1)
	return r
}

// Point is a geographic location in degrees
type Point struct {
	Lat float64
	Lon float64
}

func NewPoint(lat, lon float64) Point {
	return Point{
		Lat: lat,
		Lon: lon,
	}
}

// missingPoint marks a time step without a defined centroid
func missingPoint() Point {
	return Point{Lat: math.NaN(), Lon: math.NaN()}
}

// Valid reports whether both coordinates are defined
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// unwrapLon shifts lon by whole turns so it lies within 180 degrees of ref.
// Objects crossing the antimeridian then average to a point inside them.
func unwrapLon(lon, ref float64) float64 {
	for lon-ref > 180 {
		lon -= 360
	}
	for lon-ref < -180 {
		lon += 360
	}
	return lon
}

// normalizeLon maps lon into [-180, 180)
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// greatCircleDistance returns haversine distance between two points in km
func greatCircleDistance(p1, p2 Point) float64 {
	lat1 := unit.AngleFromDeg(p1.Lat)
	lat2 := unit.AngleFromDeg(p2.Lat)
	dLat := unit.AngleFromDeg(p2.Lat - p1.Lat)
	dLon := unit.AngleFromDeg(p2.Lon - p1.Lon)
	sinLat := (dLat / 2).Sin()
	sinLon := (dLon / 2).Sin()
	h := sinLat*sinLat + lat1.Cos()*lat2.Cos()*sinLon*sinLon
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
