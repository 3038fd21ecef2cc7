// Package raster co-registers single-band rasters: it warps source rasters
// onto the grid of a target raster through a pluggable Warper.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// GeoTransform maps pixel (col, row) to georeferenced (x, y) in GDAL order:
// x = t[0] + col*t[1] + row*t[2], y = t[3] + col*t[4] + row*t[5].
type GeoTransform [6]float64

// Apply maps a pixel position to coordinates.
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// DataType is a pixel storage type.
type DataType int

// Supported pixel types.
const (
	Float64 DataType = iota
	Float32
	Byte
	Int16
	UInt16
	Int32
	UInt32
)

var dataTypeNames = map[DataType]string{
	Float64: "float64",
	Float32: "float32",
	Byte:    "uint8",
	Int16:   "int16",
	UInt16:  "uint16",
	Int32:   "int32",
	UInt32:  "uint32",
}

func (d DataType) String() string {
	return dataTypeNames[d]
}

// Spec is the pixel grid a raster is aligned to.
type Spec struct {
	Width     int
	Height    int
	Transform GeoTransform
	// CRS is a WKT or authority string such as EPSG:4326.
	CRS string
}

// Bounds returns [minx, miny, maxx, maxy] of the grid corners.
func (s Spec) Bounds() [4]float64 {
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range [][2]float64{{0, 0}, {float64(s.Width), 0}, {0, float64(s.Height)}, {float64(s.Width), float64(s.Height)}} {
		x, y := s.Transform.Apply(c[0], c[1])
		b[0], b[1] = math.Min(b[0], x), math.Min(b[1], y)
		b[2], b[3] = math.Max(b[2], x), math.Max(b[3], y)
	}
	return b
}

// Validate checks that s is a north-up grid with a positive size. Warps
// are expressed as extent plus size, which cannot carry rotation terms.
func (s Spec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return eris.Errorf("raster: invalid size %dx%d", s.Width, s.Height)
	}
	if s.Transform[2] != 0 || s.Transform[4] != 0 {
		return eris.New("raster: rotated grids are not supported")
	}
	if s.Transform[1] == 0 || s.Transform[5] == 0 {
		return eris.New("raster: zero pixel size")
	}
	return nil
}

// Grid is band 1 of a raster held as row-major float64 samples.
type Grid struct {
	Spec
	NoData   *float64
	DataType DataType
	Data     []float64
}

// NewGrid allocates a grid of spec filled with fill.
func NewGrid(spec Spec, dt DataType, nodata *float64, fill float64) *Grid {
	data := make([]float64, spec.Width*spec.Height)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return &Grid{Spec: spec, NoData: nodata, DataType: dt, Data: data}
}

// Validate checks that Data matches the grid size.
func (g *Grid) Validate() error {
	if err := g.Spec.Validate(); err != nil {
		return err
	}
	if len(g.Data) != g.Width*g.Height {
		return eris.Errorf("raster: %d samples for %dx%d grid", len(g.Data), g.Width, g.Height)
	}
	return nil
}

// Float returns a pointer to v for optional no-data values.
func Float(v float64) *float64 {
	return &v
}
