package raster

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Resampling selects the interpolation kernel used when warping.
type Resampling int

// Resampling kernels. Bilinear is the default.
const (
	Bilinear Resampling = iota
	Nearest
	Cubic
)

var resamplingNames = map[Resampling]string{
	Bilinear: "bilinear",
	Nearest:  "nearest",
	Cubic:    "cubic",
}

func (r Resampling) String() string {
	return resamplingNames[r]
}

// GDALName is the gdalwarp -r value for r.
func (r Resampling) GDALName() string {
	if r == Nearest {
		return "near"
	}
	return r.String()
}

// ParseResampling parses a kernel name. An empty name selects Bilinear.
func ParseResampling(s string) (Resampling, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Bilinear, nil
	}
	for k, name := range resamplingNames {
		if s == name {
			return k, nil
		}
	}
	return 0, eris.Errorf("raster: unknown resampling %q", s)
}
