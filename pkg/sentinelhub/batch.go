package sentinelhub

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Batch request statuses.
const (
	StatusCreated      = "CREATED"
	StatusAnalysing    = "ANALYSING"
	StatusAnalysisDone = "ANALYSIS_DONE"
	StatusProcessing   = "PROCESSING"
	StatusDone         = "DONE"
	StatusFailed       = "FAILED"
)

const crsEPSG4326 = "http://www.opengis.net/def/crs/EPSG/0/4326"

// S1Evalscript emits VV and VH backscatter plus the data mask as three
// single-band outputs.
//
//go:embed evalscript.js
var S1Evalscript string

// BatchRequest is the body for POST /api/v1/batch/process/.
type BatchRequest struct {
	TilingGrid     TilingGrid     `json:"tilingGrid"`
	Output         BatchOutput    `json:"output"`
	Description    string         `json:"description"`
	ProcessRequest ProcessRequest `json:"processRequest"`
}

// TilingGrid selects a predefined tiling grid and its resolution in metres.
type TilingGrid struct {
	ID         int    `json:"id"`
	Resolution string `json:"resolution"`
}

// BatchOutput controls where tiles are written.
type BatchOutput struct {
	CogOutput       bool   `json:"cogOutput"`
	DefaultTilePath string `json:"defaultTilePath"`
}

// ProcessRequest describes input data, evalscript and responses.
type ProcessRequest struct {
	Input      ProcessInput  `json:"input"`
	Evalscript string        `json:"evalscript"`
	Output     ProcessOutput `json:"output"`
}

// ProcessInput bounds the request and lists the data sources.
type ProcessInput struct {
	Bounds Bounds      `json:"bounds"`
	Data   []DataInput `json:"data"`
}

// Bounds is a GeoJSON geometry with its CRS.
type Bounds struct {
	Geometry   json.RawMessage  `json:"geometry"`
	Properties BoundsProperties `json:"properties"`
}

// BoundsProperties names the bounds CRS.
type BoundsProperties struct {
	CRS string `json:"crs"`
}

// DataInput is one data source.
type DataInput struct {
	Type       string     `json:"type"`
	Processing Processing `json:"processing"`
	DataFilter DataFilter `json:"dataFilter"`
}

// Processing holds S1 backscatter options.
type Processing struct {
	BackCoeff    string `json:"backCoeff"`
	Orthorectify bool   `json:"orthorectify"`
}

// DataFilter restricts acquisitions.
type DataFilter struct {
	TimeRange       TimeRange `json:"timeRange"`
	Polarization    string    `json:"polarization"`
	AcquisitionMode string    `json:"acquisitionMode"`
	Resolution      string    `json:"resolution"`
}

// TimeRange is an RFC 3339 acquisition window.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProcessOutput lists the evalscript outputs to write.
type ProcessOutput struct {
	Responses []Response `json:"responses"`
}

// Response maps one evalscript output id to a format.
type Response struct {
	Format     Format `json:"format"`
	Identifier string `json:"identifier"`
}

// Format is an output media type.
type Format struct {
	Type string `json:"type"`
}

// BatchResponse is the response from POST /api/v1/batch/process/.
type BatchResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// BatchStatus is the response from GET /api/v1/batch/process/{id}.
type BatchStatus struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	TileCount     int     `json:"tileCount"`
	ValueEstimate float64 `json:"valueEstimate"`
	Error         string  `json:"error,omitempty"`
}

// TimeWindow returns the acquisition window of the first data source. It
// reads the request document Sentinel Hub stores next to batch tiles.
func (r BatchRequest) TimeWindow() (from, to time.Time, err error) {
	if len(r.ProcessRequest.Input.Data) == 0 {
		return from, to, eris.New("sentinelhub: batch request has no data sources")
	}
	tr := r.ProcessRequest.Input.Data[0].DataFilter.TimeRange
	if from, err = time.Parse(time.RFC3339, tr.From); err != nil {
		return from, to, eris.Wrap(err, "sentinelhub: parse time range start")
	}
	if to, err = time.Parse(time.RFC3339, tr.To); err != nil {
		return from, to, eris.Wrap(err, "sentinelhub: parse time range end")
	}
	return from.UTC(), to.UTC(), nil
}

// TilePath returns the tile output template for a flood under
// s3://<bucket>/<prefix>/<floodID>/. The angle-bracket placeholders are
// expanded by Sentinel Hub.
func TilePath(bucket, prefix, floodID string) string {
	p := strings.Trim(prefix, "/")
	if p != "" {
		p += "/"
	}
	return fmt.Sprintf("s3://%s/%s%s/<requestId>/<tileName>/<outputId>.tiff", bucket, p, floodID)
}

// NewS1BatchRequest builds an orthorectified sigma0 VV/VH order for the
// flood footprint g over [from, to] at 10 m.
func NewS1BatchRequest(floodID string, g geom.T, from, to time.Time, bucket, prefix string) (BatchRequest, error) {
	if g == nil {
		return BatchRequest{}, eris.Errorf("sentinelhub: flood %s has no geometry", floodID)
	}
	geometry, err := geojson.Marshal(g)
	if err != nil {
		return BatchRequest{}, eris.Wrapf(err, "sentinelhub: encode geometry of flood %s", floodID)
	}

	var responses []Response
	for _, id := range []string{"VV", "VH", "MASK"} {
		responses = append(responses, Response{Format: Format{Type: "image/tiff"}, Identifier: id})
	}

	return BatchRequest{
		TilingGrid: TilingGrid{ID: 0, Resolution: "10"},
		Output: BatchOutput{
			CogOutput:       true,
			DefaultTilePath: TilePath(bucket, prefix, floodID),
		},
		Description: fmt.Sprintf("Batch request for S1 data related to %s", floodID),
		ProcessRequest: ProcessRequest{
			Input: ProcessInput{
				Bounds: Bounds{
					Geometry:   geometry,
					Properties: BoundsProperties{CRS: crsEPSG4326},
				},
				Data: []DataInput{{
					Type:       "S1GRD",
					Processing: Processing{BackCoeff: "SIGMA0_ELLIPSOID", Orthorectify: true},
					DataFilter: DataFilter{
						TimeRange:       TimeRange{From: formatTime(from), To: formatTime(to)},
						Polarization:    "DV",
						AcquisitionMode: "IW",
						Resolution:      "HIGH",
					},
				}},
			},
			Evalscript: S1Evalscript,
			Output:     ProcessOutput{Responses: responses},
		},
	}, nil
}
