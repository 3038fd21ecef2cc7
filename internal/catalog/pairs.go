package catalog

import (
	"encoding/csv"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
)

// Asset keys joined by PairChips by default.
const (
	DefaultSARAsset  = "MASK"
	DefaultHANDAsset = "hand"
)

// CoregisterJob names the HAND tiles to warp onto one SAR chip grid.
type CoregisterJob struct {
	SARID    string
	HANDIDs  []string
	HANDURIs []string
	SARURI   string
}

// PairChips joins every SAR item with the HAND items whose footprints
// intersect it. Bounding boxes prefilter; polygon footprints then decide. Jobs are ordered by SAR id; HAND tiles keep catalog order.
// https asset hrefs on S3 are rewritten to s3:// URIs.
func PairChips(sar, hand *stac.Catalog, sarAsset, handAsset string) ([]CoregisterJob, error) {
	handItems := hand.AllItems()
	var jobs []CoregisterJob
	for _, s := range sar.AllItems() {
		sa, ok := s.Assets[sarAsset]
		if !ok || len(s.BBox) != 4 {
			continue
		}
		job := CoregisterJob{SARID: s.ID}
		for _, h := range handItems {
			ha, ok := h.Assets[handAsset]
			if !ok || !intersects(s.BBox, h.BBox) || !footprintsIntersect(s.Geometry, h.Geometry) {
				continue
			}
			uri, err := s3Href(ha.Href)
			if err != nil {
				return nil, err
			}
			job.HANDIDs = append(job.HANDIDs, h.ID)
			job.HANDURIs = append(job.HANDURIs, uri)
		}
		if len(job.HANDIDs) == 0 {
			zap.L().Debug("catalog: no HAND tile intersects chip", zap.String("item", s.ID))
			continue
		}
		uri, err := s3Href(sa.Href)
		if err != nil {
			return nil, err
		}
		job.SARURI = uri
		jobs = append(jobs, job)
	}
	slices.SortStableFunc(jobs, func(a, b CoregisterJob) int { return strings.Compare(a.SARID, b.SARID) })
	return jobs, nil
}

func intersects(a, b []float64) bool {
	if len(a) != 4 || len(b) != 4 {
		return false
	}
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// footprintsIntersect reports whether polygonal geometries a and b share
// any point. Holes are ignored. A side without a polygon footprint leaves
// the decision to the bbox test.
func footprintsIntersect(a, b geom.T) bool {
	ra, rb := exteriorRings(a), exteriorRings(b)
	if len(ra) == 0 || len(rb) == 0 {
		return true
	}
	for _, x := range ra {
		for _, y := range rb {
			if ringsIntersect(x, y) {
				return true
			}
		}
	}
	return false
}

func exteriorRings(g geom.T) []*geom.LinearRing {
	switch g := g.(type) {
	case *geom.Polygon:
		if g.NumLinearRings() > 0 {
			return []*geom.LinearRing{g.LinearRing(0)}
		}
	case *geom.MultiPolygon:
		var rings []*geom.LinearRing
		for i := range g.NumPolygons() {
			if p := g.Polygon(i); p.NumLinearRings() > 0 {
				rings = append(rings, p.LinearRing(0))
			}
		}
		return rings
	}
	return nil
}

// ringsIntersect is true when an edge of a crosses an edge of b or one
// ring lies inside the other.
func ringsIntersect(a, b *geom.LinearRing) bool {
	if a.NumCoords() == 0 || b.NumCoords() == 0 {
		return false
	}
	ac, bc := a.Coords(), b.Coords()
	for i := 1; i < len(ac); i++ {
		for j := 1; j < len(bc); j++ {
			if segmentsIntersect(ac[i-1], ac[i], bc[j-1], bc[j]) {
				return true
			}
		}
	}
	return xy.IsPointInRing(b.Layout(), ac[0], b.FlatCoords()) ||
		xy.IsPointInRing(a.Layout(), bc[0], a.FlatCoords())
}

func segmentsIntersect(p1, p2, q1, q2 geom.Coord) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// cross is the z component of (b-a) x (c-a).
func cross(a, b, c geom.Coord) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment reports whether c, collinear with a and b, lies between them.
func onSegment(a, b, c geom.Coord) bool {
	return min(a[0], b[0]) <= c[0] && c[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= c[1] && c[1] <= max(a[1], b[1])
}

func s3Href(href string) (string, error) {
	if storage.Scheme(href) != "https" || !strings.Contains(href, ".s3") {
		return href, nil
	}
	uri, err := storage.HTTPSToS3(href)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: convert %s", href)
	}
	return uri, nil
}

// WriteJobsCSV writes jobs without a header as sar_id, hand_ids,
// hand_uris, sar_uris with list columns in ['a', 'b'] form.
func WriteJobsCSV(w io.Writer, jobs []CoregisterJob) error {
	cw := csv.NewWriter(w)
	for _, j := range jobs {
		record := []string{j.SARID, formatList(j.HANDIDs), formatList(j.HANDURIs), formatList([]string{j.SARURI})}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "catalog: write jobs csv")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "catalog: flush jobs csv")
}

// ReadJobsCSV parses the output of WriteJobsCSV. Only the first SAR URI of
// each row is used.
func ReadJobsCSV(r io.Reader) ([]CoregisterJob, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	var jobs []CoregisterJob
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return jobs, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read jobs csv")
		}
		if record[0] == "sar_id" {
			continue
		}
		sarURIs := parseList(record[3])
		job := CoregisterJob{
			SARID:    record[0],
			HANDIDs:  parseList(record[1]),
			HANDURIs: parseList(record[2]),
		}
		if len(sarURIs) == 0 || len(job.HANDURIs) == 0 {
			return nil, eris.Errorf("catalog: job %s needs a SAR uri and at least one HAND uri", job.SARID)
		}
		job.SARURI = sarURIs[0]
		jobs = append(jobs, job)
	}
}

func formatList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
