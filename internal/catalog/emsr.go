package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
	"github.com/sells-group/floodcat/pkg/sentinelhub"
)

// DefaultEMSRFeedURL is the Copernicus EMS rapid mapping activations feed.
const DefaultEMSRFeedURL = "https://emergency.copernicus.eu/mapping/activations-rapid/feed"

const (
	emsrS2CollectionID = "Sentinel-2-L2A"
	emsrDescription    = "Copernicus Rapid Mapping provisions geospatial information within hours or days from " +
		"the activation in support of emergency management activities immediately following a disaster. " +
		"This catalog contains the flood delineation and grading products that intersect Sentinel-2 L2A scenes."
	// emsrSceneWindow is the search window either side of the event time.
	emsrSceneWindow = 12 * time.Hour
)

var emsrEventTime = regexp.MustCompile(`Date/Time of Event \(UTC\):[</b>\s]*?(\d{4}-\d{1,2}-\d{1,2} \d{1,2}:\d{2}:\d{2})`)

type georssFeed struct {
	Items []georssItem `xml:"channel>item"`
}

type georssItem struct {
	Title         string `xml:"title"`
	GUID          string `xml:"guid"`
	Link          string `xml:"link"`
	Category      string `xml:"category"`
	Description   string `xml:"description"`
	ActivationRSS string `xml:"http://www.iwg-sem.org/ activationRSS"`
	Countries     string `xml:"http://www.iwg-sem.org/ activationAffectedCountries"`
	ContentType   string `xml:"http://www.gdacs.org/ cemsctype"`
	ProductType   string `xml:"http://www.gdacs.org/ cemsptype"`
	Polygon       string `xml:"http://www.georss.org/georss polygon"`
}

func decodeGeoRSS(r io.Reader) ([]georssItem, error) {
	var feed georssFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, eris.Wrap(err, "catalog: decode georss")
	}
	return feed.Items, nil
}

// EMSRActivation is one flood activation from the rapid mapping feed.
type EMSRActivation struct {
	ID      string
	Title   string
	Country string
	FeedURL string
	Time    time.Time
}

// ParseEMSRActivations reads flood activations at or after since from the
// activations feed. Every flood entry must state exactly one event time.
func ParseEMSRActivations(r io.Reader, since time.Time) ([]EMSRActivation, error) {
	items, err := decodeGeoRSS(r)
	if err != nil {
		return nil, err
	}
	var out []EMSRActivation
	for _, it := range items {
		if !strings.EqualFold(strings.TrimSpace(it.Category), "flood") {
			continue
		}
		m := emsrEventTime.FindAllStringSubmatch(it.Description, -1)
		if len(m) != 1 {
			return nil, eris.Errorf("catalog: activation %s states %d event times", it.GUID, len(m))
		}
		t, err := time.Parse("2006-1-2 15:04:05", m[0][1])
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: event time of %s", it.GUID)
		}
		if t.Before(since) {
			continue
		}
		out = append(out, EMSRActivation{
			ID:      strings.TrimSpace(it.GUID),
			Title:   strings.TrimSpace(it.Title),
			Country: strings.TrimSpace(it.Countries),
			FeedURL: strings.TrimSpace(it.ActivationRSS),
			Time:    t,
		})
	}
	return out, nil
}

// EMSRProduct is one vector delineation or grading product of an activation.
type EMSRProduct struct {
	ID             string
	EventID        string
	AOI            string
	ProductType    string
	MonitoringType string
	Revision       string
	Version        string
	DataType       string
	Link           string
	Country        string
	Time           time.Time
	Footprint      *geom.Polygon
}

// ParseEMSRProducts reads the vector DEL and GRA products from the feed of
// activation a. Product links end in /<product id>/<version>, where the
// product id is EVENT_AOI_TYPE_MONITORING_REVISION_VECTORS.
func ParseEMSRProducts(r io.Reader, a EMSRActivation) ([]EMSRProduct, error) {
	items, err := decodeGeoRSS(r)
	if err != nil {
		return nil, err
	}
	var out []EMSRProduct
	for _, it := range items {
		ptype := strings.TrimSpace(it.ProductType)
		if strings.TrimSpace(it.ContentType) != "VECTOR" || (ptype != "DEL" && ptype != "GRA") {
			continue
		}
		p, err := parseEMSRProduct(it, a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseEMSRProduct(it georssItem, a EMSRActivation) (EMSRProduct, error) {
	link := strings.TrimSpace(it.Link)
	u, err := url.Parse(link)
	if err != nil {
		return EMSRProduct{}, eris.Wrapf(err, "catalog: product link %q", link)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 4 {
		return EMSRProduct{}, eris.Errorf("catalog: product link %q has %d path segments, want 4", link, len(segments))
	}
	productID, version := segments[2], segments[3]
	fields := strings.Split(productID, "_")
	if len(fields) != 6 {
		return EMSRProduct{}, eris.Errorf("catalog: product id %q has %d fields, want 6", productID, len(fields))
	}
	switch {
	case fields[0] != a.ID:
		return EMSRProduct{}, eris.Errorf("catalog: product %s belongs to %s, not %s", productID, fields[0], a.ID)
	case fields[2] != strings.TrimSpace(it.ProductType):
		return EMSRProduct{}, eris.Errorf("catalog: product %s has type %s, feed says %s", productID, fields[2], it.ProductType)
	case fields[5] != "VECTORS":
		return EMSRProduct{}, eris.Errorf("catalog: product %s is not a vector product", productID)
	}
	footprint, err := parseGeoRSSPolygon(it.Polygon)
	if err != nil {
		return EMSRProduct{}, eris.Wrapf(err, "catalog: footprint of %s", productID)
	}

	return EMSRProduct{
		ID:             strings.Join([]string{fields[0], fields[1], fields[2], fields[3], fields[4], version, fields[5]}, "_"),
		EventID:        a.ID,
		AOI:            fields[1],
		ProductType:    fields[2],
		MonitoringType: fields[3],
		Revision:       fields[4],
		Version:        version,
		DataType:       fields[5],
		Link:           link,
		Country:        a.Country,
		Time:           a.Time,
		Footprint:      footprint,
	}, nil
}

// parseGeoRSSPolygon reads "lat lon lat lon ..." into a closed lon/lat ring.
func parseGeoRSSPolygon(s string) (*geom.Polygon, error) {
	fields := strings.Fields(s)
	if len(fields) < 6 || len(fields)%2 != 0 {
		return nil, eris.Errorf("catalog: georss polygon needs at least 3 lat/lon pairs, got %d values", len(fields))
	}
	ring := make([]geom.Coord, 0, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		lat, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: latitude %q", fields[i])
		}
		lon, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: longitude %q", fields[i+1])
		}
		ring = append(ring, geom.Coord{lon, lat})
	}
	if !slices.Equal(ring[0], ring[len(ring)-1]) {
		ring = append(ring, slices.Clone(ring[0]))
	}
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
}

// SceneSearcher finds catalog scenes.
type SceneSearcher interface {
	Search(ctx context.Context, req sentinelhub.SearchRequest) (*sentinelhub.SearchResponse, error)
}

// EMSR catalogs Copernicus EMS rapid mapping flood products that have a
// Sentinel-2 L2A scene within 12 hours of the event. Each activation is a
// collection of product items; every product links to its scenes with
// "data" links into a shared Sentinel-2 collection.
type EMSR struct {
	Storage storage.Storage
	Search  SceneSearcher
	FeedURL string
	// WorkDir caches the downloaded feeds.
	WorkDir string
	// Since and Until bound the event times considered.
	Since time.Time
	Until time.Time
}

// Build fetches the feeds, searches scenes and assembles the catalog.
func (b *EMSR) Build(ctx context.Context) (*stac.Catalog, error) {
	feedURL := b.FeedURL
	if feedURL == "" {
		feedURL = DefaultEMSRFeedURL
	}
	var activations []EMSRActivation
	err := b.readFeed(ctx, feedURL, filepath.Join(b.WorkDir, "copernicus-rapid-mapping-activations.xml"), func(r io.Reader) error {
		var err error
		activations, err = ParseEMSRActivations(r, b.Since)
		return err
	})
	if err != nil {
		return nil, err
	}

	var products []EMSRProduct
	for _, a := range activations {
		if !b.Until.IsZero() && a.Time.After(b.Until) {
			continue
		}
		err := b.readFeed(ctx, a.FeedURL, filepath.Join(b.WorkDir, "event-xml", a.ID+".xml"), func(r io.Reader) error {
			ps, err := ParseEMSRProducts(r, a)
			products = append(products, ps...)
			return err
		})
		if err != nil {
			return nil, err
		}
		zap.L().Info("catalog: read emsr activation", zap.String("event", a.ID), zap.String("title", a.Title))
	}
	slices.SortStableFunc(products, func(x, y EMSRProduct) int { return strings.Compare(x.EventID, y.EventID) })

	return b.assemble(ctx, products)
}

func (b *EMSR) readFeed(ctx context.Context, uri, local string, parse func(io.Reader) error) error {
	if err := b.Storage.Fetch(ctx, uri, local); err != nil {
		return eris.Wrapf(err, "catalog: fetch %s", uri)
	}
	f, err := os.Open(local)
	if err != nil {
		return eris.Wrapf(err, "catalog: open %s", local)
	}
	defer f.Close() //nolint:errcheck
	return parse(f)
}

func (b *EMSR) assemble(ctx context.Context, products []EMSRProduct) (*stac.Catalog, error) {
	id := fmt.Sprintf("copernicus-rapid-mapping-floods-%d-%d", b.Since.Year(), b.until().Year())
	title := fmt.Sprintf("Copernicus Rapid Mapping Floods %d-%d", b.Since.Year(), b.until().Year())
	cat := stac.NewCatalog(id, emsrDescription, title)

	since, until := b.Since, b.until()
	s2Temporal := [][2]*time.Time{{&since, &until}}
	s2 := stac.NewCollection(emsrS2CollectionID, "Sentinel 2 L2A images corresponding to CEMS rapid mapping floods",
		"", &stac.Extent{Temporal: s2Temporal}, "")
	cat.AddChild(s2)

	events := make(map[string]*stac.Catalog)
	for _, p := range products {
		resp, err := b.Search.Search(ctx, sentinelhub.SearchRequest{
			BBox:       stac.Envelope(p.Footprint),
			From:       p.Time.Add(-emsrSceneWindow),
			To:         p.Time.Add(emsrSceneWindow),
			Collection: sentinelhub.CollectionS2L2A,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: search scenes for %s", p.ID)
		}
		if len(resp.Features) == 0 {
			zap.L().Debug("catalog: no sentinel-2 scenes", zap.String("product", p.ID))
			continue
		}

		col, ok := events[p.EventID]
		if !ok {
			col = stac.NewCollection(p.EventID, "", "", nil, "")
			events[p.EventID] = col
			cat.AddChild(col)
		}
		dt := p.Time
		item := stac.NewItem(p.ID, p.Footprint, &dt, map[string]any{
			"aoi_id":          p.AOI,
			"country":         p.Country,
			"event_id":        p.EventID,
			"product_type":    p.ProductType,
			"data_type":       p.DataType,
			"monitoring_type": p.MonitoringType,
			"revision":        p.Revision,
			"version":         p.Version,
		})
		item.AddLink(stac.Link{Rel: stac.RelAlternate, Href: p.Link, MediaType: stac.MediaTypeHTML})

		for _, f := range resp.Features {
			if _, ok := s2.GetItem(f.ID, false); !ok {
				scene, err := sceneItem(f)
				if err != nil {
					return nil, err
				}
				s2.AddItem(scene)
			}
			item.AddLink(stac.Link{Rel: stac.RelData, TargetID: f.ID})
		}
		col.AddItem(item)
		zap.L().Info("catalog: cataloged emsr product",
			zap.String("product", p.ID),
			zap.Int("scenes", len(resp.Features)),
		)
	}

	for _, col := range cat.Children() {
		stac.UpdateExtents(col)
	}
	s2.Extent.Temporal = s2Temporal
	return cat, nil
}

func (b *EMSR) until() time.Time {
	if b.Until.IsZero() {
		return time.Now().UTC()
	}
	return b.Until
}

// sceneItem converts a catalog search feature into an item.
func sceneItem(f sentinelhub.SearchFeature) (*stac.Item, error) {
	dt, err := f.Datetime()
	if err != nil {
		return nil, err
	}
	var g geom.T
	if len(f.Geometry) > 0 {
		if err := geojson.Unmarshal(f.Geometry, &g); err != nil {
			return nil, eris.Wrapf(err, "catalog: geometry of scene %s", f.ID)
		}
	}
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		if k != "datetime" {
			props[k] = v
		}
	}
	item := stac.NewItem(f.ID, g, &dt, props)
	if item.BBox == nil && len(f.BBox) == 4 {
		item.BBox = slices.Clone(f.BBox)
	}
	return item, nil
}
