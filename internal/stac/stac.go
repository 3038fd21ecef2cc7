// Package stac models SpatioTemporal Asset Catalog trees: catalogs,
// collections, items, assets and links. Links between items carry target
// ids rather than object references, so any subtree can be cloned or saved
// without fixing up owners.
package stac

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/twpayne/go-geom"
)

// Version is the STAC specification version written to every document.
const Version = "1.0.0"

// Entity types.
const (
	TypeCatalog    = "Catalog"
	TypeCollection = "Collection"
	TypeFeature    = "Feature"
)

// Link relation types.
const (
	RelRoot       = "root"
	RelParent     = "parent"
	RelChild      = "child"
	RelItem       = "item"
	RelCollection = "collection"
	RelSelf       = "self"
	RelSource     = "source"
	RelLabels     = "labels"
	RelAlternate  = "alternate"
	RelData       = "data"
)

// Media types.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeGeoTIFF = "image/tiff; application=geotiff"
	MediaTypeTIFF    = "image/tiff"
	MediaTypeWKT     = "application/wkt"
	MediaTypeWKB     = "application/wkb"
	MediaTypeCSV     = "text/csv"
	MediaTypeText    = "text/plain"
	MediaTypeHTML    = "text/html"
)

// ErrNotFound is returned when an id or link target is absent from a tree.
var ErrNotFound = errors.New("stac: not found")

// Asset references an external resource owned by one item.
type Asset struct {
	Href        string   `json:"href"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	MediaType   string   `json:"type,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Link is a typed relation to another entity. TargetID names an item in the
// same tree; Href names anything else. Exactly one of them is set.
type Link struct {
	Rel        string
	TargetID   string
	Href       string
	MediaType  string
	Title      string
	Properties map[string]any
}

// Clone returns a copy of l with its own properties map.
func (l Link) Clone() Link {
	l.Properties = maps.Clone(l.Properties)
	return l
}

// Item is one spatiotemporal observation.
type Item struct {
	ID         string
	Geometry   geom.T
	BBox       []float64
	Datetime   *time.Time
	Properties map[string]any
	Assets     map[string]*Asset
	Links      []Link
	Extensions []string
	// Collection is the id of the owning collection, set by AddItem.
	Collection string
}

// NewItem creates an item whose bbox is the envelope of geometry.
func NewItem(id string, geometry geom.T, datetime *time.Time, props map[string]any) *Item {
	if props == nil {
		props = map[string]any{}
	}
	item := &Item{
		ID:         id,
		Geometry:   geometry,
		Datetime:   datetime,
		Properties: props,
		Assets:     map[string]*Asset{},
	}
	item.BBox = Envelope(geometry)
	return item
}

// Envelope returns [minx, miny, maxx, maxy] of g, or nil for an empty geometry.
func Envelope(g geom.T) []float64 {
	if g == nil {
		return nil
	}
	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return nil
	}
	return []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
}

// BoxPolygon returns the polygon footprint of a [minx, miny, maxx, maxy] box.
func BoxPolygon(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})
}

// AddAsset stores a under key, replacing any previous asset with that key.
func (i *Item) AddAsset(key string, a Asset) {
	if i.Assets == nil {
		i.Assets = map[string]*Asset{}
	}
	i.Assets[key] = &a
}

// AddLink appends l to the item's links.
func (i *Item) AddLink(l Link) {
	i.Links = append(i.Links, l)
}

// LinksByRel returns the item's links with the given relation type.
func (i *Item) LinksByRel(rel string) []Link {
	var out []Link
	for _, l := range i.Links {
		if l.Rel == rel {
			out = append(out, l)
		}
	}
	return out
}

// RemoveLinks drops every link with the given relation type.
func (i *Item) RemoveLinks(rel string) {
	i.Links = slices.DeleteFunc(i.Links, func(l Link) bool { return l.Rel == rel })
}

// AddExtension records a schema URL once.
func (i *Item) AddExtension(url string) {
	if !slices.Contains(i.Extensions, url) {
		i.Extensions = append(i.Extensions, url)
	}
}

// Clone deep-copies the item including assets, links and geometry.
func (i *Item) Clone() *Item {
	out := &Item{
		ID:         i.ID,
		Geometry:   cloneGeometry(i.Geometry),
		BBox:       slices.Clone(i.BBox),
		Properties: maps.Clone(i.Properties),
		Assets:     make(map[string]*Asset, len(i.Assets)),
		Extensions: slices.Clone(i.Extensions),
		Collection: i.Collection,
	}
	if i.Datetime != nil {
		dt := *i.Datetime
		out.Datetime = &dt
	}
	if out.Properties == nil {
		out.Properties = map[string]any{}
	}
	for k, a := range i.Assets {
		cp := *a
		cp.Roles = slices.Clone(a.Roles)
		out.Assets[k] = &cp
	}
	for _, l := range i.Links {
		out.Links = append(out.Links, l.Clone())
	}
	return out
}

func cloneGeometry(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone()
	case *geom.LineString:
		return t.Clone()
	case *geom.Polygon:
		return t.Clone()
	case *geom.MultiPoint:
		return t.Clone()
	case *geom.MultiLineString:
		return t.Clone()
	case *geom.MultiPolygon:
		return t.Clone()
	default:
		return g
	}
}
