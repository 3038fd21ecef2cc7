package stac

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type catalogDoc struct {
	Type        string    `json:"type"`
	StacVersion string    `json:"stac_version"`
	Extensions  []string  `json:"stac_extensions"`
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description"`
	License     string    `json:"license,omitempty"`
	Extent      *Extent   `json:"extent,omitempty"`
	Links       []linkDoc `json:"links"`
}

type itemDoc struct {
	Type        string            `json:"type"`
	StacVersion string            `json:"stac_version"`
	Extensions  []string          `json:"stac_extensions"`
	ID          string            `json:"id"`
	Geometry    *geojson.Geometry `json:"geometry"`
	BBox        []float64         `json:"bbox,omitempty"`
	Properties  map[string]any    `json:"properties"`
	Links       []linkDoc         `json:"links"`
	Assets      map[string]*Asset `json:"assets"`
	Collection  string            `json:"collection,omitempty"`
}

// linkDoc is a link as persisted: extra properties sit beside rel and href.
type linkDoc struct {
	Rel        string
	Href       string
	MediaType  string
	Title      string
	Properties map[string]any
}

func (l linkDoc) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Properties)+4)
	maps.Copy(out, l.Properties)
	out["rel"] = l.Rel
	out["href"] = l.Href
	if l.MediaType != "" {
		out["type"] = l.MediaType
	}
	if l.Title != "" {
		out["title"] = l.Title
	}
	return json.Marshal(out)
}

func (l *linkDoc) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "stac: decode link")
	}
	str := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	l.Rel = str("rel")
	l.Href = str("href")
	l.MediaType = str("type")
	l.Title = str("title")
	if len(raw) > 0 {
		l.Properties = raw
	}
	return nil
}

// MarshalJSON encodes the item as a standalone GeoJSON feature with
// in-tree link targets left as ids. Saved trees use relative hrefs instead.
func (i *Item) MarshalJSON() ([]byte, error) {
	doc, err := i.document(func(l Link) (string, error) {
		if l.TargetID != "" {
			return l.TargetID, nil
		}
		return l.Href, nil
	}, func(href string) string { return href })
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (i *Item) document(linkHref func(Link) (string, error), assetHref func(string) string) (*itemDoc, error) {
	doc := &itemDoc{
		Type:        TypeFeature,
		StacVersion: Version,
		Extensions:  nonNil(i.Extensions),
		ID:          i.ID,
		BBox:        i.BBox,
		Properties:  make(map[string]any, len(i.Properties)+1),
		Assets:      make(map[string]*Asset, len(i.Assets)),
		Links:       []linkDoc{},
		Collection:  i.Collection,
	}
	if i.Geometry != nil {
		g, err := geojson.Encode(i.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "stac: encode geometry of %s", i.ID)
		}
		doc.Geometry = g
	}
	maps.Copy(doc.Properties, i.Properties)
	if i.Datetime != nil {
		doc.Properties["datetime"] = i.Datetime.UTC().Format(timeFormat)
	} else {
		doc.Properties["datetime"] = nil
	}
	for k, a := range i.Assets {
		cp := *a
		cp.Href = assetHref(a.Href)
		doc.Assets[k] = &cp
	}
	for _, l := range i.Links {
		href, err := linkHref(l)
		if err != nil {
			return nil, err
		}
		doc.Links = append(doc.Links, linkDoc{
			Rel:        l.Rel,
			Href:       href,
			MediaType:  l.MediaType,
			Title:      l.Title,
			Properties: l.Properties,
		})
	}
	return doc, nil
}

const timeFormat = time.RFC3339

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
