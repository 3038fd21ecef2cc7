package stac

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadFunc returns the bytes of the document at uri.
type ReadFunc func(uri string) ([]byte, error)

// Load reads a saved tree from a local catalog.json or collection.json.
func Load(path string) (*Catalog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrap(err, "stac: resolve path")
	}
	return LoadWith(abs, os.ReadFile)
}

// LoadWith reads a saved tree rooted at uri using read for every document.
// Relative hrefs resolve against the referring document. Links between
// items of the tree become target-id links; local asset hrefs become
// absolute.
func LoadWith(uri string, read ReadFunc) (*Catalog, error) {
	l := &loader{read: read, itemsByPath: make(map[string]*Item)}
	root, err := l.catalog(uri)
	if err != nil {
		return nil, err
	}
	for _, item := range root.AllItems() {
		for i, link := range item.Links {
			if link.TargetID != "" {
				continue
			}
			if target, ok := l.itemsByPath[link.Href]; ok {
				item.Links[i].TargetID = target.ID
				item.Links[i].Href = ""
			}
		}
	}
	return root, nil
}

type loader struct {
	read        ReadFunc
	itemsByPath map[string]*Item
}

// resolve joins href onto the location of base.
func resolve(base, href string) string {
	if isRemote(href) {
		return href
	}
	href = strings.TrimPrefix(href, "file://")
	if !isRemote(base) {
		if filepath.IsAbs(href) {
			return filepath.Clean(href)
		}
		return filepath.Join(filepath.Dir(base), filepath.FromSlash(href))
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func (l *loader) catalog(uri string) (*Catalog, error) {
	data, err := l.read(uri)
	if err != nil {
		return nil, eris.Wrapf(err, "stac: read %s", uri)
	}
	var doc catalogDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "stac: decode %s", uri)
	}
	if doc.Type != TypeCatalog && doc.Type != TypeCollection {
		return nil, eris.Errorf("stac: %s has type %q, want Catalog or Collection", uri, doc.Type)
	}

	c := &Catalog{
		ID:          doc.ID,
		Type:        doc.Type,
		Title:       doc.Title,
		Description: doc.Description,
		License:     doc.License,
		Extent:      doc.Extent,
		Extensions:  doc.Extensions,
	}
	for _, ld := range doc.Links {
		switch ld.Rel {
		case RelRoot, RelParent, RelSelf:
		case RelChild:
			child, err := l.catalog(resolve(uri, ld.Href))
			if err != nil {
				return nil, err
			}
			c.AddChild(child)
		case RelItem:
			item, err := l.item(resolve(uri, ld.Href))
			if err != nil {
				return nil, err
			}
			c.AddItem(item)
		default:
			c.Links = append(c.Links, Link{
				Rel:        ld.Rel,
				Href:       resolve(uri, ld.Href),
				MediaType:  ld.MediaType,
				Title:      ld.Title,
				Properties: ld.Properties,
			})
		}
	}
	zap.L().Debug("stac: loaded catalog", zap.String("id", c.ID), zap.String("uri", uri))
	return c, nil
}

func (l *loader) item(uri string) (*Item, error) {
	data, err := l.read(uri)
	if err != nil {
		return nil, eris.Wrapf(err, "stac: read %s", uri)
	}
	item, err := decodeItem(data)
	if err != nil {
		return nil, eris.Wrapf(err, "stac: decode %s", uri)
	}
	for _, a := range item.Assets {
		a.Href = resolve(uri, a.Href)
	}
	for i := range item.Links {
		item.Links[i].Href = resolve(uri, item.Links[i].Href)
	}
	l.itemsByPath[uri] = item
	return item, nil
}

// decodeItem parses a feature document. Structural links are dropped.
func decodeItem(data []byte) (*Item, error) {
	var doc itemDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Type != TypeFeature {
		return nil, eris.Errorf("stac: item %q has type %q", doc.ID, doc.Type)
	}
	item := &Item{
		ID:         doc.ID,
		BBox:       doc.BBox,
		Properties: doc.Properties,
		Assets:     doc.Assets,
		Extensions: doc.Extensions,
		Collection: doc.Collection,
	}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}
	if item.Assets == nil {
		item.Assets = map[string]*Asset{}
	}
	if doc.Geometry != nil {
		g, err := doc.Geometry.Decode()
		if err != nil {
			return nil, eris.Wrapf(err, "stac: decode geometry of %s", doc.ID)
		}
		item.Geometry = g
	}
	if raw, ok := item.Properties["datetime"].(string); ok {
		dt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, eris.Wrapf(err, "stac: parse datetime of %s", doc.ID)
		}
		dt = dt.UTC()
		item.Datetime = &dt
	}
	delete(item.Properties, "datetime")
	for _, ld := range doc.Links {
		switch ld.Rel {
		case RelRoot, RelParent, RelSelf, RelCollection:
			continue
		}
		item.Links = append(item.Links, Link{
			Rel:        ld.Rel,
			Href:       ld.Href,
			MediaType:  ld.MediaType,
			Title:      ld.Title,
			Properties: ld.Properties,
		})
	}
	return item, nil
}
