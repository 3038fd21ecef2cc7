package stac

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Layout selects how hrefs are written when saving a tree.
type Layout int

const (
	// SelfContained writes every structural href relative and omits self
	// links, so the directory can be moved or uploaded as a unit.
	SelfContained Layout = iota
	// AbsolutePublished writes absolute local paths and self links.
	AbsolutePublished
)

// DocumentName returns the file name used for c's own document.
func DocumentName(c *Catalog) string {
	if c.IsCollection() {
		return "collection.json"
	}
	return "catalog.json"
}

type treePaths struct {
	catalogs map[*Catalog]string
	items    map[*Item]string
	byID     map[string]string
}

func (c *Catalog) layout(dir string) treePaths {
	p := treePaths{
		catalogs: make(map[*Catalog]string),
		items:    make(map[*Item]string),
		byID:     make(map[string]string),
	}
	var visit func(n *Catalog, d string)
	visit = func(n *Catalog, d string) {
		p.catalogs[n] = filepath.Join(d, DocumentName(n))
		for _, item := range n.items {
			path := filepath.Join(d, item.ID, item.ID+".json")
			p.items[item] = path
			if _, ok := p.byID[item.ID]; !ok {
				p.byID[item.ID] = path
			} else {
				zap.L().Warn("stac: duplicate item id", zap.String("item", item.ID), zap.String("catalog", n.ID))
			}
		}
		for _, child := range n.children {
			visit(child, filepath.Join(d, child.ID))
		}
	}
	visit(c, dir)
	return p
}

// NormalizeAndSave assigns every entity a path under dir derived from the
// id chain (dir/<child>/<item>/<item>.json) and writes one document per
// entity. Local asset hrefs are rewritten relative to the item document;
// remote hrefs are left alone. A link whose target id is missing from the
// tree fails the save with ErrNotFound. Writes are not transactional.
func (c *Catalog) NormalizeAndSave(dir string, layout Layout) error {
	if layout != SelfContained && layout != AbsolutePublished {
		return eris.Errorf("stac: unknown layout %d", layout)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return eris.Wrap(err, "stac: resolve root dir")
	}
	paths := c.layout(absDir)
	rootPath := paths.catalogs[c]

	w := &treeWriter{paths: paths, layout: layout, rootPath: rootPath}
	if err := w.writeCatalog(c, nil); err != nil {
		return err
	}
	zap.L().Info("stac: saved catalog",
		zap.String("catalog", c.ID),
		zap.String("path", rootPath),
		zap.Int("items", len(paths.items)),
	)
	return nil
}

type treeWriter struct {
	paths    treePaths
	layout   Layout
	rootPath string
}

// href renders target as seen from a document at from.
func (w *treeWriter) href(from, target string) string {
	if w.layout == AbsolutePublished {
		return target
	}
	rel, err := filepath.Rel(filepath.Dir(from), target)
	if err != nil {
		return target
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func (w *treeWriter) structural(self string, parent string) []linkDoc {
	links := []linkDoc{{Rel: RelRoot, Href: w.href(self, w.rootPath), MediaType: MediaTypeJSON}}
	if w.layout == AbsolutePublished {
		links = append(links, linkDoc{Rel: RelSelf, Href: self, MediaType: MediaTypeJSON})
	}
	if parent != "" {
		links = append(links, linkDoc{Rel: RelParent, Href: w.href(self, parent), MediaType: MediaTypeJSON})
	}
	return links
}

func (w *treeWriter) linkHref(self string, l Link) (string, error) {
	if l.TargetID != "" {
		target, ok := w.paths.byID[l.TargetID]
		if !ok {
			return "", eris.Wrapf(ErrNotFound, "stac: %s link target %q", l.Rel, l.TargetID)
		}
		return w.href(self, target), nil
	}
	return l.Href, nil
}

func (w *treeWriter) writeCatalog(c *Catalog, parent *Catalog) error {
	self := w.paths.catalogs[c]
	parentPath := ""
	if parent != nil {
		parentPath = w.paths.catalogs[parent]
	}

	doc := catalogDoc{
		Type:        c.Type,
		StacVersion: Version,
		Extensions:  nonNil(c.Extensions),
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Links:       w.structural(self, parentPath),
	}
	if c.IsCollection() {
		doc.License = c.License
		doc.Extent = c.Extent
		if doc.Extent == nil {
			doc.Extent = &Extent{}
		}
	}
	for _, child := range c.children {
		doc.Links = append(doc.Links, linkDoc{
			Rel:       RelChild,
			Href:      w.href(self, w.paths.catalogs[child]),
			MediaType: MediaTypeJSON,
			Title:     child.Title,
		})
	}
	for _, item := range c.items {
		doc.Links = append(doc.Links, linkDoc{
			Rel:       RelItem,
			Href:      w.href(self, w.paths.items[item]),
			MediaType: MediaTypeGeoJSON,
		})
	}
	for _, l := range c.Links {
		href, err := w.linkHref(self, l)
		if err != nil {
			return err
		}
		doc.Links = append(doc.Links, linkDoc{Rel: l.Rel, Href: href, MediaType: l.MediaType, Title: l.Title, Properties: l.Properties})
	}

	if err := writeJSON(self, doc); err != nil {
		return err
	}
	for _, item := range c.items {
		if err := w.writeItem(item, c); err != nil {
			return err
		}
	}
	for _, child := range c.children {
		if err := w.writeCatalog(child, c); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWriter) writeItem(item *Item, parent *Catalog) error {
	self := w.paths.items[item]
	parentPath := w.paths.catalogs[parent]
	itemDir := filepath.Dir(self)

	doc, err := item.document(
		func(l Link) (string, error) { return w.linkHref(self, l) },
		func(href string) string { return w.assetHref(itemDir, href) },
	)
	if err != nil {
		return err
	}

	links := w.structural(self, parentPath)
	if parent.IsCollection() {
		links = append(links, linkDoc{Rel: RelCollection, Href: w.href(self, parentPath), MediaType: MediaTypeJSON})
	}
	doc.Links = append(links, doc.Links...)

	return writeJSON(self, doc)
}

// assetHref makes local absolute asset paths relative to the item directory.
func (w *treeWriter) assetHref(itemDir, href string) string {
	if w.layout != SelfContained || isRemote(href) {
		return href
	}
	p := strings.TrimPrefix(href, "file://")
	if !filepath.IsAbs(p) {
		return href
	}
	rel, err := filepath.Rel(itemDir, p)
	if err != nil {
		return href
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func isRemote(href string) bool {
	i := strings.Index(href, "://")
	return i > 0 && !strings.HasPrefix(href, "file://")
}

func writeJSON(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "stac: create directory for %s", path)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "stac: encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "stac: write %s", path)
	}
	return nil
}
