package stac

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Catalog is a node of the tree. A Catalog with Type TypeCollection also
// carries an extent and license.
type Catalog struct {
	ID          string
	Type        string
	Title       string
	Description string
	License     string
	Extent      *Extent
	Extensions  []string
	// Links holds non-structural links; root, parent, child and item links
	// are derived from the tree when saving.
	Links []Link

	children []*Catalog
	items    []*Item
}

// NewCatalog creates an empty catalog.
func NewCatalog(id, description, title string) *Catalog {
	return &Catalog{ID: id, Type: TypeCatalog, Description: description, Title: title}
}

// NewCollection creates an empty collection. A nil extent is replaced with
// an empty one to be filled by UpdateExtents.
func NewCollection(id, description, title string, extent *Extent, license string) *Catalog {
	if extent == nil {
		extent = &Extent{}
	}
	if license == "" {
		license = "proprietary"
	}
	return &Catalog{
		ID:          id,
		Type:        TypeCollection,
		Description: description,
		Title:       title,
		License:     license,
		Extent:      extent,
	}
}

// IsCollection reports whether c is a collection.
func (c *Catalog) IsCollection() bool {
	return c.Type == TypeCollection
}

// AddChild attaches child. Cycles are not detected.
func (c *Catalog) AddChild(child *Catalog) {
	c.children = append(c.children, child)
}

// AddItem appends item. Duplicate ids are kept; lookups return the first.
func (c *Catalog) AddItem(item *Item) {
	if c.IsCollection() {
		item.Collection = c.ID
	} else {
		item.Collection = ""
	}
	c.items = append(c.items, item)
}

// AddItems appends items in order.
func (c *Catalog) AddItems(items ...*Item) {
	for _, item := range items {
		c.AddItem(item)
	}
}

// Children returns the direct children in insertion order.
func (c *Catalog) Children() []*Catalog {
	return slices.Clone(c.children)
}

// Items returns the direct items in insertion order.
func (c *Catalog) Items() []*Item {
	return slices.Clone(c.items)
}

// GetChild finds a child catalog by id. With recursive set, the whole
// subtree is searched depth-first and the first match wins.
func (c *Catalog) GetChild(id string, recursive bool) (*Catalog, bool) {
	for _, child := range c.children {
		if child.ID == id {
			return child, true
		}
	}
	if recursive {
		for _, child := range c.children {
			if found, ok := child.GetChild(id, true); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// GetItem finds an item by id. With recursive set, own items are searched
// before each child subtree in insertion order.
func (c *Catalog) GetItem(id string, recursive bool) (*Item, bool) {
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	if recursive {
		for _, child := range c.children {
			if found, ok := child.GetItem(id, true); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// AllItems returns every item under c depth-first, own items first.
func (c *Catalog) AllItems() []*Item {
	var out []*Item
	c.walk(func(n *Catalog) {
		out = append(out, n.items...)
	})
	return out
}

func (c *Catalog) walk(fn func(*Catalog)) {
	fn(c)
	for _, child := range c.children {
		child.walk(fn)
	}
}

// ItemIndex maps item ids to items across the tree. The first item in
// traversal order wins for duplicated ids.
func (c *Catalog) ItemIndex() map[string]*Item {
	index := make(map[string]*Item)
	for _, item := range c.AllItems() {
		if _, ok := index[item.ID]; !ok {
			index[item.ID] = item
		}
	}
	return index
}

// ResolveLink returns the in-tree item that l targets.
func (c *Catalog) ResolveLink(l Link) (*Item, error) {
	if l.TargetID == "" {
		return nil, eris.Wrapf(ErrNotFound, "stac: %s link to %q has no in-tree target", l.Rel, l.Href)
	}
	item, ok := c.GetItem(l.TargetID, true)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "stac: %s link target %q", l.Rel, l.TargetID)
	}
	return item, nil
}

// Clone deep-copies the subtree rooted at c.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		ID:          c.ID,
		Type:        c.Type,
		Title:       c.Title,
		Description: c.Description,
		License:     c.License,
		Extensions:  slices.Clone(c.Extensions),
	}
	if c.Extent != nil {
		out.Extent = c.Extent.Clone()
	}
	for _, l := range c.Links {
		out.Links = append(out.Links, l.Clone())
	}
	for _, child := range c.children {
		out.children = append(out.children, child.Clone())
	}
	for _, item := range c.items {
		out.items = append(out.items, item.Clone())
	}
	return out
}
