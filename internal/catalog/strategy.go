package catalog

import (
	"context"
	"iter"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodcat/internal/stac"
)

// LinkStrategy selects which imagery items a label chip is derived from.
type LinkStrategy int

const (
	// NoSource labels have no imagery counterpart.
	NoSource LinkStrategy = iota
	// SingleSource labels come from one sensor's chip.
	SingleSource
	// DualSource labels come from both the S1 and S2 chips.
	DualSource
)

var strategyNames = map[LinkStrategy]string{
	NoSource:     "none",
	SingleSource: "single",
	DualSource:   "dual",
}

func (s LinkStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseLinkStrategy parses "none", "single" or "dual".
func ParseLinkStrategy(s string) (LinkStrategy, error) {
	for k, name := range strategyNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, eris.Errorf("catalog: unknown link strategy %q", s)
}

// UnmarshalYAML reads a strategy name.
func (s *LinkStrategy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return eris.Wrap(err, "catalog: decode link strategy")
	}
	parsed, err := ParseLinkStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// LabelSpec describes one label collection's items.
type LabelSpec struct {
	Strategy LinkStrategy
	// Sensor is the imagery source for SingleSource labels.
	Sensor Sensor
	Label  stac.LabelProps
}

// Sources returns the indexed imagery items a label chip links to, in
// S1, S2 order. Missing chips are left out.
func (s LabelSpec) Sources(index *ImageryIndex, key ChipKey) []*stac.Item {
	var sensors []Sensor
	switch s.Strategy {
	case NoSource:
		return nil
	case SingleSource:
		sensors = []Sensor{s.Sensor}
	case DualSource:
		sensors = []Sensor{Sentinel1, Sentinel2}
	}

	var out []*stac.Item
	for _, sensor := range sensors {
		if item, ok := index.Get(sensor, key); ok {
			out = append(out, item)
		}
	}
	return out
}

// ChipBuilder turns chip listings into items.
type ChipBuilder struct {
	Bounds *BoundsCache
	Dates  *ChipDates
	Debug  bool
}

func (b *ChipBuilder) newChipItem(ctx context.Context, uri string, name ChipName, sensor Sensor) (*stac.Item, error) {
	bounds, err := b.Bounds.Get(ctx, name.ChipKey, uri)
	if err != nil {
		return nil, err
	}
	item := stac.NewItem(name.ItemID,
		stac.BoxPolygon(bounds[0], bounds[1], bounds[2], bounds[3]),
		b.Dates.Date(sensor, name.Location),
		map[string]any{
			"country":  name.Location,
			"event_id": name.Event,
		},
	)
	return item, nil
}

// AddImageryChips adds one item per .tif in uris to col and records each in
// index under sensor.
func (b *ChipBuilder) AddImageryChips(ctx context.Context, col *stac.Catalog, sensor Sensor, uris iter.Seq2[string, error], index *ImageryIndex) error {
	for uri, err := range limitDebug(uris, b.Debug) {
		if err != nil {
			return eris.Wrapf(err, "catalog: list %s imagery", sensor)
		}
		if !IsGeoTIFF(uri) {
			continue
		}
		name, err := ParseChipName(uri)
		if err != nil {
			return err
		}

		item, err := b.newChipItem(ctx, uri, name, sensor)
		if err != nil {
			return err
		}
		item.AddAsset("image", stac.Asset{Href: uri, Title: "GeoTiff", MediaType: stac.MediaTypeGeoTIFF})
		index.Put(sensor, name.ChipKey, item)
		col.AddItem(item)

		zap.L().Debug("catalog: added imagery item", zap.String("collection", col.ID), zap.String("item", item.ID))
	}
	return nil
}

// AddLabelChips adds one label item per .tif in uris to col, linking each to
// its source imagery through index. A label whose imagery is missing gets
// no source links and a warning.
func (b *ChipBuilder) AddLabelChips(ctx context.Context, col *stac.Catalog, uris iter.Seq2[string, error], index *ImageryIndex, spec LabelSpec) error {
	if index == nil {
		return eris.New("catalog: label pass requires an imagery index")
	}
	for uri, err := range limitDebug(uris, b.Debug) {
		if err != nil {
			return eris.Wrapf(err, "catalog: list %s labels", col.ID)
		}
		if !IsGeoTIFF(uri) {
			continue
		}
		name, err := ParseChipName(uri)
		if err != nil {
			return err
		}

		// Label chips carry the S1 acquisition date.
		item, err := b.newChipItem(ctx, uri, name, Sentinel1)
		if err != nil {
			return err
		}
		stac.ApplyLabel(item, spec.Label)
		item.AddAsset("labels", stac.Asset{Href: uri, Title: "GeoTiff", MediaType: stac.MediaTypeGeoTIFF})

		sources := spec.Sources(index, name.ChipKey)
		if len(sources) == 0 && spec.Strategy != NoSource {
			zap.L().Warn("catalog: no source imagery for label",
				zap.String("collection", col.ID),
				zap.String("item", item.ID),
				zap.String("strategy", spec.Strategy.String()),
			)
		}
		for _, src := range sources {
			item.AddLink(stac.SourceLink(src.ID, "labels"))
		}
		col.AddItem(item)

		zap.L().Debug("catalog: added label item",
			zap.String("collection", col.ID),
			zap.String("item", item.ID),
			zap.Int("sources", len(sources)),
		)
	}
	return nil
}
