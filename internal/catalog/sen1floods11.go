package catalog

import (
	"context"
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
)

// DefaultSen1Floods11Root is the bucket holding the published chips.
const DefaultSen1Floods11Root = "s3://sen1floods11-data"

//go:embed sen1floods11.yaml
var sen1floods11YAML []byte

// Descriptor lists the collections of a chip dataset.
type Descriptor struct {
	ID          string              `yaml:"id"`
	Title       string              `yaml:"title"`
	Description string              `yaml:"description"`
	Imagery     []ImageryDescriptor `yaml:"imagery"`
	Labels      []LabelDescriptor   `yaml:"labels"`
}

// ImageryDescriptor is one imagery collection read from one or more prefixes.
type ImageryDescriptor struct {
	ID          string   `yaml:"id"`
	Sensor      Sensor   `yaml:"sensor"`
	Prefixes    []string `yaml:"prefixes"`
	Description string   `yaml:"description"`
}

// LabelDescriptor is one label collection.
type LabelDescriptor struct {
	ID               string       `yaml:"id"`
	Prefix           string       `yaml:"prefix"`
	Strategy         LinkStrategy `yaml:"strategy"`
	Sensor           Sensor       `yaml:"sensor"`
	LabelDescription string       `yaml:"label_description"`
	Classes          []any        `yaml:"classes"`
	Description      string       `yaml:"description"`
}

// Spec converts d into the label properties and link strategy of its items.
func (d LabelDescriptor) Spec() LabelSpec {
	return LabelSpec{
		Strategy: d.Strategy,
		Sensor:   d.Sensor,
		Label: stac.LabelProps{
			Description: d.LabelDescription,
			Type:        stac.LabelTypeRaster,
			Tasks:       []string{"classification"},
			Classes:     []stac.LabelClasses{{Classes: d.Classes}},
		},
	}
}

// Sen1Floods11Descriptor returns the built-in Sen1Floods11 collection table.
func Sen1Floods11Descriptor() (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(sen1floods11YAML, &d); err != nil {
		return Descriptor{}, eris.Wrap(err, "catalog: decode sen1floods11 descriptor")
	}
	for _, l := range d.Labels {
		if l.Strategy == SingleSource && l.Sensor == "" {
			return Descriptor{}, eris.Errorf("catalog: label collection %s needs a sensor", l.ID)
		}
	}
	return d, nil
}

// Sen1Floods11 builds the chip catalog: imagery collections first, then
// label collections linked to the imagery through an ImageryIndex.
type Sen1Floods11 struct {
	Storage    storage.Storage
	Chips      *ChipBuilder
	// Root is the base URI the descriptor prefixes are listed under.
	Root       string
	Descriptor Descriptor
}

func (b *Sen1Floods11) prefixURI(prefix string) string {
	root := b.Root
	if root == "" {
		root = DefaultSen1Floods11Root
	}
	uri := storage.JoinURI(root, prefix)
	// Keep the delimiter so S1/ does not also match S1Flood/ on S3.
	if storage.Scheme(uri) != "file" && strings.HasSuffix(prefix, "/") {
		uri += "/"
	}
	return uri
}

// Build lists every prefix and assembles the catalog.
func (b *Sen1Floods11) Build(ctx context.Context) (*stac.Catalog, error) {
	root := stac.NewCatalog(b.Descriptor.ID, b.Descriptor.Description, b.Descriptor.Title)
	zap.L().Info("catalog: created catalog", zap.String("catalog", root.ID))

	index, err := b.buildImagery(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := b.buildLabels(ctx, root, index); err != nil {
		return nil, err
	}
	return root, nil
}

func (b *Sen1Floods11) buildImagery(ctx context.Context, root *stac.Catalog) (*ImageryIndex, error) {
	index := NewImageryIndex()
	for _, d := range b.Descriptor.Imagery {
		col := stac.NewCollection(d.ID, d.Description, "", nil, "")
		for _, prefix := range d.Prefixes {
			uri := b.prefixURI(prefix)
			if err := b.Chips.AddImageryChips(ctx, col, d.Sensor, b.Storage.List(ctx, uri), index); err != nil {
				return nil, err
			}
		}
		stac.UpdateExtents(col)
		root.AddChild(col)
		zap.L().Info("catalog: built imagery collection",
			zap.String("collection", col.ID),
			zap.Int("items", len(col.Items())),
		)
	}
	return index, nil
}

func (b *Sen1Floods11) buildLabels(ctx context.Context, root *stac.Catalog, index *ImageryIndex) error {
	for _, d := range b.Descriptor.Labels {
		col := stac.NewCollection(d.ID, d.Description, "", nil, "")
		col.Extensions = append(col.Extensions, stac.LabelExtension)
		uri := b.prefixURI(d.Prefix)
		if err := b.Chips.AddLabelChips(ctx, col, b.Storage.List(ctx, uri), index, d.Spec()); err != nil {
			return err
		}
		stac.UpdateExtents(col)
		root.AddChild(col)
		zap.L().Info("catalog: built label collection",
			zap.String("collection", col.ID),
			zap.String("strategy", d.Strategy.String()),
			zap.Int("items", len(col.Items())),
		)
	}
	return nil
}
