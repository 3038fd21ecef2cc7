package catalog

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
)

// USFIMRS1MLDataID is the id of the flood-level split catalog.
const USFIMRS1MLDataID = "usfimr-s1-mldata"

// FloodSplit assigns whole floods to the test, training and validation
// sets, so no flood contributes imagery to more than one set.
type FloodSplit struct {
	Test       []string
	Training   []string
	Validation []string
}

// DefaultFloodSplit covers the five GLOFIMR floods ordered from Sentinel Hub.
func DefaultFloodSplit() FloodSplit {
	return FloodSplit{
		Test:       []string{"1"},
		Training:   []string{"2", "3"},
		Validation: []string{"15", "16"},
	}
}

// Validate rejects an empty split and floods assigned twice.
func (s FloodSplit) Validate() error {
	seen := make(map[string]string)
	for _, set := range s.sets() {
		for _, id := range set.floods {
			if prev, ok := seen[id]; ok {
				return eris.Errorf("catalog: flood %s is in both %s and %s", id, prev, set.name)
			}
			seen[id] = set.name
		}
	}
	if len(seen) == 0 {
		return eris.New("catalog: flood split names no floods")
	}
	return nil
}

type floodSet struct {
	name   string
	floods []string
}

func (s FloodSplit) sets() []floodSet {
	return []floodSet{
		{"test", s.Test},
		{"training", s.Training},
		{"validation", s.Validation},
	}
}

// BuildFloodMLData splits a GLOFIMR SAR catalog by flood. Each set gets an
// imagery collection of the flood's SAR tiles and a labels collection of
// the USFIMR flood polygons; every tile carries a "labels" link to its
// flood. The test collections are suffixed _0.
func BuildFloodMLData(sar, usfimr *stac.Catalog, split FloodSplit) (*stac.Catalog, error) {
	if err := split.Validate(); err != nil {
		return nil, err
	}
	out := stac.NewCatalog(USFIMRS1MLDataID, "MLData STAC Catalog for usfimr-s1 dataset", "")

	for _, set := range split.sets() {
		imageryID, labelsID := set.name+"_imagery", set.name+"_labels"
		if set.name == "test" {
			imageryID += "_0"
			labelsID += "_0"
		}
		imagery := stac.NewCollection(imageryID, imageryID, "", nil, usfimr.License)
		labels := stac.NewCollection(labelsID, labelsID, "", nil, usfimr.License)

		for _, floodID := range set.floods {
			label, err := floodLabel(usfimr, floodID)
			if err != nil {
				return nil, err
			}
			labels.AddItem(label)

			tiles, ok := sar.GetChild(floodID, true)
			if !ok {
				return nil, eris.Wrapf(stac.ErrNotFound, "catalog: sar collection for flood %s", floodID)
			}
			for _, orig := range tiles.Items() {
				tile := orig.Clone()
				tile.AddLink(stac.LabelsLink(label.ID, stac.MediaTypeGeoJSON))
				imagery.AddItem(tile)
			}
		}

		stac.UpdateExtents(imagery)
		stac.UpdateExtents(labels)
		out.AddChild(imagery)
		out.AddChild(labels)
		zap.L().Info("catalog: built flood set",
			zap.String("set", set.name),
			zap.Strings("floods", set.floods),
			zap.Int("tiles", len(imagery.Items())),
		)
	}
	return out, nil
}

// floodLabel clones the USFIMR item of floodID keeping only its GeoJSON
// polygon, as the "labels" asset.
func floodLabel(usfimr *stac.Catalog, floodID string) (*stac.Item, error) {
	item, ok := usfimr.GetItem(floodID, true)
	if !ok {
		return nil, eris.Wrapf(stac.ErrNotFound, "catalog: usfimr flood %s", floodID)
	}
	label := item.Clone()
	asset, ok := label.Assets["geojson"]
	if !ok {
		return nil, eris.Errorf("catalog: usfimr flood %s has no geojson asset", floodID)
	}
	label.Assets = map[string]*stac.Asset{"labels": asset}
	return label, nil
}
