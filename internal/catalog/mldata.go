package catalog

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
)

// Experiments maps an experiment name to the Sen1Floods11 label collection
// it trains on.
var Experiments = map[string]string{
	"s2weak": "NoQC",
	"s1weak": "S1Flood_NoQC",
	"hand":   "QC_v2",
}

// ErrSplitProportions is returned when train, test and validation sizes do
// not sum to 1.
var ErrSplitProportions = errors.New("catalog: train, test and validation proportions must add up to 1.0")

// ErrUnknownExperiment is returned for experiment names missing from Experiments.
var ErrUnknownExperiment = errors.New("catalog: unknown experiment")

const proportionTolerance = 1e-9

// SplitOptions control sampling and the train/test/validation split.
type SplitOptions struct {
	Sample     float64
	Train      float64
	Test       float64
	Validation float64
	Seed       uint64
}

// DefaultSplitOptions keeps every scene and splits 60/20/20.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{Sample: 1.0, Train: 0.6, Test: 0.2, Validation: 0.2}
}

// Validate checks that every fraction is in [0, 1] and the split sums to 1.
func (o SplitOptions) Validate() error {
	for name, v := range map[string]float64{
		"sample": o.Sample, "train": o.Train, "test": o.Test, "validation": o.Validation,
	} {
		if v < 0 || v > 1 {
			return eris.Errorf("catalog: %s fraction %v outside [0, 1]", name, v)
		}
	}
	if sum := o.Train + o.Test + o.Validation; math.Abs(sum-1.0) > proportionTolerance {
		return eris.Wrapf(ErrSplitProportions, "catalog: currently %v", sum)
	}
	return nil
}

// MLDataID returns the catalog id of an experiment's split catalog.
func MLDataID(experiment string) string {
	return experiment + "_mldata"
}

// BuildMLData derives the train/test/validation catalog for an experiment
// from a loaded Sen1Floods11 catalog. Label items are cloned into a
// "labels" collection; every imagery item a label was derived from is
// cloned with a single "labels" link back to it, then sampled and split.
func BuildMLData(src *stac.Catalog, experiment string, opts SplitOptions) (*stac.Catalog, error) {
	colID, ok := Experiments[experiment]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownExperiment, "catalog: %q", experiment)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	labelCol, ok := src.GetChild(colID, false)
	if !ok {
		return nil, eris.Wrapf(stac.ErrNotFound, "catalog: label collection %s", colID)
	}

	out := stac.NewCatalog(MLDataID(experiment), "Test/Train split for "+experiment+" experiment in sen1floods11", "")
	newCol := func(id, description string) *stac.Catalog {
		var extent *stac.Extent
		if labelCol.Extent != nil {
			extent = labelCol.Extent.Clone()
		}
		return stac.NewCollection(id, description, "", extent, labelCol.License)
	}
	train := newCol("train", "training items for experiment")
	test := newCol("test", "test items for collection")
	validation := newCol("validation", "validation items for collection")
	labels := newCol("labels", "labels for scenes in test and train collections")
	out.AddChild(train)
	out.AddChild(test)
	out.AddChild(validation)
	out.AddChild(labels)

	var scenes []*stac.Item
	for _, orig := range labelCol.Items() {
		label := orig.Clone()
		scenes = append(scenes, InvertSourceLinks(src, label)...)
		labels.AddItem(label)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	scenes = sampleItems(rng, scenes, opts.Sample)
	trainItems, testItems, valItems := splitItems(rng, scenes, opts)

	train.AddItems(trainItems...)
	test.AddItems(testItems...)
	validation.AddItems(valItems...)

	zap.L().Info("catalog: built mldata split",
		zap.String("experiment", experiment),
		zap.Int("labels", len(labels.Items())),
		zap.Int("train", len(trainItems)),
		zap.Int("test", len(testItems)),
		zap.Int("validation", len(valItems)),
	)
	return out, nil
}

// InvertSourceLinks clones the imagery items label's source links point at,
// gives each clone a single "labels" link to label, and drops the source
// links from label. Unresolvable sources are skipped with a warning.
func InvertSourceLinks(src *stac.Catalog, label *stac.Item) []*stac.Item {
	mediaType := stac.MediaTypeGeoTIFF
	if a, ok := label.Assets["labels"]; ok && a.MediaType != "" {
		mediaType = a.MediaType
	}

	var scenes []*stac.Item
	for _, l := range label.LinksByRel(stac.RelSource) {
		target, err := src.ResolveLink(l)
		if err != nil {
			zap.L().Warn("catalog: unresolved source link",
				zap.String("item", label.ID),
				zap.String("target", l.TargetID),
				zap.Error(err),
			)
			continue
		}
		scene := target.Clone()
		scene.Links = []stac.Link{stac.LabelsLink(label.ID, mediaType)}
		scenes = append(scenes, scene)
	}
	label.RemoveLinks(stac.RelSource)

	if len(scenes) == 0 {
		zap.L().Warn("catalog: no source images for label", zap.String("item", label.ID))
	}
	return scenes
}

// sampleItems keeps each item with probability p.
func sampleItems(rng *rand.Rand, items []*stac.Item, p float64) []*stac.Item {
	if p >= 1 {
		return items
	}
	return slices.DeleteFunc(slices.Clone(items), func(*stac.Item) bool {
		return rng.Float64() >= p
	})
}

// splitItems shuffles items and cuts them into train, test and validation
// slices sized by the rounded proportions.
func splitItems(rng *rand.Rand, items []*stac.Item, opts SplitOptions) (train, test, validation []*stac.Item) {
	shuffled := slices.Clone(items)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTrain := min(int(math.Round(float64(n)*opts.Train)), n)
	nTest := min(int(math.Round(float64(n)*opts.Test)), n-nTrain)
	return shuffled[:nTrain], shuffled[nTrain : nTrain+nTest], shuffled[nTrain+nTest:]
}
