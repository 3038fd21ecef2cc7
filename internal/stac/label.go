package stac

// LabelExtension is the schema URL of the STAC label extension.
const LabelExtension = "https://stac-extensions.github.io/label/v1.0.0/schema.json"

// Label types.
const (
	LabelTypeRaster = "raster"
	LabelTypeVector = "vector"
)

// LabelClasses lists the class values of one label property. Name is empty
// for raster labels.
type LabelClasses struct {
	Name    string `json:"name,omitempty"`
	Classes []any  `json:"classes"`
}

// LabelProps are the label:* fields applied to an item.
type LabelProps struct {
	Description string
	Type        string
	Tasks       []string
	Classes     []LabelClasses
	Properties  []string
}

// ApplyLabel writes label extension properties onto item.
func ApplyLabel(item *Item, p LabelProps) {
	item.AddExtension(LabelExtension)
	item.Properties["label:description"] = p.Description
	item.Properties["label:type"] = p.Type
	classes := p.Classes
	if classes == nil {
		classes = []LabelClasses{}
	}
	item.Properties["label:classes"] = classes
	if p.Tasks != nil {
		item.Properties["label:tasks"] = p.Tasks
	}
	if p.Properties != nil {
		item.Properties["label:properties"] = p.Properties
	} else {
		item.Properties["label:properties"] = nil
	}
}

// SourceLink builds a "source" link from a label item to an imagery item.
// labelAsset names the asset on the label item holding the labeled data.
func SourceLink(targetID, labelAsset string) Link {
	if labelAsset == "" {
		labelAsset = "labels"
	}
	return Link{
		Rel:        RelSource,
		TargetID:   targetID,
		MediaType:  MediaTypeGeoTIFF,
		Properties: map[string]any{"label:assets": labelAsset},
	}
}

// LabelsLink builds a "labels" link from an imagery item to a label item.
func LabelsLink(targetID, mediaType string) Link {
	return Link{Rel: RelLabels, TargetID: targetID, MediaType: mediaType}
}
