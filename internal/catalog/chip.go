// Package catalog builds STAC catalogs for the flood datasets: Sen1Floods11
// chips and labels, HAND rasters, USFIMR flood polygons, JRC monthly water,
// and the train/test/validation splits derived from them.
package catalog

import (
	"errors"
	"iter"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodcat/internal/storage"
)

// DebugLimit caps each listing when a build runs in debug mode.
const DebugLimit = 10

// ErrInvalidChipName is returned when a chip file name does not follow
// {location}_{event}_{suffix}.tif.
var ErrInvalidChipName = errors.New("catalog: invalid chip name")

// ChipKey identifies every chip cut from one scene of one event.
type ChipKey struct {
	Location string
	Event    string
}

func (k ChipKey) String() string {
	return k.Location + "_" + k.Event
}

// ChipName is the parsed form of a chip file name.
type ChipName struct {
	ItemID string
	ChipKey
}

// ParseChipName derives the item id and chip key from a chip URI such as
// s3://sen1floods11-data/QC_v2/Bolivia_103757_QC.tif.
func ParseChipName(uri string) (ChipName, error) {
	base := path.Base(uri)
	itemID, _, _ := strings.Cut(base, ".")
	fields := strings.Split(itemID, "_")
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return ChipName{}, eris.Wrapf(ErrInvalidChipName, "catalog: parse %q", base)
	}
	return ChipName{
		ItemID:  itemID,
		ChipKey: ChipKey{Location: fields[0], Event: fields[1]},
	}, nil
}

// IsGeoTIFF reports whether uri names a .tif or .tiff object.
func IsGeoTIFF(uri string) bool {
	return strings.HasSuffix(uri, ".tif") || strings.HasSuffix(uri, ".tiff")
}

func limitDebug(seq iter.Seq2[string, error], debug bool) iter.Seq2[string, error] {
	if !debug {
		return seq
	}
	return storage.Limit(seq, DebugLimit)
}
