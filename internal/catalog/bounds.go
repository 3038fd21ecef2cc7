package catalog

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BoundsReader reads the [minx, miny, maxx, maxy] bounds of a raster.
type BoundsReader interface {
	Bounds(ctx context.Context, uri string) ([4]float64, error)
}

// BoundsCache remembers chip bounds per chip key. All chips of one
// location and event share a footprint, so each key costs one header read.
type BoundsCache struct {
	reader BoundsReader

	mu     sync.Mutex
	bounds map[ChipKey][4]float64
	reads  int
}

// NewBoundsCache wraps reader with an empty cache.
func NewBoundsCache(reader BoundsReader) *BoundsCache {
	return &BoundsCache{reader: reader, bounds: make(map[ChipKey][4]float64)}
}

// Get returns the cached bounds for key, reading them from uri on a miss.
func (c *BoundsCache) Get(ctx context.Context, key ChipKey, uri string) ([4]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bounds[key]; ok {
		return b, nil
	}
	b, err := c.reader.Bounds(ctx, uri)
	if err != nil {
		return [4]float64{}, eris.Wrapf(err, "catalog: read bounds of %s", uri)
	}
	c.reads++
	c.bounds[key] = b
	zap.L().Debug("catalog: cached chip bounds",
		zap.String("key", key.String()),
		zap.Float64s("bounds", b[:]),
	)
	return b, nil
}

// Reads returns how many header reads the cache has issued.
func (c *BoundsCache) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
