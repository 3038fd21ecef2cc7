package raster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Reader opens rasters by URI.
type Reader interface {
	// ReadSpec reads only the grid of uri.
	ReadSpec(ctx context.Context, uri string) (Spec, error)
	// Read reads band 1 of uri.
	Read(ctx context.Context, uri string) (*Grid, error)
}

// WriteOptions control the encoding of an output raster.
type WriteOptions struct {
	Compress string
	Tiled    bool
}

// DefaultWriteOptions writes LZW-compressed tiled rasters.
var DefaultWriteOptions = WriteOptions{Compress: "LZW", Tiled: true}

// Warper reprojects and resamples sources onto a target grid. Sources are
// composited first-wins: a pixel takes the first source in order with
// data there. Only the source windows covering the target are read.
type Warper interface {
	// Warp writes the composite to the local path out.
	Warp(ctx context.Context, sourceURIs []string, target Spec, r Resampling, out string, opts WriteOptions) error
	// WarpGrid returns the composite in memory.
	WarpGrid(ctx context.Context, sourceURIs []string, target Spec, r Resampling) (*Grid, error)
}

// Engine aligns rasters onto the grid of a target raster.
type Engine struct {
	Reader Reader
	Warper Warper
	Write  WriteOptions
}

// NewEngine returns an engine writing with DefaultWriteOptions.
func NewEngine(r Reader, w Warper) *Engine {
	return &Engine{Reader: r, Warper: w, Write: DefaultWriteOptions}
}

// WarpTo warps sourceURI onto target and returns the samples. Memory is
// bounded by the target grid, not the source.
func (e *Engine) WarpTo(ctx context.Context, sourceURI string, target Spec, r Resampling) (*Grid, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	g, err := e.Warper.WarpGrid(ctx, []string{sourceURI}, target, r)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: warp %s", sourceURI)
	}
	return g, nil
}

// Align warps sourceURI onto the grid of targetURI and writes the result
// to out.
func (e *Engine) Align(ctx context.Context, sourceURI, targetURI, out string, r Resampling) (Spec, error) {
	return e.AlignMany(ctx, []string{sourceURI}, targetURI, out, r)
}

// AlignMany warps every source onto the grid of targetURI, composites them
// first-wins in input order and writes the result to out. It returns the
// target grid.
func (e *Engine) AlignMany(ctx context.Context, sourceURIs []string, targetURI, out string, r Resampling) (Spec, error) {
	if len(sourceURIs) == 0 {
		return Spec{}, eris.New("raster: no source rasters")
	}
	if out == "" {
		return Spec{}, eris.New("raster: no output path")
	}
	target, err := e.Reader.ReadSpec(ctx, targetURI)
	if err != nil {
		return Spec{}, eris.Wrapf(err, "raster: read target %s", targetURI)
	}
	if err := target.Validate(); err != nil {
		return Spec{}, eris.Wrapf(err, "raster: target %s", targetURI)
	}

	if err := e.Warper.Warp(ctx, sourceURIs, target, r, out, e.Write); err != nil {
		return Spec{}, eris.Wrapf(err, "raster: warp onto %s", targetURI)
	}
	zap.L().Info("raster: aligned",
		zap.Strings("sources", sourceURIs),
		zap.String("target", targetURI),
		zap.String("out", out),
		zap.String("resampling", r.String()),
		zap.Int("width", target.Width),
		zap.Int("height", target.Height),
	)
	return target, nil
}
