package raster

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCRS = "EPSG:4326"

var chipSpec = Spec{Width: 2, Height: 2, Transform: GeoTransform{0, 1, 0, 2, 0, -1}, CRS: testCRS}

type memReader map[string]Spec

func (m memReader) ReadSpec(_ context.Context, uri string) (Spec, error) {
	s, ok := m[uri]
	if !ok {
		return Spec{}, os.ErrNotExist
	}
	return s, nil
}

func (m memReader) Read(context.Context, string) (*Grid, error) {
	return nil, errors.New("not implemented")
}

type warpCall struct {
	sources []string
	target  Spec
	r       Resampling
	out     string
	opts    WriteOptions
}

// recordingWarper records calls and fails for sources it does not know.
type recordingWarper struct {
	known map[string]bool
	calls []warpCall
}

func (w *recordingWarper) check(sources []string) error {
	for _, s := range sources {
		if !w.known[s] {
			return os.ErrNotExist
		}
	}
	return nil
}

func (w *recordingWarper) Warp(_ context.Context, sources []string, target Spec, r Resampling, out string, opts WriteOptions) error {
	w.calls = append(w.calls, warpCall{sources: sources, target: target, r: r, out: out, opts: opts})
	return w.check(sources)
}

func (w *recordingWarper) WarpGrid(_ context.Context, sources []string, target Spec, r Resampling) (*Grid, error) {
	w.calls = append(w.calls, warpCall{sources: sources, target: target, r: r})
	if err := w.check(sources); err != nil {
		return nil, err
	}
	return NewGrid(target, Byte, nil, 1), nil
}

func testEngine() (*Engine, *recordingWarper) {
	w := &recordingWarper{known: map[string]bool{
		"s3://hand/080902hand.tif": true,
		"s3://hand/080903hand.tif": true,
	}}
	return NewEngine(memReader{"s3://sar/chip/VV.tif": chipSpec}, w), w
}

func TestParseResampling(t *testing.T) {
	for in, want := range map[string]Resampling{"": Bilinear, "bilinear": Bilinear, "Nearest": Nearest, " cubic ": Cubic} {
		got, err := ParseResampling(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseResampling("lanczos")
	assert.Error(t, err)
}

func TestResampling_GDALName(t *testing.T) {
	assert.Equal(t, "near", Nearest.GDALName())
	assert.Equal(t, "bilinear", Bilinear.GDALName())
	assert.Equal(t, "cubic", Cubic.GDALName())
}

func TestSpec_Bounds(t *testing.T) {
	assert.Equal(t, [4]float64{0, 0, 2, 2}, chipSpec.Bounds())
}

func TestSpec_Validate(t *testing.T) {
	require.NoError(t, chipSpec.Validate())

	rotated := chipSpec
	rotated.Transform[4] = 0.1
	assert.ErrorContains(t, rotated.Validate(), "rotated")

	assert.Error(t, Spec{Width: 0, Height: 2, Transform: chipSpec.Transform}.Validate())
	assert.Error(t, Spec{Width: 2, Height: 2}.Validate())
}

func TestGrid_Validate(t *testing.T) {
	g := NewGrid(chipSpec, Float32, Float(-1), -1)
	require.NoError(t, g.Validate())
	assert.Equal(t, []float64{-1, -1, -1, -1}, g.Data)

	g.Data = g.Data[:3]
	assert.Error(t, g.Validate())
}

func TestEngine_AlignWarpsOntoTargetGrid(t *testing.T) {
	e, w := testEngine()

	got, err := e.Align(context.Background(), "s3://hand/080902hand.tif", "s3://sar/chip/VV.tif", "/tmp/HAND.tif", Nearest)
	require.NoError(t, err)
	assert.Equal(t, chipSpec, got)
	require.Len(t, w.calls, 1)
	assert.Equal(t, warpCall{
		sources: []string{"s3://hand/080902hand.tif"},
		target:  chipSpec,
		r:       Nearest,
		out:     "/tmp/HAND.tif",
		opts:    DefaultWriteOptions,
	}, w.calls[0])
}

func TestEngine_AlignManyKeepsSourceOrder(t *testing.T) {
	e, w := testEngine()
	sources := []string{"s3://hand/080903hand.tif", "s3://hand/080902hand.tif"}

	_, err := e.AlignMany(context.Background(), sources, "s3://sar/chip/VV.tif", "/tmp/HAND.tif", Bilinear)
	require.NoError(t, err)
	require.Len(t, w.calls, 1)
	assert.Equal(t, sources, w.calls[0].sources)
}

func TestEngine_WarpTo(t *testing.T) {
	e, w := testEngine()

	g, err := e.WarpTo(context.Background(), "s3://hand/080902hand.tif", chipSpec, Nearest)
	require.NoError(t, err)
	assert.Len(t, g.Data, 4)
	assert.Equal(t, chipSpec, g.Spec)
	assert.Empty(t, w.calls[0].out)

	_, err = e.WarpTo(context.Background(), "s3://missing.tif", chipSpec, Nearest)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = e.WarpTo(context.Background(), "s3://hand/080902hand.tif", Spec{}, Nearest)
	assert.Error(t, err)
}

func TestEngine_Errors(t *testing.T) {
	e, w := testEngine()
	ctx := context.Background()

	_, err := e.AlignMany(ctx, nil, "s3://sar/chip/VV.tif", "/tmp/HAND.tif", Nearest)
	assert.Error(t, err)

	_, err = e.Align(ctx, "s3://hand/080902hand.tif", "s3://sar/chip/VV.tif", "", Nearest)
	assert.ErrorContains(t, err, "no output path")

	_, err = e.Align(ctx, "s3://missing.tif", "s3://sar/chip/VV.tif", "/tmp/HAND.tif", Nearest)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = e.Align(ctx, "s3://hand/080902hand.tif", "s3://missing.tif", "/tmp/HAND.tif", Nearest)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Len(t, w.calls, 1)
}
