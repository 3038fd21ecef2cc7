// Package scoring computes pixel-level F1 and IoU between a prediction and
// a ground truth raster, overall and split by an urban land cover mask.
package scoring

import (
	"errors"

	"github.com/rotisserie/eris"
)

// NoDataSentinel replaces masked-out pixels so every variant is scored over
// arrays of the same length.
const NoDataSentinel = -9999.0

// ErrLengthMismatch is returned when the inputs are not on one grid.
var ErrLengthMismatch = errors.New("scoring: raster lengths differ")

// Variant selects which pixels take part in a score.
type Variant string

// Score variants.
const (
	All      Variant = "all"
	Urban    Variant = "urban"
	NotUrban Variant = "not_urban"
)

// Variants lists every variant in report order.
var Variants = []Variant{All, Urban, NotUrban}

// UrbanRange is the inclusive range of land cover codes counted as urban.
// NLCD codes 21 to 24 are the developed classes.
type UrbanRange struct {
	Min float64
	Max float64
}

// DefaultUrbanRange covers NLCD developed land.
var DefaultUrbanRange = UrbanRange{Min: 21, Max: 24}

// Contains reports whether code lies in the range.
func (r UrbanRange) Contains(code float64) bool {
	return code >= r.Min && code <= r.Max
}

// Metrics are the scores of one label.
type Metrics struct {
	F1  float64
	IoU float64
}

// Scores holds per-label metrics for every variant. Metrics slices are
// parallel to Labels.
type Scores struct {
	Labels  []float64
	ByLabel map[Variant][]Metrics
}

// Mean averages the metrics of variant v over all labels.
func (s Scores) Mean(v Variant) Metrics {
	ms := s.ByLabel[v]
	if len(ms) == 0 {
		return Metrics{}
	}
	var out Metrics
	for _, m := range ms {
		out.F1 += m.F1
		out.IoU += m.IoU
	}
	out.F1 /= float64(len(ms))
	out.IoU /= float64(len(ms))
	return out
}

// Score compares pred against truth for each positive label. mask holds
// land cover codes on the same grid and may be nil, in which case the
// urban variant sees no pixels and not_urban equals all.
func Score(pred, truth, mask []float64, urban UrbanRange, labels []float64) (Scores, error) {
	if len(pred) != len(truth) || (mask != nil && len(mask) != len(pred)) {
		return Scores{}, eris.Wrapf(ErrLengthMismatch, "scoring: pred %d, truth %d, mask %d",
			len(pred), len(truth), len(mask))
	}
	if len(labels) == 0 {
		labels = []float64{1}
	}

	isUrban := make([]bool, len(pred))
	for i := range mask {
		isUrban[i] = urban.Contains(mask[i])
	}

	s := Scores{Labels: labels, ByLabel: make(map[Variant][]Metrics, len(Variants))}
	for _, v := range Variants {
		p, t := masked(pred, isUrban, v), masked(truth, isUrban, v)
		for _, label := range labels {
			s.ByLabel[v] = append(s.ByLabel[v], metrics(p, t, label))
		}
	}
	return s, nil
}

// masked returns a copy of values with the pixels outside variant v set
// to NoDataSentinel.
func masked(values []float64, isUrban []bool, v Variant) []float64 {
	if v == All {
		return values
	}
	out := make([]float64, len(values))
	for i, x := range values {
		keep := isUrban[i]
		if v == NotUrban {
			keep = !keep
		}
		if keep {
			out[i] = x
		} else {
			out[i] = NoDataSentinel
		}
	}
	return out
}

// metrics counts agreement on label over pixels where neither side holds
// the sentinel. With no positives on either side the label is perfectly
// predicted and both scores are 1.
func metrics(pred, truth []float64, label float64) Metrics {
	var tp, fp, fn int
	for i := range pred {
		p, t := pred[i], truth[i]
		if p == NoDataSentinel || t == NoDataSentinel {
			continue
		}
		switch {
		case p == label && t == label:
			tp++
		case p == label:
			fp++
		case t == label:
			fn++
		}
	}
	if tp+fp+fn == 0 {
		return Metrics{F1: 1, IoU: 1}
	}
	return Metrics{
		F1:  float64(2*tp) / float64(2*tp+fp+fn),
		IoU: float64(tp) / float64(tp+fp+fn),
	}
}
