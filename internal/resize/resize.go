// Package resize turns a decoder's canonically shaped prediction into a
// tensor of the exact shape a target parameter needs.
package resize

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ghn/internal/tensor"
)

// ErrShapeAlgebra is returned when prediction and target ranks cannot be
// reconciled. It always indicates a bucketing defect upstream.
var ErrShapeAlgebra = errors.New("shape algebra error")

// Resize slices then tiles pred into the target shape.
//
// Slicing happens first so an oversized prediction is never tiled. When pred
// has more dimensions than target, the extra trailing dimensions are indexed
// at 0. Tiling repeats along dimension 0 and then dimension 1 and cuts back to
// the target size. The result is a pure function of (pred.Shape, target).
func Resize(pred *tensor.Tensor, target []int) (*tensor.Tensor, error) {
	t, s := target, pred.Shape
	if len(t) == 0 || len(s) < len(t) {
		return nil, fmt.Errorf("%w: predicted %s, target %s", ErrShapeAlgebra, tensor.FormatShape(s), tensor.FormatShape(t))
	}
	for _, d := range t {
		if d <= 0 {
			return nil, fmt.Errorf("%w: non-positive target %s", ErrShapeAlgebra, tensor.FormatShape(t))
		}
	}

	cut := make([]int, len(t))
	for i := range t {
		cut[i] = min(t[i], s[i])
	}
	w := pred.Crop(cut)
	if w.Rank() != len(t) {
		return nil, fmt.Errorf("%w: sliced %s, target %s", ErrShapeAlgebra, tensor.FormatShape(w.Shape), tensor.FormatShape(t))
	}
	for _, d := range w.Shape {
		if d == 0 {
			return nil, fmt.Errorf("%w: empty prediction %s", ErrShapeAlgebra, tensor.FormatShape(s))
		}
	}

	for dim := 0; dim < min(2, len(t)); dim++ {
		if n := w.Shape[dim]; t[dim] > n {
			w = w.Repeat(dim, ceilDiv(t[dim], n))
		}
	}

	// Only the channel dims are tiled; a kernel larger than the prediction
	// cannot be produced.
	for i := range t {
		if w.Shape[i] < t[i] {
			return nil, fmt.Errorf("%w: resized %s, target %s", ErrShapeAlgebra, tensor.FormatShape(w.Shape), tensor.FormatShape(t))
		}
	}
	// Repeat can overshoot; chop back to the exact target.
	if !tensor.Equal(w.Shape, t) {
		w = w.Crop(t)
	}
	return w, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
