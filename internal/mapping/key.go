package mapping

import (
	"fmt"

	"github.com/samcharles93/ghn/internal/resize"
	"github.com/samcharles93/ghn/internal/tensor"
)

// ShapeKey is the canonical shape signature used to batch tensors for one
// decoder call. It is comparable and can be used as a map key.
//
// Rank-2 keys encode their role in the second element: > 0 for a
// classification weight, 0 for a plain vector, -1 for a classification bias.
type ShapeKey struct {
	Rank int
	Dims [4]int
}

func Key2(a, b int) ShapeKey       { return ShapeKey{Rank: 2, Dims: [4]int{a, b}} }
func Key3(a, b, c int) ShapeKey    { return ShapeKey{Rank: 3, Dims: [4]int{a, b, c}} }
func Key4(a, b, c, d int) ShapeKey { return ShapeKey{Rank: 4, Dims: [4]int{a, b, c, d}} }

// Shape returns the key as a tuple.
func (k ShapeKey) Shape() []int {
	return append([]int(nil), k.Dims[:k.Rank]...)
}

func (k ShapeKey) String() string {
	return tensor.FormatShape(k.Shape())
}

// IsClassWeight reports a classification-layer weight key.
func (k ShapeKey) IsClassWeight() bool { return k.Rank == 2 && k.Dims[1] > 0 }

// IsClassBias reports a classification-layer bias key.
func (k ShapeKey) IsClassBias() bool { return k.Rank == 2 && k.Dims[1] < 0 }

// IsVector reports a plain 1D (weight/bias or norm pair) key.
func (k ShapeKey) IsVector() bool { return k.Rank == 2 && k.Dims[1] == 0 }

// IsClassLayer reports whether the key belongs to the classification head.
func (k ShapeKey) IsClassLayer() bool { return k.IsClassWeight() || k.IsClassBias() }

// Reduce canonicalises one dimension n against the cap m. Sizes divisible
// by 3 are scaled by 4/3 to match the decoder's channel grouping, and sizes
// at or above m/2 snap to m so the number of distinct keys stays small.
//
// The 4/3 step is repeated until the size is no longer divisible by 3, which
// keeps Reduce idempotent. It differs from a single step for sizes such as
// 18 against 64 (64, not 24) and 9 against 256 (16, not 12).
func Reduce(n, m int) int {
	r := min(n, m)
	for r > 0 && r%3 == 0 && float64(r) < float64(m)/2 {
		r = r / 3 * 4
	}
	if float64(r) >= float64(m)/2 {
		r = m
	}
	return r
}

// KeyFor builds the bucket key of a raw parameter shape. Spatial kernel
// dimensions of rank-4 shapes are kept as is.
func KeyFor(shape []int, lastWeight, lastBias bool, maxShape [4]int) (ShapeKey, error) {
	r := func(j int) int { return Reduce(shape[j], maxShape[j]) }
	switch {
	case len(shape) == 1:
		if lastBias {
			return Key2(r(0), -1), nil
		}
		return Key2(r(0), 0), nil
	case len(shape) >= 2 && lastWeight:
		return Key2(r(0), r(1)), nil
	case len(shape) == 2:
		return Key4(r(0), r(1), 1, 1), nil
	case len(shape) == 3:
		return Key3(r(0), r(1), r(2)), nil
	case len(shape) == 4:
		return Key4(r(0), r(1), shape[2], shape[3]), nil
	default:
		return ShapeKey{}, fmt.Errorf("%w: no bucket key for shape %s", resize.ErrShapeAlgebra, tensor.FormatShape(shape))
	}
}
