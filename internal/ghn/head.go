package ghn

import (
	"fmt"

	"github.com/samcharles93/ghn/internal/mapping"
	"github.com/samcharles93/ghn/internal/tensor"
)

// Head selects the decoder path of a bucket. It is resolved once from the
// bucket's shape key.
type Head int

const (
	// HeadTensor decodes rank-4 keys with the conv decoder.
	HeadTensor Head = iota
	// HeadClassWeight decodes classification weights with the conv decoder
	// in class mode.
	HeadClassWeight
	// HeadPlainVector decodes rank-3 keys (layer scales) with the vector
	// decoder viewed as (n,-1,1,1).
	HeadPlainVector
	// HeadNormPair decodes 1D weights and biases with the vector decoder
	// viewed as (n,2,-1); slot 0 feeds the bias, slot 1 the weight.
	HeadNormPair
	// HeadClassBias is HeadNormPair followed by the class-bias projection.
	HeadClassBias
)

// HeadFor resolves the decoder path of a bucket key.
func HeadFor(k mapping.ShapeKey) Head {
	switch {
	case k.Rank == 4:
		return HeadTensor
	case k.Rank == 3:
		return HeadPlainVector
	case k.IsClassWeight():
		return HeadClassWeight
	case k.IsClassBias():
		return HeadClassBias
	default:
		return HeadNormPair
	}
}

func (h Head) String() string {
	switch h {
	case HeadTensor:
		return "tensor"
	case HeadClassWeight:
		return "class-weight"
	case HeadPlainVector:
		return "vector"
	case HeadNormPair:
		return "norm-pair"
	case HeadClassBias:
		return "class-bias"
	default:
		return fmt.Sprintf("Head(%d)", int(h))
	}
}

// IsClassLayer reports whether the head predicts classification-layer
// parameters, which fine-tuning leaves alone.
func (h Head) IsClassLayer() bool {
	return h == HeadClassWeight || h == HeadClassBias
}

// pairIndex returns the slot of a (n,2,-1) vector output feeding a role.
func pairIndex(isWeight bool) int {
	if isWeight {
		return 1
	}
	return 0
}

// decode runs the head on the gathered embeddings x (n, hid) and returns
// one prediction per row.
func (m *Model) decode(h Head, k mapping.ShapeKey, x *tensor.Tensor) (*tensor.Tensor, error) {
	n := x.Shape[0]
	switch h {
	case HeadTensor:
		return m.decoder.Forward(x, [2]int{k.Dims[2], k.Dims[3]}, false)
	case HeadClassWeight:
		return m.decoder.Forward(x, [2]int{1, 1}, true)
	}

	v, err := m.decoder1D.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("vector decoder: %w", err)
	}
	switch h {
	case HeadPlainVector:
		return v.View(n, -1, 1, 1)
	case HeadNormPair:
		return v.View(n, 2, -1)
	case HeadClassBias:
		v, err = v.View(n, 2, -1)
		if err != nil {
			return nil, err
		}
		v = v.Map(tensor.ReLU)
		return m.biasClass.Forward(v)
	default:
		return nil, fmt.Errorf("unknown head %v", h)
	}
}

// component picks the prediction for one role of an entry from a bucket
// output. Rank-1 targets read one slot of the (2,-1) pair.
func component(out *tensor.Tensor, pos int, rank int, isWeight bool) (*tensor.Tensor, error) {
	w := out.Select(pos)
	if rank != 1 {
		return w, nil
	}
	if w.Rank() < 2 || w.Shape[0] != 2 {
		return nil, fmt.Errorf("%w: rank-1 target from %s prediction", ErrInjectionShapeMismatch, tensor.FormatShape(w.Shape))
	}
	return w.Select(pairIndex(isWeight)), nil
}
