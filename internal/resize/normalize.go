package resize

import (
	"math"

	"github.com/samcharles93/ghn/internal/tensor"
)

// Normalize rescales a resized tensor before injection using the fan-in
// scheme. isWeight selects the squashing applied to rank-1 tensors.
//
// Positional encodings (rank > 2, first dim 1, spatial dim >= 11) are
// returned unchanged.
func Normalize(p *tensor.Tensor, isWeight bool) *tensor.Tensor {
	sz := p.Shape
	if len(sz) > 1 {
		if IsPositionalEncoding(sz) {
			return p
		}
		beta := 2.0
		if noActivation(sz) {
			beta = 1.0
		}
		fanIn := tensor.Numel(sz[1:])
		scale := float32(math.Sqrt(beta / float64(fanIn)))
		return p.Map(func(v float32) float32 { return v * scale })
	}
	if isWeight {
		// norm-layer scale in [0,2]
		return p.Map(func(v float32) float32 { return 2 * tensor.Sigmoid(0.5*v) })
	}
	// bias in [-1,1]
	return p.Map(func(v float32) float32 { return tensor.Tanh(0.2 * v) })
}

// IsPositionalEncoding reports whether sz looks like a positional encoding
// tensor of shape (1, C, H, W) with H >= 11.
func IsPositionalEncoding(sz []int) bool {
	return len(sz) > 2 && sz[0] == 1 && sz[2] >= 11
}

// noActivation reports whether the layer is not followed by a ReLU:
// depthwise (in channels 1) or a kernel whose spatial dims shrink.
func noActivation(sz []int) bool {
	if len(sz) <= 2 {
		return false
	}
	if sz[1] == 1 {
		return true
	}
	return len(sz) > 3 && sz[2] < sz[3]
}
