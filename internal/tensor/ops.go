package tensor

import (
	"fmt"
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Tanh computes the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// ReLU clamps negative values to zero.
func ReLU(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}

// ReLUInPlace applies ReLU to every element of t.
func ReLUInPlace(t *Tensor) {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
}

// Linear is a dense affine layer y = x·Wᵀ + b. W has shape (Out, In) and B
// has shape (Out) or is nil.
type Linear struct {
	W *Tensor
	B *Tensor
}

// NewLinear allocates a layer with seeded uniform fan-in initialisation.
func NewLinear(in, out int, seed int64) Linear {
	l := Linear{W: New(out, in), B: New(out)}
	bound := float32(1 / math.Sqrt(float64(in)))
	FillRand(l.W, seed, bound)
	FillRand(l.B, seed+1, bound)
	return l
}

func (l Linear) In() int  { return l.W.Shape[1] }
func (l Linear) Out() int { return l.W.Shape[0] }

// Forward applies the layer to the last dimension of x. x must have
// In() as its trailing dimension; leading dimensions are treated as a batch.
func (l Linear) Forward(x *Tensor) (*Tensor, error) {
	if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1] != l.In() {
		return nil, fmt.Errorf("%w: linear %v expects trailing dim %d, got %v", ErrShape, l.W.Shape, l.In(), x.Shape)
	}
	in, out := l.In(), l.Out()
	rows := Numel(x.Shape[:len(x.Shape)-1])
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = out
	y := New(shape...)
	for r := range rows {
		src := x.Data[r*in : (r+1)*in]
		dst := y.Data[r*out : (r+1)*out]
		for o := range out {
			v := Dot(l.W.Data[o*in:(o+1)*in], src)
			if l.B != nil {
				v += l.B.Data[o]
			}
			dst[o] = v
		}
	}
	return y, nil
}

// MLP is a stack of Linear layers with ReLU between them. When LastReLU is
// set the activation is applied after the final layer too.
type MLP struct {
	Layers   []Linear
	LastReLU bool
}

// Forward runs x through every layer.
func (m MLP) Forward(x *Tensor) (*Tensor, error) {
	var err error
	for i, l := range m.Layers {
		x, err = l.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i < len(m.Layers)-1 || m.LastReLU {
			ReLUInPlace(x)
		}
	}
	return x, nil
}

// LayerNorm normalises each row of the trailing dimension to zero mean and
// unit variance, then applies the affine Gamma/Beta of that width.
type LayerNorm struct {
	Gamma *Tensor
	Beta  *Tensor
	Eps   float32
}

// NewLayerNorm returns an identity-initialised layer norm of width n.
func NewLayerNorm(n int) LayerNorm {
	ln := LayerNorm{Gamma: New(n), Beta: New(n), Eps: 1e-5}
	for i := range ln.Gamma.Data {
		ln.Gamma.Data[i] = 1
	}
	return ln
}

// Forward normalises x in place and returns it.
func (ln LayerNorm) Forward(x *Tensor) *Tensor {
	n := len(ln.Gamma.Data)
	for r := 0; r+n <= len(x.Data); r += n {
		row := x.Data[r : r+n]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(n)
		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(n)
		inv := 1 / math.Sqrt(variance+float64(ln.Eps))
		for i, v := range row {
			row[i] = float32((float64(v)-mean)*inv)*ln.Gamma.Data[i] + ln.Beta.Data[i]
		}
	}
	return x
}
