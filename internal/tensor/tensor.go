package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

var (
	ErrShape   = errors.New("invalid tensor shape")
	ErrDataLen = errors.New("tensor data length mismatch")
)

// Tensor is a dense row-major N-dimensional array of float32 values.
//
// Shape lists the size of every dimension, outermost first. Data holds
// Numel(Shape) values. Views returned by Select share Data with their parent;
// every other operation allocates.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero-initialised tensor of the given shape.
func New(shape ...int) *Tensor {
	n := Numel(shape)
	if n < 0 {
		panic("negative dimension for tensor")
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// FromData wraps data as a tensor. len(data) must equal the product of shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n := Numel(shape)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrShape, shape)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v wants %d values, got %d", ErrDataLen, shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Numel returns the number of elements of a tensor with the given shape, or
// -1 if any dimension is negative. An empty shape is a scalar.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// Equal reports whether two shapes are identical.
func Equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatShape renders a shape the way it appears in logs: (512,256,3,3).
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (t *Tensor) Rank() int { return len(t.Shape) }

func (t *Tensor) Numel() int { return len(t.Data) }

func (t *Tensor) String() string {
	return "tensor" + FormatShape(t.Shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// View reinterprets the data with a new shape. At most one dimension may be
// -1, in which case it is inferred. The returned tensor shares Data.
func (t *Tensor) View(shape ...int) (*Tensor, error) {
	out := append([]int(nil), shape...)
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			return nil, fmt.Errorf("%w: view %v", ErrShape, shape)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(t.Data)%known != 0 {
			return nil, fmt.Errorf("%w: cannot view %v as %v", ErrShape, t.Shape, shape)
		}
		out[infer] = len(t.Data) / known
		known *= out[infer]
	}
	if known != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot view %v as %v", ErrShape, t.Shape, shape)
	}
	return &Tensor{Shape: out, Data: t.Data}, nil
}

// Select returns the i-th sub-tensor along dimension 0. The result shares
// Data with t.
func (t *Tensor) Select(i int) *Tensor {
	if len(t.Shape) == 0 {
		panic("select on scalar tensor")
	}
	if i < 0 || i >= t.Shape[0] {
		panic("select index out of range")
	}
	inner := Numel(t.Shape[1:])
	return &Tensor{
		Shape: append([]int(nil), t.Shape[1:]...),
		Data:  t.Data[i*inner : (i+1)*inner],
	}
}

// Gather stacks the given rows of a rank-2 tensor into a new (len(rows), C)
// tensor, in the order given.
func (t *Tensor) Gather(rows []int) *Tensor {
	if len(t.Shape) != 2 {
		panic("gather requires a rank-2 tensor")
	}
	c := t.Shape[1]
	out := New(len(rows), c)
	for i, r := range rows {
		copy(out.Data[i*c:(i+1)*c], t.Data[r*c:(r+1)*c])
	}
	return out
}

// Crop copies the leading corner [:sizes[0], :sizes[1], ...] of t. Dimensions
// past len(sizes) are indexed at 0 and dropped, so Crop can also reduce rank.
// Every size must be in [0, Shape[i]].
func (t *Tensor) Crop(sizes []int) *Tensor {
	if len(sizes) > len(t.Shape) {
		panic("crop rank exceeds tensor rank")
	}
	for i, s := range sizes {
		if s < 0 || s > t.Shape[i] {
			panic("crop size out of range")
		}
	}
	out := New(sizes...)
	if len(out.Data) == 0 {
		return out
	}
	strides := Strides(t.Shape)
	idx := make([]int, len(sizes))
	for o := range out.Data {
		off := 0
		for d, v := range idx {
			off += v * strides[d]
		}
		out.Data[o] = t.Data[off]
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < sizes[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Repeat tiles t n times along dimension dim.
func (t *Tensor) Repeat(dim, n int) *Tensor {
	if dim < 0 || dim >= len(t.Shape) {
		panic("repeat dimension out of range")
	}
	if n < 1 {
		panic("repeat count must be positive")
	}
	shape := append([]int(nil), t.Shape...)
	shape[dim] *= n
	out := New(shape...)
	outer := Numel(t.Shape[:dim])
	block := Numel(t.Shape[dim:])
	for o := range outer {
		src := t.Data[o*block : (o+1)*block]
		dst := out.Data[o*block*n : (o+1)*block*n]
		for r := range n {
			copy(dst[r*block:(r+1)*block], src)
		}
	}
	return out
}

// Strides returns the row-major element strides of shape.
func Strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Map returns a new tensor with fn applied element-wise.
func (t *Tensor) Map(fn func(float32) float32) *Tensor {
	out := &Tensor{Shape: append([]int(nil), t.Shape...), Data: make([]float32, len(t.Data))}
	for i, v := range t.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// FillRand fills t with reproducible pseudo-random values drawn uniformly from
// (-scale, scale). The same seed always produces the same tensor.
func FillRand(t *Tensor, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float32()*2 - 1) * scale
	}
}

// Stats summarises the values of a tensor.
type Stats struct {
	Min, Max, Mean, Std, Norm float64
}

// Summarize computes min, max, mean, sample std and L2 norm of t.
func (t *Tensor) Summarize() Stats {
	if len(t.Data) == 0 {
		return Stats{}
	}
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum, sq float64
	for _, v := range t.Data {
		f := float64(v)
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		sum += f
		sq += f * f
	}
	n := float64(len(t.Data))
	s.Mean = sum / n
	s.Norm = math.Sqrt(sq)
	if len(t.Data) > 1 {
		s.Std = math.Sqrt(math.Max(0, (sq-n*s.Mean*s.Mean)/(n-1)))
	}
	return s
}

// Permute returns a copy of t with its dimensions reordered: output
// dimension i is input dimension perm[i].
func (t *Tensor) Permute(perm ...int) *Tensor {
	if len(perm) != len(t.Shape) {
		panic("permute rank mismatch")
	}
	seen := make([]bool, len(perm))
	shape := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			panic("invalid permutation")
		}
		seen[p] = true
		shape[i] = t.Shape[p]
	}
	out := New(shape...)
	if len(out.Data) == 0 {
		return out
	}
	src := Strides(t.Shape)
	idx := make([]int, len(shape))
	for o := range out.Data {
		off := 0
		for d, v := range idx {
			off += v * src[perm[d]]
		}
		out.Data[o] = t.Data[off]
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Concat stacks tensors along dimension 0. All inputs must agree on the
// remaining dimensions.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: concat of nothing", ErrShape)
	}
	inner := ts[0].Shape[1:]
	rows := 0
	for _, t := range ts {
		if len(t.Shape) == 0 || !Equal(t.Shape[1:], inner) {
			return nil, fmt.Errorf("%w: concat %v with %v", ErrShape, ts[0].Shape, t.Shape)
		}
		rows += t.Shape[0]
	}
	shape := append([]int{rows}, inner...)
	out := &Tensor{Shape: shape, Data: make([]float32, 0, Numel(shape))}
	for _, t := range ts {
		out.Data = append(out.Data, t.Data...)
	}
	return out, nil
}
