package tensor

import (
	"errors"
	"math"
	"testing"
)

func seq(shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = float32(i)
	}
	return t
}

func TestViewInfersDimension(t *testing.T) {
	t.Parallel()
	x := seq(3, 8)
	v, err := x.View(3, 2, -1)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !Equal(v.Shape, []int{3, 2, 4}) {
		t.Fatalf("shape: got %v", v.Shape)
	}
	v.Data[0] = 42
	if x.Data[0] != 42 {
		t.Fatal("view must share data with its parent")
	}
	if _, err := x.View(5, -1); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestSelectSharesData(t *testing.T) {
	t.Parallel()
	x := seq(2, 3, 4)
	s := x.Select(1)
	if !Equal(s.Shape, []int{3, 4}) {
		t.Fatalf("shape: got %v", s.Shape)
	}
	if s.Data[0] != 12 {
		t.Fatalf("first value: got %v want 12", s.Data[0])
	}
}

func TestCropLeadingCorner(t *testing.T) {
	t.Parallel()
	x := seq(3, 4)
	c := x.Crop([]int{2, 2})
	want := []float32{0, 1, 4, 5}
	for i, v := range want {
		if c.Data[i] != v {
			t.Fatalf("crop[%d]=%v want %v", i, c.Data[i], v)
		}
	}
}

func TestCropReducesRank(t *testing.T) {
	t.Parallel()
	x := seq(4, 2, 3, 3)
	c := x.Crop([]int{3})
	if !Equal(c.Shape, []int{3}) {
		t.Fatalf("shape: got %v", c.Shape)
	}
	// x[i,0,0,0] = i*18
	for i, v := range c.Data {
		if v != float32(i*18) {
			t.Fatalf("crop[%d]=%v want %v", i, v, i*18)
		}
	}
}

func TestRepeatAlongDims(t *testing.T) {
	t.Parallel()
	x := seq(2, 2)

	r0 := x.Repeat(0, 2)
	want0 := []float32{0, 1, 2, 3, 0, 1, 2, 3}
	if !Equal(r0.Shape, []int{4, 2}) {
		t.Fatalf("repeat dim0 shape: %v", r0.Shape)
	}
	for i, v := range want0 {
		if r0.Data[i] != v {
			t.Fatalf("repeat dim0 [%d]=%v want %v", i, r0.Data[i], v)
		}
	}

	r1 := x.Repeat(1, 3)
	want1 := []float32{0, 1, 0, 1, 0, 1, 2, 3, 2, 3, 2, 3}
	if !Equal(r1.Shape, []int{2, 6}) {
		t.Fatalf("repeat dim1 shape: %v", r1.Shape)
	}
	for i, v := range want1 {
		if r1.Data[i] != v {
			t.Fatalf("repeat dim1 [%d]=%v want %v", i, r1.Data[i], v)
		}
	}
}

func TestGatherKeepsOrder(t *testing.T) {
	t.Parallel()
	x := seq(4, 2)
	g := x.Gather([]int{3, 0})
	want := []float32{6, 7, 0, 1}
	for i, v := range want {
		if g.Data[i] != v {
			t.Fatalf("gather[%d]=%v want %v", i, g.Data[i], v)
		}
	}
}

func TestFillRandDeterministic(t *testing.T) {
	t.Parallel()
	a, b := New(16), New(16)
	FillRand(a, 7, 0.5)
	FillRand(b, 7, 0.5)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("value %d differs for same seed", i)
		}
		if a.Data[i] <= -0.5 || a.Data[i] >= 0.5 {
			t.Fatalf("value %d out of range: %v", i, a.Data[i])
		}
	}
}

func TestLinearForward(t *testing.T) {
	t.Parallel()
	l := Linear{
		W: &Tensor{Shape: []int{2, 3}, Data: []float32{1, 0, 0, 0, 1, 1}},
		B: &Tensor{Shape: []int{2}, Data: []float32{0.5, -1}},
	}
	x := &Tensor{Shape: []int{1, 3}, Data: []float32{2, 3, 4}}
	y, err := l.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if y.Data[0] != 2.5 || y.Data[1] != 6 {
		t.Fatalf("got %v", y.Data)
	}
	if _, err := l.Forward(New(1, 2)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestLayerNormZeroMean(t *testing.T) {
	t.Parallel()
	ln := NewLayerNorm(4)
	x := &Tensor{Shape: []int{1, 4}, Data: []float32{1, 2, 3, 4}}
	ln.Forward(x)
	var sum float64
	for _, v := range x.Data {
		sum += float64(v)
	}
	if math.Abs(sum) > 1e-5 {
		t.Fatalf("mean not zero: %v", sum/4)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	x := &Tensor{Shape: []int{4}, Data: []float32{-1, 1, -1, 1}}
	s := x.Summarize()
	if s.Min != -1 || s.Max != 1 || s.Mean != 0 || s.Norm != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestPermute(t *testing.T) {
	t.Parallel()
	x := seq(2, 3)
	p := x.Permute(1, 0)
	if !Equal(p.Shape, []int{3, 2}) {
		t.Fatalf("shape: got %v", p.Shape)
	}
	want := []float32{0, 3, 1, 4, 2, 5}
	for i, v := range want {
		if p.Data[i] != v {
			t.Fatalf("permute[%d]=%v want %v", i, p.Data[i], v)
		}
	}
	y := seq(2, 3, 4)
	back := y.Permute(2, 0, 1).Permute(1, 2, 0)
	for i := range y.Data {
		if back.Data[i] != y.Data[i] {
			t.Fatalf("permute round trip differs at %d", i)
		}
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()
	c, err := Concat(seq(1, 2), seq(2, 2))
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if !Equal(c.Shape, []int{3, 2}) || c.Data[2] != 0 || c.Data[5] != 3 {
		t.Fatalf("concat: %v %v", c.Shape, c.Data)
	}
	if _, err := Concat(seq(1, 2), seq(1, 3)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}
