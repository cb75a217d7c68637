package arch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/ghn/internal/tensor"
)

const tinyNet = `
name: tiny
cells: 2
modules:
  - name: stem.conv
    kind: conv
    cell: 0
    weight: [8, 3, 3, 3]
  - name: stem.bn
    kind: batchnorm
    cell: 0
    weight: [8]
    bias: [8]
  - name: classifier
    kind: linear
    cell: 1
    weight: [10, 8]
    bias: [10]
`

func TestParseAllocatesSlots(t *testing.T) {
	t.Parallel()
	n, err := Parse([]byte(tinyNet))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Cells != 2 || len(n.Modules) != 3 {
		t.Fatalf("unexpected net %+v", n)
	}
	want := 8*3*3*3 + 8 + 8 + 10*8 + 10
	if got := n.NumParams(); got != want {
		t.Fatalf("NumParams: got %d want %d", got, want)
	}
	bn, ok := n.Module("stem.bn")
	if !ok || !bn.TrackRunningStats {
		t.Fatal("batch norm must track running stats by default")
	}
}

func TestPoolClaimAndRemaining(t *testing.T) {
	t.Parallel()
	n, err := Parse([]byte(tinyNet))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := n.Pool()
	if p.NumCells() != 2 {
		t.Fatalf("cells: got %d", p.NumCells())
	}
	d, ok := p.Lookup(0, "stem.conv.weight")
	if !ok || !d.IsWeight || !tensor.Equal(d.Shape, []int{8, 3, 3, 3}) {
		t.Fatalf("lookup: %+v %v", d, ok)
	}
	if _, ok := p.Lookup(1, "stem.conv.weight"); ok {
		t.Fatal("descriptors are scoped to their cell")
	}
	p.Claim(0, "stem.conv.weight")
	if _, ok := p.Lookup(0, "stem.conv.weight"); ok {
		t.Fatal("claimed descriptor must not resolve again")
	}
	rem := p.Remaining(0)
	if len(rem) != 2 || rem[0].Path != "stem.bn.weight" || rem[1].Path != "stem.bn.bias" {
		t.Fatalf("remaining: %+v", rem)
	}
}

func TestSlotBindAliases(t *testing.T) {
	t.Parallel()
	s := NewSlot(2, 2)
	pred := tensor.New(2, 2)
	if err := s.Bind(pred); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	pred.Data[0] = 3
	if s.Data.Data[0] != 3 || s.State != Injected {
		t.Fatal("bound slot must alias the predicted tensor")
	}
}

func TestSlotCopyDoesNotAlias(t *testing.T) {
	t.Parallel()
	s := NewSlot(2, 2)
	storage := s.Data
	pred := tensor.New(2, 2)
	pred.Data[1] = 5
	if err := s.Copy(pred); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	pred.Data[1] = 9
	if s.Data != storage || s.Data.Data[1] != 5 {
		t.Fatal("copied slot must keep its own storage")
	}
}

func TestSlotShapeMismatch(t *testing.T) {
	t.Parallel()
	s := NewSlot(4)
	if err := s.Copy(tensor.New(3)); !errors.Is(err, ErrSlotShape) {
		t.Fatalf("expected ErrSlotShape, got %v", err)
	}
	if s.State != Inconsistent {
		t.Fatalf("state: got %v", s.State)
	}
	s.Clear()
	if err := s.Copy(tensor.New(4)); !errors.Is(err, ErrSlotCleared) {
		t.Fatalf("expected ErrSlotCleared, got %v", err)
	}
}

func TestLayerScaleTakesWeightRole(t *testing.T) {
	t.Parallel()
	n := &Net{Name: "ls", Cells: 1, Modules: []*Module{{
		Name:       "block",
		Kind:       KindOther,
		Weight:     NewSlot(4, 4),
		LayerScale: NewSlot(4, 1, 1),
	}}}
	d, ok := n.Pool().Lookup(0, "block.weight")
	if !ok || !tensor.Equal(d.Shape, []int{4, 1, 1}) {
		t.Fatalf("layer scale descriptor: %+v", d)
	}
}

func TestBatchNormTrain(t *testing.T) {
	t.Parallel()
	n, err := Parse([]byte(tinyNet))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := n.SetBatchNormTrain(); got != 1 {
		t.Fatalf("switched %d layers", got)
	}
	bn, _ := n.Module("stem.bn")
	if !bn.Training || bn.TrackRunningStats {
		t.Fatalf("bn state: %+v", bn)
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	t.Parallel()
	n, err := Parse([]byte(tinyNet))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "net.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if back.NumParams() != n.NumParams() {
		t.Fatalf("params: got %d want %d", back.NumParams(), n.NumParams())
	}
}

func TestParseRejectsNonPositiveDims(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, body string
	}{
		{"negative weight", "modules:\n  - name: fc\n    weight: [-4, 3]\n"},
		{"zero weight", "modules:\n  - name: fc\n    weight: [4, 0]\n"},
		{"negative bias", "modules:\n  - name: fc\n    weight: [4, 3]\n    bias: [-4]\n"},
		{"negative layer scale", "modules:\n  - name: ls\n    layer_scale: [-1]\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.body)); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestParseRejectsBadCell(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("cells: 1\nmodules:\n  - name: a\n    cell: 3\n    weight: [2]\n"))
	if err == nil {
		t.Fatal("expected an error for an out-of-range cell")
	}
}
