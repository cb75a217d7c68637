package mapping

import (
	"errors"
	"testing"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/resize"
)

var testMax = [4]int{64, 64, 11, 11}

func TestReduceIdempotent(t *testing.T) {
	t.Parallel()
	for _, m := range []int{1, 2, 3, 8, 16, 64, 96, 256, 2048} {
		for n := 1; n <= 3*m; n++ {
			r := Reduce(n, m)
			if again := Reduce(r, m); again != r {
				t.Fatalf("Reduce(%d,%d)=%d but Reduce(%d,%d)=%d", n, m, r, r, m, again)
			}
			if r <= 0 {
				t.Fatalf("Reduce(%d,%d)=%d must be positive", n, m, r)
			}
		}
	}
}

func TestReduceValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, m, want int
	}{
		{n: 512, m: 256, want: 256},
		{n: 256, m: 256, want: 256},
		{n: 129, m: 256, want: 256},
		{n: 100, m: 256, want: 100},
		{n: 3, m: 64, want: 4},
		{n: 6, m: 64, want: 8},
		{n: 24, m: 64, want: 64},
		{n: 10, m: 64, want: 10},
		// Repeated 4/3 steps: a single step would give 24 and 12.
		{n: 18, m: 64, want: 64},
		{n: 9, m: 256, want: 16},
	}
	for _, tt := range tests {
		if got := Reduce(tt.n, tt.m); got != tt.want {
			t.Fatalf("Reduce(%d,%d)=%d want %d", tt.n, tt.m, got, tt.want)
		}
	}
}

func TestKeyFor(t *testing.T) {
	t.Parallel()
	max256 := [4]int{256, 256, 3, 3}
	tests := []struct {
		name       string
		shape      []int
		lastW      bool
		lastB      bool
		max        [4]int
		want       ShapeKey
		wantVector bool
	}{
		{name: "conv", shape: []int{512, 256, 3, 3}, max: max256, want: Key4(256, 256, 3, 3)},
		{name: "norm", shape: []int{64}, max: testMax, want: Key2(64, 0), wantVector: true},
		{name: "class bias", shape: []int{10}, lastB: true, max: testMax, want: Key2(10, -1)},
		{name: "class weight", shape: []int{10, 64}, lastW: true, max: testMax, want: Key2(10, 64)},
		{name: "linear", shape: []int{40, 20}, max: testMax, want: Key4(64, 20, 1, 1)},
		{name: "layer scale", shape: []int{16, 1, 1}, max: testMax, want: Key3(16, 1, 1)},
		{name: "kernel not reduced", shape: []int{8, 8, 7, 7}, max: [4]int{64, 64, 5, 5}, want: Key4(8, 8, 7, 7)},
	}
	for _, tt := range tests {
		got, err := KeyFor(tt.shape, tt.lastW, tt.lastB, tt.max)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %v want %v", tt.name, got, tt.want)
		}
		if got.IsVector() != tt.wantVector {
			t.Fatalf("%s: IsVector=%v", tt.name, got.IsVector())
		}
	}
	if _, err := KeyFor([]int{1, 2, 3, 4, 5}, false, false, testMax); !errors.Is(err, resize.ErrShapeAlgebra) {
		t.Fatalf("rank 5: expected ErrShapeAlgebra, got %v", err)
	}
}

func TestParamName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"stem.conv":           "stem.conv.weight",
		"stem.conv.weight":    "stem.conv.weight",
		"fc.bias":             "fc.bias",
		"attn.in_proj_weight": "attn.in_proj_weight",
		"attn.in_proj_bias":   "attn.in_proj_bias",
		"":                    ".weight",
	}
	for in, want := range tests {
		if got := ParamName(in); got != want {
			t.Fatalf("ParamName(%q)=%q want %q", in, got, want)
		}
	}
}

// testNet is a conv → bn → pool → classifier net in two cells, plus one
// redundant conv the graph does not reference.
func testNet() *arch.Net {
	return &arch.Net{Name: "test", Cells: 2, Modules: []*arch.Module{
		{Name: "conv", Kind: arch.KindConv, Cell: 0, Weight: arch.NewSlot(16, 3, 3, 3)},
		{Name: "bn", Kind: arch.KindBatchNorm, Cell: 0, Weight: arch.NewSlot(16), Bias: arch.NewSlot(16)},
		{Name: "unused", Kind: arch.KindConv, Cell: 0, Weight: arch.NewSlot(16, 16, 1, 1), Bias: arch.NewSlot(16)},
		{Name: "fc", Kind: arch.KindLinear, Cell: 1, Weight: arch.NewSlot(10, 16), Bias: arch.NewSlot(10)},
	}}
}

func testGraph() *graph.Graph {
	return &graph.Graph{NumCells: 2, Nodes: []graph.Node{
		{Cell: 0, Index: 0, Op: "input"},
		{Cell: 0, Index: 1, Op: "conv", Param: "conv", Shape: []int{16, 3, 3, 3}},
		{Cell: 0, Index: 2, Op: "bn", Param: "bn", Shape: []int{16}},
		{Cell: 1, Index: 3, Op: "glob_avg"},
		{Cell: 1, Index: 4, Op: "fc", Param: "fc", Shape: []int{10, 16}, LastWeight: true},
		{Cell: 1, Index: 5, Op: "bias", Param: "fc.bias", Shape: []int{10}, LastBias: true},
	}}
}

func TestMatchBuildsBucketsInOrder(t *testing.T) {
	t.Parallel()
	net := testNet()
	res, err := Match(graph.NewBatch(testGraph()), []*arch.Net{net}, testMax)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	wantKeys := []ShapeKey{Key4(16, 4, 3, 3), Key2(16, 0), Key2(10, 16), Key2(10, -1)}
	keys := res.Buckets.Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("keys: got %v", keys)
	}
	for i, k := range wantKeys {
		if keys[i] != k {
			t.Fatalf("key %d: got %v want %v", i, keys[i], k)
		}
	}
	if got := res.Matched(); got != 4 {
		t.Fatalf("matched: got %d", got)
	}
	if _, ok := res.Params[0]; ok {
		t.Fatal("input node has no shape and must not be recorded")
	}
	e := res.Params[4]
	if e.Desc == nil || e.Desc.Path != "fc.weight" || e.Pos != 0 {
		t.Fatalf("fc entry: %+v", e)
	}
	if net.Modules[0].Weight.State != arch.Matched {
		t.Fatalf("conv slot state: %v", net.Modules[0].Weight.State)
	}
}

func TestMatchPrunesUnclaimedWeights(t *testing.T) {
	t.Parallel()
	net := testNet()
	res, err := Match(graph.NewBatch(testGraph()), []*arch.Net{net}, testMax)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	unused, _ := net.Module("unused")
	if unused.Weight.Present() || unused.Bias.Present() {
		t.Fatal("unclaimed module must have its storage cleared")
	}
	bn, _ := net.Module("bn")
	if !bn.Bias.Present() {
		t.Fatal("a norm bias carried by its weight node must not be pruned")
	}
	var pruned, kept int
	for _, lo := range res.Leftover {
		if lo.Pruned {
			pruned++
		} else {
			kept++
		}
	}
	if pruned != 1 || kept != 2 {
		t.Fatalf("leftovers: pruned=%d kept=%d (%+v)", pruned, kept, res.Leftover)
	}
}

func TestMatchClaimsAreUnique(t *testing.T) {
	t.Parallel()
	g := testGraph()
	// A second node pointing at the same conv must not be matched again.
	g.Nodes = append(g.Nodes, graph.Node{Cell: 0, Index: 6, Op: "conv", Param: "conv", Shape: []int{16, 3, 3, 3}})
	res, err := Match(graph.NewBatch(g), []*arch.Net{testNet()}, testMax)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	seen := map[*arch.Descriptor]int{}
	for idx, e := range res.Params {
		if e.Desc == nil {
			continue
		}
		if prev, ok := seen[e.Desc]; ok {
			t.Fatalf("descriptor %s claimed by nodes %d and %d", e.Desc.Path, prev, idx)
		}
		seen[e.Desc] = idx
	}
	if e := res.Params[6]; e.Matched() {
		t.Fatalf("duplicate node matched: %+v", e)
	}
}

func TestMatchAllowsParameterFreeOps(t *testing.T) {
	t.Parallel()
	g := &graph.Graph{NumCells: 1, Nodes: []graph.Node{
		{Index: 0, Op: "input"},
		{Index: 1, Op: "glob_avg"},
		{Index: 2, Op: "avg_pool_3x3"},
		{Index: 3, Op: "sum"},
		{Index: 4, Op: "concat"},
	}}
	net := &arch.Net{Name: "empty", Cells: 1}
	if _, err := Match(graph.NewBatch(g), []*arch.Net{net}, testMax); err != nil {
		t.Fatalf("parameter-free ops must resolve: %v", err)
	}
}

func TestMatchUnresolvedNode(t *testing.T) {
	t.Parallel()
	g := &graph.Graph{NumCells: 1, Nodes: []graph.Node{
		{Index: 0, Op: "conv", Param: "missing"},
	}}
	net := &arch.Net{Name: "empty", Cells: 1}
	_, err := Match(graph.NewBatch(g), []*arch.Net{net}, testMax)
	if !errors.Is(err, ErrUnresolvedParameterNode) {
		t.Fatalf("expected ErrUnresolvedParameterNode, got %v", err)
	}
}

func TestMatchRecordsUnmatchedShape(t *testing.T) {
	t.Parallel()
	g := &graph.Graph{NumCells: 1, Nodes: []graph.Node{
		{Index: 0, Op: "conv", Param: "missing", Shape: []int{4, 4, 1, 1}},
	}}
	net := &arch.Net{Name: "empty", Cells: 1}
	res, err := Match(graph.NewBatch(g), []*arch.Net{net}, testMax)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	e, ok := res.Params[0]
	if !ok || e.Matched() || e.Pos != NoTarget || len(e.Shape) != 4 {
		t.Fatalf("unmatched entry: %+v ok=%v", e, ok)
	}
}

func TestMatchMultipleNetsUseGlobalIndices(t *testing.T) {
	t.Parallel()
	nets := []*arch.Net{testNet(), testNet()}
	b := graph.NewBatch(testGraph(), testGraph())
	res, err := Match(b, nets, testMax)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	members := res.Buckets.Members(Key4(16, 4, 3, 3))
	if len(members) != 2 || members[0] != 1 || members[1] != 7 {
		t.Fatalf("conv bucket: %v", members)
	}
	if e := res.Params[7]; e.Net != 1 || e.Pos != 1 || e.Desc.Module != nets[1].Modules[0] {
		t.Fatalf("second net entry: %+v", e)
	}
}

func TestMatchBatchMismatch(t *testing.T) {
	t.Parallel()
	if _, err := Match(graph.NewBatch(testGraph()), nil, testMax); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("expected ErrBatchMismatch, got %v", err)
	}
}
