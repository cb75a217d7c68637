// Package mapping aligns graph nodes with the parameter descriptors of their
// target architectures and groups the matched nodes into shape buckets.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/graph"
)

var (
	// ErrUnresolvedParameterNode means a node implies a learnable parameter
	// but no descriptor matches and the op is not known to be
	// parameter-free.
	ErrUnresolvedParameterNode = errors.New("unresolved parameter node")
	// ErrBatchMismatch means graphs and nets do not line up.
	ErrBatchMismatch = errors.New("graph/net batch mismatch")
)

// parameterFree lists op-name fragments of ops that never own parameters.
var parameterFree = []string{"input", "sum", "concat", "pool", "glob_avg", "msa", "cse"}

// IsParameterFree reports whether an op name belongs to the allow-listed
// non-parametric ops.
func IsParameterFree(op string) bool {
	for _, p := range parameterFree {
		if strings.Contains(op, p) {
			return true
		}
	}
	return false
}

// NoTarget is the bucket position of an entry with no concrete parameter.
const NoTarget = -1

// Entry is the mapping of one global node index.
type Entry struct {
	Net  int
	Node graph.Node
	// Desc is nil when the node did not resolve to a descriptor.
	Desc  *arch.Descriptor
	Shape []int
	Key   ShapeKey
	Pos   int
}

// Matched reports whether the entry has a concrete target parameter.
func (e Entry) Matched() bool { return e.Desc != nil && e.Pos != NoTarget }

// ParamsMap maps a global node index to its entry. Nodes without any record
// (parameter-free ops without a shape) have no entry.
type ParamsMap map[int]Entry

// Buckets groups global node indices by shape key. Keys keep their first
// insertion order, which is also the decode order.
type Buckets struct {
	keys    []ShapeKey
	members map[ShapeKey][]int
}

func newBuckets() *Buckets {
	return &Buckets{members: make(map[ShapeKey][]int)}
}

// add appends a node to its bucket and returns its position in it.
func (b *Buckets) add(k ShapeKey, node int) int {
	m, ok := b.members[k]
	if !ok {
		b.keys = append(b.keys, k)
	}
	b.members[k] = append(m, node)
	return len(m)
}

// Keys returns the bucket keys in decode order.
func (b *Buckets) Keys() []ShapeKey { return b.keys }

// Members returns the global node indices of a bucket in decode order.
func (b *Buckets) Members(k ShapeKey) []int { return b.members[k] }

// Len returns the number of buckets.
func (b *Buckets) Len() int { return len(b.keys) }

// Leftover is a descriptor no node claimed.
type Leftover struct {
	Net  int
	Cell int
	Desc *arch.Descriptor
	// Pruned is set when the module's storage was cleared because of it.
	Pruned bool
}

// Result is the output of Match for one forward call.
type Result struct {
	Params   ParamsMap
	Buckets  *Buckets
	Leftover []Leftover
}

// Matched returns the number of entries with a concrete target.
func (r *Result) Matched() int {
	n := 0
	for _, e := range r.Params {
		if e.Matched() {
			n++
		}
	}
	return n
}

// Match resolves every node of every graph in b against the descriptor pool
// of the net at the same position. Claimed descriptors are removed from the
// pool; weight descriptors left unclaimed in a cell have their module's
// weight and bias storage cleared.
func Match(b *graph.Batch, nets []*arch.Net, maxShape [4]int) (*Result, error) {
	if b.Len() != len(nets) {
		return nil, fmt.Errorf("%w: %d graphs, %d nets", ErrBatchMismatch, b.Len(), len(nets))
	}
	res := &Result{Params: make(ParamsMap), Buckets: newBuckets()}
	for bi, g := range b.Graphs {
		net := nets[bi]
		pool := net.Pool()
		if pool.NumCells() != g.NumCells {
			return nil, fmt.Errorf("%w: graph %d has %d cells, net %q has %d", ErrBatchMismatch, bi, g.NumCells, net.Name, pool.NumCells())
		}
		offset := b.Offset(bi)
		for cell, nodes := range g.Cells() {
			for _, local := range nodes {
				node := g.Nodes[local]
				global := offset + local
				if err := res.matchNode(pool, bi, global, node, maxShape); err != nil {
					return nil, fmt.Errorf("net %q: %w", net.Name, err)
				}
			}
			for _, d := range pool.Remaining(cell) {
				lo := Leftover{Net: bi, Cell: cell, Desc: d}
				if d.IsWeight {
					prune(d.Module)
					lo.Pruned = true
				}
				res.Leftover = append(res.Leftover, lo)
			}
		}
	}
	return res, nil
}

func (r *Result) matchNode(pool *arch.Pool, net, global int, node graph.Node, maxShape [4]int) error {
	path := ParamName(node.Param)
	d, ok := pool.Lookup(node.Cell, path)
	if !ok {
		if node.Shape != nil {
			r.Params[global] = Entry{Net: net, Node: node, Shape: node.Shape, Pos: NoTarget}
			return nil
		}
		if !IsParameterFree(node.Op) {
			return fmt.Errorf("%w: cell %d node %d op %q path %q", ErrUnresolvedParameterNode, node.Cell, node.Index, node.Op, path)
		}
		return nil
	}
	key, err := KeyFor(d.Shape, node.LastWeight, node.LastBias, maxShape)
	if err != nil {
		return fmt.Errorf("cell %d path %q: %w", node.Cell, path, err)
	}
	pos := r.Buckets.add(key, global)
	r.Params[global] = Entry{Net: net, Node: node, Desc: d, Shape: d.Shape, Key: key, Pos: pos}
	if s := d.Module.Slot(d.IsWeight); s != nil {
		s.State = arch.Matched
	}
	pool.Claim(node.Cell, path)
	return nil
}

// ParamName appends the implicit ".weight" suffix unless the path already
// names a weight, bias or fused projection.
func ParamName(p string) string {
	for _, suffix := range []string{".weight", ".bias", "in_proj_weight", "in_proj_bias"} {
		if strings.HasSuffix(p, suffix) {
			return p
		}
	}
	return p + ".weight"
}

// prune removes the parameters of a module no node predicts, so the net
// runs without them instead of with stale values.
func prune(m *arch.Module) {
	if s := m.WeightSlot(); s != nil {
		s.Clear()
	}
	if m.Bias != nil {
		m.Bias.Clear()
	}
}
