package graph

// Batch concatenates several graphs into one node space. Node i of graph b
// has global index Offset(b)+i.
type Batch struct {
	Graphs  []*Graph
	offsets []int
}

// NewBatch builds a batch over the given graphs.
func NewBatch(graphs ...*Graph) *Batch {
	b := &Batch{Graphs: graphs, offsets: make([]int, len(graphs)+1)}
	for i, g := range graphs {
		b.offsets[i+1] = b.offsets[i] + len(g.Nodes)
	}
	return b
}

// Len returns the number of graphs.
func (b *Batch) Len() int { return len(b.Graphs) }

// Offset returns the global index of the first node of graph i.
func (b *Batch) Offset(i int) int { return b.offsets[i] }

// NumNodes returns the total node count.
func (b *Batch) NumNodes() int { return b.offsets[len(b.Graphs)] }

// Node returns the node with the given global index.
func (b *Batch) Node(global int) Node {
	for i := range b.Graphs {
		if global < b.offsets[i+1] {
			return b.Graphs[i].Nodes[global-b.offsets[i]]
		}
	}
	panic("global node index out of range")
}

// OpIDs returns the primitive id of every node in global order.
func (b *Batch) OpIDs() []int {
	ids := make([]int, 0, b.NumNodes())
	for _, g := range b.Graphs {
		for _, n := range g.Nodes {
			ids = append(ids, n.OpID)
		}
	}
	return ids
}

// Edges returns every edge re-indexed into the global node space.
func (b *Batch) Edges() []Edge {
	var edges []Edge
	for i, g := range b.Graphs {
		off := b.offsets[i]
		for _, e := range g.Edges {
			edges = append(edges, Edge{Src: e.Src + off, Dst: e.Dst + off, Type: e.Type})
		}
	}
	return edges
}

// Scatter splits the batch into at most n contiguous shards of nearly equal
// graph count. Each shard is an independent batch. Shard i covers graphs
// [Bounds[i], Bounds[i+1]).
func (b *Batch) Scatter(n int) ([]*Batch, []int) {
	if n < 1 {
		n = 1
	}
	n = min(n, len(b.Graphs))
	if n == 0 {
		return nil, []int{0}
	}
	bounds := make([]int, n+1)
	per, extra := len(b.Graphs)/n, len(b.Graphs)%n
	for i := range n {
		size := per
		if i < extra {
			size++
		}
		bounds[i+1] = bounds[i] + size
	}
	shards := make([]*Batch, n)
	for i := range n {
		shards[i] = NewBatch(b.Graphs[bounds[i]:bounds[i+1]]...)
	}
	return shards, bounds
}
