// Package graph holds the computation graphs the hypernetwork reads. Graph
// construction itself happens upstream; this package only carries nodes and
// edges and batches them.
package graph

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Node is one operation of an architecture graph.
type Node struct {
	Cell  int    `json:"cell"`
	Index int    `json:"index"`
	Op    string `json:"op"`
	OpID  int    `json:"op_id"`
	// Param is the dotted path of the parameter the op owns, empty for
	// non-parametric ops.
	Param      string `json:"param,omitempty"`
	Shape      []int  `json:"shape,omitempty"`
	LastWeight bool   `json:"last_weight,omitempty"`
	LastBias   bool   `json:"last_bias,omitempty"`
}

// Edge connects two nodes of the same graph. Type is the edge feature the
// propagation network uses (1 for direct connections).
type Edge struct {
	Src  int `json:"src"`
	Dst  int `json:"dst"`
	Type int `json:"type"`
}

// Graph is the computation graph of one architecture. Nodes[i].Index == i.
type Graph struct {
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	NumCells int    `json:"cells"`
}

// Validate checks node numbering, cell ids and edge endpoints.
func (g *Graph) Validate() error {
	if g.NumCells < 1 {
		return fmt.Errorf("graph: cells must be >= 1")
	}
	for i, n := range g.Nodes {
		if n.Index != i {
			return fmt.Errorf("graph: node %d has index %d", i, n.Index)
		}
		if n.Cell < 0 || n.Cell >= g.NumCells {
			return fmt.Errorf("graph: node %d in cell %d, graph has %d cells", i, n.Cell, g.NumCells)
		}
	}
	for _, e := range g.Edges {
		if e.Src < 0 || e.Src >= len(g.Nodes) || e.Dst < 0 || e.Dst >= len(g.Nodes) {
			return fmt.Errorf("graph: edge %d->%d out of range", e.Src, e.Dst)
		}
	}
	return nil
}

// Cells returns the node positions of every cell, in node order.
func (g *Graph) Cells() [][]int {
	cells := make([][]int, g.NumCells)
	for i, n := range g.Nodes {
		cells[n.Cell] = append(cells[n.Cell], i)
	}
	return cells
}

// NumValidNodes counts nodes that carry a learnable parameter shape.
func (g *Graph) NumValidNodes() int {
	n := 0
	for _, node := range g.Nodes {
		if node.Shape != nil {
			n++
		}
	}
	return n
}

// Load reads a graph from a JSON file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode parses and validates a JSON graph.
func Decode(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	if g.NumCells == 0 {
		g.NumCells = 1
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}
