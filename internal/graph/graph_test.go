package graph

import (
	"os"
	"path/filepath"
	"testing"
)

const chainJSON = `{
  "cells": 1,
  "nodes": [
    {"cell": 0, "index": 0, "op": "input", "op_id": 0},
    {"cell": 0, "index": 1, "op": "conv", "op_id": 1, "param": "stem.conv", "shape": [8, 3, 3, 3]},
    {"cell": 0, "index": 2, "op": "glob_avg", "op_id": 2}
  ],
  "edges": [{"src": 0, "dst": 1, "type": 1}, {"src": 1, "dst": 2, "type": 1}]
}`

func chain(n int) *Graph {
	g := &Graph{NumCells: 1}
	for i := range n {
		g.Nodes = append(g.Nodes, Node{Index: i, Op: "conv", OpID: i})
		if i > 0 {
			g.Edges = append(g.Edges, Edge{Src: i - 1, Dst: i, Type: 1})
		}
	}
	return g
}

func TestLoadGraph(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "g.json")
	if err := os.WriteFile(path, []byte(chainJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("unexpected graph %+v", g)
	}
	if g.Nodes[1].Param != "stem.conv" || len(g.Nodes[1].Shape) != 4 {
		t.Fatalf("node 1: %+v", g.Nodes[1])
	}
	if g.Nodes[0].Shape != nil {
		t.Fatal("absent shape must decode as nil")
	}
	if got := g.NumValidNodes(); got != 1 {
		t.Fatalf("valid nodes: got %d", got)
	}
}

func TestDecodeRejectsBadIndex(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`{"nodes":[{"index":1,"op":"input"}]}`))
	if err == nil {
		t.Fatal("expected an error for misnumbered nodes")
	}
}

func TestBatchOffsetsAndEdges(t *testing.T) {
	t.Parallel()
	b := NewBatch(chain(3), chain(2))
	if b.NumNodes() != 5 || b.Offset(1) != 3 {
		t.Fatalf("offsets: nodes=%d off1=%d", b.NumNodes(), b.Offset(1))
	}
	edges := b.Edges()
	if len(edges) != 3 {
		t.Fatalf("edges: got %d", len(edges))
	}
	if last := edges[2]; last.Src != 3 || last.Dst != 4 {
		t.Fatalf("second graph edge not shifted: %+v", last)
	}
	if b.Node(4).OpID != 1 {
		t.Fatalf("global node lookup: %+v", b.Node(4))
	}
}

func TestScatterBalancesShards(t *testing.T) {
	t.Parallel()
	b := NewBatch(chain(1), chain(2), chain(3), chain(4), chain(5))
	shards, bounds := b.Scatter(2)
	if len(shards) != 2 {
		t.Fatalf("shards: got %d", len(shards))
	}
	if bounds[1] != 3 || bounds[2] != 5 {
		t.Fatalf("bounds: %v", bounds)
	}
	if shards[1].NumNodes() != 9 {
		t.Fatalf("second shard nodes: %d", shards[1].NumNodes())
	}

	shards, _ = b.Scatter(10)
	if len(shards) != 5 {
		t.Fatalf("more devices than graphs: got %d shards", len(shards))
	}
}
