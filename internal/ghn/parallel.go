package ghn

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/logger"
	"github.com/samcharles93/ghn/internal/tensor"
)

// Parallel fans a batch out over Devices workers sharing one Model. Each
// shard runs the whole pipeline with its own mapping; only the reports and
// embeddings are gathered.
type Parallel struct {
	Model   *Model
	Devices int
}

// Predict splits b into contiguous shards and predicts them concurrently.
// The returned Mapping is nil; shard mappings use shard-local node indices.
func (p Parallel) Predict(ctx context.Context, nets []*arch.Net, b *graph.Batch, opts Options) (*Result, error) {
	if b.Len() != len(nets) {
		return p.Model.Predict(ctx, nets, b, opts)
	}
	shards, bounds := b.Scatter(p.Devices)
	if len(shards) <= 1 {
		return p.Model.Predict(ctx, nets, b, opts)
	}
	start := time.Now()
	log := logger.FromContext(ctx)

	results := make([]*Result, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(shards))
	for i, shard := range shards {
		g.Go(func() error {
			sctx := logger.WithContext(gctx, log.With("device", i))
			r, err := p.Model.Predict(sctx, nets[bounds[i]:bounds[i+1]], shard, opts)
			if err != nil {
				return fmt.Errorf("device %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{Nets: nets}
	var embs []*tensor.Tensor
	for _, r := range results {
		out.Report.merge(&r.Report)
		if r.Embeddings != nil {
			embs = append(embs, r.Embeddings)
		}
	}
	if opts.ReturnEmbeddings && len(embs) > 0 {
		e, err := tensor.Concat(embs...)
		if err != nil {
			return nil, fmt.Errorf("gather embeddings: %w", err)
		}
		out.Embeddings = e
	}
	out.Report.Elapsed = time.Since(start)
	log.Info("parallel prediction done", "devices", len(shards), "tensors", out.Report.Tensors, "elapsed", out.Report.Elapsed)
	return out, nil
}
