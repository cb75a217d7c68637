package ghn

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/logger"
	"github.com/samcharles93/ghn/internal/mapping"
	"github.com/samcharles93/ghn/internal/tensor"
)

// Options control one Predict call.
type Options struct {
	Mode Mode
	// PredictClassLayers is false when fine-tuning: classification weights
	// and biases keep their current storage.
	PredictClassLayers bool
	// BNTrain switches batch-norm modules to training mode without running
	// statistics after an eval injection.
	BNTrain          bool
	ReturnEmbeddings bool
	// DebugLevel 0-3. 2 adds node count checks, 3 per-parameter statistics.
	DebugLevel int
}

// DefaultOptions predicts every layer in eval mode and leaves batch norm
// in training mode, since predicted parameters come with no running
// statistics.
func DefaultOptions() Options {
	return Options{Mode: Eval, PredictClassLayers: true, BNTrain: true}
}

// BucketInfo describes one decoded bucket.
type BucketInfo struct {
	Key     string `json:"key"`
	Head    string `json:"head"`
	Size    int    `json:"size"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Report summarises one Predict call.
type Report struct {
	Tensors      int           `json:"tensors"`
	Params       int           `json:"params"`
	TrueParams   int           `json:"true_params"`
	Matched      int           `json:"matched"`
	Unmatched    int           `json:"unmatched"`
	Pruned       int           `json:"pruned"`
	SkippedClass int           `json:"skipped_class"`
	ValidNodes   int           `json:"valid_nodes"`
	BNTrain      int           `json:"bn_train,omitempty"`
	Buckets      []BucketInfo  `json:"buckets"`
	Elapsed      time.Duration `json:"elapsed"`
	// CountMismatch is set when the predicted and learnable parameter counts
	// differ. It is a diagnostic, never an error.
	CountMismatch bool `json:"count_mismatch,omitempty"`

	skippedParams int
}

func (r *Report) merge(o *Report) {
	r.Tensors += o.Tensors
	r.Params += o.Params
	r.TrueParams += o.TrueParams
	r.Matched += o.Matched
	r.Unmatched += o.Unmatched
	r.Pruned += o.Pruned
	r.SkippedClass += o.SkippedClass
	r.ValidNodes += o.ValidNodes
	r.BNTrain += o.BNTrain
	r.Buckets = append(r.Buckets, o.Buckets...)
	r.skippedParams += o.skippedParams
	r.CountMismatch = r.CountMismatch || o.CountMismatch
}

// Result is the output of Predict. Nets are the same values passed in, now
// holding predicted parameters.
type Result struct {
	Nets       []*arch.Net
	Embeddings *tensor.Tensor
	Mapping    *mapping.Result
	Report     Report
}

// Predict maps every graph of b onto the net at the same position, decodes
// one prediction per matched node and writes it into the net's storage.
//
// A failed or cancelled call leaves the nets partially written; callers
// must discard them.
func (m *Model) Predict(ctx context.Context, nets []*arch.Net, b *graph.Batch, opts Options) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "ghn")

	mp, err := mapping.Match(b, nets, m.cfg.MaxShape)
	if err != nil {
		return nil, err
	}
	res := &Result{Nets: nets, Mapping: mp}
	rep := &res.Report
	rep.Matched = mp.Matched()
	rep.Unmatched = len(mp.Params) - rep.Matched
	for _, lo := range mp.Leftover {
		if lo.Pruned {
			rep.Pruned++
		}
	}
	for _, n := range nets {
		rep.TrueParams += n.NumParams()
	}
	for _, g := range b.Graphs {
		rep.ValidNodes += g.NumValidNodes()
	}

	x, err := m.embedNodes(b)
	if err != nil {
		return nil, err
	}
	if opts.ReturnEmbeddings {
		res.Embeddings = x
	}

	inj := Injector{Mode: opts.Mode, WeightNorm: m.cfg.WeightNorm}
	for _, k := range mp.Buckets.Keys() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("predict interrupted: %w", err)
		}
		members := mp.Buckets.Members(k)
		head := HeadFor(k)
		info := BucketInfo{Key: k.String(), Head: head.String(), Size: len(members)}
		if head.IsClassLayer() && !opts.PredictClassLayers {
			info.Skipped = true
			rep.Buckets = append(rep.Buckets, info)
			rep.SkippedClass += len(members)
			for _, g := range members {
				rep.skippedParams += tensor.Numel(mp.Params[g].Shape)
			}
			log.Debug("bucket skipped", "key", info.Key, "head", info.Head, "size", info.Size)
			continue
		}

		out, err := m.decode(head, k, x.Gather(members))
		if err != nil {
			return nil, fmt.Errorf("decode bucket %s: %w", k, err)
		}
		log.Debug("bucket decoded", "key", info.Key, "head", info.Head, "size", info.Size, "out", tensor.FormatShape(out.Shape))
		for _, g := range members {
			e := mp.Params[g]
			nt, nv, err := inj.Inject(e, out)
			if err != nil {
				return nil, fmt.Errorf("net %q: %w", nets[e.Net].Name, err)
			}
			rep.Tensors += nt
			rep.Params += nv
			if opts.DebugLevel >= 3 {
				logStats(log, nets[e.Net].Name, e.Desc)
			}
		}
		rep.Buckets = append(rep.Buckets, info)
	}

	if opts.Mode == Eval && opts.BNTrain {
		for _, n := range nets {
			rep.BNTrain += n.SetBatchNormTrain()
		}
	}
	rep.finish(log, opts, len(nets))
	rep.Elapsed = time.Since(start)
	log.Info("parameters predicted",
		"nets", len(nets),
		"tensors", rep.Tensors,
		"params", rep.Params,
		"buckets", len(rep.Buckets),
		"mode", opts.Mode.String(),
		"elapsed", rep.Elapsed,
	)
	return res, nil
}

// finish runs the count diagnostics once all buckets are written.
func (r *Report) finish(log logger.Logger, opts Options, nets int) {
	r.CountMismatch = r.Params+r.skippedParams != r.TrueParams
	if r.CountMismatch {
		log.Warn("predicted parameter count differs from the learnable count",
			"predicted", r.Params, "skipped", r.skippedParams, "true", r.TrueParams)
	}
	if opts.DebugLevel >= 2 && r.ValidNodes != r.Matched {
		log.Warn("valid node count differs from matched nodes",
			"valid", r.ValidNodes, "matched", r.Matched, "nets", nets)
	}
}

func logStats(log logger.Logger, net string, d *arch.Descriptor) {
	slots := []*arch.Slot{d.Module.Slot(d.IsWeight)}
	names := []string{d.Path}
	if len(d.Shape) == 1 && d.IsWeight && d.Module.Bias.Present() {
		slots = append(slots, d.Module.Bias)
		names = append(names, d.Module.Name+".bias")
	}
	for i, s := range slots {
		if !s.Present() {
			continue
		}
		st := s.Data.Summarize()
		log.Debug("predicted parameter",
			"net", net,
			"param", names[i],
			"shape", tensor.FormatShape(s.Shape),
			"min", st.Min, "max", st.Max, "mean", st.Mean, "std", st.Std, "norm", st.Norm,
		)
	}
}
