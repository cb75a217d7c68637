// Package ghn predicts the parameters of target architectures from their
// computation graphs and writes them into the architectures' storage.
package ghn

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/tensor"
)

// Config is the structural configuration of a Model. It is stored alongside
// the weights in a checkpoint.
type Config struct {
	MaxShape   [4]int `json:"max_shape" yaml:"max_shape"`
	NumClasses int    `json:"num_classes" yaml:"num_classes"`
	Hidden     int    `json:"hid" yaml:"hid"`
	NumOps     int    `json:"num_ops" yaml:"num_ops"`
	Steps      int    `json:"steps" yaml:"steps"`
	LayerNorm  bool   `json:"layernorm" yaml:"layernorm"`
	WeightNorm bool   `json:"weight_norm" yaml:"weight_norm"`
	Seed       int64  `json:"seed" yaml:"seed"`
}

// DefaultConfig mirrors the GHN-2 ImageNet setup.
func DefaultConfig() Config {
	return Config{
		MaxShape:   [4]int{64, 64, 11, 11},
		NumClasses: 1000,
		Hidden:     32,
		NumOps:     16,
		Steps:      1,
		LayerNorm:  true,
		WeightNorm: true,
		Seed:       1,
	}
}

var ErrConfig = errors.New("invalid ghn config")

// Validate checks the structural fields.
func (c Config) Validate() error {
	for i, d := range c.MaxShape {
		if d < 1 {
			return fmt.Errorf("%w: max_shape[%d]=%d", ErrConfig, i, d)
		}
	}
	if c.NumClasses < 1 {
		return fmt.Errorf("%w: num_classes=%d", ErrConfig, c.NumClasses)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("%w: hid=%d", ErrConfig, c.Hidden)
	}
	if c.NumOps < 1 {
		return fmt.Errorf("%w: num_ops=%d", ErrConfig, c.NumOps)
	}
	if c.Steps < 0 {
		return fmt.Errorf("%w: steps=%d", ErrConfig, c.Steps)
	}
	return nil
}

// Propagator turns initial node features into node embeddings of the same
// width by passing messages along the edges.
type Propagator interface {
	Propagate(x *tensor.Tensor, edges []graph.Edge) (*tensor.Tensor, error)
}

// Model is the hypernetwork. It is immutable after construction and safe
// for concurrent use by several Predict calls.
type Model struct {
	cfg Config

	embed     *tensor.Tensor
	prop      Propagator
	ln        *tensor.LayerNorm
	decoder   *ConvDecoder
	decoder1D tensor.MLP
	biasClass tensor.Linear
}

// Option customises a Model at construction.
type Option func(*Model)

// WithPropagator replaces the built-in mean-aggregation propagator.
func WithPropagator(p Propagator) Option {
	return func(m *Model) { m.prop = p }
}

// New constructs a Model with deterministic weights derived from cfg.Seed.
func New(cfg Config, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hid := cfg.Hidden
	maxCh := max(cfg.MaxShape[0], cfg.MaxShape[1])
	m := &Model{
		cfg:     cfg,
		embed:   tensor.New(cfg.NumOps, hid),
		prop:    NewMeanPropagator(hid, cfg.Steps, cfg.Seed+100),
		decoder: NewConvDecoder(hid, []int{hid * 4, hid * 8}, cfg.MaxShape, cfg.NumClasses, cfg.Seed+200),
		decoder1D: tensor.MLP{Layers: []tensor.Linear{
			tensor.NewLinear(hid, hid*2, cfg.Seed+300),
			tensor.NewLinear(hid*2, 2*maxCh, cfg.Seed+302),
		}},
		biasClass: tensor.NewLinear(maxCh, cfg.NumClasses, cfg.Seed+400),
	}
	tensor.FillRand(m.embed, cfg.Seed, 1)
	if cfg.LayerNorm {
		ln := tensor.NewLayerNorm(hid)
		m.ln = &ln
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Config returns the model's structural configuration.
func (m *Model) Config() Config { return m.cfg }

// Tensors returns every weight of the model by name. The returned tensors
// are the model's own storage.
func (m *Model) Tensors() map[string]*tensor.Tensor {
	out := map[string]*tensor.Tensor{"embed.weight": m.embed}
	if mp, ok := m.prop.(*MeanPropagator); ok {
		linearTensors("gnn.update", mp.Update, out)
	}
	if m.ln != nil {
		out["ln.weight"] = m.ln.Gamma
		out["ln.bias"] = m.ln.Beta
	}
	m.decoder.tensors("decoder.", out)
	for i, l := range m.decoder1D.Layers {
		linearTensors(fmt.Sprintf("decoder_1d.fc.%d", i), l, out)
	}
	linearTensors("bias_class.1", m.biasClass, out)
	return out
}

// embedNodes computes the final node embeddings of a batch.
func (m *Model) embedNodes(b *graph.Batch) (*tensor.Tensor, error) {
	ids := b.OpIDs()
	for i, id := range ids {
		if id < 0 || id >= m.cfg.NumOps {
			return nil, fmt.Errorf("%w: node %d has op id %d, model knows %d ops", ErrConfig, i, id, m.cfg.NumOps)
		}
	}
	x := m.embed.Gather(ids)
	x, err := m.prop.Propagate(x, b.Edges())
	if err != nil {
		return nil, fmt.Errorf("propagate: %w", err)
	}
	if m.ln != nil {
		x = m.ln.Forward(x)
	}
	return x, nil
}

// MeanPropagator runs Steps rounds of message passing. Each round a node
// receives the mean of its in-neighbours' embeddings and updates its own
// embedding residually: x ← x + relu(W·[x; mean]).
type MeanPropagator struct {
	Steps  int
	Update tensor.Linear
}

// NewMeanPropagator builds a propagator for embeddings of width hid.
func NewMeanPropagator(hid, steps int, seed int64) *MeanPropagator {
	return &MeanPropagator{Steps: steps, Update: tensor.NewLinear(2*hid, hid, seed)}
}

func (p *MeanPropagator) Propagate(x *tensor.Tensor, edges []graph.Edge) (*tensor.Tensor, error) {
	if x.Rank() != 2 {
		return nil, fmt.Errorf("%w: node features must be rank 2, got %s", tensor.ErrShape, tensor.FormatShape(x.Shape))
	}
	n, hid := x.Shape[0], x.Shape[1]
	for _, e := range edges {
		if e.Src < 0 || e.Src >= n || e.Dst < 0 || e.Dst >= n {
			return nil, fmt.Errorf("edge %d->%d outside %d nodes", e.Src, e.Dst, n)
		}
	}
	x = x.Clone()
	for range p.Steps {
		cat := tensor.New(n, 2*hid)
		deg := make([]int, n)
		for _, e := range edges {
			dst := cat.Data[e.Dst*2*hid+hid : (e.Dst+1)*2*hid]
			tensor.Add(dst, x.Data[e.Src*hid:(e.Src+1)*hid])
			deg[e.Dst]++
		}
		for v := range n {
			row := cat.Data[v*2*hid : (v+1)*2*hid]
			copy(row[:hid], x.Data[v*hid:(v+1)*hid])
			if deg[v] > 1 {
				inv := 1 / float32(deg[v])
				for i := hid; i < 2*hid; i++ {
					row[i] *= inv
				}
			}
		}
		upd, err := p.Update.Forward(cat)
		if err != nil {
			return nil, err
		}
		tensor.ReLUInPlace(upd)
		tensor.Add(x.Data, upd.Data)
	}
	return x, nil
}
