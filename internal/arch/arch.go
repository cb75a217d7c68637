// Package arch describes target architectures: modules, their parameter
// slots, and the per-cell descriptor pools the matcher claims from.
package arch

import (
	"fmt"
	"iter"
	"strings"
)

// Kind is the layer type of a module. Only the distinctions the mapping
// engine cares about are modelled.
type Kind string

const (
	KindConv      Kind = "conv"
	KindLinear    Kind = "linear"
	KindBatchNorm Kind = "batchnorm"
	KindLayerNorm Kind = "layernorm"
	KindPosEnc    Kind = "posenc"
	KindAttention Kind = "attention"
	KindOther     Kind = "other"
)

// IsNorm reports whether k is a normalization layer whose weight and bias
// are predicted from a single graph node.
func (k Kind) IsNorm() bool {
	return k == KindBatchNorm || k == KindLayerNorm
}

// Module is one layer of a target architecture.
type Module struct {
	Name string
	Kind Kind
	Cell int

	Weight     *Slot
	Bias       *Slot
	LayerScale *Slot

	// Batch-norm execution mode.
	Training          bool
	TrackRunningStats bool
}

// WeightSlot returns the slot written for the weight role: the layer scale
// when the module has one, otherwise the weight.
func (m *Module) WeightSlot() *Slot {
	if m.LayerScale != nil {
		return m.LayerScale
	}
	return m.Weight
}

// Slot returns the slot for the given role.
func (m *Module) Slot(isWeight bool) *Slot {
	if isWeight {
		return m.WeightSlot()
	}
	return m.Bias
}

func (m *Module) weightName() string {
	if m.Kind == KindAttention {
		return "in_proj_weight"
	}
	return "weight"
}

func (m *Module) biasName() string {
	if m.Kind == KindAttention {
		return "in_proj_bias"
	}
	return "bias"
}

// Net is a target architecture. It owns the storage of every slot.
type Net struct {
	Name    string
	Cells   int
	Modules []*Module
}

// Descriptor names one learnable tensor of a net.
type Descriptor struct {
	Path     string
	Shape    []int
	IsWeight bool
	Module   *Module
}

// Pool returns a fresh per-cell descriptor pool covering every slot that
// currently holds storage.
func (n *Net) Pool() *Pool {
	p := &Pool{
		cells: make([]map[string]*Descriptor, n.Cells),
		order: make([][]string, n.Cells),
	}
	for i := range p.cells {
		p.cells[i] = make(map[string]*Descriptor)
	}
	for _, m := range n.Modules {
		if m.Cell < 0 || m.Cell >= n.Cells {
			continue
		}
		if w := m.WeightSlot(); w.Present() {
			p.add(m.Cell, &Descriptor{Path: m.Name + "." + m.weightName(), Shape: w.Shape, IsWeight: true, Module: m})
		}
		if m.Bias.Present() {
			p.add(m.Cell, &Descriptor{Path: m.Name + "." + m.biasName(), Shape: m.Bias.Shape, IsWeight: false, Module: m})
		}
	}
	return p
}

// Params yields every present parameter slot with its dotted path, in
// module order.
func (n *Net) Params() iter.Seq2[string, *Slot] {
	return func(yield func(string, *Slot) bool) {
		for _, m := range n.Modules {
			if w := m.WeightSlot(); w.Present() {
				if !yield(m.Name+"."+m.weightName(), w) {
					return
				}
			}
			if m.Bias.Present() {
				if !yield(m.Name+"."+m.biasName(), m.Bias) {
					return
				}
			}
		}
	}
}

// NumParams counts the learnable values currently held by the net.
func (n *Net) NumParams() int {
	total := 0
	for _, s := range n.Params() {
		total += s.Data.Numel()
	}
	return total
}

// Module looks up a module by name.
func (n *Net) Module(name string) (*Module, bool) {
	for _, m := range n.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// SetBatchNormTrain switches every batch-norm layer into training mode
// without running statistics, so predicted parameters can be evaluated
// without calibrated statistics.
func (n *Net) SetBatchNormTrain() int {
	count := 0
	for _, m := range n.Modules {
		if m.Kind == KindBatchNorm {
			m.Training = true
			m.TrackRunningStats = false
			count++
		}
	}
	return count
}

// Validate checks cell bounds and unique module names.
func (n *Net) Validate() error {
	if n.Cells < 1 {
		return fmt.Errorf("net %q: cells must be >= 1", n.Name)
	}
	seen := make(map[string]bool, len(n.Modules))
	for _, m := range n.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("net %q: module without a name", n.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("net %q: duplicate module %q", n.Name, m.Name)
		}
		seen[m.Name] = true
		if m.Cell < 0 || m.Cell >= n.Cells {
			return fmt.Errorf("net %q: module %q in cell %d, net has %d cells", n.Name, m.Name, m.Cell, n.Cells)
		}
		if m.Weight == nil && m.LayerScale == nil {
			return fmt.Errorf("net %q: module %q has no weight", n.Name, m.Name)
		}
	}
	return nil
}

// Pool holds the unclaimed descriptors of one net for one prediction pass.
type Pool struct {
	cells []map[string]*Descriptor
	order [][]string
}

func (p *Pool) add(cell int, d *Descriptor) {
	p.cells[cell][d.Path] = d
	p.order[cell] = append(p.order[cell], d.Path)
}

// NumCells returns the number of cells in the pool.
func (p *Pool) NumCells() int { return len(p.cells) }

// Lookup finds an unclaimed descriptor.
func (p *Pool) Lookup(cell int, path string) (*Descriptor, bool) {
	if cell < 0 || cell >= len(p.cells) {
		return nil, false
	}
	d, ok := p.cells[cell][path]
	return d, ok
}

// Claim removes a descriptor so it cannot be matched again.
func (p *Pool) Claim(cell int, path string) {
	delete(p.cells[cell], path)
}

// Remaining returns the unclaimed descriptors of a cell in insertion order.
func (p *Pool) Remaining(cell int) []*Descriptor {
	if cell < 0 || cell >= len(p.cells) {
		return nil
	}
	var out []*Descriptor
	for _, path := range p.order[cell] {
		if d, ok := p.cells[cell][path]; ok {
			out = append(out, d)
		}
	}
	return out
}
