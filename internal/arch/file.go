package arch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSpec is the on-disk YAML description of a net.
type fileSpec struct {
	Name    string       `yaml:"name"`
	Cells   int          `yaml:"cells"`
	Modules []moduleSpec `yaml:"modules"`
}

type moduleSpec struct {
	Name       string `yaml:"name"`
	Kind       Kind   `yaml:"kind"`
	Cell       int    `yaml:"cell"`
	Weight     []int  `yaml:"weight"`
	Bias       []int  `yaml:"bias,omitempty"`
	LayerScale []int  `yaml:"layer_scale,omitempty"`
}

// LoadFile reads a YAML net description.
func LoadFile(path string) (*Net, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Parse decodes a YAML net description and allocates zeroed storage for
// every declared parameter.
func Parse(data []byte) (*Net, error) {
	var fs fileSpec
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse net: %w", err)
	}
	if fs.Cells == 0 {
		fs.Cells = 1
	}
	n := &Net{Name: fs.Name, Cells: fs.Cells, Modules: make([]*Module, 0, len(fs.Modules))}
	for _, ms := range fs.Modules {
		kind := ms.Kind
		if kind == "" {
			kind = KindOther
		}
		for _, sh := range []struct {
			role  string
			shape []int
		}{{"weight", ms.Weight}, {"bias", ms.Bias}, {"layer_scale", ms.LayerScale}} {
			if err := checkShape(sh.shape); err != nil {
				return nil, fmt.Errorf("parse net: module %q %s: %w", ms.Name, sh.role, err)
			}
		}
		m := &Module{Name: ms.Name, Kind: kind, Cell: ms.Cell, TrackRunningStats: kind == KindBatchNorm}
		if len(ms.Weight) > 0 {
			m.Weight = NewSlot(ms.Weight...)
		}
		if len(ms.Bias) > 0 {
			m.Bias = NewSlot(ms.Bias...)
		}
		if len(ms.LayerScale) > 0 {
			m.LayerScale = NewSlot(ms.LayerScale...)
		}
		n.Modules = append(n.Modules, m)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// checkShape rejects dimensions that cannot back a tensor.
func checkShape(shape []int) error {
	for i, d := range shape {
		if d < 1 {
			return fmt.Errorf("dimension %d is %d, want >= 1", i, d)
		}
	}
	return nil
}

// Marshal renders n back into its YAML description.
func Marshal(n *Net) ([]byte, error) {
	fs := fileSpec{Name: n.Name, Cells: n.Cells}
	for _, m := range n.Modules {
		ms := moduleSpec{Name: m.Name, Kind: m.Kind, Cell: m.Cell}
		if m.Weight != nil {
			ms.Weight = m.Weight.Shape
		}
		if m.Bias != nil {
			ms.Bias = m.Bias.Shape
		}
		if m.LayerScale != nil {
			ms.LayerScale = m.LayerScale.Shape
		}
		fs.Modules = append(fs.Modules, ms)
	}
	return yaml.Marshal(fs)
}
