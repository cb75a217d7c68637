package ghn

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/safetensors"
	"github.com/samcharles93/ghn/internal/tensor"
)

const configMetadataKey = "ghn.config"

var ErrCheckpoint = errors.New("invalid ghn checkpoint")

// Save writes the model weights to a safetensors file with the config
// stored in the header metadata.
func Save(path string, m *Model) error {
	cfg, err := json.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var entries []safetensors.Entry
	for name, t := range m.Tensors() {
		entries = append(entries, safetensors.Entry{Name: name, Shape: t.Shape, Data: t.Data})
	}
	return safetensors.WriteFile(path, entries, map[string]string{configMetadataKey: string(cfg)})
}

// Load rebuilds a model from a checkpoint written by Save. Every model
// tensor must be present with its exact shape.
func Load(path string, opts ...Option) (*Model, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, ok := f.Metadata[configMetadataKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no %s metadata", ErrCheckpoint, path, configMetadataKey)
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: config: %w", ErrCheckpoint, path, err)
	}
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	for name, t := range m.Tensors() {
		vals, info, err := f.ReadTensorF32(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCheckpoint, path, err)
		}
		if !tensor.Equal(info.Shape, t.Shape) {
			return nil, fmt.Errorf("%w: %s: tensor %s is %s, model expects %s",
				ErrCheckpoint, path, name, tensor.FormatShape(info.Shape), tensor.FormatShape(t.Shape))
		}
		copy(t.Data, vals)
	}
	return m, nil
}

// ExportParams writes the current parameters of nets to a safetensors file.
// With several nets each name is prefixed by its net name and a slash.
func ExportParams(path string, nets []*arch.Net) error {
	var entries []safetensors.Entry
	for _, n := range nets {
		for name, s := range n.Params() {
			if len(nets) > 1 {
				name = n.Name + "/" + name
			}
			entries = append(entries, safetensors.Entry{Name: name, Shape: s.Shape, Data: s.Data.Data})
		}
	}
	return safetensors.WriteFile(path, entries, map[string]string{"format": "ghn.params"})
}
