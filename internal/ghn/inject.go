package ghn

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/mapping"
	"github.com/samcharles93/ghn/internal/resize"
	"github.com/samcharles93/ghn/internal/tensor"
)

// ErrInjectionShapeMismatch signals that a predicted tensor could not be
// written to its slot with exactly the slot's shape. The mapping itself is
// defective when this happens; it is never retried.
var ErrInjectionShapeMismatch = errors.New("injection shape mismatch")

// Mode selects how predicted tensors reach the target storage.
type Mode int

const (
	// Eval copies predicted values into the target's existing storage.
	Eval Mode = iota
	// Train binds the predicted tensors themselves into the target slots.
	Train
)

func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}

// ParseMode converts "train" or "eval".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "train", "training":
		return Train, nil
	case "", "eval", "inference":
		return Eval, nil
	default:
		return Eval, fmt.Errorf("unknown mode %q", s)
	}
}

// Injector writes resized predictions into parameter slots.
type Injector struct {
	Mode       Mode
	WeightNorm bool
}

// Inject writes every component of one matched entry from its bucket's
// decoder output and returns the number of tensors and values written.
//
// A rank-1 weight entry is a fused normalization node: it writes the weight
// first and then the module's bias from the same prediction.
func (inj Injector) Inject(e mapping.Entry, out *tensor.Tensor) (tensors, values int, err error) {
	d := e.Desc
	passes := 1
	if len(d.Shape) == 1 && d.IsWeight {
		passes = 2
	}
	for it := range passes {
		isWeight := d.IsWeight && it == 0
		slot := d.Module.Slot(isWeight)
		if it == 1 {
			if !d.Module.Kind.IsNorm() || !e.Key.IsVector() {
				return tensors, values, fmt.Errorf("%w: %s: fused bias on %s module with key %v", ErrInjectionShapeMismatch, d.Path, d.Module.Kind, e.Key)
			}
			if slot == nil {
				continue
			}
		}
		if slot == nil {
			return tensors, values, fmt.Errorf("%w: %s: module has no slot", ErrInjectionShapeMismatch, d.Path)
		}
		target := slot.Shape
		if it == 0 && !tensor.Equal(target, e.Shape) {
			slot.State = arch.Inconsistent
			return tensors, values, fmt.Errorf("%w: %s: slot %s, descriptor %s", ErrInjectionShapeMismatch, d.Path, tensor.FormatShape(target), tensor.FormatShape(e.Shape))
		}

		w, err := component(out, e.Pos, len(target), isWeight)
		if err != nil {
			return tensors, values, fmt.Errorf("%s: %w", d.Path, err)
		}
		w, err = resize.Resize(w, target)
		if err != nil {
			return tensors, values, fmt.Errorf("%s: %w", d.Path, err)
		}
		if inj.WeightNorm {
			w = resize.Normalize(w, isWeight)
		}
		if err := inj.write(slot, w); err != nil {
			return tensors, values, fmt.Errorf("%w: %s: %w", ErrInjectionShapeMismatch, d.Path, err)
		}
		if !tensor.Equal(slot.Data.Shape, target) {
			slot.State = arch.Inconsistent
			return tensors, values, fmt.Errorf("%w: %s: wrote %s into %s", ErrInjectionShapeMismatch, d.Path, tensor.FormatShape(slot.Data.Shape), tensor.FormatShape(target))
		}
		tensors++
		values += slot.Data.Numel()
	}
	return tensors, values, nil
}

func (inj Injector) write(slot *arch.Slot, w *tensor.Tensor) error {
	if inj.Mode == Train {
		return slot.Bind(w)
	}
	return slot.Copy(w)
}
