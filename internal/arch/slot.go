package arch

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ghn/internal/tensor"
)

var (
	// ErrSlotShape is returned when a tensor written to a slot does not have
	// exactly the slot's shape.
	ErrSlotShape = errors.New("parameter slot shape mismatch")
	// ErrSlotCleared is returned when copying into a slot that holds no
	// storage.
	ErrSlotCleared = errors.New("parameter slot has no storage")
)

// State tracks a slot through one prediction pass.
type State int

const (
	Unmatched State = iota
	Matched
	Injected
	Inconsistent
)

func (s State) String() string {
	switch s {
	case Unmatched:
		return "unmatched"
	case Matched:
		return "matched"
	case Injected:
		return "injected"
	case Inconsistent:
		return "inconsistent"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Slot is one learnable tensor of a module. Its storage can be replaced by
// reference (Bind) or overwritten by value (Copy).
type Slot struct {
	Shape []int
	Data  *tensor.Tensor
	State State
}

// NewSlot allocates zeroed storage of the given shape.
func NewSlot(shape ...int) *Slot {
	return &Slot{Shape: append([]int(nil), shape...), Data: tensor.New(shape...)}
}

// Present reports whether the slot currently holds a tensor.
func (s *Slot) Present() bool { return s != nil && s.Data != nil }

// Bind replaces the slot's storage with t itself. Later writes to t are seen
// through the slot.
func (s *Slot) Bind(t *tensor.Tensor) error {
	if !tensor.Equal(t.Shape, s.Shape) {
		s.State = Inconsistent
		return fmt.Errorf("%w: bind %s into %s", ErrSlotShape, tensor.FormatShape(t.Shape), tensor.FormatShape(s.Shape))
	}
	s.Data = t
	s.State = Injected
	return nil
}

// Copy overwrites the slot's existing storage with the values of t. The slot
// never aliases t afterwards.
func (s *Slot) Copy(t *tensor.Tensor) error {
	if s.Data == nil {
		s.State = Inconsistent
		return ErrSlotCleared
	}
	if !tensor.Equal(t.Shape, s.Shape) || !tensor.Equal(s.Data.Shape, s.Shape) {
		s.State = Inconsistent
		return fmt.Errorf("%w: copy %s into %s", ErrSlotShape, tensor.FormatShape(t.Shape), tensor.FormatShape(s.Shape))
	}
	copy(s.Data.Data, t.Data)
	s.State = Injected
	return nil
}

// Clear drops the slot's storage so the module runs without this parameter.
func (s *Slot) Clear() {
	s.Data = nil
	s.State = Unmatched
}
