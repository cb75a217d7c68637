package api

import (
	"errors"

	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/mapping"
	"github.com/samcharles93/ghn/internal/resize"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }

func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// predictionCodes are the pipeline errors a client can fix by changing its
// net or graph.
var predictionCodes = []struct {
	target error
	code   string
}{
	{mapping.ErrUnresolvedParameterNode, "unresolved_parameter_node"},
	{mapping.ErrBatchMismatch, "batch_mismatch"},
	{resize.ErrShapeAlgebra, "shape_algebra"},
	{ghn.ErrInjectionShapeMismatch, "injection_shape_mismatch"},
	{ghn.ErrConfig, "unknown_op"},
}

func predictionCode(err error) (string, bool) {
	for _, pc := range predictionCodes {
		if errors.Is(err, pc.target) {
			return pc.code, true
		}
	}
	return "", false
}
