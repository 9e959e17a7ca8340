// Package inference - Runs a network on images and turns its outputs into detections.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInputShape is returned when a network is fed a tensor of the wrong shape.
var ErrInputShape = errors.New("unexpected network input shape")

// Network runs the forward pass of a detection network.
//
// Forward takes a (1, 3, S, S) float32 tensor and returns one feature tensor
// per detection scale, in anchor-group order. The returned tensors belong to
// the caller.
type Network interface {
	Forward(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error)
}

// NetworkFunc adapts an ordinary function to the Network interface.
type NetworkFunc func(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error)

// Forward calls f(ctx, input).
func (f NetworkFunc) Forward(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	return f(ctx, input)
}

func checkInputShape(input *tensor.Dense, want tensor.Shape) error {
	if input == nil {
		return errors.Wrap(ErrInputShape, "nil input")
	}
	if input.Dtype() != tensor.Float32 {
		return errors.Wrapf(ErrInputShape, "dtype %v, want float32", input.Dtype())
	}
	if !input.Shape().Eq(want) {
		return errors.Wrapf(ErrInputShape, "got %v, want %v", input.Shape(), want)
	}
	return nil
}
