package unet

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Predictor runs the forward pass of a model with fixed parameters: no
// gradients, no parameter mutation. It shares the trained variables through
// the context it was built with.
type Predictor struct {
	exec *context.Exec
}

// NewPredictor compiles the forward graph against backend, reusing the model
// variables already present in ctx.
func NewPredictor(backend backends.Backend, ctx *context.Context, cfg Config) (*Predictor, error) {
	exec, err := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, image *graph.Node) *graph.Node {
		return cfg.Model(ctx, nil, []*graph.Node{image})[0]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile forward pass: %w", err)
	}
	return &Predictor{exec: exec}, nil
}

// Predict maps an image batch [b, size, size, 3] to a logit batch
// [b, size, size, 1].
func (p *Predictor) Predict(images *tensors.Tensor) (*tensors.Tensor, error) {
	outputs, err := p.exec.Exec(images)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}
	return outputs[0], nil
}
