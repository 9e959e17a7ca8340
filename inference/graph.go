package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GraphBuilder adds a network to g on top of input and returns its output
// nodes, one per detection scale.
type GraphBuilder func(g *G.ExprGraph, input *G.Node) ([]*G.Node, error)

// GraphNetwork runs a gorgonia expression graph as the network.
//
// The graph is compiled once into a tape machine. Forward calls are serialized
// because the machine holds the node values between runs.
type GraphNetwork struct {
	mu      sync.Mutex
	graph   *G.ExprGraph
	input   *G.Node
	outputs []*G.Node
	machine G.VM
	shape   tensor.Shape
}

// NewGraphNetwork builds and compiles a graph network.
//
// Arguments:
//   - inputSize: The side of the square (1, 3, S, S) input.
//   - build: Adds the network layers to the graph.
//
// Returns:
//   - *GraphNetwork: The network. Call Close to release the machine.
//   - error: An error if the builder fails or returns no outputs.
func NewGraphNetwork(inputSize int, build GraphBuilder) (*GraphNetwork, error) {
	if inputSize <= 0 {
		return nil, errors.Errorf("input size must be positive, got %d", inputSize)
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(1, 3, inputSize, inputSize),
		G.WithName("input"),
	)

	outputs, err := build(g, input)
	if err != nil {
		return nil, errors.Wrap(err, "building network graph")
	}
	if len(outputs) == 0 {
		return nil, errors.New("network graph has no outputs")
	}

	return &GraphNetwork{
		graph:   g,
		input:   input,
		outputs: outputs,
		machine: G.NewTapeMachine(g),
		shape:   tensor.Shape{1, 3, inputSize, inputSize},
	}, nil
}

// Forward binds input, runs the tape machine and returns copies of the output values.
func (n *GraphNetwork) Forward(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if err := checkInputShape(input, n.shape); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.machine.Reset()

	if err := G.Let(n.input, input); err != nil {
		return nil, errors.Wrap(err, "binding network input")
	}
	if err := n.machine.RunAll(); err != nil {
		return nil, errors.Wrap(err, "running network graph")
	}

	results := make([]*tensor.Dense, len(n.outputs))
	for i, out := range n.outputs {
		dense, ok := out.Value().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("output %d has value %T, want *tensor.Dense", i, out.Value())
		}
		results[i] = dense.Clone().(*tensor.Dense)
	}
	return results, nil
}

// Close releases the tape machine.
func (n *GraphNetwork) Close() error {
	return n.machine.Close()
}
