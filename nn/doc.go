// Package nn is a statically configured feed-forward neural computation engine.
//
// A network is a strict chain of layers. Each layer holds a fixed number of
// neurons, and each neuron combines a fixed number of weighted inputs through
// a stateless activation policy:
//   - Sigmoid: 1 / (1 + exp(-v))
//   - Tanh: 2 / (1 + exp(-2v)) - 1
//   - ReLU: max(0, v)
//   - Softmax: exp(v) / Σ exp(peers), evaluated in two phases across the layer
//   - Threshold: 1 if the wrapped policy's output exceeds t/100, else 0
//
// Layers are either dense (one policy and numeric type for every neuron) or
// complex (per-element policies and numeric types behind the Unit interface).
//
// The weights and biases of a network can be captured into an immutable
// Memento and applied to another network of the same shape, possibly running
// on a different backend or numeric type.
//
// Example usage:
//
//	net, _ := nn.NewNetwork[float32](2, nn.WithExecutor(nn.NewParallel(0)))
//	net.AddLayer(nn.LayerSpec[float32]{Width: 2, Policy: nn.Tanh[float32]{}})
//	net.AddLayer(nn.LayerSpec[float32]{Width: 2, Policy: nn.Softmax[float32]{}})
//	nn.Initialize(nn.NewInitializer(1), net)
//
//	output, _ := net.Forward([]float32{1, 0})
//
//	// Move the weights to a reference-backend copy and compare.
//	ref, _ := nn.BuildNetwork[float32](nn.DescribeNetwork(net))
//	report, err := nn.CheckEquivalence[float32](ref, net, net.Memento(), inputs, nn.DefaultTolerance)
package nn
