// Package gpu is the WebGPU backend. A Network is compiled from an assembled
// nn.Network: each layer becomes two compute pipelines, one writing raw sums
// and one applying the activation. Softmax reads the whole raw-sum buffer of
// its layer, so the two passes are kept separate.
//
// Everything on the device is float32. Weights move in and out through the
// same mementos the CPU backends use.
package gpu
