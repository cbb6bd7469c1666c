// Package device implements the GPU execution backend for fusion runs using
// wgpu compute shaders. Per-pixel moment state lives in planar device buffers;
// one accumulate dispatch folds in each frame and a single finalize dispatch
// produces the output matrices.
//
// Every shader kernel has a float32 CPU mirror in this package. The mirrors
// define the kernels' numerical contract and let the cross-backend parity
// tests run without an adapter present.
package device
