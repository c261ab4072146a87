// Package kernel provides the CPU reference implementations of the
// numeric primitives consumed by the refinement engine: coarse map
// upscaling, per-target similarity accumulation, sub-voxel best-depth
// extraction and color-guided depth optimization.
//
// The engine depends only on the contracts in internal/mvs/refine; this
// package is one pluggable implementation of them. All kernels are
// deterministic: identical inputs produce identical outputs, and the
// per-camera accumulation order is the caller's responsibility.
package kernel
