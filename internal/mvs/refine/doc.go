// Package refine implements the depth-map refinement engine: a staged
// pipeline (upscale, fuse, optimize) that re-matches a reference view
// against its target views over a narrow depth window and extracts
// sub-voxel depth estimates from an accumulated similarity volume.
//
// This package is the composition root for one refinement stream: it
// owns the worst-case-sized buffers and drives the numeric kernels
// through the contracts in contracts.go, but it implements no numerics
// and no I/O itself. Kernel implementations live in internal/mvs/kernel;
// diagnostics sinks implement CheckpointObserver.
package refine
