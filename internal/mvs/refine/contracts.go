package refine

import (
	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
)

// ---------------------------------------------------------------------------
// Kernel contracts: the numeric primitives the engine consumes.
//
// All kernels address buffers in ROI-local coordinates: buffer pixel
// (x, y) corresponds to scaled-image pixel (roi.X.Begin+x, roi.Y.Begin+y).
// Buffers are worst-case sized; only the leading roi.Width() x roi.Height()
// sub-region is touched.
// ---------------------------------------------------------------------------

// MapUpscaler provides the upscale-stage kernels.
type MapUpscaler interface {
	// UpscaleDepthSim upscales the coarse depth/sim map into dst over
	// the ROI, masking pixels the input marks invalid.
	UpscaleDepthSim(dst *grid.Map2[mvs.DepthSim], src *grid.Map2[mvs.DepthSim],
		ref *camera.Camera, p Params, roi mvs.ROI) error

	// ComputePixSize replaces the similarity channel of m with the
	// per-pixel 3D footprint at the stored depth. Invalid pixels are
	// left untouched.
	ComputePixSize(m *grid.Map2[mvs.DepthSim], ref *camera.Camera,
		p Params, roi mvs.ROI) error

	// UpscaleNormals upscales the coarse normal map into dst over the
	// ROI, renormalizing interpolated vectors.
	UpscaleNormals(dst *grid.Map2[mvs.Normal], src *grid.Map2[mvs.Normal],
		roi mvs.ROI) error
}

// SimilarityAccumulator adds one target camera's matching evidence into
// the similarity volume.
//
// For every voxel (x, y, d) inside roi x depths the kernel derives a
// candidate 3D point from the base depth plus an offset of d scaled by
// the local pixel size, projects it into the target view, scores a patch
// match, and inverts/filters the raw cost so that a larger stored value
// means a better match. Contributions are added, never overwritten, so
// one call per target camera fuses evidence additively. The exact
// scoring/inversion formula belongs to the implementation; only the sign
// convention and additivity are fixed here.
type SimilarityAccumulator interface {
	Accumulate(vol *grid.Vol3[float32], depthPixSize *grid.Map2[mvs.DepthSim],
		normals *grid.Map2[mvs.Normal], ref, tgt *camera.Camera,
		p Params, depths mvs.Range, roi mvs.ROI) error
}

// BestDepthExtractor retrieves the best depth/similarity per pixel from
// the accumulated volume.
//
// For every pixel in the ROI the kernel finds the depth index with the
// maximum accumulated value (ties broken by the first maximal index in
// increasing depth order), fits a continuous sub-voxel offset from that
// index and its immediate neighbours along the depth axis, and writes
// the resulting depth and score into dst. Pixels whose volume column is
// still neutral keep their base depth.
type BestDepthExtractor interface {
	ExtractBestDepth(dst *grid.Map2[mvs.DepthSim], depthPixSize *grid.Map2[mvs.DepthSim],
		vol *grid.Vol3[float32], ref *camera.Camera, p Params, roi mvs.ROI) error
}

// DepthOptimizer runs the color-guided gradient-descent smoothing pass.
// imgVariance and tmpDepth are pre-allocated scratch buffers owned by
// the engine; the kernel must not retain them.
type DepthOptimizer interface {
	Optimize(dst *grid.Map2[mvs.DepthSim],
		imgVariance *grid.Map2[float32], tmpDepth *grid.Map2[float32],
		depthPixSize, refined *grid.Map2[mvs.DepthSim],
		ref *camera.Camera, p Params, roi mvs.ROI) error
}

// CheckpointObserver receives intermediate buffers at fixed pipeline
// checkpoints. Implementations are best-effort sinks: they must swallow
// their own failures and must never mutate the buffers.
type CheckpointObserver interface {
	// DepthSimMapCheckpoint is invoked after the upscale and fuse
	// stages when intermediate map export is enabled.
	DepthSimMapCheckpoint(stage string, tile mvs.Tile, m *grid.Map2[mvs.DepthSim], roi mvs.ROI)

	// VolumeCheckpoint is invoked after accumulation when volume export
	// is enabled.
	VolumeCheckpoint(stage string, tile mvs.Tile, vol *grid.Vol3[float32],
		depthPixSize *grid.Map2[mvs.DepthSim], roi mvs.ROI)
}
