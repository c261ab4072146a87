package kernel

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// ExtractBestDepth retrieves, per pixel, the depth index with the
// highest accumulated score, fits a parabola through the three samples
// around it for a sub-voxel offset, and writes the continuous depth and
// a score into dst.
//
// Ties go to the first maximal index in increasing depth order. A pixel
// whose column is still neutral (no camera contributed) keeps its base
// depth with the no-fusion sentinel; an invalid base pixel stays
// invalid.
func (k *CPU) ExtractBestDepth(dst *grid.Map2[mvs.DepthSim], depthPixSize *grid.Map2[mvs.DepthSim],
	vol *grid.Vol3[float32], ref *camera.Camera, p refine.Params, roi mvs.ROI) error {

	nb := vol.Depths()
	colF32 := make([]float32, nb)
	col := make([]float64, nb)

	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			base := depthPixSize.At(x, y)
			if !base.IsValid() {
				dst.Set(x, y, mvs.DepthSim{Depth: mvs.InvalidDepth, Sim: mvs.NoFusionSim})
				continue
			}

			vol.DepthSlice(x, y, colF32)
			for i, v := range colF32 {
				col[i] = float64(v)
			}

			// floats.MaxIdx returns the first occurrence of the
			// maximum, which keeps tie-breaking deterministic.
			best := floats.MaxIdx(col)
			bestVal := col[best]
			if bestVal <= 0 {
				dst.Set(x, y, mvs.DepthSim{Depth: base.Depth, Sim: mvs.NoFusionSim})
				continue
			}

			offset := subVoxelOffset(col, best)
			depth := float64(base.Depth) + (float64(best)+offset-float64(p.HalfNbDepths))*float64(base.Sim)

			// Report a score where lower is better, mirroring the
			// sign convention of the rest of the map pipeline.
			dst.Set(x, y, mvs.DepthSim{Depth: float32(depth), Sim: float32(-bestVal)})
		}
	}
	return nil
}

// subVoxelOffset fits a parabola through the sample at best and its two
// depth-axis neighbours and returns the continuous offset of the vertex,
// clamped to [-0.5, 0.5]. Edge indices get no offset.
func subVoxelOffset(col []float64, best int) float64 {
	if best == 0 || best == len(col)-1 {
		return 0
	}
	prev := col[best-1]
	cur := col[best]
	next := col[best+1]
	denom := prev - 2*cur + next
	if denom >= 0 {
		// Degenerate (flat or valley) fit; keep the discrete peak.
		return 0
	}
	off := 0.5 * (prev - next) / denom
	if off < -0.5 {
		off = -0.5
	}
	if off > 0.5 {
		off = 0.5
	}
	return off
}
