package kernel

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// Accumulate adds one target camera's matching evidence into the volume.
//
// For each valid pixel the candidate depths are the base depth offset by
// (d - HalfNbDepths) steps of the local pixel size, along the viewing
// ray (or the upstream surface normal when one is supplied). The patch
// score is zero-normalized cross correlation; the raw value in [-1, 1]
// is mapped to [0, 1] so that a larger stored value is a better match,
// and added into the voxel.
func (k *CPU) Accumulate(vol *grid.Vol3[float32], depthPixSize *grid.Map2[mvs.DepthSim],
	normals *grid.Map2[mvs.Normal], ref, tgt *camera.Camera,
	p refine.Params, depths mvs.Range, roi mvs.ROI) error {

	patchLen := (2*k.PatchRadius + 1) * (2*k.PatchRadius + 1)
	refPatch := make([]float64, 0, patchLen)
	tgtPatch := make([]float64, 0, patchLen)

	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			ds := depthPixSize.At(x, y)
			if !ds.IsValid() || ds.Sim <= 0 {
				continue
			}

			px := refPixel(roi, x, y, p)
			base := ref.BackProject(px, float64(ds.Depth))

			// Offset direction: viewing ray by default, upstream
			// normal when the caller supplies one.
			dir := base.Sub(ref.Pose.Center()).Normalize()
			if p.UseNormalMap && normals != nil {
				n := normals.At(x, y)
				if n.X != 0 || n.Y != 0 || n.Z != 0 {
					dir = camera.Point3{X: float64(n.X), Y: float64(n.Y), Z: float64(n.Z)}
				}
			}
			step := dir.Scale(float64(ds.Sim))

			refPatch = gatherRefPatch(refPatch[:0], ref, px, k.PatchRadius)
			if refPatch == nil {
				continue
			}
			refMean, refVar := stat.MeanVariance(refPatch, nil)
			if refVar < k.MinPatchVariance {
				continue
			}

			for d := depths.Begin; d < depths.End; d++ {
				pt := base.Add(step.Scale(float64(d - p.HalfNbDepths)))
				tpx, _, ok := tgt.Project(pt)
				if !ok || !tgt.InImage(tpx, k.PatchRadius+1) {
					continue
				}
				tgtPatch = gatherTgtPatch(tgtPatch[:0], tgt, tpx, k.PatchRadius)
				tgtMean, tgtVar := stat.MeanVariance(tgtPatch, nil)
				if tgtVar < k.MinPatchVariance {
					continue
				}
				cov := covariance(refPatch, tgtPatch, refMean, tgtMean)
				zncc := cov / math.Sqrt(refVar*tgtVar)
				// Map [-1, 1] onto [0, 1]: higher stored value is a
				// better match. Never overwrite; evidence is additive
				// across cameras.
				grid.Add(vol, x, y, d, float32((zncc+1)*0.5))
			}
		}
	}
	return nil
}

// gatherRefPatch reads an integer-centered patch from the reference
// image. It returns nil when the patch leaves the image.
func gatherRefPatch(dst []float64, cam *camera.Camera, center camera.Point2, radius int) []float64 {
	cx := int(center.X)
	cy := int(center.Y)
	if cx < radius || cy < radius || cx >= cam.Img.W-radius || cy >= cam.Img.H-radius {
		return nil
	}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			dst = append(dst, float64(cam.Img.At(cx+dx, cy+dy)))
		}
	}
	return dst
}

// gatherTgtPatch reads a bilinearly sampled patch at a continuous center
// in the target image. The caller has already checked the margin.
func gatherTgtPatch(dst []float64, cam *camera.Camera, center camera.Point2, radius int) []float64 {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			dst = append(dst, float64(cam.Img.AtBilinear(center.X+float64(dx), center.Y+float64(dy))))
		}
	}
	return dst
}

// covariance computes the sample covariance of two equal-length patches
// with precomputed means.
func covariance(a, b []float64, meanA, meanB float64) float64 {
	var sum float64
	for i := range a {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(len(a)-1)
}
