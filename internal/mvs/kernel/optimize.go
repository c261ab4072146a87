package kernel

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// Optimize runs the fixed-iteration color-guided smoothing pass.
//
// A per-pixel confidence is computed once from the local luminance
// variance of the reference image: low variance (flat color) gives the
// smoothing term full weight, strong edges suppress it so depth
// discontinuities survive. Each iteration moves every valid pixel
// toward a blend of its 4-neighbour average (smoothing) and the fused
// observation (data term). Iteration count is the only termination
// criterion.
func (k *CPU) Optimize(dst *grid.Map2[mvs.DepthSim],
	imgVariance *grid.Map2[float32], tmpDepth *grid.Map2[float32],
	depthPixSize, refined *grid.Map2[mvs.DepthSim],
	ref *camera.Camera, p refine.Params, roi mvs.ROI) error {

	w := roi.Width()
	h := roi.Height()

	k.computeImageVariance(imgVariance, ref, p, roi)

	// Seed the working depth from the fused map.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tmpDepth.Set(x, y, refined.At(x, y).Depth)
		}
	}

	for it := 0; it < p.OptimizationNbIterations; it++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				cur := tmpDepth.At(x, y)
				obs := refined.At(x, y)
				if cur < 0 || !obs.IsValid() {
					dst.Set(x, y, mvs.DepthSim{Depth: mvs.InvalidDepth, Sim: mvs.NoFusionSim})
					continue
				}

				avg, n := neighbourAverage(tmpDepth, x, y, w, h)
				smoothW := math.Exp(-float64(imgVariance.At(x, y)) / k.VarianceGamma)
				delta := (1 - smoothW) * (float64(obs.Depth) - float64(cur))
				if n > 0 {
					delta += smoothW * (avg - float64(cur))
				}
				dst.Set(x, y, mvs.DepthSim{
					Depth: cur + float32(k.OptStep*delta),
					Sim:   obs.Sim,
				})
			}
		}
		// Jacobi update: next iteration reads this iteration's output.
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				tmpDepth.Set(x, y, dst.At(x, y).Depth)
			}
		}
	}
	return nil
}

// computeImageVariance fills the scratch map with the 3x3 luminance
// variance of the reference image at each buffer pixel.
func (k *CPU) computeImageVariance(out *grid.Map2[float32], ref *camera.Camera,
	p refine.Params, roi mvs.ROI) {
	var window [9]float64
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			px := refPixel(roi, x, y, p)
			cx := clampInt(int(px.X), 1, ref.Img.W-2)
			cy := clampInt(int(px.Y), 1, ref.Img.H-2)
			i := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[i] = float64(ref.Img.At(cx+dx, cy+dy))
					i++
				}
			}
			out.Set(x, y, float32(stat.Variance(window[:], nil)))
		}
	}
}

// neighbourAverage returns the mean of the valid 4-neighbour depths and
// how many neighbours contributed.
func neighbourAverage(depths *grid.Map2[float32], x, y, w, h int) (float64, int) {
	var sum float64
	n := 0
	if x > 0 {
		if d := depths.At(x-1, y); d >= 0 {
			sum += float64(d)
			n++
		}
	}
	if x < w-1 {
		if d := depths.At(x+1, y); d >= 0 {
			sum += float64(d)
			n++
		}
	}
	if y > 0 {
		if d := depths.At(x, y-1); d >= 0 {
			sum += float64(d)
			n++
		}
	}
	if y < h-1 {
		if d := depths.At(x, y+1); d >= 0 {
			sum += float64(d)
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
