package kernel

import (
	"fmt"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// UpscaleDepthSim bilinearly interpolates the coarse depth/sim map into
// dst over the ROI. Invalid source texels (negative depth) are excluded
// from the interpolation; a destination pixel whose valid source weight
// falls below one half is masked invalid.
func (k *CPU) UpscaleDepthSim(dst *grid.Map2[mvs.DepthSim], src *grid.Map2[mvs.DepthSim],
	ref *camera.Camera, p refine.Params, roi mvs.ROI) error {
	if src == nil {
		return fmt.Errorf("kernel: nil coarse depth/sim map")
	}
	w := roi.Width()
	h := roi.Height()
	sx := float64(src.Width()) / float64(w)
	sy := float64(src.Height()) / float64(h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			fy := (float64(y)+0.5)*sy - 0.5
			dst.Set(x, y, sampleDepthSim(src, fx, fy))
		}
	}
	return nil
}

// sampleDepthSim interpolates src at a continuous position, skipping
// invalid texels and masking when too little valid support remains.
func sampleDepthSim(src *grid.Map2[mvs.DepthSim], fx, fy float64) mvs.DepthSim {
	x0 := clampInt(int(fx), 0, src.Width()-1)
	y0 := clampInt(int(fy), 0, src.Height()-1)
	x1 := clampInt(x0+1, 0, src.Width()-1)
	y1 := clampInt(y0+1, 0, src.Height()-1)
	ax := fx - float64(x0)
	ay := fy - float64(y0)
	if ax < 0 {
		ax = 0
	}
	if ay < 0 {
		ay = 0
	}

	texels := [4]mvs.DepthSim{src.At(x0, y0), src.At(x1, y0), src.At(x0, y1), src.At(x1, y1)}
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}

	var depth, sim, total float64
	for i, t := range texels {
		if !t.IsValid() {
			continue
		}
		depth += float64(t.Depth) * weights[i]
		sim += float64(t.Sim) * weights[i]
		total += weights[i]
	}
	if total < 0.5 {
		return mvs.DepthSim{Depth: mvs.InvalidDepth, Sim: mvs.NoFusionSim}
	}
	return mvs.DepthSim{Depth: float32(depth / total), Sim: float32(sim / total)}
}

// ComputePixSize replaces the similarity channel with the metric
// footprint of one sampling step at each pixel's depth. Invalid pixels
// are left untouched.
func (k *CPU) ComputePixSize(m *grid.Map2[mvs.DepthSim], ref *camera.Camera,
	p refine.Params, roi mvs.ROI) error {
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			ds := m.At(x, y)
			if !ds.IsValid() {
				continue
			}
			px := refPixel(roi, x, y, p)
			pt := ref.BackProject(px, float64(ds.Depth))
			// One sampling step covers StepXY image pixels.
			ds.Sim = float32(ref.PixSize(pt) * float64(p.StepXY))
			m.Set(x, y, ds)
		}
	}
	return nil
}

// UpscaleNormals nearest-samples the coarse normal map into dst over the
// ROI and renormalizes.
func (k *CPU) UpscaleNormals(dst *grid.Map2[mvs.Normal], src *grid.Map2[mvs.Normal], roi mvs.ROI) error {
	if src == nil {
		return fmt.Errorf("kernel: nil coarse normal map")
	}
	w := roi.Width()
	h := roi.Height()
	sx := float64(src.Width()) / float64(w)
	sy := float64(src.Height()) / float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx := clampInt(int((float64(x)+0.5)*sx), 0, src.Width()-1)
			ny := clampInt(int((float64(y)+0.5)*sy), 0, src.Height()-1)
			dst.Set(x, y, src.At(nx, ny).Normalize())
		}
	}
	return nil
}

// refPixel maps an ROI-local buffer coordinate to the reference camera's
// scaled image coordinates.
func refPixel(roi mvs.ROI, x, y int, p refine.Params) camera.Point2 {
	return camera.Point2{
		X: float64((roi.X.Begin + x) * p.StepXY),
		Y: float64((roi.Y.Begin + y) * p.StepXY),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
