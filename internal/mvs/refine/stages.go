package refine

import (
	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
)

// Stage tags used for checkpoint exports and file naming.
const (
	StageUpscaled     = "sgmUpscaled"
	StageAfterRefine  = "afterRefine"
	StageRefinedFused = "refinedFused"
)

// upscaleStage fills the upscaled buffer: coarse depth interpolated to
// the working resolution with invalid pixels masked, then the similarity
// channel replaced by the per-pixel size used as depth-step unit by the
// later stages.
func (r *Refiner) upscaleStage(tile mvs.Tile, droi mvs.ROI, coarse *grid.Map2[mvs.DepthSim], coarseNormals *grid.Map2[mvs.Normal]) error {
	ref, err := r.cfg.Cameras.Request(tile.RefView, r.cfg.Params.Scale)
	if err != nil {
		return err
	}

	if err := r.cfg.Upscaler.UpscaleDepthSim(r.upscaled, coarse, ref, r.cfg.Params, droi); err != nil {
		return err
	}

	if r.cfg.Params.ExportIntermediateDepthSimMaps && r.cfg.Observer != nil {
		r.cfg.Observer.DepthSimMapCheckpoint(StageUpscaled, tile, r.upscaled, droi)
	}

	if err := r.cfg.Upscaler.ComputePixSize(r.upscaled, ref, r.cfg.Params, droi); err != nil {
		return err
	}

	r.normalsLoaded = false
	if r.cfg.Params.UseNormalMap && coarseNormals != nil {
		if err := r.cfg.Upscaler.UpscaleNormals(r.normals, coarseNormals, droi); err != nil {
			return err
		}
		r.normalsLoaded = true
	} else if r.cfg.Params.UseNormalMap {
		diagf("%sno upstream normal map, refining without normal guidance", tile)
	}
	return nil
}

// tileNormals returns the normals buffer only when the current tile
// populated it; a previous tile's vectors must never guide this one.
func (r *Refiner) tileNormals() *grid.Map2[mvs.Normal] {
	if !r.normalsLoaded {
		return nil
	}
	return r.normals
}

// fuseStage accumulates each target camera's matching evidence into the
// similarity volume and extracts the per-pixel best depth. When fusion
// is disabled the upscaled depth passes through with a no-fusion
// similarity sentinel.
func (r *Refiner) fuseStage(tile mvs.Tile, droi mvs.ROI) error {
	if !r.cfg.Params.UseRefineFuse {
		diagf("%srefine and fuse volume disabled", tile)
		r.copyDepthOnly(r.refined, r.upscaled, droi)
		r.exportDepthSimCheckpoint(StageRefinedFused, tile, droi)
		return nil
	}

	// Each target camera's filtered and inverted similarity is summed
	// into this volume; the best value is the highest.
	r.vol.Fill(0)

	ref, err := r.cfg.Cameras.Request(tile.RefView, r.cfg.Params.Scale)
	if err != nil {
		return err
	}

	depths := mvs.Range{Begin: 0, End: r.vol.Depths()}
	for i, tc := range tile.Targets {
		tgt, err := r.cfg.Cameras.Request(tc, r.cfg.Params.Scale)
		if err != nil {
			return err
		}
		tracef("%saccumulate similarity: tc %s (%d/%d), roi %s",
			tile, tc, i+1, len(tile.Targets), droi)
		if err := r.cfg.Accumulator.Accumulate(r.vol, r.upscaled, r.tileNormals(),
			ref, tgt, r.cfg.Params, depths, droi); err != nil {
			return err
		}
	}

	if (r.cfg.Params.ExportIntermediateCrossVolumes || r.cfg.Params.ExportIntermediateVolume9pCsv) &&
		r.cfg.Observer != nil {
		r.cfg.Observer.VolumeCheckpoint(StageAfterRefine, tile, r.vol, r.upscaled, droi)
	}

	if err := r.cfg.Extractor.ExtractBestDepth(r.refined, r.upscaled, r.vol, ref, r.cfg.Params, droi); err != nil {
		return err
	}

	r.exportDepthSimCheckpoint(StageRefinedFused, tile, droi)
	return nil
}

// optimizeStage runs the fixed-iteration color-guided smoothing pass, or
// copies the fused result verbatim when disabled.
func (r *Refiner) optimizeStage(tile mvs.Tile, droi mvs.ROI) error {
	if !r.cfg.Params.UseColorOptimization || r.cfg.Params.OptimizationNbIterations == 0 {
		diagf("%scolor optimization disabled", tile)
		return r.optimized.CopyFrom(r.refined)
	}

	ref, err := r.cfg.Cameras.Request(tile.RefView, r.cfg.Params.Scale)
	if err != nil {
		return err
	}
	return r.cfg.Optimizer.Optimize(r.optimized, r.optImgVariance, r.optTmpDepth,
		r.upscaled, r.refined, ref, r.cfg.Params, droi)
}

// copyDepthOnly copies the depth channel over the ROI and stamps the
// similarity channel with the no-fusion sentinel.
func (r *Refiner) copyDepthOnly(dst, src *grid.Map2[mvs.DepthSim], droi mvs.ROI) {
	for y := 0; y < droi.Height(); y++ {
		for x := 0; x < droi.Width(); x++ {
			dst.Set(x, y, mvs.DepthSim{Depth: src.At(x, y).Depth, Sim: mvs.NoFusionSim})
		}
	}
}

func (r *Refiner) exportDepthSimCheckpoint(stage string, tile mvs.Tile, droi mvs.ROI) {
	if r.cfg.Params.ExportIntermediateDepthSimMaps && r.cfg.Observer != nil {
		r.cfg.Observer.DepthSimMapCheckpoint(stage, tile, r.refined, droi)
	}
}
