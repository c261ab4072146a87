package refine

import (
	"fmt"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
)

// Config holds the dependencies of one refinement stream.
type Config struct {
	// Cameras resolves (view id, scale) to read-only camera handles.
	// Required; a lookup miss during refinement is fatal.
	Cameras *camera.Registry

	Params Params

	// TileBufferWidth and TileBufferHeight are the largest tile
	// dimensions, at full image resolution, this engine will ever be
	// asked to process. Buffers are sized once from these.
	TileBufferWidth  int
	TileBufferHeight int

	// Kernels. Upscaler is always required. Accumulator and Extractor
	// are required when UseRefineFuse is set; Optimizer when
	// UseColorOptimization is set.
	Upscaler    MapUpscaler
	Accumulator SimilarityAccumulator
	Extractor   BestDepthExtractor
	Optimizer   DepthOptimizer

	// Observer receives intermediate buffers at fixed checkpoints.
	// Optional; only consulted when the corresponding export flags are
	// set.
	Observer CheckpointObserver
}

// Refiner owns the device-style buffers for one refinement stream and
// drives the upscale/fuse/optimize pipeline for one tile at a time.
//
// A Refiner must never be used concurrently for two tiles: its buffers
// are shared, reused, mutable state with no internal locking. Safety
// comes from the single-owner discipline, not mutual exclusion.
// Multiple Refiners may share one camera registry.
type Refiner struct {
	cfg Config

	maxTileWidth  int
	maxTileHeight int

	// Depth/sim maps, all worst-case sized, never aliased.
	upscaled  *grid.Map2[mvs.DepthSim] // coarse depth + pixel size
	refined   *grid.Map2[mvs.DepthSim] // fused output
	optimized *grid.Map2[mvs.DepthSim] // final output

	normals *grid.Map2[mvs.Normal] // only when UseNormalMap

	// normalsLoaded marks whether the normals buffer holds data for the
	// tile currently being refined. Buffers are reused across tiles, so
	// a tile without an upstream normal map must not see the previous
	// tile's vectors.
	normalsLoaded bool

	vol *grid.Vol3[float32]

	// Optimization scratch, only when UseColorOptimization.
	optImgVariance *grid.Map2[float32]
	optTmpDepth    *grid.Map2[float32]
}

// New validates the configuration and allocates every buffer the engine
// will ever need, sized for the worst-case tile. Allocation or
// validation failure is fatal for the engine; it is not retried.
func New(cfg Config) (*Refiner, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Cameras == nil {
		return nil, fmt.Errorf("refine: camera registry is required")
	}
	if cfg.TileBufferWidth <= 0 || cfg.TileBufferHeight <= 0 {
		return nil, fmt.Errorf("refine: invalid tile buffer dimensions %dx%d",
			cfg.TileBufferWidth, cfg.TileBufferHeight)
	}
	if cfg.Upscaler == nil {
		return nil, fmt.Errorf("refine: upscaler kernel is required")
	}
	if cfg.Params.UseRefineFuse && (cfg.Accumulator == nil || cfg.Extractor == nil) {
		return nil, fmt.Errorf("refine: fuse stage enabled but accumulator/extractor kernel missing")
	}
	if cfg.Params.UseColorOptimization && cfg.Optimizer == nil {
		return nil, fmt.Errorf("refine: optimization stage enabled but optimizer kernel missing")
	}

	r := &Refiner{
		cfg:           cfg,
		maxTileWidth:  mvs.DivideRoundUp(cfg.TileBufferWidth, cfg.Params.Downscale()),
		maxTileHeight: mvs.DivideRoundUp(cfg.TileBufferHeight, cfg.Params.Downscale()),
	}

	var err error
	if r.upscaled, err = grid.NewMap2[mvs.DepthSim](r.maxTileWidth, r.maxTileHeight); err != nil {
		return nil, err
	}
	if r.refined, err = grid.NewMap2[mvs.DepthSim](r.maxTileWidth, r.maxTileHeight); err != nil {
		return nil, err
	}
	if r.optimized, err = grid.NewMap2[mvs.DepthSim](r.maxTileWidth, r.maxTileHeight); err != nil {
		return nil, err
	}
	if cfg.Params.UseNormalMap {
		if r.normals, err = grid.NewMap2[mvs.Normal](r.maxTileWidth, r.maxTileHeight); err != nil {
			return nil, err
		}
	}
	if r.vol, err = grid.NewVol3[float32](r.maxTileWidth, r.maxTileHeight, cfg.Params.NbDepths()); err != nil {
		return nil, err
	}
	if cfg.Params.UseColorOptimization {
		if r.optImgVariance, err = grid.NewMap2[float32](r.maxTileWidth, r.maxTileHeight); err != nil {
			return nil, err
		}
		if r.optTmpDepth, err = grid.NewMap2[float32](r.maxTileWidth, r.maxTileHeight); err != nil {
			return nil, err
		}
	}

	diagf("allocated refine buffers: %dx%d maps, %dx%dx%d volume, %.1f MB padded",
		r.maxTileWidth, r.maxTileHeight,
		r.maxTileWidth, r.maxTileHeight, cfg.Params.NbDepths(),
		r.PaddedMemoryMB())
	return r, nil
}

// MaxTileDimensions returns the worst-case tile dimensions in buffer
// (scaled) pixels.
func (r *Refiner) MaxTileDimensions() (width, height int) {
	return r.maxTileWidth, r.maxTileHeight
}

// PaddedMemoryMB reports the physical byte footprint of every allocated
// buffer, in megabytes.
func (r *Refiner) PaddedMemoryMB() float64 {
	var bytes uint64
	bytes += r.upscaled.BytesPadded()
	bytes += r.refined.BytesPadded()
	bytes += r.optimized.BytesPadded()
	if r.normals != nil {
		bytes += r.normals.BytesPadded()
	}
	bytes += r.vol.BytesPadded()
	if r.optImgVariance != nil {
		bytes += r.optImgVariance.BytesPadded()
		bytes += r.optTmpDepth.BytesPadded()
	}
	return float64(bytes) / (1024.0 * 1024.0)
}

// UnpaddedMemoryMB reports the logical byte footprint of every allocated
// buffer, in megabytes.
func (r *Refiner) UnpaddedMemoryMB() float64 {
	var bytes uint64
	bytes += r.upscaled.BytesUnpadded()
	bytes += r.refined.BytesUnpadded()
	bytes += r.optimized.BytesUnpadded()
	if r.normals != nil {
		bytes += r.normals.BytesUnpadded()
	}
	bytes += r.vol.BytesUnpadded()
	if r.optImgVariance != nil {
		bytes += r.optImgVariance.BytesUnpadded()
		bytes += r.optTmpDepth.BytesUnpadded()
	}
	return float64(bytes) / (1024.0 * 1024.0)
}

// OptimizedDepthSimMap returns the final output buffer. Contents are
// valid for the most recently refined tile only.
func (r *Refiner) OptimizedDepthSimMap() *grid.Map2[mvs.DepthSim] { return r.optimized }

// RefinedDepthSimMap returns the fused (pre-optimization) buffer.
func (r *Refiner) RefinedDepthSimMap() *grid.Map2[mvs.DepthSim] { return r.refined }

// Refine runs the full pipeline for one tile, overwriting the internal
// buffers. The coarse depth/sim map comes from the upstream matching
// stage; coarseNormals may be nil, in which case normal guidance is
// skipped even when enabled.
func (r *Refiner) Refine(tile mvs.Tile, coarse *grid.Map2[mvs.DepthSim], coarseNormals *grid.Map2[mvs.Normal]) error {
	diagf("%srefine depth/sim map, %d target cameras", tile, len(tile.Targets))

	droi, err := r.tileROI(tile)
	if err != nil {
		return err
	}

	if err := r.upscaleStage(tile, droi, coarse, coarseNormals); err != nil {
		return fmt.Errorf("%supscale stage: %w", tile, err)
	}
	if err := r.fuseStage(tile, droi); err != nil {
		return fmt.Errorf("%sfuse stage: %w", tile, err)
	}
	if err := r.optimizeStage(tile, droi); err != nil {
		return fmt.Errorf("%soptimize stage: %w", tile, err)
	}

	diagf("%srefine depth/sim map done", tile)
	return nil
}

// tileROI downscales the tile ROI and checks it against the worst-case
// buffer dimensions.
func (r *Refiner) tileROI(tile mvs.Tile) (mvs.ROI, error) {
	if tile.ROI.IsEmpty() {
		return mvs.ROI{}, fmt.Errorf("%sempty tile ROI", tile)
	}
	droi := mvs.DownscaleROI(tile.ROI, r.cfg.Params.Downscale())
	if droi.Width() > r.maxTileWidth || droi.Height() > r.maxTileHeight {
		return mvs.ROI{}, fmt.Errorf("%stile ROI %s exceeds buffer dimensions %dx%d",
			tile, droi, r.maxTileWidth, r.maxTileHeight)
	}
	return droi, nil
}
