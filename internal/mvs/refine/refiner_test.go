package refine

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
)

// ---------------------------------------------------------------------------
// Stub kernels and observers
// ---------------------------------------------------------------------------

// stubKernel implements every kernel contract with deterministic fake
// numerics, recording what the engine asked of it.
type stubKernel struct {
	upscaleCalls  int
	pixSizeCalls  int
	normalsCalls  int
	extractCalls  int
	optimizeCalls int

	accumulatedTargets []mvs.ViewID
	accumulatedDepths  []mvs.Range
	accumulatedNormals []*grid.Map2[mvs.Normal]
	volDepths          int

	failAccumulate error
}

func (s *stubKernel) UpscaleDepthSim(dst *grid.Map2[mvs.DepthSim], src *grid.Map2[mvs.DepthSim],
	ref *camera.Camera, p Params, roi mvs.ROI) error {
	s.upscaleCalls++
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			dst.Set(x, y, mvs.DepthSim{Depth: float32(x+y) + 1, Sim: 0})
		}
	}
	return nil
}

func (s *stubKernel) ComputePixSize(m *grid.Map2[mvs.DepthSim], ref *camera.Camera,
	p Params, roi mvs.ROI) error {
	s.pixSizeCalls++
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			ds := m.At(x, y)
			ds.Sim = 0.1
			m.Set(x, y, ds)
		}
	}
	return nil
}

func (s *stubKernel) UpscaleNormals(dst *grid.Map2[mvs.Normal], src *grid.Map2[mvs.Normal], roi mvs.ROI) error {
	s.normalsCalls++
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			dst.Set(x, y, src.At(0, 0))
		}
	}
	return nil
}

func (s *stubKernel) Accumulate(vol *grid.Vol3[float32], depthPixSize *grid.Map2[mvs.DepthSim],
	normals *grid.Map2[mvs.Normal], ref, tgt *camera.Camera,
	p Params, depths mvs.Range, roi mvs.ROI) error {
	if s.failAccumulate != nil {
		return s.failAccumulate
	}
	s.accumulatedTargets = append(s.accumulatedTargets, tgt.ViewID)
	s.accumulatedDepths = append(s.accumulatedDepths, depths)
	s.accumulatedNormals = append(s.accumulatedNormals, normals)
	s.volDepths = vol.Depths()
	grid.Add(vol, 0, 0, depths.End/2, 1)
	return nil
}

func (s *stubKernel) ExtractBestDepth(dst *grid.Map2[mvs.DepthSim], depthPixSize *grid.Map2[mvs.DepthSim],
	vol *grid.Vol3[float32], ref *camera.Camera, p Params, roi mvs.ROI) error {
	s.extractCalls++
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			base := depthPixSize.At(x, y)
			dst.Set(x, y, mvs.DepthSim{Depth: base.Depth + 0.5, Sim: -0.9})
		}
	}
	return nil
}

func (s *stubKernel) Optimize(dst *grid.Map2[mvs.DepthSim],
	imgVariance *grid.Map2[float32], tmpDepth *grid.Map2[float32],
	depthPixSize, refined *grid.Map2[mvs.DepthSim],
	ref *camera.Camera, p Params, roi mvs.ROI) error {
	s.optimizeCalls++
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			ds := refined.At(x, y)
			ds.Depth += 0.25
			dst.Set(x, y, ds)
		}
	}
	return nil
}

// recordingObserver records checkpoint invocations in order.
type recordingObserver struct {
	depthSimStages []string
	volumeStages   []string
}

func (o *recordingObserver) DepthSimMapCheckpoint(stage string, tile mvs.Tile, m *grid.Map2[mvs.DepthSim], roi mvs.ROI) {
	o.depthSimStages = append(o.depthSimStages, stage)
}

func (o *recordingObserver) VolumeCheckpoint(stage string, tile mvs.Tile, vol *grid.Vol3[float32],
	depthPixSize *grid.Map2[mvs.DepthSim], roi mvs.ROI) {
	o.volumeStages = append(o.volumeStages, stage)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func testRegistry(t *testing.T, ids ...mvs.ViewID) *camera.Registry {
	t.Helper()
	r := camera.NewRegistry()
	for i, id := range ids {
		img := image.NewGray(image.Rect(0, 0, 64, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8((x*5 + y*11 + i) % 256)})
			}
		}
		intr := camera.Intrinsics{Width: 64, Height: 48, ScaleX: 64, ScaleY: 64}
		pose := camera.IdentityPose()
		pose.T = [3]float64{float64(i) * 0.1, 0, 0}
		require.NoError(t, r.AddView(id, intr, pose, img))
	}
	return r
}

func testConfig(t *testing.T, kern *stubKernel, p Params) Config {
	t.Helper()
	return Config{
		Cameras:          testRegistry(t, "ref", "t1", "t2"),
		Params:           p,
		TileBufferWidth:  64,
		TileBufferHeight: 48,
		Upscaler:         kern,
		Accumulator:      kern,
		Extractor:        kern,
		Optimizer:        kern,
	}
}

func testCoarse(t *testing.T, w, h int) *grid.Map2[mvs.DepthSim] {
	t.Helper()
	m, err := grid.NewMap2[mvs.DepthSim](w, h)
	require.NoError(t, err)
	m.Fill(mvs.DepthSim{Depth: 2, Sim: 0})
	return m
}

func testTile(targets ...mvs.ViewID) mvs.Tile {
	return mvs.Tile{
		RefView: "ref",
		Targets: targets,
		ROI:     mvs.NewROI(0, 0, 64, 48),
		Index:   0,
		Count:   1,
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	base := testConfig(t, kern, DefaultParams())

	t.Run("valid", func(t *testing.T) {
		_, err := New(base)
		assert.NoError(t, err)
	})

	t.Run("missing registry", func(t *testing.T) {
		cfg := base
		cfg.Cameras = nil
		_, err := New(cfg)
		assert.ErrorContains(t, err, "camera registry")
	})

	t.Run("missing upscaler", func(t *testing.T) {
		cfg := base
		cfg.Upscaler = nil
		_, err := New(cfg)
		assert.ErrorContains(t, err, "upscaler")
	})

	t.Run("fuse without accumulator", func(t *testing.T) {
		cfg := base
		cfg.Accumulator = nil
		_, err := New(cfg)
		assert.ErrorContains(t, err, "accumulator")
	})

	t.Run("optimization without optimizer", func(t *testing.T) {
		cfg := base
		cfg.Optimizer = nil
		_, err := New(cfg)
		assert.ErrorContains(t, err, "optimizer")
	})

	t.Run("fuse disabled tolerates missing kernels", func(t *testing.T) {
		cfg := base
		cfg.Params.UseRefineFuse = false
		cfg.Params.UseColorOptimization = false
		cfg.Accumulator = nil
		cfg.Extractor = nil
		cfg.Optimizer = nil
		_, err := New(cfg)
		assert.NoError(t, err)
	})

	t.Run("invalid params", func(t *testing.T) {
		cfg := base
		cfg.Params.HalfNbDepths = 0
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("invalid buffer dims", func(t *testing.T) {
		cfg := base
		cfg.TileBufferWidth = 0
		_, err := New(cfg)
		assert.Error(t, err)
	})
}

func TestNew_BufferSizing(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.Scale = 2
	p.StepXY = 2
	kern := &stubKernel{}
	cfg := testConfig(t, kern, p)
	cfg.TileBufferWidth = 100
	cfg.TileBufferHeight = 50

	r, err := New(cfg)
	require.NoError(t, err)
	w, h := r.MaxTileDimensions()
	assert.Equal(t, 25, w)
	assert.Equal(t, 13, h)
}

func TestMemoryAccounting(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, DefaultParams()))
	require.NoError(t, err)

	assert.Greater(t, r.PaddedMemoryMB(), 0.0)
	assert.GreaterOrEqual(t, r.PaddedMemoryMB(), r.UnpaddedMemoryMB())

	// Enabling the normal map strictly grows the footprint.
	p := DefaultParams()
	p.UseNormalMap = true
	rn, err := New(testConfig(t, kern, p))
	require.NoError(t, err)
	assert.Greater(t, rn.PaddedMemoryMB(), r.PaddedMemoryMB())
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func TestRefine_VolumeDepthExtent(t *testing.T) {
	t.Parallel()

	for _, half := range []int{1, 4, 15} {
		p := DefaultParams()
		p.HalfNbDepths = half
		p.UseColorOptimization = false
		kern := &stubKernel{}
		r, err := New(testConfig(t, kern, p))
		require.NoError(t, err)

		require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
		assert.Equal(t, 2*half+1, kern.volDepths, "half %d", half)
		require.Len(t, kern.accumulatedDepths, 1)
		assert.Equal(t, mvs.Range{Begin: 0, End: 2*half + 1}, kern.accumulatedDepths[0])
	}
}

func TestRefine_TargetOrderPreserved(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseColorOptimization = false
	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	require.NoError(t, r.Refine(testTile("t2", "t1"), testCoarse(t, 32, 24), nil))
	assert.Equal(t, []mvs.ViewID{"t2", "t1"}, kern.accumulatedTargets)
}

func TestRefine_NormalsNotReusedAcrossTiles(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseNormalMap = true
	p.UseColorOptimization = false
	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	coarseNormals, err := grid.NewMap2[mvs.Normal](32, 24)
	require.NoError(t, err)
	coarseNormals.Fill(mvs.Normal{Z: 1})

	// First tile supplies a normal map; the accumulator sees it.
	require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), coarseNormals))
	require.Len(t, kern.accumulatedNormals, 1)
	require.NotNil(t, kern.accumulatedNormals[0])
	assert.Equal(t, mvs.Normal{Z: 1}, kern.accumulatedNormals[0].At(0, 0))

	// Second tile on the same engine has no upstream normal map. The
	// reused buffer still holds the first tile's vectors, but the
	// accumulator must run unguided.
	require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
	require.Len(t, kern.accumulatedNormals, 2)
	assert.Nil(t, kern.accumulatedNormals[1])
}

func TestRefine_FuseDisabledPassThrough(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseRefineFuse = false
	p.UseColorOptimization = false
	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	tile := testTile("t1")
	require.NoError(t, r.Refine(tile, testCoarse(t, 32, 24), nil))

	assert.Zero(t, kern.extractCalls)
	droi := mvs.DownscaleROI(tile.ROI, p.Downscale())
	refined := r.RefinedDepthSimMap()
	for y := 0; y < droi.Height(); y++ {
		for x := 0; x < droi.Width(); x++ {
			got := refined.At(x, y)
			// The stub upscaler wrote x+y+1; the depth channel must
			// pass through bit-identical with the no-fusion sentinel.
			assert.Equal(t, float32(x+y)+1, got.Depth)
			assert.Equal(t, mvs.NoFusionSim, got.Sim)
		}
	}
}

func TestRefine_OptimizeDisabledCopies(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*Params){
		"flag off":        func(p *Params) { p.UseColorOptimization = false },
		"zero iterations": func(p *Params) { p.OptimizationNbIterations = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams()
			mutate(&p)
			kern := &stubKernel{}
			r, err := New(testConfig(t, kern, p))
			require.NoError(t, err)

			require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
			assert.Zero(t, kern.optimizeCalls)

			refined := r.RefinedDepthSimMap()
			optimized := r.OptimizedDepthSimMap()
			for y := 0; y < refined.Height(); y++ {
				for x := 0; x < refined.Width(); x++ {
					assert.Equal(t, refined.At(x, y), optimized.At(x, y))
				}
			}
		})
	}
}

func TestRefine_OptimizeRuns(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, DefaultParams()))
	require.NoError(t, err)

	require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
	assert.Equal(t, 1, kern.optimizeCalls)
	// The stub optimizer shifts the fused depth by 0.25.
	assert.InDelta(t, float64(r.RefinedDepthSimMap().At(0, 0).Depth)+0.25,
		float64(r.OptimizedDepthSimMap().At(0, 0).Depth), 1e-6)
}

func TestRefine_StageOrder(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, DefaultParams()))
	require.NoError(t, err)

	require.NoError(t, r.Refine(testTile("t1", "t2"), testCoarse(t, 32, 24), nil))
	assert.Equal(t, 1, kern.upscaleCalls)
	assert.Equal(t, 1, kern.pixSizeCalls)
	assert.Len(t, kern.accumulatedTargets, 2)
	assert.Equal(t, 1, kern.extractCalls)
	assert.Equal(t, 1, kern.optimizeCalls)
}

func TestRefine_EmptyTargetList(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseColorOptimization = false
	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	// No targets: the volume stays neutral but extraction still runs.
	require.NoError(t, r.Refine(testTile(), testCoarse(t, 32, 24), nil))
	assert.Empty(t, kern.accumulatedTargets)
	assert.Equal(t, 1, kern.extractCalls)
}

// ---------------------------------------------------------------------------
// Failure modes
// ---------------------------------------------------------------------------

func TestRefine_UnknownViews(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseColorOptimization = false
	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	t.Run("unknown target", func(t *testing.T) {
		t.Parallel()
		err := r.Refine(testTile("nope"), testCoarse(t, 32, 24), nil)
		assert.ErrorContains(t, err, "not in registry")
	})

	t.Run("unknown reference", func(t *testing.T) {
		t.Parallel()
		tile := testTile("t1")
		tile.RefView = "nope"
		err := r.Refine(tile, testCoarse(t, 32, 24), nil)
		assert.ErrorContains(t, err, "not in registry")
	})
}

func TestRefine_TileExceedsBuffer(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, DefaultParams()))
	require.NoError(t, err)

	tile := testTile("t1")
	tile.ROI = mvs.NewROI(0, 0, 65, 48)
	err = r.Refine(tile, testCoarse(t, 32, 24), nil)
	assert.ErrorContains(t, err, "exceeds buffer dimensions")
}

func TestRefine_EmptyROI(t *testing.T) {
	t.Parallel()

	kern := &stubKernel{}
	r, err := New(testConfig(t, kern, DefaultParams()))
	require.NoError(t, err)

	tile := testTile("t1")
	tile.ROI = mvs.ROI{}
	err = r.Refine(tile, testCoarse(t, 32, 24), nil)
	assert.ErrorContains(t, err, "empty tile ROI")
}

func TestRefine_AccumulateErrorPropagates(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.UseColorOptimization = false
	kern := &stubKernel{failAccumulate: fmt.Errorf("boom")}
	r, err := New(testConfig(t, kern, p))
	require.NoError(t, err)

	err = r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil)
	assert.ErrorContains(t, err, "boom")
	assert.ErrorContains(t, err, "fuse stage")
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

func TestRefine_CheckpointsGatedByFlags(t *testing.T) {
	t.Parallel()

	t.Run("all flags set", func(t *testing.T) {
		t.Parallel()
		p := DefaultParams()
		p.ExportIntermediateDepthSimMaps = true
		p.ExportIntermediateCrossVolumes = true
		kern := &stubKernel{}
		obs := &recordingObserver{}
		cfg := testConfig(t, kern, p)
		cfg.Observer = obs
		r, err := New(cfg)
		require.NoError(t, err)

		require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
		assert.Equal(t, []string{StageUpscaled, StageRefinedFused}, obs.depthSimStages)
		assert.Equal(t, []string{StageAfterRefine}, obs.volumeStages)
	})

	t.Run("csv flag alone triggers volume checkpoint", func(t *testing.T) {
		t.Parallel()
		p := DefaultParams()
		p.ExportIntermediateVolume9pCsv = true
		kern := &stubKernel{}
		obs := &recordingObserver{}
		cfg := testConfig(t, kern, p)
		cfg.Observer = obs
		r, err := New(cfg)
		require.NoError(t, err)

		require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
		assert.Empty(t, obs.depthSimStages)
		assert.Equal(t, []string{StageAfterRefine}, obs.volumeStages)
	})

	t.Run("flags clear", func(t *testing.T) {
		t.Parallel()
		kern := &stubKernel{}
		obs := &recordingObserver{}
		cfg := testConfig(t, kern, DefaultParams())
		cfg.Observer = obs
		r, err := New(cfg)
		require.NoError(t, err)

		require.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
		assert.Empty(t, obs.depthSimStages)
		assert.Empty(t, obs.volumeStages)
	})

	t.Run("flags set but no observer", func(t *testing.T) {
		t.Parallel()
		p := DefaultParams()
		p.ExportIntermediateDepthSimMaps = true
		p.ExportIntermediateCrossVolumes = true
		kern := &stubKernel{}
		r, err := New(testConfig(t, kern, p))
		require.NoError(t, err)
		assert.NoError(t, r.Refine(testTile("t1"), testCoarse(t, 32, 24), nil))
	})
}

func TestParamsAccessors(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	assert.Equal(t, 31, p.NbDepths())
	assert.Equal(t, 1, p.Downscale())

	p.Scale = 2
	p.StepXY = 3
	assert.Equal(t, 6, p.Downscale())

	p.HalfNbDepths = 4
	assert.Equal(t, 9, p.NbDepths())
}
