package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/depth.refine/internal/config"
	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/export"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/kernel"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
	"github.com/banshee-data/depth.refine/internal/refinedb"
	"github.com/banshee-data/depth.refine/internal/version"
)

func main() {
	var (
		scenePath   = flag.String("scene", "", "path to the scene JSON (views, poses, targets)")
		depthPath   = flag.String("depth", "", "path to the coarse depth/sim map (.asc)")
		normalsPath = flag.String("normals", "", "optional path to the coarse normal map (.asc)")
		configPath  = flag.String("config", "", "optional tuning config JSON")
		outDir      = flag.String("out", "out", "output directory for depth maps and diagnostics")
		dbPath      = flag.String("db", "", "optional sqlite database for run statistics")
		tileBuffer  = flag.Int("tile-buffer", 1024, "maximum tile edge length in full-resolution pixels")
		notes       = flag.String("notes", "", "free-form notes recorded with the run")
		verbose     = flag.Bool("verbose", false, "enable diagnostic logging")
		trace       = flag.Bool("trace", false, "enable per-tile trace logging (implies -verbose)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("depth-refine %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *scenePath == "" || *depthPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	writers := mvs.LogWriters{Ops: os.Stderr}
	if *verbose || *trace {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	mvs.SetLogWriters(writers)
	refine.SetLogWriters(writers.Ops, writers.Diag, writers.Trace)
	export.SetLogWriters(writers.Ops, writers.Diag)

	if err := run(*scenePath, *depthPath, *normalsPath, *configPath, *outDir, *dbPath, *tileBuffer, *notes); err != nil {
		log.Fatalf("refine failed: %v", err)
	}
}

func run(scenePath, depthPath, normalsPath, configPath, outDir, dbPath string, tileBuffer int, notes string) error {
	tuning := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	scene, err := loadScene(scenePath)
	if err != nil {
		return err
	}
	registry, err := scene.buildRegistry()
	if err != nil {
		return err
	}

	coarse, err := loadDepthSimMapASC(depthPath)
	if err != nil {
		return fmt.Errorf("failed to load coarse depth map: %w", err)
	}
	var coarseNormals *grid.Map2[mvs.Normal]
	if normalsPath != "" {
		coarseNormals, err = loadNormalMapASC(normalsPath)
		if err != nil {
			return fmt.Errorf("failed to load coarse normal map: %w", err)
		}
	}

	params := refine.Params{
		Scale:                          tuning.GetScale(),
		StepXY:                         tuning.GetStepXY(),
		HalfNbDepths:                   tuning.GetHalfNbDepths(),
		UseNormalMap:                   tuning.GetUseNormalMap(),
		UseRefineFuse:                  tuning.GetUseRefineFuse(),
		UseColorOptimization:           tuning.GetUseColorOptimization(),
		OptimizationNbIterations:       tuning.GetOptimizationNbIterations(),
		ExportIntermediateDepthSimMaps: tuning.GetExportIntermediateDepthSimMaps(),
		ExportIntermediateCrossVolumes: tuning.GetExportIntermediateCrossVolumes(),
		ExportIntermediateVolume9pCsv:  tuning.GetExportIntermediateVolume9pCsv(),
	}
	kern := kernel.Default()
	kern.PatchRadius = tuning.GetPatchRadius()
	kern.VarianceGamma = tuning.GetVarianceGamma()
	kern.OptStep = tuning.GetOptStep()
	if err := kern.Validate(); err != nil {
		return err
	}

	exporter := export.New(filepath.Clean(outDir), params)

	refiner, err := refine.New(refine.Config{
		Cameras:          registry,
		Params:           params,
		TileBufferWidth:  tileBuffer,
		TileBufferHeight: tileBuffer,
		Upscaler:         kern,
		Accumulator:      kern,
		Extractor:        kern,
		Optimizer:        kern,
		Observer:         exporter,
	})
	if err != nil {
		return err
	}
	log.Printf("buffers allocated: %.1f MB padded, %.1f MB unpadded",
		refiner.PaddedMemoryMB(), refiner.UnpaddedMemoryMB())

	var statsDB *refinedb.DB
	var runID string
	if dbPath != "" {
		statsDB, err = refinedb.Open(dbPath)
		if err != nil {
			return err
		}
		defer statsDB.Close()
		runID, err = statsDB.BeginRun(scene.RefView, params.Scale, params.StepXY,
			params.HalfNbDepths, refiner.PaddedMemoryMB(), notes)
		if err != nil {
			return err
		}
		log.Printf("run %s", runID)
	}

	refIntr, err := scene.intrinsics(scene.RefView)
	if err != nil {
		return err
	}
	tiles := planTiles(scene, refIntr.Width, refIntr.Height, tileBuffer)
	log.Printf("refining %s: %d tile(s), %d target camera(s)",
		scene.RefView, len(tiles), len(scene.Targets))

	status := "completed"
	for _, tile := range tiles {
		tileCoarse, err := extractCoarseRegion(coarse, tile.ROI, refIntr.Width, refIntr.Height)
		if err != nil {
			return err
		}
		var tileNormals *grid.Map2[mvs.Normal]
		if coarseNormals != nil {
			tileNormals, err = extractNormalRegion(coarseNormals, tile.ROI, refIntr.Width, refIntr.Height)
			if err != nil {
				return err
			}
		}

		start := time.Now()
		if err := refiner.Refine(tile, tileCoarse, tileNormals); err != nil {
			if statsDB != nil {
				if ferr := statsDB.FinishRun(runID, "failed"); ferr != nil {
					log.Printf("failed to mark run failed: %v", ferr)
				}
			}
			return err
		}
		elapsed := time.Since(start)

		droi := mvs.DownscaleROI(tile.ROI, params.Downscale())
		if err := exporter.WriteFinalDepthSimMap(tile, refiner.OptimizedDepthSimMap(), droi); err != nil {
			return err
		}

		valid, invalid := countValidity(refiner.OptimizedDepthSimMap(), droi)
		log.Printf("%stile done in %s (%d valid, %d invalid)", tile, elapsed.Round(time.Millisecond), valid, invalid)

		if statsDB != nil {
			err := statsDB.RecordTileStats(runID, refinedb.TileStats{
				TileIndex:     tile.Index,
				TileCount:     tile.Count,
				ROIX:          tile.ROI.X.Begin,
				ROIY:          tile.ROI.Y.Begin,
				ROIWidth:      tile.ROI.Width(),
				ROIHeight:     tile.ROI.Height(),
				TargetViews:   len(tile.Targets),
				ValidPixels:   valid,
				InvalidPixels: invalid,
				Duration:      elapsed,
			})
			if err != nil {
				log.Printf("failed to record tile stats: %v", err)
			}
		}
	}

	if statsDB != nil {
		if err := statsDB.FinishRun(runID, status); err != nil {
			return err
		}
	}
	return nil
}

// planTiles splits the reference image into square tiles of at most
// tileBuffer pixels per edge, in row-major order.
func planTiles(scene *sceneFile, width, height, tileBuffer int) []mvs.Tile {
	targets := make([]mvs.ViewID, len(scene.Targets))
	for i, t := range scene.Targets {
		targets[i] = mvs.ViewID(t)
	}

	nx := mvs.DivideRoundUp(width, tileBuffer)
	ny := mvs.DivideRoundUp(height, tileBuffer)
	count := nx * ny

	tiles := make([]mvs.Tile, 0, count)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			x := tx * tileBuffer
			y := ty * tileBuffer
			w := min(tileBuffer, width-x)
			h := min(tileBuffer, height-y)
			tiles = append(tiles, mvs.Tile{
				RefView: mvs.ViewID(scene.RefView),
				Targets: targets,
				ROI:     mvs.NewROI(x, y, w, h),
				Index:   ty*nx + tx,
				Count:   count,
			})
		}
	}
	return tiles
}

// countValidity counts valid and invalid pixels over the ROI.
func countValidity(m *grid.Map2[mvs.DepthSim], droi mvs.ROI) (valid, invalid int) {
	for y := 0; y < droi.Height(); y++ {
		for x := 0; x < droi.Width(); x++ {
			if m.At(x, y).IsValid() {
				valid++
			} else {
				invalid++
			}
		}
	}
	return valid, invalid
}
