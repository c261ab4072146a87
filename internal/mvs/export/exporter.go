package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/depth.refine/internal/fsutil"
	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// Exporter writes refinement artifacts under a single output directory.
// It implements refine.CheckpointObserver; which artifacts a checkpoint
// produces is controlled by the export flags in the refine parameters.
type Exporter struct {
	fs     fsutil.FileSystem
	dir    string
	params refine.Params
}

// New creates an exporter writing to dir on the real filesystem.
func New(dir string, params refine.Params) *Exporter {
	return NewWithFS(dir, params, fsutil.OSFileSystem{})
}

// NewWithFS creates an exporter on an explicit filesystem, for tests.
func NewWithFS(dir string, params refine.Params, fs fsutil.FileSystem) *Exporter {
	return &Exporter{fs: fs, dir: dir, params: params}
}

var _ refine.CheckpointObserver = (*Exporter)(nil)

// DepthSimMapCheckpoint persists a per-stage depth/similarity map.
// Best-effort: failures are logged and swallowed.
func (e *Exporter) DepthSimMapCheckpoint(stage string, tile mvs.Tile, m *grid.Map2[mvs.DepthSim], roi mvs.ROI) {
	name := depthSimMapName(tile, e.params.Scale, e.params.StepXY, stage)
	if err := e.writeDepthSimMap(name, m, roi); err != nil {
		opsf("%sdepth/sim map export (%s) failed: %v", tile, stage, err)
		return
	}
	diagf("%sexported depth/sim map (%s): %s", tile, stage, name)
}

// VolumeCheckpoint persists similarity volume diagnostics: a
// cross-section heatmap (PNG and HTML) and/or a sampled depth-profile
// CSV, per the export flags. Best-effort.
func (e *Exporter) VolumeCheckpoint(stage string, tile mvs.Tile, vol *grid.Vol3[float32],
	depthPixSize *grid.Map2[mvs.DepthSim], roi mvs.ROI) {

	if e.params.ExportIntermediateCrossVolumes {
		png := volumeCrossName(tile, e.params.Scale, stage, "png")
		if err := e.writeVolumeCrossPNG(png, vol, roi); err != nil {
			opsf("%svolume cross export (%s) failed: %v", tile, stage, err)
		} else {
			diagf("%sexported volume cross (%s): %s", tile, stage, png)
		}

		html := volumeCrossName(tile, e.params.Scale, stage, "html")
		if err := e.writeVolumeCrossHTML(html, vol, roi); err != nil {
			opsf("%svolume cross chart export (%s) failed: %v", tile, stage, err)
		} else {
			diagf("%sexported volume cross chart (%s): %s", tile, stage, html)
		}
	}

	if e.params.ExportIntermediateVolume9pCsv {
		name := stats9pName(tile, e.params.Scale, stage)
		if err := e.writeStats9pCSV(name, vol, roi); err != nil {
			opsf("%svolume 9p CSV export (%s) failed: %v", tile, stage, err)
		} else {
			diagf("%sexported volume 9p CSV (%s): %s", tile, stage, name)
		}
	}
}

// WriteFinalDepthSimMap persists the final optimized map for a tile.
// Unlike checkpoints this is a product, not a diagnostic, so the error
// is returned to the caller.
func (e *Exporter) WriteFinalDepthSimMap(tile mvs.Tile, m *grid.Map2[mvs.DepthSim], roi mvs.ROI) error {
	name := depthSimMapName(tile, e.params.Scale, e.params.StepXY, "optimized")
	return e.writeDepthSimMap(name, m, roi)
}

// writeDepthSimMap writes the ROI of a map as whitespace-separated text:
// one "x y depth sim" line per pixel, with a comment header.
func (e *Exporter) writeDepthSimMap(name string, m *grid.Map2[mvs.DepthSim], roi mvs.ROI) error {
	w, err := e.create(name)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintf(w, "# depth/sim map %s\n", roi)
	fmt.Fprintf(w, "# Format: X Y Depth Sim\n")
	for y := 0; y < roi.Height(); y++ {
		for x := 0; x < roi.Width(); x++ {
			ds := m.At(x, y)
			fmt.Fprintf(w, "%d %d %.6f %.6f\n", roi.X.Begin+x, roi.Y.Begin+y, ds.Depth, ds.Sim)
		}
	}
	return nil
}

// create ensures the output directory exists and opens the artifact.
func (e *Exporter) create(name string) (io.WriteCloser, error) {
	if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	w, err := e.fs.Create(filepath.Join(e.dir, name))
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	return w, nil
}

// crossRow returns the cross-section row: the vertical middle of the ROI.
func crossRow(roi mvs.ROI) int { return roi.Height() / 2 }

// stats9pPixels returns the fixed 3x3 pixel grid sampled by the CSV
// export, spread across the ROI interior.
func stats9pPixels(roi mvs.ROI) [][2]int {
	w := roi.Width()
	h := roi.Height()
	xs := []int{w / 4, w / 2, (3 * w) / 4}
	ys := []int{h / 4, h / 2, (3 * h) / 4}
	out := make([][2]int, 0, 9)
	for _, y := range ys {
		for _, x := range xs {
			out = append(out, [2]int{x, y})
		}
	}
	return out
}

func itoa(v int) string { return strconv.Itoa(v) }
