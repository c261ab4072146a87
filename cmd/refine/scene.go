package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/camera"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
	"github.com/banshee-data/depth.refine/internal/security"
)

// sceneFile describes the reconstruction inputs: every view's image,
// calibration and pose, plus which view to refine against which ordered
// target list.
type sceneFile struct {
	Views   []sceneView `json:"views"`
	RefView string      `json:"ref_view"`
	Targets []string    `json:"targets"`

	dir string // directory of the scene file, for relative image paths
}

type sceneView struct {
	ID    string `json:"id"`
	Image string `json:"image"`

	Intrinsics struct {
		Width   int     `json:"width"`
		Height  int     `json:"height"`
		ScaleX  float64 `json:"scale_x"`
		ScaleY  float64 `json:"scale_y"`
		OffsetX float64 `json:"offset_x"`
		OffsetY float64 `json:"offset_y"`
	} `json:"intrinsics"`

	Pose struct {
		Rotation    [9]float64 `json:"rotation"`
		Translation [3]float64 `json:"translation"`
	} `json:"pose"`
}

func loadScene(path string) (*sceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	var scene sceneFile
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("failed to parse scene JSON: %w", err)
	}
	if len(scene.Views) == 0 {
		return nil, fmt.Errorf("scene has no views")
	}
	if scene.RefView == "" {
		return nil, fmt.Errorf("scene has no ref_view")
	}
	scene.dir = filepath.Dir(path)
	if _, err := scene.intrinsics(scene.RefView); err != nil {
		return nil, err
	}
	for _, t := range scene.Targets {
		if _, err := scene.intrinsics(t); err != nil {
			return nil, err
		}
	}
	return &scene, nil
}

// intrinsics returns the calibration of a view by id.
func (s *sceneFile) intrinsics(id string) (camera.Intrinsics, error) {
	for _, v := range s.Views {
		if v.ID == id {
			return camera.Intrinsics{
				Width:   v.Intrinsics.Width,
				Height:  v.Intrinsics.Height,
				ScaleX:  v.Intrinsics.ScaleX,
				ScaleY:  v.Intrinsics.ScaleY,
				OffsetX: v.Intrinsics.OffsetX,
				OffsetY: v.Intrinsics.OffsetY,
			}, nil
		}
	}
	return camera.Intrinsics{}, fmt.Errorf("scene has no view %q", id)
}

// buildRegistry decodes every view image and registers it with its
// calibration and pose.
func (s *sceneFile) buildRegistry() (*camera.Registry, error) {
	registry := camera.NewRegistry()
	for _, v := range s.Views {
		imgPath := v.Image
		if !filepath.IsAbs(imgPath) {
			imgPath = filepath.Join(s.dir, imgPath)
			if err := security.ValidatePathWithinDirectory(imgPath, s.dir); err != nil {
				return nil, fmt.Errorf("image path for view %q: %w", v.ID, err)
			}
		}
		f, err := os.Open(imgPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open image for view %q: %w", v.ID, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode image for view %q: %w", v.ID, err)
		}

		intr, err := s.intrinsics(v.ID)
		if err != nil {
			return nil, err
		}
		pose := camera.Pose{R: v.Pose.Rotation, T: v.Pose.Translation}
		if err := registry.AddView(mvs.ViewID(v.ID), intr, pose, img); err != nil {
			return nil, fmt.Errorf("failed to register view %q: %w", v.ID, err)
		}
	}
	return registry, nil
}

// loadDepthSimMapASC reads a depth/sim map in the "X Y Depth Sim" text
// format. Dimensions are inferred from the largest coordinates seen;
// unlisted pixels stay invalid.
func loadDepthSimMapASC(path string) (*grid.Map2[mvs.DepthSim], error) {
	type sample struct {
		x, y int
		ds   mvs.DepthSim
	}
	var samples []sample
	maxX, maxY := -1, -1

	err := scanASC(path, func(line string) error {
		var x, y int
		var depth, sim float32
		if _, err := fmt.Sscanf(line, "%d %d %g %g", &x, &y, &depth, &sim); err != nil {
			return fmt.Errorf("bad depth/sim line %q: %w", line, err)
		}
		if x < 0 || y < 0 {
			return fmt.Errorf("negative coordinate in line %q", line)
		}
		samples = append(samples, sample{x, y, mvs.DepthSim{Depth: depth, Sim: sim}})
		maxX = max(maxX, x)
		maxY = max(maxY, y)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in %s", path)
	}

	m, err := grid.NewMap2[mvs.DepthSim](maxX+1, maxY+1)
	if err != nil {
		return nil, err
	}
	m.Fill(mvs.DepthSim{Depth: mvs.InvalidDepth, Sim: mvs.NoFusionSim})
	for _, s := range samples {
		m.Set(s.x, s.y, s.ds)
	}
	return m, nil
}

// loadNormalMapASC reads a normal map in "X Y NX NY NZ" text format.
func loadNormalMapASC(path string) (*grid.Map2[mvs.Normal], error) {
	type sample struct {
		x, y int
		n    mvs.Normal
	}
	var samples []sample
	maxX, maxY := -1, -1

	err := scanASC(path, func(line string) error {
		var x, y int
		var nx, ny, nz float32
		if _, err := fmt.Sscanf(line, "%d %d %g %g %g", &x, &y, &nx, &ny, &nz); err != nil {
			return fmt.Errorf("bad normal line %q: %w", line, err)
		}
		if x < 0 || y < 0 {
			return fmt.Errorf("negative coordinate in line %q", line)
		}
		samples = append(samples, sample{x, y, mvs.Normal{X: nx, Y: ny, Z: nz}})
		maxX = max(maxX, x)
		maxY = max(maxY, y)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in %s", path)
	}

	m, err := grid.NewMap2[mvs.Normal](maxX+1, maxY+1)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		m.Set(s.x, s.y, s.n.Normalize())
	}
	return m, nil
}

// scanASC runs fn over every non-comment, non-blank line of a text map
// file.
func scanASC(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// extractCoarseRegion copies the coarse texels covering a full-resolution
// tile ROI into a standalone map.
func extractCoarseRegion(coarse *grid.Map2[mvs.DepthSim], roi mvs.ROI, imgWidth, imgHeight int) (*grid.Map2[mvs.DepthSim], error) {
	x0, y0, w, h := coarseRegion(coarse.Width(), coarse.Height(), roi, imgWidth, imgHeight)
	out, err := grid.NewMap2[mvs.DepthSim](w, h)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, coarse.At(x0+x, y0+y))
		}
	}
	return out, nil
}

// extractNormalRegion is extractCoarseRegion for normal maps.
func extractNormalRegion(normals *grid.Map2[mvs.Normal], roi mvs.ROI, imgWidth, imgHeight int) (*grid.Map2[mvs.Normal], error) {
	x0, y0, w, h := coarseRegion(normals.Width(), normals.Height(), roi, imgWidth, imgHeight)
	out, err := grid.NewMap2[mvs.Normal](w, h)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, normals.At(x0+x, y0+y))
		}
	}
	return out, nil
}

// coarseRegion maps a full-resolution ROI onto a coarse map's texel grid
// proportionally, clamped to the map bounds.
func coarseRegion(cw, ch int, roi mvs.ROI, imgWidth, imgHeight int) (x0, y0, w, h int) {
	x0 = roi.X.Begin * cw / imgWidth
	y0 = roi.Y.Begin * ch / imgHeight
	x1 := mvs.DivideRoundUp(roi.X.End*cw, imgWidth)
	y1 := mvs.DivideRoundUp(roi.Y.End*ch, imgHeight)
	x1 = min(x1, cw)
	y1 = min(y1, ch)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1 - x0, y1 - y0
}
