package export

import (
	"fmt"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/security"
)

// tileSuffix returns the deterministic tile-origin suffix, empty for an
// untiled view.
func tileSuffix(tile mvs.Tile) string {
	if !tile.IsTiled() {
		return ""
	}
	return fmt.Sprintf("_x%d_y%d", tile.ROI.X.Begin, tile.ROI.Y.Begin)
}

// refName returns the tile's reference view ID as a safe filename
// component. View IDs come from scene files and are not trusted.
func refName(tile mvs.Tile) string {
	return security.SanitizeFilename(string(tile.RefView))
}

// depthSimMapName names a per-stage depth/similarity map artifact.
func depthSimMapName(tile mvs.Tile, scale, stepXY int, stage string) string {
	return fmt.Sprintf("depthSimMap_%s_scale%d_step%d_%s%s.asc",
		refName(tile), scale, stepXY, stage, tileSuffix(tile))
}

// volumeCrossName names a similarity volume cross-section artifact.
func volumeCrossName(tile mvs.Tile, scale int, stage, ext string) string {
	return fmt.Sprintf("volumeCross_%s_scale%d_%s%s.%s",
		refName(tile), scale, stage, tileSuffix(tile), ext)
}

// stats9pName names the 9-point depth-profile CSV artifact.
func stats9pName(tile mvs.Tile, scale int, stage string) string {
	return fmt.Sprintf("stats9p_%s_scale%d_%s%s.csv",
		refName(tile), scale, stage, tileSuffix(tile))
}
