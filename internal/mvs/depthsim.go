package mvs

import "math"

// Depth/similarity sentinels shared across the pipeline.
const (
	// InvalidDepth marks masked pixels (occluded, background, out of
	// range). Any depth < 0 is treated as invalid.
	InvalidDepth float32 = -1.0

	// NoFusionSim is written to the similarity channel when the fuse
	// stage is disabled and the depth channel is passed through.
	// Similarity is encoded so that lower is better; 1.0 is worst.
	NoFusionSim float32 = 1.0
)

// DepthSim is one pixel of a depth/similarity map.
//
// The similarity channel is overloaded by pipeline stage: after upscale
// it carries the per-pixel 3D size (the metric footprint of one pixel at
// that depth), which later stages use to scale depth steps; after fusion
// and optimization it carries a matching score where lower is better.
type DepthSim struct {
	Depth float32
	Sim   float32
}

// IsValid reports whether the pixel carries a usable depth.
func (d DepthSim) IsValid() bool { return d.Depth >= 0 }

// Normal is a unit surface-normal vector in world coordinates.
type Normal struct {
	X, Y, Z float32
}

// Normalize rescales the vector to unit length. The zero vector is
// returned unchanged.
func (n Normal) Normalize() Normal {
	l := math.Sqrt(float64(n.X)*float64(n.X) + float64(n.Y)*float64(n.Y) + float64(n.Z)*float64(n.Z))
	if l == 0 {
		return n
	}
	inv := float32(1 / l)
	return Normal{X: n.X * inv, Y: n.Y * inv, Z: n.Z * inv}
}
