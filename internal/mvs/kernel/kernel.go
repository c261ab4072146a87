package kernel

import (
	"fmt"

	"github.com/banshee-data/depth.refine/internal/mvs/refine"
)

// CPU implements every kernel contract of the refinement engine on the
// host. One CPU value may be shared by several refinement streams: it
// holds tuning only, no per-call state.
type CPU struct {
	// PatchRadius is the half window of the matching patch; the patch
	// covers (2*PatchRadius+1)^2 samples.
	PatchRadius int

	// MinPatchVariance rejects textureless patches: a patch whose
	// luminance variance falls below this threshold contributes
	// nothing.
	MinPatchVariance float64

	// VarianceGamma controls how strongly local image variance damps
	// the smoothing term during optimization. Higher values smooth
	// across stronger edges.
	VarianceGamma float64

	// OptStep is the gradient-descent step size of the optimization
	// stage, as a fraction of the pointwise update.
	OptStep float64
}

// Default returns the production kernel tuning.
func Default() *CPU {
	return &CPU{
		PatchRadius:      2,
		MinPatchVariance: 1e-6,
		VarianceGamma:    0.002,
		OptStep:          0.4,
	}
}

// Validate checks the tuning for degenerate values.
func (k *CPU) Validate() error {
	if k.PatchRadius < 1 {
		return fmt.Errorf("kernel: PatchRadius must be >= 1, got %d", k.PatchRadius)
	}
	if k.VarianceGamma <= 0 {
		return fmt.Errorf("kernel: VarianceGamma must be positive, got %g", k.VarianceGamma)
	}
	if k.OptStep <= 0 || k.OptStep > 1 {
		return fmt.Errorf("kernel: OptStep must be in (0, 1], got %g", k.OptStep)
	}
	return nil
}

// Contract compliance.
var (
	_ refine.MapUpscaler           = (*CPU)(nil)
	_ refine.SimilarityAccumulator = (*CPU)(nil)
	_ refine.BestDepthExtractor    = (*CPU)(nil)
	_ refine.DepthOptimizer        = (*CPU)(nil)
)
