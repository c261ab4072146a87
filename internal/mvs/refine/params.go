package refine

import "fmt"

// Params configures one refinement stream. The zero value is not usable;
// start from DefaultParams.
type Params struct {
	// Scale is the image pyramid downscale factor (>= 1).
	Scale int
	// StepXY is the sampling stride inside the scaled image (>= 1).
	StepXY int
	// HalfNbDepths is the search radius around the input depth, in
	// depth-index units. The similarity volume depth extent is always
	// 2*HalfNbDepths+1.
	HalfNbDepths int

	// UseNormalMap enables normal-guided candidate offsets when an
	// upstream normal map is supplied.
	UseNormalMap bool
	// UseRefineFuse enables the volume fusion stage. When disabled the
	// upscaled depth is passed through unchanged.
	UseRefineFuse bool
	// UseColorOptimization enables the color-guided gradient-descent
	// smoothing stage.
	UseColorOptimization bool
	// OptimizationNbIterations is the fixed iteration count of the
	// optimization stage. Iteration count is the only termination
	// criterion; there is no convergence check.
	OptimizationNbIterations int

	// Export flags. Diagnostics are best-effort and never influence
	// computed results.
	ExportIntermediateDepthSimMaps bool
	ExportIntermediateCrossVolumes bool
	ExportIntermediateVolume9pCsv  bool
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		Scale:                    1,
		StepXY:                   1,
		HalfNbDepths:             15,
		UseRefineFuse:            true,
		UseColorOptimization:     true,
		OptimizationNbIterations: 100,
	}
}

// NbDepths returns the similarity volume depth extent, 2*HalfNbDepths+1.
func (p Params) NbDepths() int { return 2*p.HalfNbDepths + 1 }

// Downscale returns the combined image-to-buffer downscale factor.
func (p Params) Downscale() int { return p.Scale * p.StepXY }

// Validate checks the parameters for degenerate values.
func (p Params) Validate() error {
	if p.Scale < 1 {
		return fmt.Errorf("refine: Scale must be >= 1, got %d", p.Scale)
	}
	if p.StepXY < 1 {
		return fmt.Errorf("refine: StepXY must be >= 1, got %d", p.StepXY)
	}
	if p.HalfNbDepths < 1 {
		return fmt.Errorf("refine: HalfNbDepths must be >= 1, got %d", p.HalfNbDepths)
	}
	if p.OptimizationNbIterations < 0 {
		return fmt.Errorf("refine: OptimizationNbIterations must be >= 0, got %d", p.OptimizationNbIterations)
	}
	return nil
}
