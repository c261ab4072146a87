// Package config loads the JSON tuning file for the refinement
// pipeline. Fields omitted from the JSON keep their compiled-in
// defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Default tuning values. These are the single source of truth; the Get*
// accessors fall back to them when the JSON omits a field.
const (
	DefaultScale                    = 1
	DefaultStepXY                   = 1
	DefaultHalfNbDepths             = 15
	DefaultOptimizationNbIterations = 100
	DefaultPatchRadius              = 2
	DefaultVarianceGamma            = 0.002
	DefaultOptStep                  = 0.4
)

// TuningConfig is the root configuration for refinement parameters.
// All fields are optional; pointers distinguish "absent" from zero.
type TuningConfig struct {
	// Refinement params
	Scale                    *int  `json:"scale,omitempty"`
	StepXY                   *int  `json:"step_xy,omitempty"`
	HalfNbDepths             *int  `json:"half_nb_depths,omitempty"`
	UseNormalMap             *bool `json:"use_normal_map,omitempty"`
	UseRefineFuse            *bool `json:"use_refine_fuse,omitempty"`
	UseColorOptimization     *bool `json:"use_color_optimization,omitempty"`
	OptimizationNbIterations *int  `json:"optimization_nb_iterations,omitempty"`

	// Kernel params
	PatchRadius   *int     `json:"patch_radius,omitempty"`
	VarianceGamma *float64 `json:"variance_gamma,omitempty"`
	OptStep       *float64 `json:"opt_step,omitempty"`

	// Export params
	ExportIntermediateDepthSimMaps *bool `json:"export_intermediate_depth_sim_maps,omitempty"`
	ExportIntermediateCrossVolumes *bool `json:"export_intermediate_cross_volumes,omitempty"`
	ExportIntermediateVolume9pCsv  *bool `json:"export_intermediate_volume_9p_csv,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks all present fields for acceptable ranges.
func (c *TuningConfig) Validate() error {
	if c.Scale != nil && *c.Scale < 1 {
		return fmt.Errorf("scale must be >= 1, got %d", *c.Scale)
	}
	if c.StepXY != nil && *c.StepXY < 1 {
		return fmt.Errorf("step_xy must be >= 1, got %d", *c.StepXY)
	}
	if c.HalfNbDepths != nil && *c.HalfNbDepths < 1 {
		return fmt.Errorf("half_nb_depths must be >= 1, got %d", *c.HalfNbDepths)
	}
	if c.OptimizationNbIterations != nil && *c.OptimizationNbIterations < 0 {
		return fmt.Errorf("optimization_nb_iterations must be >= 0, got %d", *c.OptimizationNbIterations)
	}
	if c.PatchRadius != nil && *c.PatchRadius < 1 {
		return fmt.Errorf("patch_radius must be >= 1, got %d", *c.PatchRadius)
	}
	if c.VarianceGamma != nil && *c.VarianceGamma <= 0 {
		return fmt.Errorf("variance_gamma must be positive, got %f", *c.VarianceGamma)
	}
	if c.OptStep != nil && (*c.OptStep <= 0 || *c.OptStep > 1) {
		return fmt.Errorf("opt_step must be in (0, 1], got %f", *c.OptStep)
	}
	return nil
}

// GetScale returns the pyramid downscale factor.
func (c *TuningConfig) GetScale() int {
	if c.Scale != nil {
		return *c.Scale
	}
	return DefaultScale
}

// GetStepXY returns the sampling stride.
func (c *TuningConfig) GetStepXY() int {
	if c.StepXY != nil {
		return *c.StepXY
	}
	return DefaultStepXY
}

// GetHalfNbDepths returns the depth search radius.
func (c *TuningConfig) GetHalfNbDepths() int {
	if c.HalfNbDepths != nil {
		return *c.HalfNbDepths
	}
	return DefaultHalfNbDepths
}

// GetUseNormalMap reports whether normal-map guidance is enabled.
func (c *TuningConfig) GetUseNormalMap() bool {
	if c.UseNormalMap != nil {
		return *c.UseNormalMap
	}
	return false
}

// GetUseRefineFuse reports whether the fusion stage is enabled.
func (c *TuningConfig) GetUseRefineFuse() bool {
	if c.UseRefineFuse != nil {
		return *c.UseRefineFuse
	}
	return true
}

// GetUseColorOptimization reports whether the optimization stage is enabled.
func (c *TuningConfig) GetUseColorOptimization() bool {
	if c.UseColorOptimization != nil {
		return *c.UseColorOptimization
	}
	return true
}

// GetOptimizationNbIterations returns the optimization iteration count.
func (c *TuningConfig) GetOptimizationNbIterations() int {
	if c.OptimizationNbIterations != nil {
		return *c.OptimizationNbIterations
	}
	return DefaultOptimizationNbIterations
}

// GetPatchRadius returns the matching patch half window.
func (c *TuningConfig) GetPatchRadius() int {
	if c.PatchRadius != nil {
		return *c.PatchRadius
	}
	return DefaultPatchRadius
}

// GetVarianceGamma returns the edge-damping constant of the optimizer.
func (c *TuningConfig) GetVarianceGamma() float64 {
	if c.VarianceGamma != nil {
		return *c.VarianceGamma
	}
	return DefaultVarianceGamma
}

// GetOptStep returns the optimizer step size.
func (c *TuningConfig) GetOptStep() float64 {
	if c.OptStep != nil {
		return *c.OptStep
	}
	return DefaultOptStep
}

// GetExportIntermediateDepthSimMaps reports whether per-stage map
// export is enabled.
func (c *TuningConfig) GetExportIntermediateDepthSimMaps() bool {
	if c.ExportIntermediateDepthSimMaps != nil {
		return *c.ExportIntermediateDepthSimMaps
	}
	return false
}

// GetExportIntermediateCrossVolumes reports whether volume
// cross-section export is enabled.
func (c *TuningConfig) GetExportIntermediateCrossVolumes() bool {
	if c.ExportIntermediateCrossVolumes != nil {
		return *c.ExportIntermediateCrossVolumes
	}
	return false
}

// GetExportIntermediateVolume9pCsv reports whether sampled volume CSV
// export is enabled.
func (c *TuningConfig) GetExportIntermediateVolume9pCsv() bool {
	if c.ExportIntermediateVolume9pCsv != nil {
		return *c.ExportIntermediateVolume9pCsv
	}
	return false
}
