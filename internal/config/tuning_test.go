package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetScale() != DefaultScale {
		t.Errorf("GetScale() = %d, want %d", cfg.GetScale(), DefaultScale)
	}
	if cfg.GetStepXY() != DefaultStepXY {
		t.Errorf("GetStepXY() = %d, want %d", cfg.GetStepXY(), DefaultStepXY)
	}
	if cfg.GetHalfNbDepths() != DefaultHalfNbDepths {
		t.Errorf("GetHalfNbDepths() = %d, want %d", cfg.GetHalfNbDepths(), DefaultHalfNbDepths)
	}
	if cfg.GetUseNormalMap() != false {
		t.Errorf("GetUseNormalMap() = %v, want false", cfg.GetUseNormalMap())
	}
	if cfg.GetUseRefineFuse() != true {
		t.Errorf("GetUseRefineFuse() = %v, want true", cfg.GetUseRefineFuse())
	}
	if cfg.GetUseColorOptimization() != true {
		t.Errorf("GetUseColorOptimization() = %v, want true", cfg.GetUseColorOptimization())
	}
	if cfg.GetOptimizationNbIterations() != DefaultOptimizationNbIterations {
		t.Errorf("GetOptimizationNbIterations() = %d, want %d",
			cfg.GetOptimizationNbIterations(), DefaultOptimizationNbIterations)
	}
	if cfg.GetPatchRadius() != DefaultPatchRadius {
		t.Errorf("GetPatchRadius() = %d, want %d", cfg.GetPatchRadius(), DefaultPatchRadius)
	}
	if cfg.GetVarianceGamma() != DefaultVarianceGamma {
		t.Errorf("GetVarianceGamma() = %f, want %f", cfg.GetVarianceGamma(), DefaultVarianceGamma)
	}
	if cfg.GetOptStep() != DefaultOptStep {
		t.Errorf("GetOptStep() = %f, want %f", cfg.GetOptStep(), DefaultOptStep)
	}
	if cfg.GetExportIntermediateDepthSimMaps() {
		t.Error("GetExportIntermediateDepthSimMaps() = true, want false")
	}
	if cfg.GetExportIntermediateCrossVolumes() {
		t.Error("GetExportIntermediateCrossVolumes() = true, want false")
	}
	if cfg.GetExportIntermediateVolume9pCsv() {
		t.Error("GetExportIntermediateVolume9pCsv() = true, want false")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "scale": 2,
  "step_xy": 2,
  "half_nb_depths": 7,
  "use_refine_fuse": false,
  "optimization_nb_iterations": 50,
  "patch_radius": 3,
  "variance_gamma": 0.01,
  "opt_step": 0.5,
  "export_intermediate_depth_sim_maps": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetScale() != 2 {
		t.Errorf("GetScale() = %d, want 2", cfg.GetScale())
	}
	if cfg.GetStepXY() != 2 {
		t.Errorf("GetStepXY() = %d, want 2", cfg.GetStepXY())
	}
	if cfg.GetHalfNbDepths() != 7 {
		t.Errorf("GetHalfNbDepths() = %d, want 7", cfg.GetHalfNbDepths())
	}
	if cfg.GetUseRefineFuse() != false {
		t.Errorf("GetUseRefineFuse() = %v, want false", cfg.GetUseRefineFuse())
	}
	if cfg.GetOptimizationNbIterations() != 50 {
		t.Errorf("GetOptimizationNbIterations() = %d, want 50", cfg.GetOptimizationNbIterations())
	}
	if cfg.GetPatchRadius() != 3 {
		t.Errorf("GetPatchRadius() = %d, want 3", cfg.GetPatchRadius())
	}
	if cfg.GetVarianceGamma() != 0.01 {
		t.Errorf("GetVarianceGamma() = %f, want 0.01", cfg.GetVarianceGamma())
	}
	if cfg.GetOptStep() != 0.5 {
		t.Errorf("GetOptStep() = %f, want 0.5", cfg.GetOptStep())
	}
	if !cfg.GetExportIntermediateDepthSimMaps() {
		t.Error("GetExportIntermediateDepthSimMaps() = false, want true")
	}

	// Omitted fields keep their defaults.
	if cfg.GetUseColorOptimization() != true {
		t.Errorf("GetUseColorOptimization() = %v, want default true", cfg.GetUseColorOptimization())
	}
	if cfg.GetExportIntermediateCrossVolumes() {
		t.Error("GetExportIntermediateCrossVolumes() = true, want default false")
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	if err := os.WriteFile(configPath, []byte(`{"half_nb_depths": 3}`), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}
	if cfg.GetHalfNbDepths() != 3 {
		t.Errorf("GetHalfNbDepths() = %d, want 3", cfg.GetHalfNbDepths())
	}
	if cfg.GetScale() != DefaultScale {
		t.Errorf("GetScale() = %d, want default %d", cfg.GetScale(), DefaultScale)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for non-json extension")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.json")
		if err := os.WriteFile(path, []byte(`{"scale": 0}`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadTuningConfig(path)
		if err == nil {
			t.Fatal("expected error for scale 0")
		}
		if !strings.Contains(err.Error(), "scale") {
			t.Errorf("error %q does not mention scale", err)
		}
	})

	t.Run("oversized file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "big.json")
		big := make([]byte, 1024*1024+1)
		for i := range big {
			big[i] = ' '
		}
		if err := os.WriteFile(path, big, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for oversized file")
		}
	})
}

func TestValidate(t *testing.T) {
	bad := func(mutate func(*TuningConfig)) *TuningConfig {
		cfg := EmptyTuningConfig()
		mutate(cfg)
		return cfg
	}
	ptrInt := func(v int) *int { return &v }
	ptrFloat := func(v float64) *float64 { return &v }

	cases := []struct {
		name string
		cfg  *TuningConfig
	}{
		{"zero scale", bad(func(c *TuningConfig) { c.Scale = ptrInt(0) })},
		{"zero step", bad(func(c *TuningConfig) { c.StepXY = ptrInt(0) })},
		{"zero half depths", bad(func(c *TuningConfig) { c.HalfNbDepths = ptrInt(0) })},
		{"negative iterations", bad(func(c *TuningConfig) { c.OptimizationNbIterations = ptrInt(-1) })},
		{"zero patch radius", bad(func(c *TuningConfig) { c.PatchRadius = ptrInt(0) })},
		{"zero variance gamma", bad(func(c *TuningConfig) { c.VarianceGamma = ptrFloat(0) })},
		{"opt step too large", bad(func(c *TuningConfig) { c.OptStep = ptrFloat(1.5) })},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	if err := EmptyTuningConfig().Validate(); err != nil {
		t.Errorf("empty config should validate, got %v", err)
	}
}
