package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/SharedCam/internal/hw/ar"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml — filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  type: "sim"
  thread_name: "CamWorker"
ar:
  light_estimation: "ambient_intensity"
  focus_mode: "fixed"
  update_mode: "blocking"
snapshot:
  rotation_deg: 90
  jpeg_quality: 80
  timeout_ms: 500
indicator:
  pin: 18
sim:
  camera_id: "1"
  texture_width: 1280
  texture_height: 720
  open_delay_ms: 100
  close_delay_ms: 50
  frame_interval_ms: 20
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.ThreadName != "CamWorker" {
		t.Errorf("camera.thread_name = %q", cfg.Camera.ThreadName)
	}
	want := ar.Config{
		LightEstimation: ar.LightEstimationAmbientIntensity,
		Focus:           ar.FocusFixed,
		Update:          ar.UpdateBlocking,
	}
	if cfg.ARSession() != want {
		t.Errorf("ARSession() = %+v, want %+v", cfg.ARSession(), want)
	}
	if cfg.Rotation() != 90 {
		t.Errorf("rotation = %d, want 90", cfg.Rotation())
	}
	if cfg.Snapshot.JPEGQuality != 80 {
		t.Errorf("jpeg_quality = %d, want 80", cfg.Snapshot.JPEGQuality)
	}
	if cfg.SnapshotTimeout() != 500*time.Millisecond {
		t.Errorf("SnapshotTimeout() = %v", cfg.SnapshotTimeout())
	}
	if cfg.Indicator.Pin != 18 {
		t.Errorf("indicator.pin = %d", cfg.Indicator.Pin)
	}
	if cfg.Sim.CameraID != "1" || cfg.Sim.TextureWidth != 1280 || cfg.Sim.TextureHeight != 720 {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if cfg.OpenDelay() != 100*time.Millisecond || cfg.CloseDelay() != 50*time.Millisecond {
		t.Errorf("delays = %v / %v", cfg.OpenDelay(), cfg.CloseDelay())
	}
	if cfg.FrameInterval() != 20*time.Millisecond {
		t.Errorf("FrameInterval() = %v", cfg.FrameInterval())
	}
	if cfg.Defaults.DebugLevel != 2 || !cfg.Defaults.MockGPIO {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: sim\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.ThreadName != "CameraThread" {
		t.Errorf("thread_name default = %q", cfg.Camera.ThreadName)
	}
	want := ar.Config{
		LightEstimation: ar.LightEstimationDisabled,
		Focus:           ar.FocusAuto,
		Update:          ar.UpdateLatestCameraImage,
	}
	if cfg.ARSession() != want {
		t.Errorf("ARSession() default = %+v, want %+v", cfg.ARSession(), want)
	}
	if cfg.Rotation() != -90 {
		t.Errorf("rotation default = %d, want -90", cfg.Rotation())
	}
	if cfg.Snapshot.JPEGQuality != 95 {
		t.Errorf("jpeg_quality default = %d, want 95", cfg.Snapshot.JPEGQuality)
	}
	if cfg.SnapshotTimeout() != 2*time.Second {
		t.Errorf("timeout default = %v", cfg.SnapshotTimeout())
	}
	if cfg.Sim.CameraID != "0" || cfg.Sim.TextureWidth != 640 || cfg.Sim.TextureHeight != 480 {
		t.Errorf("sim defaults = %+v", cfg.Sim)
	}
	if cfg.FrameInterval() != 33*time.Millisecond {
		t.Errorf("frame interval default = %v", cfg.FrameInterval())
	}
}

func TestLoad_ExplicitZeroRotationKept(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: sim\nsnapshot:\n  rotation_deg: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Rotation() != 0 {
		t.Errorf("rotation = %d, want 0", cfg.Rotation())
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing_camera_type", "sim:\n  camera_id: \"0\"\n"},
		{"unknown_camera_type", "camera:\n  type: usb\n"},
		{"bad_light_estimation", "camera:\n  type: sim\nar:\n  light_estimation: bright\n"},
		{"bad_focus", "camera:\n  type: sim\nar:\n  focus_mode: macro\n"},
		{"bad_update", "camera:\n  type: sim\nar:\n  update_mode: never\n"},
		{"rotation_not_quarter", "camera:\n  type: sim\nsnapshot:\n  rotation_deg: 45\n"},
		{"quality_too_high", "camera:\n  type: sim\nsnapshot:\n  jpeg_quality: 101\n"},
		{"quality_negative", "camera:\n  type: sim\nsnapshot:\n  jpeg_quality: -5\n"},
		{"negative_pin", "camera:\n  type: sim\nindicator:\n  pin: -1\n"},
		{"negative_texture", "camera:\n  type: sim\nsim:\n  texture_width: -640\n"},
		{"negative_delay", "camera:\n  type: sim\nsim:\n  close_delay_ms: -1\n"},
		{"debug_level_too_high", "camera:\n  type: sim\ndefaults:\n  debug_level: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (camera.type missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  type: "sim"
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestRotation_NilPointerDefault(t *testing.T) {
	var cfg Config
	if cfg.Rotation() != -90 {
		t.Errorf("Rotation() on zero config = %d, want -90", cfg.Rotation())
	}
}
