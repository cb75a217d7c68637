package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/ghn/internal/ghn"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != ghn.DefaultConfig() || cfg.Predict.Devices != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if !opts.BNTrain || opts.Mode != ghn.Eval {
		t.Fatalf("default options %+v", opts)
	}
}

func TestLoadKeepsBNTrainOff(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "predict:\n  bn_train: false\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Predict.BNTrain {
		t.Fatal("bn_train: false must override the default")
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
model:
  max_shape: [128, 128, 3, 3]
  num_classes: 10
predict:
  mode: train
  predict_class_layers: false
  debug_level: 2
  devices: 4
log:
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.MaxShape != [4]int{128, 128, 3, 3} || cfg.Model.NumClasses != 10 {
		t.Fatalf("model section %+v", cfg.Model)
	}
	if cfg.Model.Hidden != ghn.DefaultConfig().Hidden {
		t.Fatalf("hid must keep its default, got %d", cfg.Model.Hidden)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Mode != ghn.Train || opts.PredictClassLayers || opts.DebugLevel != 2 {
		t.Fatalf("options %+v", opts)
	}
	if cfg.Predict.Devices != 4 || cfg.Log.Format != "json" {
		t.Fatalf("predict %+v log %+v", cfg.Predict, cfg.Log)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"mode":        "predict:\n  mode: sometimes\n",
		"debug level": "predict:\n  debug_level: 9\n",
		"devices":     "predict:\n  devices: 0\n",
		"format":      "log:\n  format: xml\n",
		"max shape":   "model:\n  max_shape: [0, 64, 3, 3]\n",
		"yaml":        "model: [",
	}
	for name, body := range tests {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	_, err := Load(writeConfig(t, "predict:\n  devices: 0\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoggerDebugLevel(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Log = Log{Level: "warn", Format: "text"}
	cfg.Predict.DebugLevel = 2
	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	log.Debug("bucket decoded")
	if !strings.Contains(buf.String(), "bucket decoded") {
		t.Fatalf("debug level 2 must enable debug logs: %q", buf.String())
	}
}

func TestLoadModelSeeded(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Model.MaxShape = [4]int{8, 8, 3, 3}
	cfg.Model.Hidden = 4
	cfg.Model.NumClasses = 4
	m, err := cfg.LoadModel()
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if m.Config() != cfg.Model {
		t.Fatalf("config %+v", m.Config())
	}
}
