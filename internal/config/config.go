// Package config loads ghn settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/logger"
)

var ErrInvalid = errors.New("invalid config")

// Config represents the ghn configuration file (~/.config/ghn/config.yaml).
type Config struct {
	// Checkpoint is loaded instead of building a seeded model from Model.
	Checkpoint string     `yaml:"checkpoint"`
	Model      ghn.Config `yaml:"model"`
	Predict    Predict    `yaml:"predict"`
	Log        Log        `yaml:"log"`
	Server     Server     `yaml:"server"`
}

type Predict struct {
	Mode               string `yaml:"mode"`
	PredictClassLayers bool   `yaml:"predict_class_layers"`
	BNTrain            bool   `yaml:"bn_train"`
	ReturnEmbeddings   bool   `yaml:"return_embeddings"`
	DebugLevel         int    `yaml:"debug_level"`
	Devices            int    `yaml:"devices"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Server struct {
	Address string `yaml:"address"`
	// MaxResults bounds the prediction summaries kept in memory.
	MaxResults int `yaml:"max_results"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Model: ghn.DefaultConfig(),
		Predict: Predict{
			Mode:               "eval",
			PredictClassLayers: true,
			BNTrain:            true,
			Devices:            1,
		},
		Log:    Log{Level: "info", Format: "pretty"},
		Server: Server{Address: "127.0.0.1:8080", MaxResults: 256},
	}
}

// Path returns the per-user config location, or "" when there is none.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ghn", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Checkpoint == "" {
		if err := c.Model.Validate(); err != nil {
			return err
		}
	}
	if _, err := ghn.ParseMode(c.Predict.Mode); err != nil {
		return fmt.Errorf("%w: predict.mode: %w", ErrInvalid, err)
	}
	if c.Predict.DebugLevel < 0 || c.Predict.DebugLevel > 3 {
		return fmt.Errorf("%w: predict.debug_level %d outside 0-3", ErrInvalid, c.Predict.DebugLevel)
	}
	if c.Predict.Devices < 1 {
		return fmt.Errorf("%w: predict.devices must be >= 1", ErrInvalid)
	}
	switch c.Log.Format {
	case "", "pretty", "json", "text":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Options converts the predict section.
func (c Config) Options() (ghn.Options, error) {
	mode, err := ghn.ParseMode(c.Predict.Mode)
	if err != nil {
		return ghn.Options{}, err
	}
	return ghn.Options{
		Mode:               mode,
		PredictClassLayers: c.Predict.PredictClassLayers,
		BNTrain:            c.Predict.BNTrain,
		ReturnEmbeddings:   c.Predict.ReturnEmbeddings,
		DebugLevel:         c.Predict.DebugLevel,
	}, nil
}

// Logger builds the configured logger. A non-zero debug level lowers the
// log level so its diagnostics are visible.
func (c Config) Logger(w io.Writer) (logger.Logger, error) {
	level := logger.ParseLevel(c.Log.Level)
	if c.Predict.DebugLevel > 0 {
		level = min(level, logger.ForDebugLevel(c.Predict.DebugLevel))
	}
	return logger.Setup(w, level, c.Log.Format)
}

// LoadModel loads the checkpoint when one is configured and otherwise
// builds a seeded model.
func (c Config) LoadModel() (*ghn.Model, error) {
	if c.Checkpoint != "" {
		return ghn.Load(c.Checkpoint)
	}
	return ghn.New(c.Model)
}
