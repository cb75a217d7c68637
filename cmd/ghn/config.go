package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/config"
)

// appConfig is resolved once in the root Before hook.
var appConfig = config.Default()

func loadConfig(c *cli.Command) (config.Config, error) {
	path := configFile
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = logLevel
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = logFormat
	}
	if c.IsSet("debug-level") {
		cfg.Predict.DebugLevel = debugLevel
	}
	return cfg, cfg.Validate()
}

// applyModelConfig lets explicitly set model flags override the file.
func applyModelConfig(c *cli.Command, cfg *config.Config) error {
	if c.IsSet("checkpoint") {
		cfg.Checkpoint = checkpointPath
	}
	if c.IsSet("max-shape") {
		s, err := parseShape(maxShape)
		if err != nil {
			return err
		}
		cfg.Model.MaxShape = s
	}
	if c.IsSet("num-classes") {
		cfg.Model.NumClasses = numClasses
	}
	if c.IsSet("hid") {
		cfg.Model.Hidden = hidden
	}
	if c.IsSet("seed") {
		cfg.Model.Seed = seed
	}
	return cfg.Validate()
}

// applyPredictConfig lets explicitly set prediction flags override the file.
func applyPredictConfig(c *cli.Command, cfg *config.Config) error {
	if c.IsSet("mode") {
		cfg.Predict.Mode = mode
	}
	if c.IsSet("devices") {
		cfg.Predict.Devices = devices
	}
	if c.IsSet("finetune") {
		cfg.Predict.PredictClassLayers = !finetune
	}
	if c.IsSet("bn-train") {
		cfg.Predict.BNTrain = bnTrain
	}
	return cfg.Validate()
}
