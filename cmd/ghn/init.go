package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/logger"
)

func initCmd() *cli.Command {
	var outPath string
	return &cli.Command{
		Name:  "init",
		Usage: "Write a seeded hypernetwork checkpoint",
		Flags: append(modelFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "checkpoint path",
				Value:       "ghn.safetensors",
				Destination: &outPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := appConfig
			cfg.Checkpoint = ""
			if err := applyModelConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			m, err := ghn.New(cfg.Model)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if err := ghn.Save(outPath, m); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("wrote checkpoint", "path", outPath, "tensors", len(m.Tensors()), "seed", cfg.Model.Seed)
			return nil
		},
	}
}
