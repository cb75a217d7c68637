package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/api"
	"github.com/samcharles93/ghn/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve parameter predictions over HTTP",
		Flags: append(append(modelFlags(), predictFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := appConfig
			if err := applyModelConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if err := applyPredictConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if cfg.Server.Address != "" && !cmd.IsSet("addr") {
				addr = cfg.Server.Address
			}
			opts, err := cfg.Options()
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			m, err := cfg.LoadModel()
			if err != nil {
				return err
			}

			server := api.NewServer(m, newPredictor(m, cfg.Predict.Devices), opts, api.NewPredictionStore(cfg.Server.MaxResults), log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "devices", cfg.Predict.Devices)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
