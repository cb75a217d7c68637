package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "ghn",
		Usage: "Predict network parameters with a graph hypernetwork",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, cli.Exit(err.Error(), 2)
			}
			appConfig = cfg
			log, err := appConfig.Logger(os.Stderr)
			if err != nil {
				return ctx, cli.Exit(err.Error(), 2)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			predictCmd(),
			inspectCmd(),
			initCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
