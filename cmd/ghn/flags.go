package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debugLevel int

	checkpointPath string
	maxShape       string
	numClasses     int
	hidden         int
	seed           int64

	mode       string
	devices    int
	finetune   bool
	bnTrain    bool
	archPaths  []string
	graphPaths []string
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.IntFlag{
			Name:        "debug-level",
			Aliases:     []string{"debug"},
			Usage:       "diagnostics level 0-3",
			Destination: &debugLevel,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"c"},
			Usage:       "hypernetwork checkpoint (.safetensors); a seeded model is built when empty",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "max-shape",
			Usage:       "decoder max shape as out,in,h,w",
			Destination: &maxShape,
		},
		&cli.IntFlag{
			Name:        "num-classes",
			Usage:       "classes predicted by the classification decoder",
			Destination: &numClasses,
		},
		&cli.IntFlag{
			Name:        "hid",
			Usage:       "node embedding width",
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed of a freshly built model",
			Destination: &seed,
		},
	}
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "arch",
			Aliases:     []string{"a"},
			Usage:       "architecture description (.yaml); repeat for a batch",
			Destination: &archPaths,
			Required:    true,
		},
		&cli.StringSliceFlag{
			Name:        "graph",
			Aliases:     []string{"g"},
			Usage:       "computation graph (.json) of the architecture at the same position",
			Destination: &graphPaths,
			Required:    true,
		},
	}
}

func predictFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "injection mode (eval, train)",
			Value:       "eval",
			Destination: &mode,
		},
		&cli.IntFlag{
			Name:        "devices",
			Usage:       "parallel workers the batch is split over",
			Value:       1,
			Destination: &devices,
		},
		&cli.BoolFlag{
			Name:        "finetune",
			Usage:       "keep the classification layer instead of predicting it",
			Destination: &finetune,
		},
		&cli.BoolFlag{
			Name:        "bn-train",
			Usage:       "switch batch norm to training mode after eval injection",
			Value:       true,
			Destination: &bnTrain,
		},
	}
}

// parseShape parses "a,b,c,d".
func parseShape(s string) ([4]int, error) {
	var out [4]int
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("max-shape %q: want 4 comma-separated ints", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("max-shape %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
