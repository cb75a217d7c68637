package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/api"
	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/logger"
	"github.com/samcharles93/ghn/internal/tensor"
)

func predictCmd() *cli.Command {
	var (
		outPath    string
		showParams bool
	)
	flags := append(modelFlags(), inputFlags()...)
	flags = append(flags, predictFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "write the predicted parameters to a .safetensors file",
			Destination: &outPath,
		},
		&cli.BoolFlag{
			Name:        "params",
			Usage:       "print statistics of every predicted parameter",
			Destination: &showParams,
		},
	)

	return &cli.Command{
		Name:  "predict",
		Usage: "Predict the parameters of one or more architectures",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := appConfig
			if err := applyModelConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if err := applyPredictConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			opts, err := cfg.Options()
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			nets, batch, err := loadInputs(archPaths, graphPaths)
			if err != nil {
				return err
			}
			m, err := cfg.LoadModel()
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			res, err := newPredictor(m, cfg.Predict.Devices).Predict(ctx, nets, batch, opts)
			if err != nil {
				return err
			}

			printReport(res.Report)
			if showParams {
				printParams(nets)
			}
			if res.Embeddings != nil {
				fmt.Printf("embeddings: %s\n", tensor.FormatShape(res.Embeddings.Shape))
			}
			if outPath != "" {
				if err := ghn.ExportParams(outPath, nets); err != nil {
					return err
				}
				log.Info("wrote predicted parameters", "path", outPath)
			}
			return nil
		},
	}
}

func newPredictor(m *ghn.Model, devices int) api.Predictor {
	if devices > 1 {
		return ghn.Parallel{Model: m, Devices: devices}
	}
	return m
}

func loadInputs(archs, graphs []string) ([]*arch.Net, *graph.Batch, error) {
	if len(archs) != len(graphs) {
		return nil, nil, cli.Exit(fmt.Sprintf("got %d --arch and %d --graph files", len(archs), len(graphs)), 2)
	}
	nets := make([]*arch.Net, len(archs))
	gs := make([]*graph.Graph, len(graphs))
	for i := range archs {
		n, err := arch.LoadFile(archs[i])
		if err != nil {
			return nil, nil, err
		}
		g, err := graph.Load(graphs[i])
		if err != nil {
			return nil, nil, err
		}
		nets[i], gs[i] = n, g
	}
	return nets, graph.NewBatch(gs...), nil
}

func printReport(r ghn.Report) {
	fmt.Printf("tensors:   %d\n", r.Tensors)
	fmt.Printf("params:    %d (learnable %d)\n", r.Params, r.TrueParams)
	fmt.Printf("matched:   %d nodes, %d unmatched, %d pruned modules\n", r.Matched, r.Unmatched, r.Pruned)
	if r.SkippedClass > 0 {
		fmt.Printf("skipped:   %d classification nodes\n", r.SkippedClass)
	}
	if r.BNTrain > 0 {
		fmt.Printf("bn train:  %d modules\n", r.BNTrain)
	}
	fmt.Printf("elapsed:   %s\n", r.Elapsed)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tHEAD\tNODES\t")
	for _, b := range r.Buckets {
		head := b.Head
		if b.Skipped {
			head += " (skipped)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t\n", b.Key, head, b.Size)
	}
	_ = tw.Flush()
}

func printParams(nets []*arch.Net) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NET\tPARAM\tSHAPE\tSTATE\tMEAN\tSTD\tNORM\t")
	for _, n := range nets {
		for name, s := range n.Params() {
			st := s.Data.Summarize()
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t\n",
				n.Name, name, tensor.FormatShape(s.Shape), s.State, st.Mean, st.Std, st.Norm)
		}
	}
	_ = tw.Flush()
}
