package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/mapping"
	"github.com/samcharles93/ghn/internal/safetensors"
	"github.com/samcharles93/ghn/internal/tensor"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect mappings and checkpoints",
		Commands: []*cli.Command{
			inspectMappingCmd(),
			inspectCheckpointCmd(),
		},
	}
}

func inspectMappingCmd() *cli.Command {
	var showLeftover bool
	return &cli.Command{
		Name:  "mapping",
		Usage: "Show how graph nodes map onto parameters and shape buckets",
		Flags: append(append(modelFlags(), inputFlags()...),
			&cli.BoolFlag{Name: "leftover", Usage: "list descriptors no node claimed", Destination: &showLeftover},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := appConfig
			if err := applyModelConfig(cmd, &cfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			nets, batch, err := loadInputs(archPaths, graphPaths)
			if err != nil {
				return err
			}
			shape := cfg.Model.MaxShape
			if cfg.Checkpoint != "" {
				m, err := ghn.Load(cfg.Checkpoint)
				if err != nil {
					return err
				}
				shape = m.Config().MaxShape
			}
			res, err := mapping.Match(batch, nets, shape)
			if err != nil {
				return err
			}

			fmt.Printf("max shape: %s\n", tensor.FormatShape(shape[:]))
			fmt.Printf("nodes: %d, matched: %d, buckets: %d\n\n", batch.NumNodes(), res.Matched(), res.Buckets.Len())
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KEY\tHEAD\tPOS\tNODE\tNET\tPARAM\tSHAPE\t")
			for _, k := range res.Buckets.Keys() {
				head := ghn.HeadFor(k)
				for _, g := range res.Buckets.Members(k) {
					e := res.Params[g]
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t\n",
						k, head, e.Pos, g, nets[e.Net].Name, e.Desc.Path, tensor.FormatShape(e.Shape))
				}
			}
			_ = tw.Flush()

			var unmatched int
			for g, e := range res.Params {
				if !e.Matched() {
					if unmatched == 0 {
						fmt.Println("\nunmatched nodes:")
					}
					unmatched++
					fmt.Printf("  node %d (%s %q) shape %s\n", g, e.Node.Op, e.Node.Param, tensor.FormatShape(e.Shape))
				}
			}
			if showLeftover && len(res.Leftover) > 0 {
				fmt.Println("\nleftover descriptors:")
				for _, lo := range res.Leftover {
					note := ""
					if lo.Pruned {
						note = " (pruned)"
					}
					fmt.Printf("  %s cell %d %s %s%s\n", nets[lo.Net].Name, lo.Cell, lo.Desc.Path, tensor.FormatShape(lo.Desc.Shape), note)
				}
			}
			return nil
		},
	}
}

func inspectCheckpointCmd() *cli.Command {
	var path string
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "List the tensors and config of a .safetensors file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "path to .safetensors", Destination: &path, Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := safetensors.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			for k, v := range f.Metadata {
				fmt.Printf("%s: %s\n", k, v)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tBYTES\t")
			var total int64
			for _, name := range f.Names() {
				t := f.Tensors[name]
				total += t.End - t.Start
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", name, t.DType, tensor.FormatShape(t.Shape), t.End-t.Start)
			}
			_ = tw.Flush()
			fmt.Printf("%d tensors, %d bytes\n", len(f.Tensors), total)
			return nil
		},
	}
}
