package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/go-modrt/graph"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		format  string
		explain string
	)
	cmd := &cobra.Command{
		Use:   "graph <bundles.yaml>",
		Short: "Print the wiring of a bundle set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fw, set, err := a.framework(args[0])
			if err != nil {
				return err
			}
			if err := fw.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = fw.Stop(context.WithoutCancel(ctx)) }()

			if _, err := fw.InstallSet(ctx, set); err != nil {
				return err
			}
			c := fw.Container()
			c.ResolveBundles(ctx, nil)
			g := graph.Build(c.Wiring())

			if explain != "" {
				text, err := g.ToExplainText(explain)
				if err != nil {
					return err
				}
				fmt.Fprint(a.stdout, text)
				return nil
			}

			switch format {
			case "text":
				fmt.Fprint(a.stdout, g.ToText())
			case "dot":
				fmt.Fprint(a.stdout, g.ToDOT())
			case "json":
				data, err := g.ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
			default:
				return fmt.Errorf("unknown format %q (want text, dot or json)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, dot or json")
	cmd.Flags().StringVar(&explain, "explain", "", "explain how a package is wired instead of printing the graph")
	return cmd
}
