package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errUnresolved = errors.New("some bundles could not be resolved")

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <bundles.yaml>",
		Short: "Resolve a bundle set and report what could not be wired",
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
			rep, err := c.ResolveBundlesReport(ctx, nil)
			if err != nil {
				return err
			}
			printBundles(a.stdout, c.Bundles())
			if rep != nil {
				fmt.Fprintln(a.stdout)
				fmt.Fprintln(a.stdout, rep.Error())
				return &exitError{code: 2, err: errUnresolved}
			}
			return nil
		},
	}
}
