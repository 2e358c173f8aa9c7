package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	modrt "github.com/albertocavalcante/go-modrt"
	"github.com/albertocavalcante/go-modrt/container"
)

func newRunCmd(a *app) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "run <bundles.yaml>",
		Short: "Start a framework with a bundle set and wait for a signal",
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
			fw.Container().AddFrameworkListener(func(ev container.FrameworkEvent) {
				if ev.Err == nil {
					return
				}
				var source string
				if ev.Bundle != nil {
					source = ev.Bundle.String()
				}
				a.logger.Error("framework event", "type", ev.Type.String(), "bundle", source, "error", ev.Err)
			})
			if _, err := fw.InstallSet(ctx, set); err != nil {
				a.logger.Warn("some bundles failed to install", "error", err)
			}
			if err := fw.Start(ctx); err != nil {
				return err
			}
			printBundles(a.stdout, fw.Container().Bundles())

			if !detach {
				<-ctx.Done()
				a.logger.Info("shutting down")
			}
			if err := fw.Stop(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			if ev := fw.WaitForStop(0); ev.Type != container.FrameworkStopped {
				return fmt.Errorf("framework did not stop: %s", ev.Type)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detach, "once", false, "stop right after starting instead of waiting for a signal")
	return cmd
}

func printBundles(w io.Writer, bundles []*modrt.Bundle) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tLEVEL\tBUNDLE")
	for _, b := range bundles {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s_%s\n", b.ID(), b.State(), b.StartLevel(), b.SymbolicName(), b.Version())
	}
	tw.Flush()
}
