package main

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	modrt "github.com/albertocavalcante/go-modrt"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rv, err := semver.NewVersion(a.v.GetString(keyRuntime))
			if err != nil {
				return fmt.Errorf("invalid runtime version: %w", err)
			}
			fmt.Fprintf(a.stdout, "modrt %s\n", modrt.Version)
			fmt.Fprintf(a.stdout, "runtime %s (multi-release %d)\n", rv, rv.Major())
			fmt.Fprintf(a.stdout, "go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
