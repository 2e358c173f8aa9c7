package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	modrt "github.com/albertocavalcante/go-modrt"
)

// Configuration keys shared by flags, environment and config file.
const (
	keyConfig     = "config"
	keyVerbose    = "verbose"
	keyStorage    = "storage"
	keyRuntime    = "runtime"
	keyStartLevel = "startlevel"
	keyProperties = "properties"
)

// app carries what every command needs.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}

// exitError carries a specific exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "modrt",
		Short:         "Run and inspect modular bundle sets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	addGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(a),
		newResolveCmd(a),
		newGraphCmd(a),
		newVersionCmd(a),
	)
	return root
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String(keyConfig, "", "config file (YAML)")
	flags.BoolP(keyVerbose, "v", false, "enable debug logging")
	flags.String(keyStorage, "", "bundle storage directory (memory when empty)")
	flags.String(keyRuntime, modrt.DefaultRuntimeVersion, "runtime version used for multi-release selection")
	flags.Int(keyStartLevel, modrt.DefaultBeginningStartLevel, "beginning start level")
	flags.StringToString(keyProperties, nil, "extra framework properties (key=value)")
}

// load merges flags, environment and the config file into a.v and sets up
// logging.
func (a *app) load(cmd *cobra.Command) error {
	v := a.v
	// No defaults for runtime and start level: IsSet must see only user values.
	v.SetDefault(keyVerbose, false)
	v.SetEnvPrefix("MODRT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	level := log.InfoLevel
	if v.GetBool(keyVerbose) {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "modrt",
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	a.logger = slog.New(handler)
	return nil
}

// properties builds framework properties: set properties first, then
// config file and environment, then flags.
func (a *app) properties(set *modrt.BundleSet) modrt.Config {
	props := modrt.Config{}
	if set != nil {
		for k, val := range set.Properties {
			props[k] = val
		}
	}
	for k, val := range a.v.GetStringMapString(keyProperties) {
		props[k] = val
	}
	if s := a.v.GetString(keyStorage); s != "" {
		props[modrt.PropStorage] = s
	}
	if a.v.IsSet(keyRuntime) || props[modrt.PropRuntimeVersion] == "" {
		props[modrt.PropRuntimeVersion] = a.v.GetString(keyRuntime)
	}
	if a.v.IsSet(keyStartLevel) || props[modrt.PropBeginningStartLevel] == "" {
		props[modrt.PropBeginningStartLevel] = a.v.GetString(keyStartLevel)
	}
	return props
}

// framework loads the bundle set at path and creates a framework for it.
func (a *app) framework(path string, opts ...modrt.Option) (*modrt.Framework, *modrt.BundleSet, error) {
	set, err := modrt.ParseBundleSetFile(path)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]modrt.Option{modrt.WithLogger(a.logger)}, opts...)
	fw, err := modrt.New(a.properties(set), opts...)
	if err != nil {
		return nil, nil, err
	}
	return fw, set, nil
}
