package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/rawbytedev/typeconv"
	"github.com/rawbytedev/typeconv/config"
	"github.com/spf13/cobra"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath   string
	logLevel     string
	numberFormat string
	memProfile   string

	cfg    config.Config
	logger *slog.Logger
	engine *typeconv.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "typeconv",
		Short: "Inspect type shapes and convert values between types",
		Long: `typeconv describes variable shapes built from a leaf type and a
modifier string, converts values between leaf types and parses JSON, XML,
YAML and CDB documents into typed leaves.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMemProfile()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file (TYPECONV_* variables override it)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&a.numberFormat, "number-format", "", `printf style verb for numbers rendered as text, e.g. "%#x"`)
	flags.StringVar(&a.memProfile, "memprofile", "", "write a heap profile to this file on exit")

	root.AddCommand(newShapeCmd(a), newConvertCmd(a), newParseCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.numberFormat != "" {
		cfg.Format.Number = a.numberFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.LogLevel()
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.engine, err = typeconv.New(typeconv.WithConfig(cfg), typeconv.WithLogger(a.logger))
	return err
}

func (a *app) writeMemProfile() error {
	if a.memProfile == "" {
		return nil
	}
	f, err := os.Create(a.memProfile)
	if err != nil {
		return fmt.Errorf("memprofile: %w", err)
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}
