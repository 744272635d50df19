// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/goplus/cellar/internal/env"
	"github.com/spf13/cobra"
)

// Version is set with -ldflags at release time.
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	verbose  bool

	// cfg is loaded before any subcommand runs.
	cfg *env.Config
)

var rootCmd = &cobra.Command{
	Use:   "cellar",
	Short: "cellar builds formulas from source",
	Long: `cellar downloads and verifies source archives, builds them with the
steps their formula declares and installs each version into its own keg.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <config dir>/cellar/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show build output and debug logs")
}

func setup(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if cmd == configInitCmd {
		// config init creates the file.
		path = ""
	}
	c, _, err := env.Load(path)
	if err != nil {
		return err
	}
	cfg = c

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := ctxlog.New(cmd.ErrOrStderr(), level)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
