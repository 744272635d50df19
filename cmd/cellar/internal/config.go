package internal

import (
	"fmt"
	"path/filepath"

	"github.com/goplus/cellar/internal/env"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage cellar configuration",
	Long: `Manage cellar configuration.

Configuration is read from config.toml in the cellar config directory,
CELLAR_CONFIG_DIR when set. Every key can be overridden with a CELLAR_*
environment variable, e.g. CELLAR_ROOT or CELLAR_DOWNLOAD_RETRIES.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, file, err := env.Load(cfgFile)
		if err != nil {
			return err
		}
		if file == "" {
			file = "none, using defaults"
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("# config file: "+file))
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			dir, err := env.ConfigDir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, env.ConfigFileName)
		}
		defaults, err := env.DefaultConfig()
		if err != nil {
			return err
		}
		if err := env.Write(path, defaults, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", arrow, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
