// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rmgprov configuration",
		Long: `Manage rmgprov configuration.

Configuration is read from the first file found:
  - the --config flag
  - ./rmgprov.cue
  - $XDG_CONFIG_HOME/rmgprov/config.cue (platform config directory elsewhere)

RMGPROV_* environment variables override file values, e.g.
RMGPROV_CONTAINER_ENGINE=docker.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprintln(app.stderr, SubtitleStyle.Render("// source: "+displaySource(app.cfgSource)))
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	var local bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{configOptionalAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.LocalConfigFileName
			if !local {
				dir, err := config.ConfigDir()
				if err != nil {
					return app.fail(err)
				}
				path = filepath.Join(dir, config.ConfigFileName)
			}
			written, err := config.WriteDefault(path)
			if err != nil {
				return app.fail(err)
			}
			if !written {
				fmt.Fprintf(app.stdout, "%s %s already exists\n", WarningStyle.Render("Kept"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Wrote"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&local, "local", false, "write ./"+config.LocalConfigFileName+" instead of the user config")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}
