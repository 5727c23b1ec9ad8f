// Package cli holds the assemblyos commands.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "assemblyos",
		Short:         "Manufacturing order fulfillment service",
		Long:          "AssemblyOS tracks items, bills of materials and manufacturing orders, and turns component stock into product stock atomically.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/example.yaml", "config file; empty means APP_* environment only")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExportStockCommand(opts))

	return cmd
}
