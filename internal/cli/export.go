package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShariqSheikhh/AssemblyOS/internal/config"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/logger"
	"github.com/ShariqSheikhh/AssemblyOS/internal/report"
)

type exportOptions struct {
	out string
}

func NewExportStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export-stock",
		Short: "Write current stock and the movement journal to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.App.Env)

			a, err := newApp(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := opts.out
			if out == "" {
				out = report.FileName(time.Now())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.WriteStock(cmd.Context(), a.store, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stock written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (default stock_<timestamp>.xlsx)")
	return cmd
}
