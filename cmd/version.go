package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information in the selected output format.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.runtime.Printer.Print(version.Get())
		},
	}
}
