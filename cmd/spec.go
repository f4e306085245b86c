package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/modules"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/openapi"
)

func newSpecCmd() *cobra.Command {
	specCmd := &cobra.Command{
		Use:           "spec",
		Short:         "Module document utilities (for maintainers)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	specCmd.AddCommand(newSpecListCmd())
	specCmd.AddCommand(newSpecVerifyCmd())
	specCmd.AddCommand(newSpecConvertCmd())

	return specCmd
}

func newSpecListCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List embedded module documents",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			for _, m := range app.modules {
				table, err := m.Routes(app.fsys, app.moduleOptions())
				if err != nil {
					return err
				}
				version := "-"
				if m.Doc != "" {
					doc, err := m.Load(app.fsys)
					if err != nil {
						return err
					}
					version = doc.Spec.Info.Version
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tversion=%s\tcommands=%d\tserver=%s\n",
					m.Name, path.Base(m.Source()), version, len(table.Routes), table.ServerURL)
			}
			return nil
		},
	}
}

func newSpecVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "verify",
		Short:         "Validate every module document and build its commands",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			for _, m := range app.modules {
				if m.Doc != "" {
					doc, err := m.Load(app.fsys)
					if err != nil {
						return err
					}
					if err := openapi.Validate(cmd.Context(), doc.Raw); err != nil {
						return &clierr.SpecError{Module: m.Name, Msg: err.Error()}
					}
				}
				if _, err := m.Command(app.fsys, app.moduleOptions()); err != nil {
					return err
				}
				app.runtime.Log.Info().Str("module", m.Name).Msg("verified")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newSpecConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "convert <module>",
		Short:         "Print the normalized route table of a module",
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			var mod *modules.Module
			for i := range app.modules {
				if app.modules[i].Name == args[0] {
					mod = &app.modules[i]
				}
			}
			if mod == nil {
				return &clierr.UsageError{Msg: fmt.Sprintf("no module named %q", args[0])}
			}
			table, err := mod.Routes(app.fsys, app.moduleOptions())
			if err != nil {
				return err
			}
			b, err := normalize.Encode(table)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
