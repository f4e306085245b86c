package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/config"
)

func newInitCmd() *cobra.Command {
	var hostname string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or update the selected configuration and make it active",
		Long: "Create or update the selected configuration and make it active.\n\n" +
			"The configuration is chosen with --configuration or CRAY_CONFIG and defaults to \"default\".",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if hostname == "" {
				return clierr.MissingParameter("hostname")
			}
			p := app.profile
			if err := p.Set(config.KeyHostname, hostname); err != nil {
				return &clierr.UsageError{Option: "hostname", Msg: err.Error()}
			}
			if err := app.configs.Save(p); err != nil {
				return err
			}
			if err := app.configs.SetActive(p.Name); err != nil {
				return err
			}
			app.runtime.Printer.Warnf("Initialization complete: configuration %q is active.", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&hostname, "hostname", "", "API gateway URL, e.g. https://api-gw-service-nmn.local (required)")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "config",
		Short:         "Manage configuration profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigDescribeCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigUseCmd())
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "set <section.key> <value>",
		Short:         "Set a value in the selected configuration",
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.profile.Set(args[0], args[1]); err != nil {
				return &clierr.UsageError{Msg: err.Error()}
			}
			return app.configs.Save(app.profile)
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "get <section.key>",
		Short:         "Print a value from the selected configuration",
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			v, ok := app.profile.Get(args[0])
			if !ok {
				return fmt.Errorf("%s is not set in configuration %q", args[0], app.profile.Name)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "unset <section.key>",
		Short:         "Remove a value from the selected configuration",
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if !app.profile.Unset(args[0]) {
				return fmt.Errorf("%s is not set in configuration %q", args[0], app.profile.Name)
			}
			return app.configs.Save(app.profile)
		},
	}
}

func newConfigDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "describe",
		Short:         "Show every value in the selected configuration",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.runtime.Printer.Print(map[string]any{
				"name":    app.profile.Name,
				"configs": app.profile.Sections,
			})
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List configurations",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			names, err := app.configs.List()
			if err != nil {
				return err
			}
			active, err := app.configs.ActiveProfile()
			if err != nil {
				return err
			}
			items := make([]map[string]any, 0, len(names))
			for _, name := range names {
				items = append(items, map[string]any{"name": name, "is_active": name == active})
			}
			return app.runtime.Printer.Print(map[string]any{"configurations": items})
		},
	}
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "use <name>",
		Short:         "Make a configuration the active one",
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.configs.SetActive(args[0])
		},
	}
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &clierr.UsageError{Msg: fmt.Sprintf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))}
		}
		return nil
	}
}
