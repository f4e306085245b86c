package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/auth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "auth",
		Short:         "Inspect and remove cached tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the token used by the selected configuration",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			inv := app.runtime.Invocation
			path := app.tokens.Path(inv.Profile)
			var tok *auth.Token
			if inv.Token != "" {
				path = inv.Token
				tok, err = auth.ReadTokenFile(path)
			} else {
				tok, err = app.tokens.Load(inv.Profile)
			}
			if err != nil {
				return err
			}

			status := map[string]any{
				"configuration": inv.Profile,
				"token_file":    path,
				"authenticated": tok != nil,
			}
			if tok != nil {
				if tok.ClientID != "" {
					status["client_id"] = tok.ClientID
				}
				if exp, ok := tok.Expiry(); ok {
					status["expires_at"] = exp.UTC().Format(time.RFC3339)
					status["expired"] = tok.Expired(time.Now())
				}
			}
			return app.runtime.Printer.Print(status)
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Remove the cached token of the selected configuration",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.tokens.Delete(app.runtime.Invocation.Profile)
		},
	}
}
