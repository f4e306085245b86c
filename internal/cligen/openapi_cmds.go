package cligen

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/shim"
)

// BuildCmd builds the command tree of a normalized table and renders it.
func BuildCmd(table *normalize.RouteTable, opts BuildOptions) (*cobra.Command, error) {
	tree, err := Build(table, opts)
	if err != nil {
		return nil, err
	}
	return Render(tree), nil
}

// Render converts a command tree into cobra commands.
func Render(g *Group) *cobra.Command {
	cmd := &cobra.Command{
		Use:           g.Name,
		Short:         g.Help,
		Hidden:        g.Hidden,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &clierr.UsageError{Msg: fmt.Sprintf("no such command %q under %q", args[0], cmd.CommandPath())}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	if g.Deprecated {
		cmd.Deprecated = "use '" + g.AliasOf + "' instead"
	}
	for _, child := range g.Children {
		switch n := child.(type) {
		case *Group:
			cmd.AddCommand(Render(n))
		case *Leaf:
			cmd.AddCommand(renderLeaf(n))
		}
	}
	return cmd
}

func renderLeaf(leaf *Leaf) *cobra.Command {
	use := leaf.Name
	for _, a := range leaf.Args {
		use += " <" + strings.ToUpper(a.Name) + ">"
	}

	cmd := &cobra.Command{
		Use:           use,
		Short:         leaf.Help,
		Long:          strings.TrimSpace(leaf.Description),
		Aliases:       leaf.Aliases,
		Hidden:        leaf.Hidden,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != len(leaf.Args) {
				names := make([]string, 0, len(leaf.Args))
				for _, a := range leaf.Args {
					names = append(names, strings.ToUpper(a.Name))
				}
				return &clierr.UsageError{Msg: fmt.Sprintf("%s expects %d argument(s) %v, got %d",
					cmd.CommandPath(), len(leaf.Args), names, len(args))}
			}
			return nil
		},
	}
	if leaf.Deprecated {
		cmd.Deprecated = "this operation is deprecated by the service"
	}

	bound := bindOptions(cmd, leaf)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		rt, err := RuntimeFrom(cmd)
		if err != nil {
			return err
		}
		return runLeaf(cmd, rt, leaf, bound, args)
	}
	return cmd
}

func runLeaf(cmd *cobra.Command, rt *Runtime, leaf *Leaf, bound []*boundOption, args []string) error {
	vals := collect(bound)
	fromFile := leaf.FromFile != "" && vals.Has(leaf.FromFile)

	for _, b := range bound {
		opt := b.opt
		// A document default satisfies a required option.
		if !opt.Required || b.changed(cmd) || vals.Has(opt.Name) || (fromFile && opt.IsBody()) {
			continue
		}
		if opt.Secret && !rt.Invocation.NonInteractive {
			v, err := promptSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), opt.Name)
			if err != nil {
				return clierr.MissingParameter(opt.Name)
			}
			vals.Set(opt.Name, v)
			continue
		}
		return clierr.MissingParameter(opt.Name)
	}

	if leaf.Danger {
		yes, _ := cmd.Flags().GetBool(YesOption)
		if !yes && !rt.Invocation.NonInteractive {
			ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), leaf.ConfirmationPrompt)
			if err != nil {
				return err
			}
			if !ok {
				return clierr.ErrAbort
			}
		}
	}

	base, err := baseURL(leaf.ServerURL, rt.Hostname)
	if err != nil {
		return err
	}

	next := func(ctx context.Context, call shim.Call) (any, error) {
		req, err := payload.Assemble(call.Endpoint, call.Args, call.Values)
		if err != nil {
			return nil, err
		}
		if call.Body != nil {
			req.Body = call.Body
			req.ContentType = normalize.MimeJSON
			req.Form, req.Multipart, req.Upload = nil, nil, ""
		}
		if dh := leaf.Override.DataHandler; dh != nil {
			if req, err = dh(req); err != nil {
				return nil, err
			}
		}
		rt.Log.Debug().Str("command", leaf.CommandKey).Str("method", req.Method).Str("path", req.Path).Msg("dispatch")
		return rt.Client.Do(ctx, base, req)
	}

	call := shim.Call{
		Invocation: rt.Invocation,
		CommandKey: leaf.CommandKey,
		Endpoint:   leaf.Endpoint(),
		Args:       args,
		Values:     vals,
	}

	var result any
	if cb := leaf.Override.Callback; cb != nil {
		result, err = cb(cmd.Context(), call, next)
	} else {
		result, err = next(cmd.Context(), call)
	}
	if err != nil {
		return err
	}
	return rt.Printer.Print(result)
}
