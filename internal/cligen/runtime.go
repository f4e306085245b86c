package cligen

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/crayhttp"
	"github.com/tarrence/cray-cli/internal/output"
	"github.com/tarrence/cray-cli/internal/shim"
)

type Runtime struct {
	Invocation shim.Invocation
	// Hostname, when set, replaces the scheme and host of every module's server URL.
	Hostname string

	Client  *crayhttp.Client
	Printer *output.Printer
	Log     zerolog.Logger
}

type runtimeKey struct{}

func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

func RuntimeFrom(cmd *cobra.Command) (*Runtime, error) {
	v := cmd.Context().Value(runtimeKey{})
	if v == nil {
		return nil, errors.New("internal error: runtime missing from context")
	}
	rt, ok := v.(*Runtime)
	if !ok || rt == nil {
		return nil, errors.New("internal error: runtime has wrong type")
	}
	if rt.Client == nil {
		return nil, errors.New("internal error: HTTP client missing from runtime")
	}
	if rt.Printer == nil {
		return nil, errors.New("internal error: printer missing from runtime")
	}
	return rt, nil
}
