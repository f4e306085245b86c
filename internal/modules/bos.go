package modules

import (
	"context"
	"strings"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/hostlist"
	"github.com/tarrence/cray-cli/internal/shim"
)

const (
	bosComponentsUpdate = "bos.v2.components.update"

	flagFilterIDs     = "filters-ids"
	flagFilterSession = "filters-session"
)

func registerBOS(r *shim.Registry) {
	r.MustRegister(bosComponentsUpdate, shim.Override{Callback: bosFilteredUpdate})
}

// bosFilteredUpdate requires exactly one component filter. Ids may be given
// as a hostlist expression; the service wants a plain comma separated list.
func bosFilteredUpdate(ctx context.Context, call shim.Call, next shim.Next) (any, error) {
	ids, session := call.Values.Explicit(flagFilterIDs), call.Values.Explicit(flagFilterSession)
	if ids == session {
		return nil, clierr.Usage("", "exactly one of --%s or --%s is required", flagFilterIDs, flagFilterSession)
	}
	if ids {
		expanded, err := hostlist.Expand(call.Values.String(flagFilterIDs))
		if err != nil {
			return nil, clierr.Usage(flagFilterIDs, "%v", err)
		}
		call.Values = call.Values.Clone()
		call.Values.Set(flagFilterIDs, strings.Join(expanded, ","))
	}
	return next(ctx, call)
}
