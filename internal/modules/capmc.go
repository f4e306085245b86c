package modules

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/hostlist"
	"github.com/tarrence/cray-cli/internal/schema"
	"github.com/tarrence/cray-cli/internal/shim"
)

const (
	capmcSetPowerCap = "capmc.v1.set_power_cap.create"

	flagNids    = "nids"
	flagControl = "control"
)

func registerCAPMC(r *shim.Registry) {
	r.MustRegister(capmcSetPowerCap, shim.Override{
		Callback: capmcSetPowerCapCallback,
		Options: []shim.Option{
			{
				Name:     flagNids,
				Help:     "Node ids to cap, e.g. 1,3,5 or [1-8]",
				Type:     schema.TypeString,
				Required: true,
				Hostlist: true,
			},
			{
				Name:       flagControl,
				Help:       "A control name and value in watts, e.g. --control node 400; repeat for more controls",
				Type:       schema.TypeString,
				Required:   true,
				Repeatable: true,
				Nargs:      2,
			},
		},
		Hide: []string{"nids-nid"},
	})
}

type powerControl struct {
	Name string `json:"name"`
	Val  int64  `json:"val"`
}

type nidControls struct {
	Nid      int64          `json:"nid"`
	Controls []powerControl `json:"controls"`
}

// capmcSetPowerCapCallback applies the same set of controls to every node.
func capmcSetPowerCapCallback(ctx context.Context, call shim.Call, next shim.Next) (any, error) {
	ids, err := hostlist.Expand(call.Values.String(flagNids))
	if err != nil {
		return nil, clierr.Usage(flagNids, "%v", err)
	}
	nids := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := cast.ToInt64E(strings.TrimSpace(id))
		if err != nil {
			return nil, clierr.Usage(flagNids, "%q is not a node id", id)
		}
		nids = append(nids, n)
	}

	pairs := lo.Chunk(call.Values.Strings(flagControl), 2)
	controls := make([]powerControl, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, clierr.Usage(flagControl, "expected a name and a value")
		}
		val, err := cast.ToInt64E(pair[1])
		if err != nil {
			return nil, clierr.Usage(flagControl, "%q is not a valid integer", pair[1])
		}
		controls = append(controls, powerControl{Name: pair[0], Val: val})
	}

	call.Body = map[string]any{
		flagNids: lo.Map(nids, func(n int64, _ int) nidControls {
			return nidControls{Nid: n, Controls: controls}
		}),
	}
	return next(ctx, call)
}
