package modules

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/tarrence/cray-cli/internal/cligen"
	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/hostlist"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/shim"
)

const (
	cfsComponentsBatch   = "cfs.v3.components.create"
	cfsConfigurationsPut = "cfs.v3.configurations.replace"
)

func registerCFS(r *shim.Registry) {
	r.MustRegister(cfsComponentsBatch, shim.Override{DataHandler: cfsBatchAsPatch})
	r.MustRegister(cfsConfigurationsPut, shim.Override{Callback: cfsMergeDescription})
}

// cfsBatchAsPatch sends the batch update as the PATCH the service expects and
// expands a hostlist expression in the ids filter.
func cfsBatchAsPatch(req *payload.Request) (*payload.Request, error) {
	req.Method = http.MethodPatch
	body, _ := req.Body.(map[string]any)
	filters, _ := body["filters"].(map[string]any)
	ids, _ := filters["ids"].(string)
	if ids != "" && hostlist.IsExpression(ids) {
		expanded, err := hostlist.Expand(ids)
		if err != nil {
			return nil, clierr.Usage("filters-ids", "%v", err)
		}
		filters["ids"] = strings.Join(expanded, ",")
	}
	return req, nil
}

// cfsMergeDescription lets --description override the description in a
// configuration read with --file.
func cfsMergeDescription(ctx context.Context, call shim.Call, next shim.Next) (any, error) {
	if !call.Values.Has(cligen.FromFileOption) || !call.Values.Explicit("description") {
		return next(ctx, call)
	}
	doc, err := payload.ReadJSONFile(call.Values.String(cligen.FromFileOption))
	if err != nil {
		return nil, err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, errors.New("configuration file must contain a JSON object")
	}
	m["description"] = call.Values.String("description")
	call.Body = m
	return next(ctx, call)
}
