// Package shim lets hand-written code adjust generated commands: add options,
// validate or rebuild the payload, and rewrite the request before it is sent.
package shim

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/schema"
)

// Invocation is the per-run state resolved from global options before any
// command runs. It is passed by value and never modified afterwards.
type Invocation struct {
	Profile string
	// Token is an explicit token file path given with --token or CRAY_CREDENTIALS.
	Token     string
	Format    string
	Quiet     bool
	Verbosity int
	// NonInteractive suppresses every prompt.
	NonInteractive bool
}

// Call is one pending request as seen by a callback.
type Call struct {
	Invocation Invocation
	CommandKey string
	Endpoint   payload.Endpoint
	Args       []string
	Values     payload.Values
	// Body, when non-nil, is sent as the JSON body instead of the assembled one.
	Body any
}

// Next assembles and sends call, returning the decoded response.
type Next func(ctx context.Context, call Call) (any, error)

// Callback replaces the default behaviour of a command. It normally ends by
// calling next with a revised call.
type Callback func(ctx context.Context, call Call, next Next) (any, error)

// DataHandler rewrites an assembled request just before it is sent.
type DataHandler func(req *payload.Request) (*payload.Request, error)

// Option is an extra command-line option contributed by an override.
type Option struct {
	Name     string
	Short    string
	Help     string
	Type     schema.Type
	Enum     []string
	Required bool
	// Repeatable options may be given more than once; every value is kept.
	Repeatable bool
	// Nargs is the number of tokens one occurrence consumes (default 1).
	Nargs    int
	Hostlist bool
}

// Override is everything registered for one command.
type Override struct {
	Callback    Callback
	DataHandler DataHandler
	Options     []Option
	// Hide lists generated options to drop from help; they stay settable.
	Hide []string
}

// Registry maps "<module>.<command key>" to overrides.
type Registry struct {
	m map[string]Override
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]Override{}}
}

// Register adds an override. Registering the same key twice is an error.
func (r *Registry) Register(key string, o Override) error {
	if _, ok := r.m[key]; ok {
		return errors.Errorf("override for %s registered twice", key)
	}
	r.m[key] = o
	return nil
}

// MustRegister is Register for static registration lists.
func (r *Registry) MustRegister(key string, o Override) {
	if err := r.Register(key, o); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(key string) (Override, bool) {
	if r == nil {
		return Override{}, false
	}
	o, ok := r.m[key]
	return o, ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
