// Package payload turns parsed command-line values into an HTTP request.
package payload

import (
	"net/http"
	"net/url"

	"github.com/tarrence/cray-cli/internal/schema"
)

// Field binds a command-line option to the parameter it fills.
type Field struct {
	Flag  string
	Param schema.Param
}

// Endpoint is everything the assembler needs to know about one command.
type Endpoint struct {
	Method      string
	Route       string
	Mime        string
	PayloadType string
	Args        []schema.Param
	Fields      []Field
	// FromFile names the option whose JSON file replaces the computed body.
	FromFile string
}

// Value is the raw text given for one option. Repeatable options carry one
// entry per occurrence. Explicit is false for values that came from a default.
type Value struct {
	Raw      []string
	Explicit bool
}

// Values holds option values keyed by flag name.
type Values map[string]Value

func (v Values) Has(flag string) bool {
	val, ok := v[flag]
	return ok && len(val.Raw) > 0
}

func (v Values) Explicit(flag string) bool {
	val, ok := v[flag]
	return ok && val.Explicit
}

// String returns the last value given for flag.
func (v Values) String(flag string) string {
	val := v[flag]
	if len(val.Raw) == 0 {
		return ""
	}
	return val.Raw[len(val.Raw)-1]
}

func (v Values) Strings(flag string) []string {
	return append([]string(nil), v[flag].Raw...)
}

// Set records an explicit value, replacing anything already there.
func (v Values) Set(flag string, raw ...string) {
	v[flag] = Value{Raw: raw, Explicit: true}
}

func (v Values) Delete(flag string) {
	delete(v, flag)
}

// Clone returns a copy safe to modify.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = Value{Raw: append([]string(nil), val.Raw...), Explicit: val.Explicit}
	}
	return out
}

// Request is an assembled call, relative to the module's server URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// ContentType is the media type of whichever body is set.
	ContentType string
	// Body is a JSON-encodable value; nil sends no JSON body.
	Body      any
	Form      url.Values
	Multipart *Multipart
	// Upload is a file sent as the raw request body.
	Upload string
}

// HasBody reports whether any kind of body will be sent.
func (r *Request) HasBody() bool {
	return r.Body != nil || r.Form != nil || r.Multipart != nil || r.Upload != ""
}

// Multipart is a form whose file parts are streamed from disk at send time.
type Multipart struct {
	Fields []FormField
	Files  []FilePart
}

type FormField struct {
	Name  string
	Value string
}

type FilePart struct {
	Name string
	Path string
}
