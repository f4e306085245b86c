// Package normalize turns an OpenAPI document into a flat route table keyed by
// command path. The table is what the command tree is built from.
package normalize

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/openapi"
	"github.com/tarrence/cray-cli/internal/schema"
)

// RouteTable is a normalized document.
type RouteTable struct {
	Name      string  `json:"name"`
	Title     string  `json:"title,omitempty"`
	ServerURL string  `json:"server_url"`
	Converted bool    `json:"x-cli-converted"`
	Routes    []Route `json:"routes"`
}

// Route is one (verb, route) pair of the document.
type Route struct {
	CommandKey  string         `json:"command_key"`
	Method      string         `json:"method"`
	Route       string         `json:"route"`
	Path        []schema.Param `json:"path,omitempty"`
	Query       []schema.Param `json:"query,omitempty"`
	Header      []schema.Param `json:"header,omitempty"`
	Params      []schema.Param `json:"params,omitempty"`
	Mime        string         `json:"mime,omitempty"`
	PayloadType string         `json:"payload_type,omitempty"`
	Tags        TagSet         `json:"tags,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
	Deprecated  bool           `json:"deprecated,omitempty"`
}

// Segments splits the command key into group names and the final command word.
func (r Route) Segments() ([]string, string) {
	parts := strings.Split(r.CommandKey, ".")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// HasBody reports whether the route sends a request body.
func (r Route) HasBody() bool {
	return r.Mime != ""
}

type Options struct {
	// ServerPrefixes are URL fragments identifying preferred servers.
	ServerPrefixes []string
}

// Mime types in order of preference.
const (
	MimeJSON      = "application/json"
	MimeForm      = "application/x-www-form-urlencoded"
	MimeMultipart = "multipart/form-data"
	MimeOctet     = "application/octet-stream"
	MimeAny       = "*/*"
)

var mimePreference = []string{MimeJSON, MimeForm, MimeMultipart, MimeOctet, MimeAny}

// Normalize converts spec into a route table named name.
func Normalize(name string, spec *openapi.Spec, opts Options) (*RouteTable, error) {
	if spec == nil {
		return nil, &clierr.SpecError{Module: name, Msg: "empty document"}
	}
	vocab, err := decodeVocabulary(spec.Vocabulary)
	if err != nil {
		return nil, &clierr.SpecError{Module: name, Msg: err.Error()}
	}

	n := &normalizer{
		module: name,
		spec:   spec,
		walker: schema.NewWalker(spec),
		vocab:  vocab,
	}

	routes := lo.Keys(spec.Paths)
	sort.Strings(routes)

	byKey := map[string]Route{}
	var out []Route
	for _, route := range routes {
		item := spec.Paths[route]
		for _, mo := range item.Operations() {
			r, ok, err := n.route(route, &item, mo)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if prev, dup := byKey[r.CommandKey]; dup {
				return nil, &clierr.SpecError{
					Module: name,
					Method: r.Method,
					Route:  r.Route,
					Msg:    "duplicate command key " + r.CommandKey + " (also " + prev.Method + " " + prev.Route + ")",
				}
			}
			byKey[r.CommandKey] = r
			out = append(out, r)
		}
	}

	assignAliases(out)

	return &RouteTable{
		Name:      name,
		Title:     spec.Info.Title,
		ServerURL: ChooseServer(spec.Servers, opts.ServerPrefixes),
		Converted: true,
		Routes:    out,
	}, nil
}

// Decode reads a route table previously written by Encode.
func Decode(b []byte) (*RouteTable, error) {
	var t RouteTable
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, errors.Wrap(err, "decode route table")
	}
	if !t.Converted {
		return nil, &clierr.SpecError{Module: t.Name, Msg: "document has not been converted"}
	}
	return &t, nil
}

// Encode writes the table as indented JSON.
func Encode(t *RouteTable) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

type normalizer struct {
	module string
	spec   *openapi.Spec
	walker *schema.Walker
	vocab  Vocabulary
}

func (n *normalizer) route(route string, item *openapi.PathItem, mo openapi.MethodOperation) (Route, bool, error) {
	op := mo.Operation
	tags := ParseTags(op.Tags)
	if tags.Ignored() {
		return Route{}, false, nil
	}

	word := n.vocab.Word(mo.Method, EndsInParam(route))
	switch {
	case mo.Method == "PUT" && item.Has("PATCH") && word == n.vocab.Patch:
		word = wordReplace
	case mo.Method == "DELETE" && !EndsInParam(route) && word == n.vocab.Delete && n.siblingHasItemDelete(route):
		word = wordDeleteAll
	}

	r := Route{
		CommandKey:  CommandKey(route, word),
		Method:      mo.Method,
		Route:       route,
		Tags:        tags,
		Summary:     strings.TrimSpace(op.Summary),
		Description: strings.TrimSpace(op.Description),
		Deprecated:  op.Deprecated,
	}

	if err := n.parameters(&r, item.Parameters, op.Parameters); err != nil {
		return Route{}, false, err
	}
	if err := n.body(&r, op.RequestBody); err != nil {
		return Route{}, false, err
	}
	return r, true, nil
}

// siblingHasItemDelete reports whether a DELETE exists on route/{param}, which
// would claim the same command key as a DELETE on route itself.
func (n *normalizer) siblingHasItemDelete(route string) bool {
	base := CommandKey(route, "")
	for other, item := range n.spec.Paths {
		if other == route || !EndsInParam(other) || !item.Has("DELETE") {
			continue
		}
		if CommandKey(other, "") == base {
			return true
		}
	}
	return false
}

func (n *normalizer) parameters(r *Route, shared, own []openapi.Parameter) error {
	type key struct{ name, in string }
	merged := map[key]openapi.Parameter{}
	var order []key
	for _, p := range append(append([]openapi.Parameter(nil), shared...), own...) {
		resolved, ok := n.spec.ResolveParameter(p)
		if !ok {
			return &clierr.SpecError{Module: n.module, Method: r.Method, Route: r.Route, Msg: "unresolvable parameter " + p.Ref}
		}
		k := key{resolved.Name, strings.ToLower(resolved.In)}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = resolved
	}

	declared := map[string]openapi.Parameter{}
	for _, k := range order {
		p := merged[k]
		switch k.in {
		case "path":
			declared[p.Name] = p
		case "query":
			r.Query = append(r.Query, n.walker.FromParameter(p, schema.OriginQuery))
		case "header":
			r.Header = append(r.Header, n.walker.FromParameter(p, schema.OriginHeader))
		}
	}

	// Arguments follow the template, so every placeholder gets exactly one.
	for _, name := range Placeholders(r.Route) {
		p, ok := declared[name]
		if !ok {
			p = openapi.Parameter{Name: name, In: "path", Required: true}
		}
		r.Path = append(r.Path, n.walker.FromParameter(p, schema.OriginPath))
	}
	return nil
}

func (n *normalizer) body(r *Route, rb *openapi.RequestBody) error {
	if rb == nil {
		return nil
	}
	body, ok := n.spec.ResolveRequestBody(rb)
	if !ok {
		return &clierr.SpecError{Module: n.module, Method: r.Method, Route: r.Route, Msg: "unresolvable request body " + rb.Ref}
	}
	if len(body.Content) == 0 {
		return nil
	}
	mime, ok := ChooseMime(lo.Keys(body.Content))
	if !ok {
		if lo.EveryBy(lo.Keys(body.Content), isXML) {
			return nil
		}
		return &clierr.SpecError{Module: n.module, Method: r.Method, Route: r.Route, Msg: "no supported request body media type"}
	}
	var mt openapi.MediaType
	for ct, candidate := range body.Content {
		if canonicalMime(ct) == mime {
			mt = candidate
			break
		}
	}

	r.Mime = mime
	r.PayloadType = n.walker.RootKind(mt.Schema)
	if mime == MimeOctet {
		r.Params = n.walker.Walk(&openapi.Schema{Type: "string", Format: "binary", Description: body.Description})
		return nil
	}
	if mt.Schema == nil {
		return nil
	}
	r.Params = n.walker.Walk(mt.Schema)
	return nil
}

// ChooseMime picks the preferred request media type among offered ones.
func ChooseMime(offered []string) (string, bool) {
	have := mapset.NewSet[string]()
	for _, ct := range offered {
		have.Add(canonicalMime(ct))
	}
	for _, want := range mimePreference {
		if have.Contains(want) {
			return want, true
		}
	}
	return "", false
}

func canonicalMime(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))
	if strings.HasSuffix(ct, "+json") {
		return MimeJSON
	}
	return ct
}

func isXML(ct string) bool {
	ct = canonicalMime(ct)
	return strings.HasSuffix(ct, "/xml") || strings.HasSuffix(ct, "+xml")
}

// EndsInParam reports whether the last non-empty segment is a {placeholder}.
func EndsInParam(route string) bool {
	segs := lo.Compact(strings.Split(route, "/"))
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	return strings.HasPrefix(last, "{") && strings.HasSuffix(last, "}")
}

// CommandKey builds the dotted command path for a route. Placeholder segments
// are dropped and every literal segment gets a lower-case first letter.
func CommandKey(route, word string) string {
	var parts []string
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || strings.ContainsAny(seg, "{}") {
			continue
		}
		parts = append(parts, lowerFirst(seg))
	}
	if word != "" {
		parts = append(parts, word)
	}
	return strings.Join(parts, ".")
}

// Placeholders lists the {names} of a route template in order.
func Placeholders(route string) []string {
	var out []string
	for {
		open := strings.IndexByte(route, '{')
		if open < 0 {
			return out
		}
		end := strings.IndexByte(route[open:], '}')
		if end < 0 {
			return out
		}
		if name := route[open+1 : open+end]; name != "" {
			out = append(out, name)
		}
		route = route[open+end+1:]
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// assignAliases gives PUT and collection DELETE commands their alternate words,
// skipping any word already used by a sibling command.
func assignAliases(routes []Route) {
	taken := mapset.NewSet[string]()
	for _, r := range routes {
		taken.Add(r.CommandKey)
	}
	for i := range routes {
		r := &routes[i]
		groups, word := r.Segments()
		var candidates []string
		switch {
		case r.Method == "PUT" && word != wordReplace:
			candidates = []string{wordReplace}
		case r.Method == "DELETE" && !EndsInParam(r.Route):
			candidates = []string{wordClear}
			if word != wordDeleteAll {
				candidates = append(candidates, wordDeleteAll)
			}
		}
		for _, c := range candidates {
			k := strings.Join(append(append([]string(nil), groups...), c), ".")
			if taken.Contains(k) {
				continue
			}
			taken.Add(k)
			r.Aliases = append(r.Aliases, c)
		}
	}
}
