package payload

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/hostlist"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/schema"
)

// Assemble builds the request for one invocation. args are the positional
// arguments in route order.
func Assemble(ep Endpoint, args []string, vals Values) (*Request, error) {
	if len(args) != len(ep.Args) {
		return nil, clierr.Usage("", "expected %d argument(s), got %d", len(ep.Args), len(args))
	}
	path, err := substitute(ep.Route, ep.Args, args)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: strings.ToUpper(ep.Method),
		Path:   path,
		Query:  url.Values{},
		Header: http.Header{},
	}

	var body []Field
	for _, f := range ep.Fields {
		if !vals.Has(f.Flag) {
			continue
		}
		switch f.Param.Origin {
		case schema.OriginQuery:
			items, err := listOrScalar(f, vals)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				req.Query.Add(f.Param.PayloadName, it)
			}
		case schema.OriginHeader:
			items, err := listOrScalar(f, vals)
			if err != nil {
				return nil, err
			}
			req.Header.Set(f.Param.PayloadName, strings.Join(items, ","))
		case schema.OriginBody, schema.OriginFile:
			body = append(body, f)
		}
	}

	if ep.FromFile != "" && vals.Has(ep.FromFile) {
		doc, err := ReadJSONFile(vals.String(ep.FromFile))
		if err != nil {
			return nil, err
		}
		req.Body = doc
		req.ContentType = normalize.MimeJSON
		return req, nil
	}

	if ep.Mime == "" {
		return req, nil
	}
	if (req.Method == http.MethodGet || req.Method == http.MethodDelete) &&
		!lo.SomeBy(body, func(f Field) bool { return vals.Explicit(f.Flag) }) {
		return req, nil
	}

	req.ContentType = ep.Mime
	switch ep.Mime {
	case normalize.MimeForm:
		req.Form = url.Values{}
		for _, f := range body {
			req.Form.Set(f.Param.PayloadName, vals.String(f.Flag))
		}
	case normalize.MimeMultipart:
		mp := &Multipart{}
		for _, f := range body {
			if f.Param.Origin == schema.OriginFile {
				p := vals.String(f.Flag)
				if err := checkReadable(p); err != nil {
					return nil, err
				}
				mp.Files = append(mp.Files, FilePart{Name: f.Param.PayloadName, Path: p})
				continue
			}
			mp.Fields = append(mp.Fields, FormField{Name: f.Param.PayloadName, Value: vals.String(f.Flag)})
		}
		req.Multipart = mp
	case normalize.MimeOctet:
		for _, f := range body {
			if f.Param.Origin == schema.OriginFile {
				if err := checkReadable(vals.String(f.Flag)); err != nil {
					return nil, err
				}
				req.Upload = vals.String(f.Flag)
			}
		}
	default:
		req.ContentType = normalize.MimeJSON
		req.Body, err = buildJSON(ep.PayloadType, body, vals)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

func substitute(route string, params []schema.Param, args []string) (string, error) {
	out := route
	for i, p := range params {
		placeholder := "{" + p.Name + "}"
		if !strings.Contains(out, placeholder) {
			return "", errors.Errorf("route %s has no placeholder %s", route, placeholder)
		}
		out = strings.ReplaceAll(out, placeholder, url.PathEscape(args[i]))
	}
	return out, nil
}

func buildJSON(payloadType string, fields []Field, vals Values) (any, error) {
	root := map[string]any{}
	var rootValue any
	hasRootValue := false

	type arrayGroup struct {
		path   []string
		fields []Field
	}
	var groups []*arrayGroup
	groupFor := map[string]*arrayGroup{}

	for _, f := range fields {
		p := f.Param
		switch {
		case p.IsObjectArrayField():
			key := p.ArrayKey()
			g, ok := groupFor[key]
			if !ok {
				g = &arrayGroup{path: p.ArrayPath}
				groupFor[key] = g
				groups = append(groups, g)
			}
			g.fields = append(g.fields, f)

		case p.IsPrimitiveArray():
			items, err := expandList(f, vals.String(f.Flag))
			if err != nil {
				return nil, err
			}
			if len(p.ArrayPath) == 0 {
				rootValue, hasRootValue = items, true
				continue
			}
			insert(root, p.ArrayPath, items)

		default:
			v, err := coerce(f.Flag, vals.String(f.Flag), p.Type)
			if err != nil {
				return nil, err
			}
			if payloadType == "string" || len(p.Path) == 0 {
				rootValue, hasRootValue = v, true
				continue
			}
			insert(root, insertPath(p), v)
		}
	}

	for _, g := range groups {
		items, err := zip(g.fields, vals)
		if err != nil {
			return nil, err
		}
		if len(g.path) == 0 {
			rootValue, hasRootValue = items, true
			continue
		}
		insert(root, g.path, items)
	}

	if hasRootValue {
		return rootValue, nil
	}
	if payloadType == "array" {
		return []any{}, nil
	}
	return root, nil
}

// zip turns parallel per-field lists into a list of objects. Only fields given
// on the command line take part: a field left out entirely is absent from
// every object, while a field given a different number of times than the
// others is a usage error.
func zip(fields []Field, vals Values) ([]any, error) {
	columns := make([][]string, len(fields))
	longest := 0
	for i, f := range fields {
		columns[i] = vals.Strings(f.Flag)
		longest = max(longest, len(columns[i]))
	}
	for i, f := range fields {
		if len(columns[i]) != longest {
			return nil, clierr.Usage(f.Flag, "got %d value(s) but other fields of %s have %d; pass --%s once per item",
				len(columns[i]), f.Param.ArrayKey(), longest, f.Flag)
		}
	}

	out := make([]any, 0, longest)
	for row := 0; row < longest; row++ {
		item := map[string]any{}
		for i, f := range fields {
			raw := columns[i][row]
			var (
				v   any
				err error
			)
			if f.Param.ItemList {
				v, err = expandList(f, raw)
			} else {
				v, err = coerce(f.Flag, raw, f.Param.ArrayItemType)
			}
			if err != nil {
				return nil, err
			}
			insert(item, f.Param.ItemPath, v)
		}
		out = append(out, item)
	}
	return out, nil
}

func insertPath(p schema.Param) []string {
	if len(p.Path) <= 1 {
		return []string{p.PayloadName}
	}
	path := append([]string(nil), p.Path...)
	if p.PayloadName != p.Name {
		path[len(path)-1] = p.PayloadName
	}
	return path
}

// insert sets path in m, creating intermediate objects.
func insert(m map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

func listOrScalar(f Field, vals Values) ([]string, error) {
	if f.Param.Nesting != schema.NestingArray {
		return []string{vals.String(f.Flag)}, nil
	}
	items, err := expandList(f, vals.String(f.Flag))
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(v any, _ int) string { return cast.ToString(v) }), nil
}

// expandList parses a comma separated option value into typed items.
func expandList(f Field, raw string) ([]any, error) {
	var parts []string
	if f.Param.Hostlist {
		var err error
		parts, err = hostlist.Expand(raw)
		if err != nil {
			return nil, clierr.Usage(f.Flag, "%v", err)
		}
	} else {
		parts = lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string { return strings.TrimSpace(s) }))
	}
	itemType := f.Param.ArrayItemType
	if itemType == "" {
		itemType = schema.TypeString
	}
	out := make([]any, 0, len(parts))
	for _, s := range parts {
		v, err := coerce(f.Flag, s, itemType)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func coerce(flag, raw string, t schema.Type) (any, error) {
	switch t {
	case schema.TypeInteger:
		v, err := cast.ToInt64E(strings.TrimSpace(raw))
		if err != nil {
			return nil, clierr.Usage(flag, "%q is not a valid integer", raw)
		}
		return v, nil
	case schema.TypeFloat:
		v, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil {
			return nil, clierr.Usage(flag, "%q is not a valid float", raw)
		}
		return v, nil
	case schema.TypeBoolean:
		v, err := ParseBool(raw)
		if err != nil {
			return nil, clierr.Usage(flag, "%q is not a valid boolean", raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// ParseBool accepts the spellings operators commonly type for booleans.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, errors.Errorf("invalid boolean %q", raw)
}

// ReadJSONFile loads a whole request body from a JSON file.
func ReadJSONFile(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &clierr.IOError{Path: path, Err: err}
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &clierr.IOError{Path: path, Err: errors.Wrap(err, "not valid JSON")}
	}
	return doc, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &clierr.IOError{Path: path, Err: err}
	}
	return f.Close()
}
