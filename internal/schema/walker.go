package schema

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/tarrence/cray-cli/internal/openapi"
)

// Walker flattens schemas of one document. It never fails: shapes it does not
// understand degrade to a single string descriptor.
type Walker struct {
	spec *openapi.Spec
}

func NewWalker(spec *openapi.Spec) *Walker {
	if spec == nil {
		spec = &openapi.Spec{}
	}
	return &Walker{spec: spec}
}

type frame struct {
	prefix   []string
	required bool

	// inArray is set while walking the element schema of an array.
	inArray   bool
	arrayPath []string

	// refs on the current walk path, for cycle protection.
	refs []string
}

func (f frame) child(name string, required bool) frame {
	next := f
	next.prefix = append(append([]string(nil), f.prefix...), name)
	next.required = required
	return next
}

// Walk flattens a request body schema. The root is treated as required so that
// top-level properties take their required flag from the root's list.
func (w *Walker) Walk(s *openapi.Schema) []Param {
	params := w.walk(s, frame{required: true})
	return lo.Filter(params, func(p Param, _ int) bool { return !p.ReadOnly })
}

// RootKind reports the payload kind of a body schema: object, array or string.
func (w *Walker) RootKind(s *openapi.Schema) string {
	s = w.spec.DerefSchema(s)
	switch {
	case s == nil:
		return "string"
	case s.IsComposite(), s.IsObject():
		return "object"
	case s.IsArray():
		return "array"
	default:
		return "string"
	}
}

func (w *Walker) walk(s *openapi.Schema, f frame) []Param {
	if s == nil {
		return []Param{w.leaf(&openapi.Schema{}, f)}
	}
	if s.Ref != "" {
		if lo.Contains(f.refs, s.Ref) {
			return []Param{w.leaf(&openapi.Schema{Description: s.Description}, f)}
		}
		f.refs = append(append([]string(nil), f.refs...), s.Ref)
		s = w.spec.DerefSchema(s)
	}

	switch {
	case s.IsComposite():
		return w.walkObject(w.spec.MergeComposite(s), f)
	case s.IsObject():
		return w.walkObject(s, f)
	case s.IsArray():
		return w.walkArray(s, f)
	default:
		return []Param{w.leaf(s, f)}
	}
}

func (w *Walker) walkObject(s *openapi.Schema, f frame) []Param {
	if len(s.Properties) == 0 {
		// Free-form object; nothing to flatten into flags.
		return nil
	}
	required := mapset.NewSet(s.Required...)

	var out []Param
	for _, prop := range s.Properties {
		child := f.child(prop.Name, f.required && required.Contains(prop.Name))
		params := w.walk(prop.Schema, child)
		for i := range params {
			if params[i].Nesting != NestingArray && len(params[i].Path) > 1 {
				params[i].Nesting = NestingObject
			}
		}
		out = append(out, params...)
	}
	return out
}

func (w *Walker) walkArray(s *openapi.Schema, f frame) []Param {
	items := w.spec.DerefSchema(s.Items)
	if items == nil {
		items = &openapi.Schema{Type: "string"}
	}
	if items.IsComposite() {
		items = w.spec.MergeComposite(items)
	}

	if !items.IsObject() && !items.IsArray() {
		p := w.leaf(items, f)
		p.ArrayItemType = p.Type
		if p.Type == TypeChoice || p.Type == TypeFilepath {
			p.ArrayItemType = TypeString
		}
		p.Type = TypeString
		p.Nesting = NestingArray
		p.Hostlist = true
		if f.inArray {
			p.ItemList = true
			p.ArrayPath = f.arrayPath
			p.ItemPath = p.Path[len(f.arrayPath):]
		} else {
			p.ArrayPath = p.Path
		}
		if s.Help != "" || s.Description != "" {
			p.Help = helpText(s)
		}
		p.Help = strings.TrimSpace(p.Help + " (comma separated list)")
		return []Param{p}
	}

	if f.inArray || items.IsArray() {
		// Arrays of objects inside array elements, and arrays of arrays, are
		// left to hand-written overrides.
		return nil
	}

	itemFrame := f
	itemFrame.inArray = true
	itemFrame.arrayPath = append([]string(nil), f.prefix...)
	params := w.walk(items, itemFrame)
	for i := range params {
		p := &params[i]
		p.Nesting = NestingArray
		p.ArrayPath = itemFrame.arrayPath
		p.ItemPath = p.Path[len(itemFrame.arrayPath):]
		if !p.ItemList {
			p.ArrayItemType = p.Type
			if p.Type == TypeChoice || p.Type == TypeFilepath {
				p.ArrayItemType = TypeString
			}
		}
	}
	return params
}

func (w *Walker) leaf(s *openapi.Schema, f frame) Param {
	path := append([]string(nil), f.prefix...)
	name := joinName(path)
	p := Param{
		Name:     name,
		Path:     path,
		Origin:   OriginBody,
		Required: f.required,
		Default:  s.Default,
		Help:     helpText(s),
		ReadOnly: s.ReadOnly,
		Nesting:  NestingNone,
		Hostlist: s.Hostlist,
	}

	switch {
	case len(s.Enum) > 0:
		p.Type = TypeChoice
		p.Enum = enumStrings(s.Enum)
	case s.Format == "binary":
		p.Type = TypeFilepath
		p.Origin = OriginFile
		p.Required = true
		if p.Name == "" {
			p.Name = "file"
			p.Path = []string{"file"}
		}
	case strings.Contains(strings.ToLower(name), "password"):
		p.Type = TypeString
		p.Secret = true
	default:
		p.Type = primitive(string(s.Type))
	}
	if p.Name == "" {
		// A bare primitive body has no property name to borrow.
		p.Name = "payload"
	}
	p.PayloadName = p.Name
	return p
}

// FromParameter builds the descriptor for a path, query or header parameter.
func (w *Walker) FromParameter(param openapi.Parameter, origin Origin) Param {
	s := w.spec.DerefSchema(param.Schema)
	if s == nil {
		s = &openapi.Schema{Type: "string"}
	}
	p := Param{
		Name:        param.Name,
		PayloadName: param.Name,
		Origin:      origin,
		Required:    param.Required || origin == OriginPath,
		Default:     s.Default,
		Help:        param.Description,
		Nesting:     NestingNone,
		Hostlist:    s.Hostlist,
	}
	if p.Help == "" {
		p.Help = helpText(s)
	}
	switch {
	case len(s.Enum) > 0:
		p.Type = TypeChoice
		p.Enum = enumStrings(s.Enum)
	case s.IsArray():
		items := w.spec.DerefSchema(s.Items)
		p.Type = TypeString
		p.ArrayItemType = TypeString
		if items != nil {
			p.ArrayItemType = primitive(string(items.Type))
		}
		p.Nesting = NestingArray
		p.Hostlist = true
	case strings.Contains(strings.ToLower(param.Name), "password"):
		p.Type = TypeString
		p.Secret = true
	default:
		p.Type = primitive(string(s.Type))
	}
	return p
}

func primitive(t string) Type {
	switch strings.ToLower(t) {
	case "integer":
		return TypeInteger
	case "number":
		return TypeFloat
	case "boolean":
		return TypeBoolean
	default:
		return TypeString
	}
}

func helpText(s *openapi.Schema) string {
	for _, h := range []string{s.Help, s.Description, s.Summary} {
		if h = strings.TrimSpace(h); h != "" {
			return h
		}
	}
	if s.Example != nil {
		return fmt.Sprint(s.Example)
	}
	return ""
}

func enumStrings(values []any) []string {
	return lo.FilterMap(values, func(v any, _ int) (string, bool) {
		if v == nil {
			return "", false
		}
		return fmt.Sprint(v), true
	})
}
