package openapi

import (
	"strings"
)

// MethodOperation pairs an upper-case HTTP method with its operation.
type MethodOperation struct {
	Method    string
	Operation *Operation
}

// Operations returns the item's operations in a fixed method order.
func (pi *PathItem) Operations() []MethodOperation {
	var out []MethodOperation
	add := func(method string, op *Operation) {
		if op != nil {
			out = append(out, MethodOperation{Method: method, Operation: op})
		}
	}
	add("GET", pi.Get)
	add("POST", pi.Post)
	add("PUT", pi.Put)
	add("PATCH", pi.Patch)
	add("DELETE", pi.Delete)
	add("HEAD", pi.Head)
	add("OPTIONS", pi.Options)
	return out
}

// Has reports whether the item defines the given method.
func (pi *PathItem) Has(method string) bool {
	for _, mo := range pi.Operations() {
		if mo.Method == strings.ToUpper(method) {
			return true
		}
	}
	return false
}

func refName(ref, prefix string) (string, bool) {
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, prefix), true
}

func (s *Spec) ResolveSchemaRef(ref string) (*Schema, bool) {
	name, ok := refName(ref, "#/components/schemas/")
	if !ok || s.Components.Schemas == nil {
		return nil, false
	}
	schema, ok := s.Components.Schemas[name]
	if !ok || schema == nil {
		return nil, false
	}
	cp := *schema // copy so callers can mutate safely
	return &cp, true
}

// ResolveParameter follows a #/components/parameters reference.
func (s *Spec) ResolveParameter(p Parameter) (Parameter, bool) {
	if p.Ref == "" {
		return p, true
	}
	name, ok := refName(p.Ref, "#/components/parameters/")
	if !ok {
		return p, false
	}
	target, ok := s.Components.Parameters[name]
	if !ok {
		return p, false
	}
	return target, true
}

// ResolveRequestBody follows a #/components/requestBodies reference.
func (s *Spec) ResolveRequestBody(rb *RequestBody) (*RequestBody, bool) {
	if rb == nil {
		return nil, false
	}
	if rb.Ref == "" {
		return rb, true
	}
	name, ok := refName(rb.Ref, "#/components/requestBodies/")
	if !ok {
		return nil, false
	}
	target, ok := s.Components.RequestBodies[name]
	if !ok {
		return nil, false
	}
	return &target, true
}

func (s *Spec) DerefSchema(schema *Schema) *Schema {
	return s.derefSchema(schema, map[string]bool{})
}

func (s *Spec) derefSchema(schema *Schema, seen map[string]bool) *Schema {
	if schema == nil {
		return nil
	}
	if schema.Ref == "" {
		return schema
	}
	if seen[schema.Ref] {
		return schema
	}
	seen[schema.Ref] = true
	target, ok := s.ResolveSchemaRef(schema.Ref)
	if !ok {
		return schema
	}
	return s.derefSchema(target, seen)
}

// IsComposite reports whether the schema is an allOf/oneOf/anyOf combination.
func (schema *Schema) IsComposite() bool {
	return schema != nil && (len(schema.AllOf) > 0 || len(schema.OneOf) > 0 || len(schema.AnyOf) > 0)
}

// IsObject reports whether the schema describes an object.
func (schema *Schema) IsObject() bool {
	return schema != nil && (schema.Type == "object" || len(schema.Properties) > 0)
}

// IsArray reports whether the schema describes an array.
func (schema *Schema) IsArray() bool {
	return schema != nil && (schema.Type == "array" || schema.Items != nil)
}

// MergeComposite folds allOf/oneOf/anyOf branches into a single object schema.
// Properties are unioned in declaration order, later branches replacing earlier
// ones on a name conflict; required lists are concatenated.
func (s *Spec) MergeComposite(schema *Schema) *Schema {
	return s.mergeComposite(schema, map[string]bool{})
}

func (s *Spec) mergeComposite(schema *Schema, seen map[string]bool) *Schema {
	if schema == nil {
		return nil
	}
	if schema.Ref != "" {
		if seen[schema.Ref] {
			return &Schema{Type: "object"}
		}
		seen[schema.Ref] = true
		defer delete(seen, schema.Ref)
	}
	schema = s.derefSchema(schema, map[string]bool{})
	if !schema.IsComposite() {
		return schema
	}

	merged := &Schema{
		Type:        "object",
		Help:        schema.Help,
		Description: schema.Description,
		ReadOnly:    schema.ReadOnly,
	}
	for _, prop := range schema.Properties {
		merged.Properties.Set(prop.Name, prop.Schema)
	}
	merged.Required = append(merged.Required, schema.Required...)

	branches := make([]*Schema, 0, len(schema.AllOf)+len(schema.OneOf)+len(schema.AnyOf))
	branches = append(branches, schema.AllOf...)
	branches = append(branches, schema.OneOf...)
	branches = append(branches, schema.AnyOf...)
	for _, sub := range branches {
		subM := s.mergeComposite(sub, seen)
		if subM == nil {
			continue
		}
		if !subM.IsObject() {
			// A lone non-object branch (e.g. allOf: [$ref: SomeString]) wins as-is.
			if len(branches) == 1 && len(merged.Properties) == 0 {
				return subM
			}
			continue
		}
		for _, prop := range subM.Properties {
			merged.Properties.Set(prop.Name, prop.Schema)
		}
		merged.Required = append(merged.Required, subM.Required...)
		if merged.Description == "" {
			merged.Description = subM.Description
		}
	}
	return merged
}
