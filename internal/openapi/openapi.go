package openapi

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type SpecDoc struct {
	// Name is the module the document belongs to.
	Name string
	// Filename is the document filename (basename).
	Filename string
	Spec     *Spec
	// Raw keeps the undecoded bytes for validators that need the original document.
	Raw []byte
}

// Spec is a minimal OpenAPI 3 model sufficient for generating CLI commands.
// Unknown fields are ignored. Schema properties keep their declaration order.
type Spec struct {
	OpenAPI string   `yaml:"openapi"`
	Info    Info     `yaml:"info"`
	Servers []Server `yaml:"servers"`

	Tags []Tag `yaml:"tags,omitempty"`

	Paths      map[string]PathItem `yaml:"paths"`
	Components Components          `yaml:"components,omitempty"`

	// Vocabulary overrides the verb to command-word table for this document.
	Vocabulary map[string]any `yaml:"x-cli-vocabulary,omitempty"`
}

type Info struct {
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
}

type Tag struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type Server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
}

type Components struct {
	Schemas       map[string]*Schema     `yaml:"schemas,omitempty"`
	Parameters    map[string]Parameter   `yaml:"parameters,omitempty"`
	RequestBodies map[string]RequestBody `yaml:"requestBodies,omitempty"`
}

type PathItem struct {
	Parameters []Parameter `yaml:"parameters,omitempty"`

	Get     *Operation `yaml:"get,omitempty"`
	Post    *Operation `yaml:"post,omitempty"`
	Put     *Operation `yaml:"put,omitempty"`
	Delete  *Operation `yaml:"delete,omitempty"`
	Patch   *Operation `yaml:"patch,omitempty"`
	Head    *Operation `yaml:"head,omitempty"`
	Options *Operation `yaml:"options,omitempty"`
}

type Operation struct {
	OperationID string   `yaml:"operationId,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Summary     string   `yaml:"summary,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Deprecated  bool     `yaml:"deprecated,omitempty"`

	Parameters  []Parameter  `yaml:"parameters,omitempty"`
	RequestBody *RequestBody `yaml:"requestBody,omitempty"`
	Servers     []Server     `yaml:"servers,omitempty"`
}

type Parameter struct {
	Ref         string `yaml:"$ref,omitempty"`
	Name        string `yaml:"name,omitempty"`
	In          string `yaml:"in,omitempty"` // path, query, header, cookie
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`

	Schema *Schema `yaml:"schema,omitempty"`
}

type RequestBody struct {
	Ref         string               `yaml:"$ref,omitempty"`
	Description string               `yaml:"description,omitempty"`
	Required    bool                 `yaml:"required,omitempty"`
	Content     map[string]MediaType `yaml:"content,omitempty"`
}

type MediaType struct {
	Schema *Schema `yaml:"schema,omitempty"`
}

type Schema struct {
	Ref         string     `yaml:"$ref,omitempty"`
	Type        SchemaType `yaml:"type,omitempty"`
	Format      string     `yaml:"format,omitempty"`
	Nullable    bool       `yaml:"nullable,omitempty"`
	ReadOnly    bool       `yaml:"readOnly,omitempty"`
	Enum        []any      `yaml:"enum,omitempty"`
	Default     any        `yaml:"default,omitempty"`
	Example     any        `yaml:"example,omitempty"`
	Help        string     `yaml:"help,omitempty"`
	Summary     string     `yaml:"summary,omitempty"`
	Description string     `yaml:"description,omitempty"`
	Items       *Schema    `yaml:"items,omitempty"`
	Properties  Properties `yaml:"properties,omitempty"`
	Required    []string   `yaml:"required,omitempty"`
	AllOf       []*Schema  `yaml:"allOf,omitempty"`
	AnyOf       []*Schema  `yaml:"anyOf,omitempty"`
	OneOf       []*Schema  `yaml:"oneOf,omitempty"`

	// Hostlist marks a string value that accepts hostlist expressions.
	Hostlist bool `yaml:"x-cli-hostlist,omitempty"`
}

// UnmarshalYAML keeps whatever decoded cleanly; a schema with mistyped fields
// degrades instead of failing the whole document.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	type plain Schema
	err := node.Decode((*plain)(s))
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// SchemaType accepts both the 3.0 scalar form and the 3.1 list form of "type".
type SchemaType string

func (t *SchemaType) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = SchemaType(node.Value)
	case yaml.SequenceNode:
		for _, n := range node.Content {
			if n.Kind == yaml.ScalarNode && n.Value != "null" {
				*t = SchemaType(n.Value)
				break
			}
		}
	}
	return nil
}

// Property is a single named schema in declaration order.
type Property struct {
	Name   string
	Schema *Schema
}

// Properties is an ordered object property list.
type Properties []Property

func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	out := make(Properties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		s := &Schema{}
		if err := node.Content[i+1].Decode(s); err != nil {
			s = &Schema{}
		}
		out = append(out, Property{Name: node.Content[i].Value, Schema: s})
	}
	*p = out
	return nil
}

// Get returns the schema of the named property.
func (p Properties) Get(name string) (*Schema, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Schema, true
		}
	}
	return nil, false
}

// Set replaces the named property in place or appends it.
func (p *Properties) Set(name string, s *Schema) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Schema = s
			return
		}
	}
	*p = append(*p, Property{Name: name, Schema: s})
}
