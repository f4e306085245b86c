// Package schema flattens OpenAPI schemas into CLI parameter descriptors.
package schema

import (
	"strings"
)

// Origin is where a parameter travels in the HTTP request.
type Origin string

const (
	OriginPath   Origin = "path"
	OriginQuery  Origin = "query"
	OriginHeader Origin = "header"
	OriginBody   Origin = "body-params"
	OriginFile   Origin = "file"
)

// Type is the primitive class of a parameter value.
type Type string

const (
	TypeString   Type = "string"
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeBoolean  Type = "boolean"
	TypeChoice   Type = "choice"
	TypeFilepath Type = "filepath"
)

// Nesting describes how a body parameter is rebuilt into the payload.
type Nesting string

const (
	NestingNone   Nesting = "none"
	NestingObject Nesting = "nested_object"
	NestingArray  Nesting = "nested_array"
)

// Param is a single flattened parameter descriptor.
type Param struct {
	// Name is the dash-joined path from the schema root, case preserved.
	Name string `json:"name"`
	// PayloadName is the key used when the value is placed in the request.
	PayloadName string `json:"payload_name"`
	// Path holds the property keys from the schema root.
	Path []string `json:"path,omitempty"`

	Origin   Origin   `json:"origin"`
	Type     Type     `json:"type"`
	Enum     []string `json:"enum,omitempty"`
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
	ReadOnly bool     `json:"readOnly,omitempty"`

	Nesting       Nesting `json:"nesting"`
	ArrayItemType Type    `json:"array_item_type,omitempty"`
	// ArrayPath is the path of the enclosing array; ItemPath is the remainder
	// inside one array element. Both are set only for nested_array.
	ArrayPath []string `json:"array_path,omitempty"`
	ItemPath  []string `json:"item_path,omitempty"`
	// ItemList marks a primitive list living inside an array element.
	ItemList bool `json:"item_list,omitempty"`

	// Secret values are read without echo when prompted.
	Secret bool `json:"secret,omitempty"`
	// Hostlist values accept hostlist range expressions.
	Hostlist bool `json:"hostlist,omitempty"`
}

// IsPrimitiveArray reports whether the parameter is a comma separated list
// standing in for an array of primitives.
func (p Param) IsPrimitiveArray() bool {
	return p.Nesting == NestingArray && len(p.ItemPath) == 0
}

// IsObjectArrayField reports whether the parameter is one field of an array of objects.
func (p Param) IsObjectArrayField() bool {
	return p.Nesting == NestingArray && len(p.ItemPath) > 0
}

// ArrayKey identifies the array an object-array field belongs to.
func (p Param) ArrayKey() string {
	return strings.Join(p.ArrayPath, ".")
}

func joinName(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-")
}
