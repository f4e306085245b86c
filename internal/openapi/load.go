package openapi

import (
	"io/fs"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Parse decodes an OpenAPI 3 document. JSON documents go through the same YAML
// decoder so that schema properties keep their declaration order.
func Parse(b []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, errors.Wrap(err, "parse openapi document")
	}
	if spec.OpenAPI == "" {
		return nil, errors.New("parse openapi document: missing \"openapi\" version field (only OpenAPI 3 is supported)")
	}
	if spec.OpenAPI[0] != '3' {
		return nil, errors.Errorf("parse openapi document: unsupported version %q (only OpenAPI 3 is supported)", spec.OpenAPI)
	}
	return &spec, nil
}

// LoadFile reads and parses a single document out of fsys.
func LoadFile(fsys fs.FS, name, filename string) (*SpecDoc, error) {
	b, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read spec %q", filename)
	}
	spec, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "spec %q", filename)
	}
	return &SpecDoc{
		Name:     name,
		Filename: path.Base(filename),
		Spec:     spec,
		Raw:      b,
	}, nil
}
