package openapi

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"
)

// Validate runs the full OpenAPI 3 structural validation over a raw document.
// It is stricter than Parse and is meant for maintainers checking documents
// before they are shipped.
func Validate(ctx context.Context, raw []byte) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return errors.Wrap(err, "load openapi document")
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return errors.Wrap(err, "validate openapi document")
	}
	return nil
}
