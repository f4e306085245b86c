package normalize

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Vocabulary maps HTTP verbs to the command word a route ends in. GetAll and
// DeleteAll apply to routes that do not end in a path parameter.
type Vocabulary struct {
	Get       string `mapstructure:"get"`
	GetAll    string `mapstructure:"getall"`
	Post      string `mapstructure:"post"`
	Put       string `mapstructure:"put"`
	Patch     string `mapstructure:"patch"`
	Delete    string `mapstructure:"delete"`
	DeleteAll string `mapstructure:"deleteall"`
}

const (
	wordReplace   = "replace"
	wordDeleteAll = "deleteall"
	wordClear     = "clear"
)

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Get:       "describe",
		GetAll:    "list",
		Post:      "create",
		Put:       "update",
		Patch:     "update",
		Delete:    "delete",
		DeleteAll: "delete",
	}
}

// decodeVocabulary overlays a document's x-cli-vocabulary extension on the defaults.
func decodeVocabulary(raw map[string]any) (Vocabulary, error) {
	v := DefaultVocabulary()
	if len(raw) == 0 {
		return v, nil
	}
	lowered := make(map[string]any, len(raw))
	for k, val := range raw {
		lowered[strings.ToLower(k)] = val
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &v,
		ErrorUnused: true,
	})
	if err != nil {
		return v, err
	}
	if err := dec.Decode(lowered); err != nil {
		return v, errors.Wrap(err, "x-cli-vocabulary")
	}
	return v, nil
}

// Word picks the command word for a verb.
func (v Vocabulary) Word(method string, endsInParam bool) string {
	switch strings.ToUpper(method) {
	case "GET":
		if endsInParam {
			return v.Get
		}
		return v.GetAll
	case "POST":
		return v.Post
	case "PUT":
		return v.Put
	case "PATCH":
		return v.Patch
	case "DELETE":
		if endsInParam {
			return v.Delete
		}
		return v.DeleteAll
	default:
		return strings.ToLower(method)
	}
}
