package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// tomlListKey wraps top-level lists, which TOML cannot express.
const tomlListKey = "results"

type Options struct {
	Format string
	Quiet  bool
}

type Printer struct {
	out io.Writer
	err io.Writer

	format string
	quiet  bool
}

func NewPrinter(out io.Writer, err io.Writer, opts Options) *Printer {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = FormatJSON
	}
	return &Printer{out: out, err: err, format: format, quiet: opts.Quiet}
}

func (p *Printer) Out() io.Writer { return p.out }
func (p *Printer) Err() io.Writer { return p.err }
func (p *Printer) Format() string { return p.format }

// Print writes a command result. Responses arrive as json.RawMessage for
// JSON bodies, string for other text and nil for empty bodies; callbacks may
// return any JSON-marshalable value.
func (p *Printer) Print(v any) error {
	if p.quiet || v == nil {
		return nil
	}
	var raw []byte
	switch t := v.(type) {
	case string:
		return p.writeVerbatim([]byte(t))
	case []byte:
		return p.writeVerbatim(t)
	case json.RawMessage:
		raw = bytes.TrimSpace(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if !isContainer(raw) {
		return p.writeVerbatim(scalarText(raw))
	}

	switch p.format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return errors.Wrap(err, "format json")
		}
		return p.writeVerbatim(buf.Bytes())
	case FormatYAML:
		b, err := toYAML(raw)
		if err != nil {
			return err
		}
		return p.writeVerbatim(b)
	case FormatTOML:
		b, err := toTOML(raw)
		if err != nil {
			return err
		}
		return p.writeVerbatim(b)
	default:
		return errors.Errorf("unsupported output format %q", p.format)
	}
}

// Warnf writes a diagnostic line to stderr.
func (p *Printer) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.err, format+"\n", args...)
}

func (p *Printer) writeVerbatim(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := p.out.Write(b); err != nil {
		return err
	}
	if b[len(b)-1] != '\n' {
		_, err := p.out.Write([]byte("\n"))
		return err
	}
	return nil
}

func isContainer(raw []byte) bool {
	return raw[0] == '{' || raw[0] == '['
}

// scalarText renders a JSON scalar: strings unquoted, others as written.
func scalarText(raw []byte) []byte {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

// toYAML goes through a yaml.Node so object keys keep response order.
func toYAML(raw []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(err, "format yaml")
	}
	clearStyle(&node)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, errors.Wrap(err, "format yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clearStyle drops the flow style JSON input is parsed with, so output is
// block-style YAML.
func clearStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Style == yaml.DoubleQuotedStyle {
		n.Style = 0
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}

func toTOML(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "format toml")
	}
	v = tomlValue(v)
	if _, ok := v.([]any); ok {
		v = map[string]any{tomlListKey: v}
	}
	b, err := toml.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "format toml")
	}
	return b, nil
}

// tomlValue converts json.Number into int64 or float64 and drops nulls,
// which TOML has no representation for.
func tomlValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e == nil {
				continue
			}
			out[k] = tomlValue(e)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			out = append(out, tomlValue(e))
		}
		return out
	default:
		return v
	}
}
