package cligen

import (
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/schema"
)

// nargsSeparator joins the tokens of one multi-value occurrence after
// RewriteMultiValueFlags has gathered them.
const nargsSeparator = "\x1f"

const annotationNargs = "cray_nargs"

// optionValue is the pflag.Value behind every generated option. Values are
// kept as raw text and validated as they are set so that bad input is a usage
// error naming the flag.
type optionValue struct {
	opt     *Option
	raw     []string
	changed bool
}

var _ pflag.Value = (*optionValue)(nil)

func (v *optionValue) String() string {
	if len(v.raw) == 0 {
		if v.opt.Default != nil {
			return cast.ToString(v.opt.Default)
		}
		return ""
	}
	return strings.Join(v.raw, ",")
}

func (v *optionValue) Type() string {
	switch {
	case v.opt.Nargs > 1:
		return strings.TrimSpace(strings.Repeat(string(v.opt.Type)+" ", v.opt.Nargs))
	case v.opt.Type == schema.TypeChoice:
		return "[" + strings.Join(v.opt.Enum, "|") + "]"
	case v.opt.Type == schema.TypeFilepath:
		return "path"
	default:
		return string(v.opt.Type)
	}
}

func (v *optionValue) Set(s string) error {
	if err := validate(v.opt, s); err != nil {
		return err
	}
	if v.opt.Repeatable && v.changed {
		v.raw = append(v.raw, s)
	} else {
		v.raw = []string{s}
	}
	v.changed = true
	return nil
}

func validate(opt *Option, s string) error {
	if opt.Nargs > 1 {
		parts := strings.Split(s, nargsSeparator)
		if len(parts) != opt.Nargs {
			return clierr.Usage(opt.Name, "requires %d values", opt.Nargs)
		}
		return nil
	}
	switch opt.Type {
	case schema.TypeChoice:
		if !lo.Contains(opt.Enum, s) {
			return clierr.BadValueFromList(opt.Name, s, opt.Enum)
		}
	case schema.TypeFilepath:
		if _, err := os.Stat(s); err != nil {
			return clierr.Usage(opt.Name, "path %q does not exist", s)
		}
	case schema.TypeInteger:
		if _, err := cast.ToInt64E(strings.TrimSpace(s)); err != nil {
			return clierr.Usage(opt.Name, "%q is not a valid integer", s)
		}
	case schema.TypeFloat:
		if _, err := cast.ToFloat64E(strings.TrimSpace(s)); err != nil {
			return clierr.Usage(opt.Name, "%q is not a valid float", s)
		}
	case schema.TypeBoolean:
		if _, err := payload.ParseBool(s); err != nil {
			return clierr.Usage(opt.Name, "%q is not a valid boolean", s)
		}
	}
	return nil
}

// boundOption pairs an option with the value its flags write to.
type boundOption struct {
	opt   *Option
	value *optionValue
	sw    *bool
}

func (b *boundOption) changed(cmd *cobra.Command) bool {
	if b.sw != nil {
		return cmd.Flags().Changed(b.opt.Name)
	}
	return b.value.changed
}

// bindOptions registers the leaf's options on cmd. Aliases share the primary
// option's value and are hidden.
func bindOptions(cmd *cobra.Command, leaf *Leaf) []*boundOption {
	flags := cmd.Flags()
	flags.SortFlags = false

	var out []*boundOption
	for i := range leaf.Options {
		opt := &leaf.Options[i]
		b := &boundOption{opt: opt}

		usage := opt.Help
		if opt.Required {
			usage = strings.TrimSpace(usage + " (required)")
		}

		if opt.Switch {
			b.sw = flags.BoolP(opt.Name, opt.Short, false, usage)
			out = append(out, b)
			continue
		}

		b.value = &optionValue{opt: opt}
		flags.VarP(b.value, opt.Name, opt.Short, usage)
		if opt.Nargs > 1 {
			_ = flags.SetAnnotation(opt.Name, annotationNargs, []string{cast.ToString(opt.Nargs)})
		}
		if opt.Hidden {
			_ = flags.MarkHidden(opt.Name)
		}
		for _, a := range opt.Aliases {
			flags.Var(b.value, a, "alias for --"+opt.Name)
			_ = flags.MarkHidden(a)
			if opt.Nargs > 1 {
				_ = flags.SetAnnotation(a, annotationNargs, []string{cast.ToString(opt.Nargs)})
			}
		}
		out = append(out, b)
	}
	return out
}

// collect gathers explicit values and defaults into the assembler's value map.
func collect(bound []*boundOption) payload.Values {
	vals := payload.Values{}
	for _, b := range bound {
		if b.value == nil {
			continue
		}
		switch {
		case b.value.changed:
			raw := b.value.raw
			if b.opt.Nargs > 1 {
				raw = lo.FlatMap(raw, func(s string, _ int) []string { return strings.Split(s, nargsSeparator) })
			}
			vals[b.opt.Name] = payload.Value{Raw: append([]string(nil), raw...), Explicit: true}
		case b.opt.Default != nil && !b.opt.Repeatable:
			vals[b.opt.Name] = payload.Value{Raw: []string{defaultText(b.opt.Default)}}
		}
	}
	return vals
}

func defaultText(v any) string {
	if list, ok := v.([]any); ok {
		return strings.Join(lo.Map(list, func(x any, _ int) string { return cast.ToString(x) }), ",")
	}
	return cast.ToString(v)
}

// RewriteMultiValueFlags folds the tokens following a multi-value flag into a
// single argument so pflag sees one value per occurrence. cmd is the command
// the arguments are destined for.
func RewriteMultiValueFlags(cmd *cobra.Command, args []string) []string {
	nargsOf := func(token string) (string, int, bool) {
		if !strings.HasPrefix(token, "--") || len(token) < 3 {
			return "", 0, false
		}
		name, inline, hasInline := strings.Cut(token[2:], "=")
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return "", 0, false
		}
		n, ok := f.Annotations[annotationNargs]
		if !ok || len(n) == 0 {
			return "", 0, false
		}
		if hasInline {
			return inline, cast.ToInt(n[0]), true
		}
		return "", cast.ToInt(n[0]), true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if tok == "--" {
			return append(out, args[i:]...)
		}
		inline, n, ok := nargsOf(tok)
		if !ok {
			out = append(out, tok)
			continue
		}
		name, _, _ := strings.Cut(tok, "=")
		var values []string
		if inline != "" {
			values = append(values, inline)
		}
		for len(values) < n && i+1 < len(args) {
			i++
			values = append(values, args[i])
		}
		out = append(out, name+"="+strings.Join(values, nargsSeparator))
	}
	return out
}
