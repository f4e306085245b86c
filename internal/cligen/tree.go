package cligen

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/schema"
	"github.com/tarrence/cray-cli/internal/shim"
)

// Node is a *Group or a *Leaf.
type Node interface {
	NodeName() string
	IsHidden() bool
}

// Group is a namespace of commands.
type Group struct {
	Name       string
	Help       string
	Children   []Node
	Hidden     bool
	Deprecated bool
	// AliasOf names the group this one is a deprecated spelling of.
	AliasOf string
}

func (g *Group) NodeName() string { return g.Name }
func (g *Group) IsHidden() bool   { return g.Hidden }

// Child returns the direct child with the given name.
func (g *Group) Child(name string) (Node, bool) {
	return lo.Find(g.Children, func(n Node) bool { return n.NodeName() == name })
}

// Leaf is a runnable command bound to one HTTP operation.
type Leaf struct {
	Name        string
	Help        string
	Description string
	// CommandKey is "<module>.<route command key>", the key overrides use.
	CommandKey  string
	ServerURL   string
	Route       string
	Method      string
	Mime        string
	PayloadType string
	Args        []Arg
	Options     []Option
	// FromFile is the name of the option whose file replaces the body.
	FromFile           string
	Danger             bool
	ConfirmationPrompt string
	Hidden             bool
	Deprecated         bool
	Aliases            []string
	Override           shim.Override
}

func (l *Leaf) NodeName() string { return l.Name }
func (l *Leaf) IsHidden() bool   { return l.Hidden }

// Arg is a positional argument filling one route placeholder.
type Arg struct {
	Name  string
	Param schema.Param
}

// Option is one named command-line option.
type Option struct {
	Name string
	// Aliases are hidden alternative spellings, such as the raw parameter name.
	Aliases  []string
	Short    string
	Help     string
	Type     schema.Type
	Enum     []string
	Required bool
	Default  any
	Secret   bool
	// Switch options take no value (-y).
	Switch     bool
	Repeatable bool
	Nargs      int
	Hostlist   bool
	Hidden     bool
	// Param is nil for options that do not map to a request parameter.
	Param *schema.Param
}

// IsBody reports whether the option feeds the request body.
func (o Option) IsBody() bool {
	return o.Param != nil && (o.Param.Origin == schema.OriginBody || o.Param.Origin == schema.OriginFile)
}

const (
	FromFileOption = "file"
	YesOption      = "yes"

	defaultConfirmPrompt = "Do you want to continue?"
)

// Names owned by the root command; generated options never take them.
var reservedOptions = []string{"configuration", "format", "quiet", "token", "verbose", "help", YesOption}

// Endpoint describes the leaf to the payload assembler.
func (l *Leaf) Endpoint() payload.Endpoint {
	ep := payload.Endpoint{
		Method:      l.Method,
		Route:       l.Route,
		Mime:        l.Mime,
		PayloadType: l.PayloadType,
		FromFile:    l.FromFile,
	}
	for _, a := range l.Args {
		ep.Args = append(ep.Args, a.Param)
	}
	for _, o := range l.Options {
		if o.Param != nil {
			ep.Fields = append(ep.Fields, payload.Field{Flag: o.Name, Param: *o.Param})
		}
	}
	return ep
}

// BuildOptions tunes Build.
type BuildOptions struct {
	Overrides *shim.Registry
}

// Build turns a normalized route table into a command tree rooted at a group
// named after the module.
func Build(table *normalize.RouteTable, opts BuildOptions) (*Group, error) {
	if table == nil || !table.Converted {
		name := ""
		if table != nil {
			name = table.Name
		}
		return nil, &clierr.SpecError{Module: name, Msg: "document has not been converted"}
	}

	root := &Group{Name: table.Name, Help: table.Title}
	for _, r := range table.Routes {
		leaf, err := newLeaf(table, r, opts)
		if err != nil {
			return nil, err
		}
		groups, _ := r.Segments()
		if err := place(root, groups, leaf); err != nil {
			return nil, &clierr.SpecError{Module: table.Name, Method: r.Method, Route: r.Route, Msg: err.Error()}
		}
	}
	propagateHidden(root)
	return root, nil
}

type chain struct {
	group *Group
	alias bool
}

// place inserts leaf under the group path, creating groups as needed. Segments
// that are not lower-case also get a hidden deprecated group spelled as in the
// document, holding a copy of the same subtree.
func place(root *Group, segments []string, leaf *Leaf) error {
	chains := []chain{{group: root}}
	for _, seg := range segments {
		lower := strings.ToLower(seg)
		if lower == strings.ToLower(chains[0].group.Name) {
			continue
		}
		var next []chain
		for _, c := range chains {
			g, err := childGroup(c.group, lower, "")
			if err != nil {
				return err
			}
			next = append(next, chain{group: g, alias: c.alias})
		}
		if lower != seg {
			for _, c := range chains {
				g, err := childGroup(c.group, seg, lower)
				if err != nil {
					return err
				}
				next = append(next, chain{group: g, alias: true})
			}
		}
		chains = next
	}

	for _, c := range chains {
		l := leaf
		if c.alias {
			cp := *leaf
			cp.Hidden = true
			l = &cp
		}
		if _, exists := c.group.Child(l.Name); exists {
			return fmt.Errorf("command %q already exists under %q", l.Name, c.group.Name)
		}
		c.group.Children = append(c.group.Children, l)
	}
	return nil
}

func childGroup(parent *Group, name, aliasOf string) (*Group, error) {
	if n, ok := parent.Child(name); ok {
		g, isGroup := n.(*Group)
		if !isGroup {
			return nil, fmt.Errorf("%q is both a command and a group under %q", name, parent.Name)
		}
		return g, nil
	}
	g := &Group{Name: name, AliasOf: aliasOf}
	if aliasOf != "" {
		g.Deprecated = true
		g.Hidden = true
		g.Help = "DEPRECATED: use " + aliasOf
	}
	parent.Children = append(parent.Children, g)
	return g, nil
}

// propagateHidden marks a group hidden when every child is hidden. Empty
// groups are hidden. Deprecated alias groups stay hidden regardless.
func propagateHidden(g *Group) bool {
	all := true
	for _, c := range g.Children {
		hidden := c.IsHidden()
		if sub, ok := c.(*Group); ok {
			hidden = propagateHidden(sub)
		}
		all = all && hidden
	}
	g.Hidden = all || g.AliasOf != ""
	return g.Hidden
}

func newLeaf(table *normalize.RouteTable, r normalize.Route, opts BuildOptions) (*Leaf, error) {
	_, word := r.Segments()
	key := table.Name + "." + r.CommandKey
	leaf := &Leaf{
		Name:        word,
		Help:        leafHelp(r),
		Description: r.Description,
		CommandKey:  key,
		ServerURL:   table.ServerURL,
		Route:       r.Route,
		Method:      r.Method,
		Mime:        r.Mime,
		PayloadType: r.PayloadType,
		Hidden:      r.Tags.Hidden(),
		Deprecated:  r.Deprecated,
		Aliases:     r.Aliases,
	}
	for _, p := range r.Path {
		leaf.Args = append(leaf.Args, Arg{Name: p.Name, Param: p})
	}

	override, _ := opts.Overrides.Lookup(key)
	leaf.Override = override

	taken := map[string]bool{}
	for _, name := range reservedOptions {
		taken[name] = true
	}
	if r.Tags.FromFile() && r.HasBody() {
		taken[FromFileOption] = true
	}
	for _, so := range override.Options {
		taken[so.Name] = true
	}

	var params []schema.Param
	params = append(params, r.Query...)
	params = append(params, r.Header...)
	if r.HasBody() {
		params = append(params, r.Params...)
	}
	for _, p := range params {
		leaf.Options = append(leaf.Options, optionFor(p, taken, lo.Contains(override.Hide, kebabCase(p.Name))))
	}

	if r.Tags.FromFile() && r.HasBody() {
		leaf.FromFile = FromFileOption
		leaf.Options = append([]Option{{
			Name: FromFileOption,
			Help: "A file containing the JSON request body; other body options are ignored when set",
			Type: schema.TypeFilepath,
		}}, leaf.Options...)
	}

	for _, so := range override.Options {
		nargs := so.Nargs
		if nargs < 1 {
			nargs = 1
		}
		leaf.Options = append(leaf.Options, Option{
			Name:       so.Name,
			Short:      so.Short,
			Help:       so.Help,
			Type:       lo.Ternary(so.Type == "", schema.TypeString, so.Type),
			Enum:       so.Enum,
			Required:   so.Required,
			Repeatable: so.Repeatable,
			Nargs:      nargs,
			Hostlist:   so.Hostlist,
		})
	}

	if d, ok := r.Tags.Danger(); ok {
		leaf.Danger = true
		leaf.ConfirmationPrompt = lo.Ternary(d.Prompt == "", defaultConfirmPrompt, d.Prompt)
		leaf.Options = append(leaf.Options, Option{
			Name:   YesOption,
			Short:  "y",
			Help:   "Confirm the action without prompting",
			Type:   schema.TypeBoolean,
			Switch: true,
		})
	}
	return leaf, nil
}

func leafHelp(r normalize.Route) string {
	switch {
	case r.Summary != "":
		return r.Summary
	case r.Description != "":
		first, _, _ := strings.Cut(r.Description, "\n")
		return first
	default:
		return r.Method + " " + r.Route
	}
}

func optionFor(p schema.Param, taken map[string]bool, hide bool) Option {
	name := kebabCase(p.Name)
	if name == "" {
		name = "payload"
	}
	base, prefix := name, string(p.Origin)
	if p.Origin == schema.OriginBody {
		prefix = "body"
	}
	for i := 1; taken[name]; i++ {
		name = prefix + "-" + base
		if i > 1 {
			name = fmt.Sprintf("%s-%s-%d", prefix, base, i)
		}
	}
	taken[name] = true

	var aliases []string
	if p.Name != name && !taken[p.Name] && p.Name != "" {
		aliases = append(aliases, p.Name)
		taken[p.Name] = true
	}

	param := p
	return Option{
		Name:       name,
		Aliases:    aliases,
		Help:       optionHelp(p),
		Type:       lo.Ternary(p.IsPrimitiveArray(), schema.TypeString, p.Type),
		Enum:       p.Enum,
		Required:   p.Required && !hide,
		Default:    p.Default,
		Secret:     p.Secret,
		Repeatable: p.IsObjectArrayField(),
		Nargs:      1,
		Hostlist:   p.Hostlist,
		Hidden:     hide,
		Param:      &param,
	}
}

func optionHelp(p schema.Param) string {
	help := p.Help
	if p.IsObjectArrayField() {
		help = strings.TrimSpace(help + " (repeat once per " + p.ArrayKey() + " item)")
	}
	return help
}
