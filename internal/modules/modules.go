// Package modules lists the command groups shipped with the CLI. Each module
// is a directory under specs/modules holding its OpenAPI document; the
// hand-written overrides for its commands are registered here.
package modules

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tarrence/cray-cli/internal/cligen"
	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/openapi"
	"github.com/tarrence/cray-cli/internal/shim"
)

const rootDir = "modules"

var docNames = []string{"openapi.yaml", "openapi.yml", "openapi.json"}

// tableName is a route table written by `cray spec convert`. When present it
// is used instead of normalizing the document on every run.
const tableName = "routes.json"

type registration struct {
	short    string
	register func(r *shim.Registry)
}

// builtins is the registration list for modules with hand-written overrides.
var builtins = map[string]registration{
	"bos":   {short: "Boot Orchestration Service", register: registerBOS},
	"capmc": {short: "Power control and capping", register: registerCAPMC},
	"cfs":   {short: "Configuration Framework Service", register: registerCFS},
}

// Module is a top-level command group backed by an embedded document.
type Module struct {
	Name  string
	Short string
	// Doc is the document's path inside the file system it was discovered in.
	Doc string
	// Table is the path of a pre-converted route table, if the module ships one.
	Table string
}

// Discover returns the modules found under modules/ in fsys, sorted by name.
func Discover(fsys fs.FS) ([]Module, error) {
	entries, err := fs.ReadDir(fsys, rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "list modules")
	}
	var mods []Module
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		m := Module{Name: name, Short: builtins[name].short, Doc: findDoc(fsys, name)}
		if p := path.Join(rootDir, name, tableName); exists(fsys, p) {
			m.Table = p
		}
		if m.Doc == "" && m.Table == "" {
			return nil, &clierr.SpecError{Module: name, Msg: "no OpenAPI document or route table in module directory"}
		}
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods, nil
}

func findDoc(fsys fs.FS, name string) string {
	for _, doc := range docNames {
		if p := path.Join(rootDir, name, doc); exists(fsys, p) {
			return p
		}
	}
	return ""
}

func exists(fsys fs.FS, p string) bool {
	_, err := fs.Stat(fsys, p)
	return err == nil
}

// Overrides returns a registry holding every module's overrides.
func Overrides() *shim.Registry {
	r := shim.NewRegistry()
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		builtins[name].register(r)
	}
	return r
}

type Options struct {
	Normalize normalize.Options
	Overrides *shim.Registry
}

// Load parses the module's OpenAPI document.
func (m Module) Load(fsys fs.FS) (*openapi.SpecDoc, error) {
	if m.Doc == "" {
		return nil, &clierr.SpecError{Module: m.Name, Msg: "module ships only a converted route table"}
	}
	return openapi.LoadFile(fsys, m.Name, m.Doc)
}

// Routes returns the module's route table, decoding the shipped table when
// there is one and normalizing the document otherwise.
func (m Module) Routes(fsys fs.FS, opts Options) (*normalize.RouteTable, error) {
	if m.Table == "" {
		doc, err := m.Load(fsys)
		if err != nil {
			return nil, err
		}
		return normalize.Normalize(m.Name, doc.Spec, opts.Normalize)
	}
	b, err := fs.ReadFile(fsys, m.Table)
	if err != nil {
		return nil, errors.Wrapf(err, "read route table %q", m.Table)
	}
	table, err := normalize.Decode(b)
	if err != nil {
		return nil, err
	}
	if table.Name != m.Name {
		return nil, &clierr.SpecError{Module: m.Name, Msg: "route table is for module " + table.Name}
	}
	return table, nil
}

// Source is the file the module's commands come from.
func (m Module) Source() string {
	if m.Table != "" {
		return m.Table
	}
	return m.Doc
}

// Command builds the module's full command tree.
func (m Module) Command(fsys fs.FS, opts Options) (*cobra.Command, error) {
	table, err := m.Routes(fsys, opts)
	if err != nil {
		return nil, err
	}
	cmd, err := cligen.BuildCmd(table, cligen.BuildOptions{Overrides: opts.Overrides})
	if err != nil {
		return nil, err
	}
	if m.Short != "" {
		cmd.Short = m.Short
	}
	return cmd, nil
}
