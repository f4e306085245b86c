package modules

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/cligen"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/openapi"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/shim"
	"github.com/tarrence/cray-cli/specs"
)

func TestDiscoverEmbedded(t *testing.T) {
	mods, err := Discover(specs.FS)
	require.NoError(t, err)

	var names []string
	for _, m := range mods {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"bos", "capmc", "cfs"}, names)
	assert.Equal(t, "modules/bos/openapi.yaml", mods[0].Doc)
}

func TestDiscoverSkipsUnderscoreAndRequiresDocument(t *testing.T) {
	fsys := fstest.MapFS{
		"modules/_wip/openapi.yaml":  {Data: []byte("openapi: 3.0.0")},
		"modules/hsm/openapi.json":   {Data: []byte(`{"openapi":"3.0.0"}`)},
		"modules/README.md":          {Data: []byte("not a module")},
		"modules/empty/.placeholder": {Data: nil},
	}
	_, err := Discover(fsys)
	var specErr *clierr.SpecError
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "empty", specErr.Module)

	delete(fsys, "modules/empty/.placeholder")
	mods, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, Module{Name: "hsm", Doc: "modules/hsm/openapi.json"}, mods[0])
}

func findCmd(t *testing.T, root *cobra.Command, path ...string) *cobra.Command {
	t.Helper()
	cmd, rest, err := root.Find(path)
	require.NoError(t, err)
	require.Empty(t, rest, "unresolved %v", rest)
	return cmd
}

func TestEmbeddedModulesBuild(t *testing.T) {
	mods, err := Discover(specs.FS)
	require.NoError(t, err)
	opts := Options{Overrides: Overrides()}

	built := map[string]*cobra.Command{}
	for _, m := range mods {
		cmd, err := m.Command(specs.FS, opts)
		require.NoError(t, err, m.Name)
		built[m.Name] = cmd
	}

	bos := built["bos"]
	assert.Equal(t, "Boot Orchestration Service", bos.Short)
	list := findCmd(t, bos, "v2", "sessions", "list")
	assert.NotNil(t, list.Flags().Lookup("min-age"))
	deleteAll := findCmd(t, bos, "v2", "sessions", "deleteall")
	assert.NotNil(t, deleteAll.Flags().Lookup("yes"))
	assert.Contains(t, deleteAll.Aliases, "clear")
	replace := findCmd(t, bos, "v2", "sessiontemplates", "replace")
	assert.NotNil(t, replace.Flags().Lookup("file"))
	assert.True(t, findCmd(t, bos, "v2", "healthz", "list").Hidden)

	capmc := built["capmc"]
	setCap := findCmd(t, capmc, "v1", "set_power_cap", "create")
	assert.NotNil(t, setCap.Flags().Lookup("control"))
	require.NotNil(t, setCap.Flags().Lookup("nids-nid"))
	assert.True(t, setCap.Flags().Lookup("nids-nid").Hidden)

	cfs := built["cfs"]
	findCmd(t, cfs, "v3", "sourcerepos", "list")
	alias := findCmd(t, cfs, "v3", "sourceRepos")
	assert.True(t, alias.Hidden)
	assert.NotEmpty(t, alias.Deprecated)
	upload := findCmd(t, cfs, "v3", "artifacts", "create")
	assert.NotNil(t, upload.Flags().Lookup("archive"))
}

func dangerPrompts(n cligen.Node) []string {
	switch v := n.(type) {
	case *cligen.Group:
		var out []string
		for _, c := range v.Children {
			out = append(out, dangerPrompts(c)...)
		}
		return out
	case *cligen.Leaf:
		if v.Danger {
			return []string{v.ConfirmationPrompt}
		}
	}
	return nil
}

func TestEveryEmbeddedDocumentConverts(t *testing.T) {
	mods, err := Discover(specs.FS)
	require.NoError(t, err)
	want := map[string][]string{
		"bos":   {"Delete this session template?", "Delete these sessions?"},
		"capmc": {"Power off these components?", "Restart these components?", "Change power caps on these nodes?"},
		"cfs":   {"Delete this configuration?", "Delete these sessions?"},
	}
	for _, m := range mods {
		t.Run(m.Name, func(t *testing.T) {
			raw, err := fs.ReadFile(specs.FS, m.Doc)
			require.NoError(t, err)
			require.NoError(t, openapi.Validate(context.Background(), raw))

			doc, err := m.Load(specs.FS)
			require.NoError(t, err)
			table, err := normalize.Normalize(m.Name, doc.Spec, normalize.Options{})
			require.NoError(t, err)
			require.NotEmpty(t, table.Routes)

			tree, err := cligen.Build(table, cligen.BuildOptions{Overrides: Overrides()})
			require.NoError(t, err)
			assert.ElementsMatch(t, want[m.Name], dangerPrompts(tree))
		})
	}
}

func TestDiscoverShippedRouteTable(t *testing.T) {
	mods, err := Discover(specs.FS)
	require.NoError(t, err)
	table, err := mods[0].Routes(specs.FS, Options{})
	require.NoError(t, err)
	table.Name = "pals"
	encoded, err := normalize.Encode(table)
	require.NoError(t, err)

	fsys := fstest.MapFS{"modules/pals/routes.json": {Data: encoded}}
	found, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, Module{Name: "pals", Table: "modules/pals/routes.json"}, found[0])
	assert.Equal(t, "modules/pals/routes.json", found[0].Source())

	cmd, err := found[0].Command(fsys, Options{})
	require.NoError(t, err)
	assert.Equal(t, "pals", cmd.Name())
	findCmd(t, cmd, "v2", "sessions", "list")

	_, err = found[0].Load(fsys)
	var specErr *clierr.SpecError
	require.ErrorAs(t, err, &specErr)

	renamed := found[0]
	renamed.Name = "other"
	_, err = renamed.Routes(fsys, Options{})
	require.ErrorAs(t, err, &specErr)
	assert.Contains(t, specErr.Error(), "route table is for module pals")
}

func TestOverrideKeysMatchCommands(t *testing.T) {
	keys := Overrides().Keys()
	assert.ElementsMatch(t, []string{bosComponentsUpdate, capmcSetPowerCap, cfsComponentsBatch, cfsConfigurationsPut}, keys)
}

func captureNext(got *shim.Call) shim.Next {
	return func(_ context.Context, call shim.Call) (any, error) {
		*got = call
		return nil, nil
	}
}

func TestSetPowerCapSynthesizesNids(t *testing.T) {
	vals := payload.Values{}
	vals.Set(flagNids, "1,3,5,7")
	vals.Set(flagControl, "node", "400", "accel", "200")

	var got shim.Call
	_, err := capmcSetPowerCapCallback(context.Background(), shim.Call{Values: vals}, captureNext(&got))
	require.NoError(t, err)

	b, err := json.Marshal(got.Body)
	require.NoError(t, err)
	controls := `"controls":[{"name":"node","val":400},{"name":"accel","val":200}]`
	assert.JSONEq(t, `{"nids":[`+
		`{"nid":1,`+controls+`},{"nid":3,`+controls+`},`+
		`{"nid":5,`+controls+`},{"nid":7,`+controls+`}]}`, string(b))
}

func TestSetPowerCapRejectsBadInput(t *testing.T) {
	vals := payload.Values{}
	vals.Set(flagNids, "[1-")
	vals.Set(flagControl, "node", "400")
	_, err := capmcSetPowerCapCallback(context.Background(), shim.Call{Values: vals}, captureNext(new(shim.Call)))
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))

	vals.Set(flagNids, "[1-2]")
	vals.Set(flagControl, "node", "lots")
	_, err = capmcSetPowerCapCallback(context.Background(), shim.Call{Values: vals}, captureNext(new(shim.Call)))
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))
}

func TestBOSFilteredUpdate(t *testing.T) {
	var got shim.Call
	_, err := bosFilteredUpdate(context.Background(), shim.Call{Values: payload.Values{}}, captureNext(&got))
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))

	both := payload.Values{}
	both.Set(flagFilterIDs, "x1")
	both.Set(flagFilterSession, "s1")
	_, err = bosFilteredUpdate(context.Background(), shim.Call{Values: both}, captureNext(&got))
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))

	ids := payload.Values{}
	ids.Set(flagFilterIDs, "x3000c0s[1-3]b0n0")
	_, err = bosFilteredUpdate(context.Background(), shim.Call{Values: ids}, captureNext(&got))
	require.NoError(t, err)
	assert.Equal(t, "x3000c0s1b0n0,x3000c0s2b0n0,x3000c0s3b0n0", got.Values.String(flagFilterIDs))
	assert.Equal(t, "x3000c0s[1-3]b0n0", ids.String(flagFilterIDs), "caller values are not modified")
}

func TestCFSBatchAsPatch(t *testing.T) {
	req := &payload.Request{
		Method: http.MethodPost,
		Body: map[string]any{
			"patch":   map[string]any{"enabled": true},
			"filters": map[string]any{"ids": "x1c0s[0-1]b0n0"},
		},
	}
	out, err := cfsBatchAsPatch(req)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, out.Method)
	assert.Equal(t, "x1c0s0b0n0,x1c0s1b0n0", out.Body.(map[string]any)["filters"].(map[string]any)["ids"])

	plain, err := cfsBatchAsPatch(&payload.Request{Method: http.MethodPost})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, plain.Method)
}

func TestCFSMergeDescription(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"layers":[{"name":"base"}],"description":"old"}`), 0o600))

	vals := payload.Values{}
	vals.Set(cligen.FromFileOption, path)
	vals.Set("description", "new")

	var got shim.Call
	_, err := cfsMergeDescription(context.Background(), shim.Call{Values: vals}, captureNext(&got))
	require.NoError(t, err)
	assert.Equal(t, "new", got.Body.(map[string]any)["description"])

	vals.Delete("description")
	got = shim.Call{}
	_, err = cfsMergeDescription(context.Background(), shim.Call{Values: vals}, captureNext(&got))
	require.NoError(t, err)
	assert.Nil(t, got.Body)
}
