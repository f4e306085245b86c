package cligen

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/crayhttp"
	"github.com/tarrence/cray-cli/internal/normalize"
	"github.com/tarrence/cray-cli/internal/openapi"
	"github.com/tarrence/cray-cli/internal/output"
	"github.com/tarrence/cray-cli/internal/payload"
	"github.com/tarrence/cray-cli/internal/schema"
	"github.com/tarrence/cray-cli/internal/shim"
)

const ordersDoc = `
openapi: 3.0.2
info: {title: Order Service, version: "1"}
servers:
  - url: https://api-gw-service-nmn.local/apis/orders
paths:
  /v1/orders:
    get:
      parameters:
        - {name: name, in: query, schema: {type: string}}
        - {name: pageSize, in: query, schema: {type: integer, default: 20}}
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name: {type: string}
                kind: {type: string, enum: [small, large]}
                rush: {type: boolean}
  /v1/orders/{order_id}:
    get: {}
    put:
      tags: [cli_from_file]
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                name: {type: string}
    delete:
      tags: ["cli_danger$Delete this order?"]
  /v1/orders/{order_id}/items/{item_id}:
    get: {}
  /v1/archivedOrders:
    get: {}
  /v1/internal/stats:
    get:
      tags: [cli_hidden]
  /v1/internal/debug:
    get:
      tags: [cli_hidden]
  /v1/version:
    get:
      tags: [cli_ignore]
`

func buildOrders(t *testing.T, reg *shim.Registry) *Group {
	t.Helper()
	spec, err := openapi.Parse([]byte(ordersDoc))
	require.NoError(t, err)
	table, err := normalize.Normalize("shop", spec, normalize.Options{})
	require.NoError(t, err)
	tree, err := Build(table, BuildOptions{Overrides: reg})
	require.NoError(t, err)
	return tree
}

func walkLeaves(n Node, path []string, fn func(path []string, l *Leaf)) {
	switch v := n.(type) {
	case *Group:
		for _, c := range v.Children {
			walkLeaves(c, append(append([]string(nil), path...), v.Name), fn)
		}
	case *Leaf:
		fn(path, v)
	}
}

func lookup(t *testing.T, g *Group, path ...string) Node {
	t.Helper()
	var n Node = g
	for _, name := range path {
		grp, ok := n.(*Group)
		require.True(t, ok, "%s is not a group", n.NodeName())
		n, ok = grp.Child(name)
		require.True(t, ok, "no %q under %q", name, grp.Name)
	}
	return n
}

func TestBuildTreeShape(t *testing.T) {
	tree := buildOrders(t, nil)
	assert.Equal(t, "shop", tree.Name)
	assert.Equal(t, "Order Service", tree.Help)

	var paths []string
	walkLeaves(tree, nil, func(path []string, l *Leaf) {
		paths = append(paths, strings.Join(append(path[1:], l.Name), " "))
	})
	sort.Strings(paths)
	assert.Equal(t, []string{
		"v1 archivedOrders list",
		"v1 archivedorders list",
		"v1 internal debug list",
		"v1 internal stats list",
		"v1 orders create",
		"v1 orders delete",
		"v1 orders describe",
		"v1 orders items describe",
		"v1 orders list",
		"v1 orders update",
	}, paths)
}

func TestArgsMatchPlaceholders(t *testing.T) {
	tree := buildOrders(t, nil)
	placeholder := regexp.MustCompile(`\{([^}]+)\}`)
	walkLeaves(tree, nil, func(_ []string, l *Leaf) {
		var want []string
		for _, m := range placeholder.FindAllStringSubmatch(l.Route, -1) {
			want = append(want, m[1])
		}
		var got []string
		for _, a := range l.Args {
			got = append(got, a.Name)
		}
		assert.ElementsMatch(t, want, got, l.CommandKey)
	})

	item := lookup(t, tree, "v1", "orders", "items", "describe").(*Leaf)
	assert.Equal(t, []string{"order_id", "item_id"}, []string{item.Args[0].Name, item.Args[1].Name})
}

func TestHiddenPropagation(t *testing.T) {
	tree := buildOrders(t, nil)
	assert.True(t, lookup(t, tree, "v1", "internal").(*Group).Hidden)
	assert.False(t, lookup(t, tree, "v1").(*Group).Hidden)

	alias := lookup(t, tree, "v1", "archivedOrders").(*Group)
	assert.True(t, alias.Hidden)
	assert.True(t, alias.Deprecated)
	assert.Equal(t, "archivedorders", alias.AliasOf)
	assert.True(t, lookup(t, tree, "v1", "archivedOrders", "list").(*Leaf).Hidden)
	assert.False(t, lookup(t, tree, "v1", "archivedorders", "list").(*Leaf).Hidden)
}

func optionNames(l *Leaf) []string {
	names := make([]string, 0, len(l.Options))
	for _, o := range l.Options {
		names = append(names, o.Name)
	}
	return names
}

func TestLeafOptions(t *testing.T) {
	tree := buildOrders(t, nil)

	list := lookup(t, tree, "v1", "orders", "list").(*Leaf)
	assert.Equal(t, []string{"name", "page-size"}, optionNames(list))
	assert.Equal(t, []string{"pageSize"}, list.Options[1].Aliases)
	assert.EqualValues(t, 20, list.Options[1].Default)

	create := lookup(t, tree, "v1", "orders", "create").(*Leaf)
	assert.Equal(t, []string{"name", "kind", "rush"}, optionNames(create))
	assert.True(t, create.Options[0].Required)
	assert.Equal(t, schema.TypeChoice, create.Options[1].Type)

	update := lookup(t, tree, "v1", "orders", "update").(*Leaf)
	assert.Equal(t, []string{FromFileOption, "name"}, optionNames(update))
	assert.Equal(t, FromFileOption, update.FromFile)

	del := lookup(t, tree, "v1", "orders", "delete").(*Leaf)
	assert.True(t, del.Danger)
	assert.Equal(t, "Delete this order?", del.ConfirmationPrompt)
	assert.Equal(t, []string{YesOption}, optionNames(del))
	assert.Equal(t, "y", del.Options[0].Short)
}

func TestOptionNameCollisionGetsOriginPrefix(t *testing.T) {
	taken := map[string]bool{}
	q := optionFor(schema.Param{Name: "name", Origin: schema.OriginQuery, Type: schema.TypeString}, taken, false)
	b := optionFor(schema.Param{Name: "name", Origin: schema.OriginBody, Type: schema.TypeString}, taken, false)
	h := optionFor(schema.Param{Name: "name", Origin: schema.OriginHeader, Type: schema.TypeString}, taken, false)
	assert.Equal(t, "name", q.Name)
	assert.Equal(t, "body-name", b.Name)
	assert.Equal(t, "header-name", h.Name)

	hidden := optionFor(schema.Param{Name: "nid", Origin: schema.OriginBody, Required: true}, taken, true)
	assert.True(t, hidden.Hidden)
	assert.False(t, hidden.Required)
}

func TestShimOptionsAndHide(t *testing.T) {
	reg := shim.NewRegistry()
	reg.MustRegister("shop.v1.orders.create", shim.Override{
		Options: []shim.Option{{Name: "pair", Nargs: 2, Repeatable: true}},
		Hide:    []string{"kind"},
	})
	tree := buildOrders(t, reg)
	create := lookup(t, tree, "v1", "orders", "create").(*Leaf)
	assert.Equal(t, []string{"name", "kind", "rush", "pair"}, optionNames(create))
	assert.True(t, create.Options[1].Hidden)
	assert.Equal(t, 2, create.Options[3].Nargs)
	assert.Equal(t, schema.TypeString, create.Options[3].Type)
	assert.Equal(t, "shop.v1.orders.create", create.CommandKey)
}

func TestBuildRejectsUnconverted(t *testing.T) {
	_, err := Build(&normalize.RouteTable{Name: "orders"}, BuildOptions{})
	var specErr *clierr.SpecError
	require.ErrorAs(t, err, &specErr)
	_, err = Build(nil, BuildOptions{})
	require.Error(t, err)
}

func TestBuildRejectsCommandGroupClash(t *testing.T) {
	table := &normalize.RouteTable{
		Name:      "m",
		Converted: true,
		Routes: []normalize.Route{
			{CommandKey: "things.list", Method: "GET", Route: "/things"},
			{CommandKey: "things.list.describe", Method: "GET", Route: "/things/list/{id}"},
		},
	}
	_, err := Build(table, BuildOptions{})
	var specErr *clierr.SpecError
	require.ErrorAs(t, err, &specErr)
}

func TestKebabCase(t *testing.T) {
	cases := map[string]string{
		"template_name":    "template-name",
		"pageSize":         "page-size",
		"bootSetURL":       "boot-set-url",
		"Cray-Tenant-Name": "cray-tenant-name",
		"nids-nid":         "nids-nid",
		"x.y z":            "x-y-z",
		"HTTPServer":       "http-server",
		"v2":               "v2",
	}
	for in, want := range cases {
		assert.Equal(t, want, kebabCase(in), in)
	}
}

func TestBaseURL(t *testing.T) {
	got, err := baseURL("https://api-gw-service-nmn.local/apis/bos", "")
	require.NoError(t, err)
	assert.Equal(t, "https://api-gw-service-nmn.local/apis/bos", got)

	got, err = baseURL("https://api-gw-service-nmn.local/apis/bos", "http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/apis/bos", got)

	got, err = baseURL("https://api-gw-service-nmn.local/apis/bos", "gw.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com/apis/bos", got)

	got, err = baseURL("/apis/cfs/", "gw.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com/apis/cfs", got)

	got, err = baseURL("", "gw.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com", got)

	_, err = baseURL("", "")
	require.Error(t, err)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	for answer, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false, "sure\n": false} {
		ok, err := confirm(strings.NewReader(answer), &out, "Really?")
		require.NoError(t, err)
		assert.Equal(t, want, ok, answer)
	}
	assert.Contains(t, out.String(), "Really? [y/N]: ")
}

func TestPromptSecretRequiresTerminal(t *testing.T) {
	_, err := promptSecret(strings.NewReader("pw\n"), io.Discard, "password")
	require.Error(t, err)
}

func TestRewriteMultiValueFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	leaf := &Leaf{Options: []Option{
		{Name: "control", Type: schema.TypeString, Nargs: 2, Repeatable: true},
		{Name: "nids", Type: schema.TypeString, Nargs: 1},
	}}
	bindOptions(cmd, leaf)

	got := RewriteMultiValueFlags(cmd, []string{"--control", "node", "400", "--nids", "1", "--control=accel", "200", "--", "--control", "a"})
	assert.Equal(t, []string{
		"--control=node" + nargsSeparator + "400",
		"--nids", "1",
		"--control=accel" + nargsSeparator + "200",
		"--", "--control", "a",
	}, got)
}

func TestOptionValueValidation(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "f.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	cases := []struct {
		opt  Option
		good string
		bad  string
	}{
		{Option{Name: "kind", Type: schema.TypeChoice, Enum: []string{"small", "large"}}, "small", "huge"},
		{Option{Name: "count", Type: schema.TypeInteger}, "12", "twelve"},
		{Option{Name: "ratio", Type: schema.TypeFloat}, "0.5", "half"},
		{Option{Name: "rush", Type: schema.TypeBoolean}, "yes", "perhaps"},
		{Option{Name: "file", Type: schema.TypeFilepath}, existing, filepath.Join(dir, "missing")},
		{Option{Name: "pair", Type: schema.TypeString, Nargs: 2}, "a" + nargsSeparator + "b", "a"},
	}
	for _, c := range cases {
		opt := c.opt
		v := &optionValue{opt: &opt}
		assert.NoError(t, v.Set(c.good), opt.Name)
		err := v.Set(c.bad)
		require.Error(t, err, opt.Name)
		assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err), opt.Name)
	}
}

func TestRepeatableOptionKeepsEveryValue(t *testing.T) {
	opt := Option{Name: "items-name", Type: schema.TypeString, Repeatable: true}
	v := &optionValue{opt: &opt}
	require.NoError(t, v.Set("a"))
	require.NoError(t, v.Set("b"))
	assert.Equal(t, []string{"a", "b"}, v.raw)

	single := Option{Name: "name", Type: schema.TypeString}
	s := &optionValue{opt: &single}
	require.NoError(t, s.Set("a"))
	require.NoError(t, s.Set("b"))
	assert.Equal(t, []string{"b"}, s.raw)
}

type capture struct {
	method string
	path   string
	query  string
	body   string
}

func newRuntime(t *testing.T, status int, got *[]capture) (*Runtime, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = append(*got, capture{r.Method, r.URL.Path, r.URL.RawQuery, string(b)})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"id":"o1"}`)
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	return &Runtime{
		Hostname: srv.URL,
		Client:   crayhttp.NewClient(crayhttp.ClientOptions{Log: zerolog.Nop()}),
		Printer:  output.NewPrinter(&out, io.Discard, output.Options{}),
		Log:      zerolog.Nop(),
	}, &out
}

func execute(t *testing.T, tree *Group, rt *Runtime, stdin string, args ...string) error {
	t.Helper()
	root := Render(tree)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(WithRuntime(context.Background(), rt))
}

func TestLeafDispatch(t *testing.T) {
	var got []capture
	rt, out := newRuntime(t, http.StatusOK, &got)
	tree := buildOrders(t, nil)

	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "create", "--name", "o1", "--rush", "true"))
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/apis/orders/v1/orders", got[0].path)
	assert.JSONEq(t, `{"name":"o1","rush":true}`, got[0].body)
	assert.Equal(t, "{\n  \"id\": \"o1\"\n}\n", out.String())

	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "list"))
	assert.Equal(t, "pageSize=20", got[1].query, "defaults are sent")
	assert.Empty(t, got[1].body)
}

func TestLeafDangerAndRequired(t *testing.T) {
	var got []capture
	rt, _ := newRuntime(t, http.StatusOK, &got)
	tree := buildOrders(t, nil)

	err := execute(t, tree, rt, "n\n", "v1", "orders", "delete", "o1")
	assert.ErrorIs(t, err, clierr.ErrAbort)
	assert.Empty(t, got)

	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "delete", "o1", "-y"))
	require.Len(t, got, 1)

	rt.Invocation.NonInteractive = true
	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "delete", "o1"))
	require.Len(t, got, 2)

	err = execute(t, tree, rt, "", "v1", "orders", "create", "--kind", "small")
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))
	assert.Contains(t, err.Error(), "--name")

	err = execute(t, tree, rt, "", "v1", "orders", "describe")
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))
	err = execute(t, tree, rt, "", "v1", "nothing")
	assert.Equal(t, clierr.ExitUsage, clierr.ExitCode(err))
	assert.Len(t, got, 2)
}

func TestLeafOverrides(t *testing.T) {
	var got []capture
	rt, out := newRuntime(t, http.StatusOK, &got)

	reg := shim.NewRegistry()
	reg.MustRegister("shop.v1.orders.create", shim.Override{
		Callback: func(ctx context.Context, call shim.Call, next shim.Next) (any, error) {
			assert.Equal(t, "shop.v1.orders.create", call.CommandKey)
			call.Body = map[string]any{"name": strings.ToUpper(call.Values.String("name"))}
			if _, err := next(ctx, call); err != nil {
				return nil, err
			}
			return "created", nil
		},
		DataHandler: func(req *payload.Request) (*payload.Request, error) {
			req.Path += "/bulk"
			return req, nil
		},
	})
	tree := buildOrders(t, reg)

	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "create", "--name", "o1"))
	require.Len(t, got, 1)
	assert.Equal(t, "/apis/orders/v1/orders/bulk", got[0].path)
	assert.JSONEq(t, `{"name":"O1"}`, got[0].body)
	assert.Equal(t, "created\n", out.String())
}

func TestLeafFromFileReplacesBody(t *testing.T) {
	var got []capture
	rt, _ := newRuntime(t, http.StatusOK, &got)
	tree := buildOrders(t, nil)

	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"from-file","extra":[1,2]}`), 0o600))

	require.NoError(t, execute(t, tree, rt, "", "v1", "orders", "update", "o1", "--file", path, "--name", "ignored"))
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/apis/orders/v1/orders/o1", got[0].path)
	assert.JSONEq(t, `{"name":"from-file","extra":[1,2]}`, got[0].body)
}

const clashDoc = `
openapi: 3.0.2
info: {title: Widget Service, version: "1"}
servers:
  - url: https://api-gw-service-nmn.local/apis/widgets
paths:
  /v1/widgets:
    post:
      parameters:
        - {name: x, in: query, schema: {type: string}}
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [kind]
              properties:
                x: {type: string}
                body-x: {type: string}
                kind: {type: string, default: small}
`

func buildDoc(t *testing.T, module, doc string) *Group {
	t.Helper()
	spec, err := openapi.Parse([]byte(doc))
	require.NoError(t, err)
	table, err := normalize.Normalize(module, spec, normalize.Options{})
	require.NoError(t, err)
	tree, err := Build(table, BuildOptions{})
	require.NoError(t, err)
	return tree
}

func TestOptionNameCollisionAfterRename(t *testing.T) {
	tests := []struct {
		name  string
		taken []string
		param schema.Param
		want  string
	}{
		{"free", nil, schema.Param{Name: "x", Origin: schema.OriginBody}, "x"},
		{"prefixed", []string{"x"}, schema.Param{Name: "x", Origin: schema.OriginBody}, "body-x"},
		{"prefixed name taken", []string{"x", "body-x"}, schema.Param{Name: "x", Origin: schema.OriginBody}, "body-x-2"},
		{"numbered names taken", []string{"x", "body-x", "body-x-2"}, schema.Param{Name: "x", Origin: schema.OriginBody}, "body-x-3"},
		{"renamed body field", []string{"x", "body-x"}, schema.Param{Name: "body-x", Origin: schema.OriginBody}, "body-body-x"},
		{"query", []string{"x"}, schema.Param{Name: "x", Origin: schema.OriginQuery}, "query-x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taken := map[string]bool{}
			for _, n := range tt.taken {
				taken[n] = true
			}
			opt := optionFor(tt.param, taken, false)
			assert.Equal(t, tt.want, opt.Name)
			assert.True(t, taken[tt.want])
		})
	}
}

func TestRenderDistinctFlagsForClashingParams(t *testing.T) {
	tree := buildDoc(t, "widgets", clashDoc)
	create := lookup(t, tree, "v1", "widgets", "create").(*Leaf)
	assert.Equal(t, []string{"x", "body-x", "body-body-x", "kind"}, optionNames(create))

	var got []capture
	rt, _ := newRuntime(t, http.StatusOK, &got)
	require.NotPanics(t, func() {
		require.NoError(t, execute(t, tree, rt, "", "v1", "widgets", "create",
			"--x", "q", "--body-x", "b", "--body-body-x", "bb"))
	})
	require.Len(t, got, 1)
	assert.Equal(t, "x=q", got[0].query)
	assert.JSONEq(t, `{"x":"b","body-x":"bb","kind":"small"}`, got[0].body)
}

func TestRequiredOptionSatisfiedByDefault(t *testing.T) {
	tree := buildDoc(t, "widgets", clashDoc)
	var got []capture
	rt, _ := newRuntime(t, http.StatusOK, &got)

	require.NoError(t, execute(t, tree, rt, "", "v1", "widgets", "create"))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"kind":"small"}`, got[0].body)

	require.NoError(t, execute(t, tree, rt, "", "v1", "widgets", "create", "--kind", "large"))
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"kind":"large"}`, got[1].body)
}
