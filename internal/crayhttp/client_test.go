package crayhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrence/cray-cli/internal/payload"
)

type staticToken string

func (s staticToken) AccessToken() (string, error) { return string(s), nil }

func TestDoJSON(t *testing.T) {
	var (
		gotMethod, gotPath, gotAuth, gotCT, gotReqID string
		gotQuery                                     url.Values
		gotBody                                      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.EscapedPath(), r.URL.Query()
		gotAuth, gotCT, gotReqID = r.Header.Get("Authorization"), r.Header.Get("Content-Type"), r.Header.Get("X-Request-ID")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"s1"}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientOptions{Tokens: staticToken("tok"), Log: zerolog.Nop()})
	res, err := c.Do(context.Background(), srv.URL+"/apis/bos/", &payload.Request{
		Method: "POST",
		Path:   "/v2/sessions/a%2Fb",
		Query:  url.Values{"ids": {"x1", "x2"}},
		Body:   map[string]any{"operation": "boot"},
	})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"name":"s1"}`), res)

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/apis/bos/v2/sessions/a%2Fb", gotPath)
	assert.Equal(t, []string{"x1", "x2"}, gotQuery["ids"])
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/json", gotCT)
	assert.NotEmpty(t, gotReqID)
	assert.JSONEq(t, `{"operation":"boot"}`, string(gotBody))
}

func TestDoNoBodyAndText(t *testing.T) {
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		io.WriteString(w, "plain words\n")
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientOptions{Log: zerolog.Nop()})
	res, err := c.Do(context.Background(), srv.URL, &payload.Request{Method: "DELETE", Path: "/sessions/foo"})
	require.NoError(t, err)
	assert.Equal(t, "plain words\n", res)
	assert.Zero(t, gotLen)
}

func TestDoMultipartStreams(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(fpath, []byte("hello"), 0o600))

	var gotFile, gotNote string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotNote = r.FormValue("note")
		f, fh, err := r.FormFile("upload")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotFile = fh.Filename + ":" + string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientOptions{Log: zerolog.Nop()})
	res, err := c.Do(context.Background(), srv.URL, &payload.Request{
		Method: "POST",
		Path:   "/artifacts",
		Multipart: &payload.Multipart{
			Fields: []payload.FormField{{Name: "note", Value: "hi"}},
			Files:  []payload.FilePart{{Name: "upload", Path: fpath}},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "hi", gotNote)
	assert.Equal(t, "hello.txt:hello", gotFile)
}

func TestDoForm(t *testing.T) {
	var gotCT string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(b))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientOptions{Log: zerolog.Nop()})
	_, err := c.Do(context.Background(), srv.URL, &payload.Request{
		Method: "POST", Path: "/token", Form: url.Values{"grant_type": {"password"}},
	})
	require.NoError(t, err)
	assert.Contains(t, gotCT, "application/x-www-form-urlencoded")
	assert.Equal(t, "password", gotForm.Get("grant_type"))
}

func TestDoErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", 401, `{}`, func(t *testing.T, err error) {
			var e *UnauthorizedError
			require.ErrorAs(t, err, &e)
		}},
		{"problem details", 400, `{"title":"Bad Request","detail":"limit is invalid","status":400}`, func(t *testing.T, err error) {
			var e *BadResponseError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 400, e.Status)
			assert.Equal(t, "Bad Request: limit is invalid", e.Message)
		}},
		{"capmc", 400, `{"e":22,"err_msg":"Invalid nid"}`, func(t *testing.T, err error) {
			var e *BadResponseError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "Invalid nid (e=22)", e.Message)
		}},
		{"message", 500, `{"message":"boom"}`, func(t *testing.T, err error) {
			var e *BadResponseError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "boom", e.Message)
			assert.Contains(t, e.Error(), "500 Internal Server Error: boom")
		}},
		{"text", 502, "upstream down", func(t *testing.T, err error) {
			var e *BadResponseError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "upstream down", e.Message)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			c := NewClient(ClientOptions{Log: zerolog.Nop()})
			_, err := c.Do(context.Background(), srv.URL, &payload.Request{Method: "GET", Path: "/x"})
			tc.check(t, err)
			assert.Equal(t, 1, calls, "errors are not retried")
		})
	}
}

func TestDoRefusesInsecureTransport(t *testing.T) {
	c := NewClient(ClientOptions{Tokens: staticToken("tok"), Log: zerolog.Nop()})
	_, err := c.Do(context.Background(), "http://api-gw-service-nmn.local/apis/bos", &payload.Request{Method: "GET", Path: "/v2/sessions"})
	var e *InsecureTransportError
	require.ErrorAs(t, err, &e)

	assert.True(t, secure("https://example.com"))
	assert.True(t, secure("http://127.0.0.1:8080"))
	assert.True(t, secure("http://localhost"))
	assert.False(t, secure("http://10.0.0.1"))
}

func TestJoinBaseAndPath(t *testing.T) {
	got, err := joinBaseAndPath("https://h/apis/cfs/", "v3/configurations")
	require.NoError(t, err)
	assert.Equal(t, "https://h/apis/cfs/v3/configurations", got)

	_, err = joinBaseAndPath("", "/x")
	require.Error(t, err)
}
