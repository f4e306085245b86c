// Package crayhttp sends assembled requests to platform services and maps
// failures onto the error kinds the CLI reports.
package crayhttp

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tarrence/cray-cli/internal/payload"
)

// TokenSource supplies the bearer token for outgoing requests. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	AccessToken() (string, error)
}

type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Tokens    TokenSource
	Log       zerolog.Logger
	// Transport replaces the default round tripper, mainly for tests.
	Transport http.RoundTripper
}

type Client struct {
	http   *resty.Client
	tokens TokenSource
	log    zerolog.Logger
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Transport != nil {
		rc.SetTransport(opts.Transport)
	}

	c := &Client{http: rc, tokens: opts.Tokens, log: opts.Log}
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		c.logRequest(r)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		c.logResponse(r)
		return nil
	})
	return c
}

// Do sends req against base and returns the response body: a json.RawMessage
// for JSON, a string for anything else, nil when empty.
func (c *Client) Do(ctx context.Context, base string, req *payload.Request) (any, error) {
	endpoint, err := joinBaseAndPath(base, req.Path)
	if err != nil {
		return nil, err
	}

	token := ""
	if c.tokens != nil {
		if token, err = c.tokens.AccessToken(); err != nil {
			return nil, err
		}
	}
	if token != "" && !secure(endpoint) {
		return nil, &InsecureTransportError{URL: endpoint}
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	if token != "" {
		r.SetAuthToken(token)
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			r.Header.Add(k, v)
		}
	}

	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()

	switch {
	case req.Multipart != nil:
		body, contentType := streamMultipart(req.Multipart)
		closers = append(closers, body)
		r.SetHeader("Content-Type", contentType).SetBody(io.Reader(body))
	case req.Upload != "":
		f, err := os.Open(req.Upload)
		if err != nil {
			return nil, errors.Wrap(err, "open upload")
		}
		closers = append(closers, f)
		r.SetHeader("Content-Type", req.ContentType).SetBody(io.Reader(f))
	case req.Form != nil:
		r.SetFormDataFromValues(req.Form)
	case req.Body != nil:
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		r.SetHeader("Content-Type", "application/json").SetBody(b)
	}

	resp, err := r.Execute(req.Method, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, endpoint)
	}
	if err := checkStatus(endpoint, resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}
	return decodeBody(resp.Body()), nil
}

// streamMultipart writes the form on a goroutine so files are read from disk
// as the request is sent rather than buffered.
func streamMultipart(mp *payload.Multipart) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(w, mp)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, w.FormDataContentType()
}

func writeMultipart(w *multipart.Writer, mp *payload.Multipart) error {
	for _, f := range mp.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}
	for _, fp := range mp.Files {
		f, err := os.Open(fp.Path)
		if err != nil {
			return err
		}
		part, err := w.CreateFormFile(fp.Name, filepath.Base(fp.Path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeBody(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return string(body)
}

// secure reports whether sending a token to endpoint is acceptable: https, or
// plain http to a loopback address.
func secure(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Scheme, "https") {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func joinBaseAndPath(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// Path is already escaped by the assembler.
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + path
	u.Path, err = url.PathUnescape(u.RawPath)
	if err != nil {
		return "", errors.Wrapf(err, "invalid path %q", path)
	}
	return u.String(), nil
}

func (c *Client) logRequest(r *resty.Request) {
	if c.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	ev := c.log.Debug().Str("method", r.Method).Str("url", r.URL)
	for k, vv := range r.Header {
		v := strings.Join(vv, ", ")
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Proxy-Authorization") {
			v = "<redacted>"
		}
		ev = ev.Str("header."+strings.ToLower(k), v)
	}
	ev.Msg("request")
	if b, ok := r.Body.([]byte); ok && len(b) > 0 {
		c.log.Trace().RawJSON("body", b).Msg("request body")
	}
}

func (c *Client) logResponse(r *resty.Response) {
	ev := c.log.Debug().
		Str("status", r.Status()).
		Str("content_type", r.Header().Get("Content-Type")).
		Int("content_length", len(r.Body())).
		Dur("elapsed", r.Time())
	if r.Request != nil {
		ev = ev.Str("request_id", r.Request.Header.Get("X-Request-ID"))
	}
	ev.Msg("response")
	if len(r.Body()) > 0 {
		c.log.Trace().Str("body", string(r.Body())).Msg("response body")
	}
}
