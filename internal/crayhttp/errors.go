package crayhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cast"
)

// UnauthorizedError is a 401 from the service.
type UnauthorizedError struct {
	URL string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: your credentials were rejected by " + e.URL +
		"; renew your token and try again"
}

// InsecureTransportError is refused before sending: a token would travel over
// plain http to a non-local host.
type InsecureTransportError struct {
	URL string
}

func (e *InsecureTransportError) Error() string {
	return "refusing to send credentials over insecure transport to " + e.URL +
		"; configure an https hostname"
}

// BadResponseError is any other non-2xx response.
type BadResponseError struct {
	URL     string
	Status  int
	Message string
}

func (e *BadResponseError) Error() string {
	text := http.StatusText(e.Status)
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, text)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, text, e.Message)
}

func checkStatus(url string, status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return &UnauthorizedError{URL: url}
	default:
		return &BadResponseError{URL: url, Status: status, Message: extractMessage(body)}
	}
}

// extractMessage pulls a human readable message out of an error body. It
// understands RFC 7807 problem documents, the CAPMC e/err_msg shape and the
// common message/error keys, and falls back to the body text.
func extractMessage(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return strings.TrimSpace(string(body))
	}

	title := cast.ToString(doc["title"])
	detail := cast.ToString(doc["detail"])
	switch {
	case title != "" && detail != "":
		return title + ": " + detail
	case detail != "":
		return detail
	case title != "":
		return title
	}

	if msg := cast.ToString(doc["err_msg"]); msg != "" {
		if code, ok := doc["e"]; ok && cast.ToInt(code) != 0 {
			return fmt.Sprintf("%s (e=%d)", msg, cast.ToInt(code))
		}
		return msg
	}
	for _, key := range []string{"message", "error", "description"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m := cast.ToString(v["message"]); m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
