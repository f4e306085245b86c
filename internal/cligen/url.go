package cligen

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/tarrence/cray-cli/internal/normalize"
)

// baseURL resolves the server a leaf talks to. A configured hostname keeps the
// document server's path and replaces its scheme and host.
func baseURL(serverURL, hostname string) (string, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		if serverURL == "" {
			return "", errors.New("no server URL: set core.hostname with 'cray config set core.hostname <url>'")
		}
		return serverURL, nil
	}
	if !strings.Contains(hostname, "://") {
		hostname = "https://" + hostname
	}
	h, err := url.Parse(hostname)
	if err != nil {
		return "", errors.Wrapf(err, "invalid hostname %q", hostname)
	}
	h.Path = strings.TrimRight(h.Path, "/") + normalize.ServerPath(serverURL)
	return strings.TrimRight(h.String(), "/"), nil
}
