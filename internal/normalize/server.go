package normalize

import (
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/tarrence/cray-cli/internal/openapi"
)

// DefaultServerPrefix is the API gateway host fragment servers are matched against.
const DefaultServerPrefix = "api-gw-service"

// ChooseServer picks the server URL a module talks to. Servers whose URL
// contains one of prefixes are preferred; among the candidates the one whose
// last path segment sorts highest wins, on the assumption that it is the newest
// API version.
func ChooseServer(servers []openapi.Server, prefixes []string) string {
	if len(prefixes) == 0 {
		prefixes = []string{DefaultServerPrefix}
	}
	candidates := lo.Filter(servers, func(s openapi.Server, _ int) bool {
		return lo.SomeBy(prefixes, func(p string) bool {
			return p != "" && strings.Contains(s.URL, p)
		})
	})
	if len(candidates) == 0 {
		candidates = servers
	}
	if len(candidates) == 0 {
		return ""
	}
	best := lo.MaxBy(candidates, func(a, b openapi.Server) bool {
		return trailingSegment(a.URL) > trailingSegment(b.URL)
	})
	return strings.TrimRight(best.URL, "/")
}

func trailingSegment(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ServerPath returns the path component of a server URL, used to re-home a
// module onto a configured hostname.
func ServerPath(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	return u.Path
}
