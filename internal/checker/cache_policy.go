package checker

import (
	"net/http"
	"strings"
)

// CachePolicy summarises the caching headers of a response.
type CachePolicy struct {
	CacheControl string   `json:"cache_control,omitempty"`
	Expires      string   `json:"expires,omitempty"`
	Pragma       string   `json:"pragma,omitempty"`
	Shared       bool     `json:"shared_cacheable"`
	Issues       []string `json:"issues,omitempty"`
}

// AnalyzeCachePolicy reports whether shared caches (CDNs, proxies) may
// store the response. A response that sets cookies and is stored by a
// shared cache can hand one visitor's session to the next.
func AnalyzeCachePolicy(h http.Header, setsCookies bool) *CachePolicy {
	if h == nil {
		return nil
	}

	policy := &CachePolicy{
		CacheControl: h.Get("Cache-Control"),
		Expires:      h.Get("Expires"),
		Pragma:       h.Get("Pragma"),
	}

	directives := map[string]bool{}
	for _, d := range strings.Split(strings.ToLower(policy.CacheControl), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(d), "=")
		if name != "" {
			directives[name] = true
		}
	}

	restricted := directives["private"] || directives["no-store"] || directives["no-cache"]
	policy.Shared = !restricted && (directives["public"] || directives["s-maxage"])

	if setsCookies && policy.Shared {
		policy.Issues = append(policy.Issues, "a response that sets cookies may be stored by shared caches")
	}
	if policy.CacheControl == "" && strings.EqualFold(policy.Pragma, "no-cache") {
		policy.Issues = append(policy.Issues, "only the legacy Pragma: no-cache directive is present")
	}
	return policy
}
