package checker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CookieFinding describes the attributes of one Set-Cookie header.
type CookieFinding struct {
	Name     string   `json:"name"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Secure   bool     `json:"secure"`
	HttpOnly bool     `json:"http_only"`
	SameSite string   `json:"same_site"`
	Issues   []string `json:"issues,omitempty"`
	status   Status
}

// CookiesProbe analyses the cookies the target sets and, when a browser
// report is available, whether the browser accepts cookies at all.
type CookiesProbe struct {
	probeInfo
}

func (p *CookiesProbe) Run(ctx context.Context, in Input) Verdict {
	a := newAssessment()
	if in.Client != nil {
		a.set("cookie_enabled", in.Client.CookieEnabled)
	}

	if in.Target == nil {
		if !in.Client.CookieEnabled {
			return a.verdict(ProbeCookies, "Cookies are disabled in this browser, so sites cannot track you with them", "")
		}
		return a.verdict(ProbeCookies, "Cookies are enabled; no target was given to inspect", "")
	}

	page, err := in.Snapshot.Fetch(ctx)
	if err != nil {
		return failed(ProbeCookies, fmt.Sprintf("could not load %s: %v", in.Target.FullURL, err))
	}

	host := in.Target.Host
	if page.FinalURL != nil {
		host = strings.ToLower(page.FinalURL.Hostname())
	}
	findings := AnalyzeCookies(page.Cookies, host)
	if len(findings) == 0 {
		return a.verdict(ProbeCookies, "The target sets no cookies on its landing page", "")
	}
	a.set("cookies", findings)

	for _, f := range findings {
		if len(f.Issues) == 0 {
			continue
		}
		a.raise(f.status, fmt.Sprintf("cookie %s: %s", f.Name, strings.Join(f.Issues, ", ")))
	}
	for _, step := range cookieSteps(findings) {
		a.addStep(step)
	}

	if policy := AnalyzeCachePolicy(page.Header, true); policy != nil {
		a.set("cache_policy", policy)
		if policy.Shared {
			a.raise(StatusWarning, "the page sets cookies but shared caches may store it",
				"Send Cache-Control: private or no-store on responses that set cookies")
		}
	}

	return a.verdict(ProbeCookies,
		fmt.Sprintf("All %d cookie(s) carry Secure and HttpOnly with a safe scope", len(findings)),
		"Set Secure, HttpOnly and SameSite on every cookie and scope it to your own domain.")
}

// AnalyzeCookies evaluates cookies received from host.
func AnalyzeCookies(cookies []*http.Cookie, host string) []CookieFinding {
	findings := make([]CookieFinding, 0, len(cookies))
	for _, c := range cookies {
		f := CookieFinding{
			Name:     c.Name,
			Domain:   strings.TrimPrefix(strings.ToLower(c.Domain), "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: sameSiteString(c.SameSite),
			status:   StatusSecure,
		}
		flag := func(status Status, issue string) {
			f.status = Worst(f.status, status)
			f.Issues = append(f.Issues, issue)
		}

		if !c.Secure {
			flag(StatusWarning, "missing Secure")
		}
		if !c.HttpOnly {
			flag(StatusWarning, "missing HttpOnly")
		}
		if c.SameSite == http.SameSiteNoneMode && !c.Secure {
			flag(StatusWarning, "SameSite=None without Secure is rejected by browsers")
		}
		if f.Domain != "" {
			if suffix, _ := publicsuffix.PublicSuffix(f.Domain); suffix == f.Domain {
				flag(StatusDanger, fmt.Sprintf("Domain=%s is a public suffix", f.Domain))
			} else if host != "" && host != f.Domain && !strings.HasSuffix(host, "."+f.Domain) {
				flag(StatusWarning, fmt.Sprintf("Domain=%s does not match %s", f.Domain, host))
			}
		}
		switch {
		case strings.HasPrefix(c.Name, "__Host-"):
			if !c.Secure || f.Domain != "" || c.Path != "/" {
				flag(StatusWarning, "__Host- prefix requires Secure, Path=/ and no Domain")
			}
		case strings.HasPrefix(c.Name, "__Secure-"):
			if !c.Secure {
				flag(StatusWarning, "__Secure- prefix requires Secure")
			}
		}
		findings = append(findings, f)
	}
	return findings
}

func cookieSteps(findings []CookieFinding) []string {
	var steps []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			steps = append(steps, s)
		}
	}
	for _, f := range findings {
		for _, issue := range f.Issues {
			switch {
			case issue == "missing Secure" || strings.Contains(issue, "requires Secure"):
				add("Add the Secure attribute so cookies are never sent over plain HTTP")
			case issue == "missing HttpOnly":
				add("Add HttpOnly to cookies that scripts do not need to read")
			case strings.HasPrefix(issue, "SameSite=None"):
				add("Pair SameSite=None with Secure, or use SameSite=Lax")
			case strings.HasPrefix(issue, "Domain="):
				add("Drop the Domain attribute or scope it to a domain you control")
			}
		}
	}
	return steps
}

func sameSiteString(mode http.SameSite) string {
	switch mode {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return "unset"
	}
}
