package checker

import (
	"net/http"
	"strings"
)

// CORSReport lists the cross-origin headers of a response and their issues.
type CORSReport struct {
	AllowOrigin      string   `json:"allow_origin,omitempty"`
	AllowCredentials bool     `json:"allow_credentials"`
	AllowHeaders     string   `json:"allow_headers,omitempty"`
	ExposeHeaders    string   `json:"expose_headers,omitempty"`
	VaryOrigin       bool     `json:"vary_origin"`
	Issues           []string `json:"issues,omitempty"`
	// Severe is set when any origin may read credentialed responses.
	Severe bool `json:"-"`
}

// AnalyzeCORS inspects a plain GET response for permissive CORS headers.
// It returns nil when the response carries no CORS headers.
func AnalyzeCORS(headers http.Header) *CORSReport {
	origin := strings.TrimSpace(headers.Get("Access-Control-Allow-Origin"))
	if origin == "" {
		return nil
	}
	report := &CORSReport{
		AllowOrigin:      origin,
		AllowCredentials: strings.EqualFold(headers.Get("Access-Control-Allow-Credentials"), "true"),
		AllowHeaders:     headers.Get("Access-Control-Allow-Headers"),
		ExposeHeaders:    headers.Get("Access-Control-Expose-Headers"),
		VaryOrigin:       varyIncludesOrigin(headers.Values("Vary")),
	}

	switch {
	case origin == "*" && report.AllowCredentials:
		report.Issues = append(report.Issues, "credentials are allowed together with a wildcard origin")
		report.Severe = true
	case origin == "*":
		report.Issues = append(report.Issues, "any origin may read responses")
	case origin == "null":
		report.Issues = append(report.Issues, "the 'null' origin is trusted, which sandboxed iframes can forge")
		report.Severe = report.AllowCredentials
	case !report.VaryOrigin:
		report.Issues = append(report.Issues, "a specific origin is allowed without Vary: Origin")
	}
	if strings.Contains(report.ExposeHeaders, "*") {
		report.Issues = append(report.Issues, "every response header is exposed to other origins")
	}
	return report
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
