package checker

import (
	"net/http"
	"strconv"
	"strings"
)

// headerRule scores one security response header.
type headerRule struct {
	Name     string
	MaxScore int
	// Check scores a present value and lists its weaknesses.
	Check          func(value string) (int, []string)
	Recommendation string
}

// headerRules are evaluated in this order.
var headerRules = []headerRule{
	{
		Name:           "Strict-Transport-Security",
		MaxScore:       20,
		Check:          checkHSTS,
		Recommendation: "Add 'Strict-Transport-Security: max-age=31536000; includeSubDomains'",
	},
	{
		Name:           "Content-Security-Policy",
		MaxScore:       20,
		Check:          checkCSP,
		Recommendation: "Define a Content-Security-Policy with default-src and script-src and without 'unsafe-inline'",
	},
	{
		Name:           "X-Frame-Options",
		MaxScore:       15,
		Check:          checkXFrameOptions,
		Recommendation: "Add 'X-Frame-Options: DENY' or use CSP frame-ancestors",
	},
	{
		Name:           "X-Content-Type-Options",
		MaxScore:       15,
		Check:          checkXContentTypeOptions,
		Recommendation: "Add 'X-Content-Type-Options: nosniff'",
	},
	{
		Name:           "Referrer-Policy",
		MaxScore:       10,
		Check:          checkReferrerPolicy,
		Recommendation: "Add 'Referrer-Policy: strict-origin-when-cross-origin'",
	},
	{
		Name:           "Permissions-Policy",
		MaxScore:       10,
		Check:          checkPermissionsPolicy,
		Recommendation: "Add a Permissions-Policy such as 'camera=(), microphone=(), geolocation=()'",
	},
	{
		Name:           "Cross-Origin-Opener-Policy",
		MaxScore:       5,
		Check:          checkCOOP,
		Recommendation: "Add 'Cross-Origin-Opener-Policy: same-origin'",
	},
	{
		Name:           "Cross-Origin-Embedder-Policy",
		MaxScore:       5,
		Check:          checkCOEP,
		Recommendation: "Add 'Cross-Origin-Embedder-Policy: require-corp'",
	},
}

// disclosureHeaders reveal server software and versions.
var disclosureHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version", "X-AspNetMvc-Version"}

// HeaderResult is the evaluation of one header.
type HeaderResult struct {
	Name     string   `json:"name"`
	Present  bool     `json:"present"`
	Value    string   `json:"value,omitempty"`
	Score    int      `json:"score"`
	MaxScore int      `json:"max_score"`
	Issues   []string `json:"issues,omitempty"`
}

// HeadersReport is the outcome of AnalyzeSecurityHeaders.
type HeadersReport struct {
	Score    int            `json:"score"`
	MaxScore int            `json:"max_score"`
	Grade    string         `json:"grade"`
	Headers  []HeaderResult `json:"headers"`
	Missing  []string       `json:"missing,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	// Steps are the fixes for missing or weak headers, in rule order.
	Steps []string `json:"-"`
}

// AnalyzeSecurityHeaders scores the response headers and grades them A to F.
func AnalyzeSecurityHeaders(headers http.Header) *HeadersReport {
	report := &HeadersReport{}
	for _, rule := range headerRules {
		report.MaxScore += rule.MaxScore
		value := strings.TrimSpace(headers.Get(rule.Name))
		res := HeaderResult{Name: rule.Name, MaxScore: rule.MaxScore}
		if value == "" {
			report.Missing = append(report.Missing, rule.Name)
			report.Steps = append(report.Steps, rule.Recommendation)
			report.Headers = append(report.Headers, res)
			continue
		}
		score, issues := rule.Check(value)
		if score < 0 {
			score = 0
		}
		res.Present = true
		res.Value = value
		res.Score = score
		res.Issues = issues
		report.Score += score
		if len(issues) > 0 {
			report.Steps = append(report.Steps, rule.Recommendation)
		}
		report.Headers = append(report.Headers, res)
	}

	if xss := headers.Get("X-XSS-Protection"); xss != "" && xss != "0" {
		report.Warnings = append(report.Warnings, "X-XSS-Protection is deprecated and can introduce vulnerabilities; set it to 0 or remove it")
	}
	if headers.Get("Public-Key-Pins") != "" {
		report.Warnings = append(report.Warnings, "Public-Key-Pins is deprecated and can lock users out; remove it")
	}
	if headers.Get("Expect-CT") != "" {
		report.Warnings = append(report.Warnings, "Expect-CT is obsolete; remove it")
	}
	for _, name := range disclosureHeaders {
		if value := headers.Get(name); value != "" {
			report.Warnings = append(report.Warnings, name+" header discloses '"+value+"'")
		}
	}

	report.Grade = headerGrade(report.Score, report.MaxScore)
	return report
}

func checkHSTS(value string) (int, []string) {
	score := 20
	var issues []string
	maxAge := -1
	includeSub := false
	for _, part := range strings.Split(strings.ToLower(value), ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "max-age="):
			if n, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(part, "max-age="), `"`)); err == nil {
				maxAge = n
			}
		case part == "includesubdomains":
			includeSub = true
		}
	}
	switch {
	case maxAge < 0:
		issues = append(issues, "max-age directive is missing or invalid")
		score -= 10
	case maxAge == 0:
		return 0, []string{"max-age=0 disables HSTS"}
	case maxAge < 15552000:
		issues = append(issues, "max-age is shorter than six months")
		score -= 5
	}
	if !includeSub {
		issues = append(issues, "includeSubDomains is not set")
		score -= 5
	}
	return score, issues
}

func checkCSP(value string) (int, []string) {
	score := 20
	var issues []string
	directives := parseCSPDirectives(strings.ToLower(value))

	_, hasDefault := directives["default-src"]
	scriptSrc, hasScript := directives["script-src"]
	if !hasScript {
		scriptSrc = directives["default-src"]
	}
	if !hasDefault && !hasScript {
		issues = append(issues, "neither default-src nor script-src is defined")
		score -= 10
	}
	for _, token := range scriptSrc {
		switch {
		case token == "'unsafe-inline'":
			issues = append(issues, "scripts allow 'unsafe-inline'")
			score -= 6
		case token == "'unsafe-eval'":
			issues = append(issues, "scripts allow 'unsafe-eval'")
			score -= 4
		case token == "*":
			issues = append(issues, "scripts may load from any origin")
			score -= 6
		case token == "data:" || token == "blob:":
			issues = append(issues, "scripts allow "+token+" URLs")
			score -= 2
		case strings.HasPrefix(token, "http:"):
			issues = append(issues, "scripts allow plain http sources")
			score -= 2
		}
	}
	if _, ok := directives["object-src"]; !ok && !hasDefault {
		issues = append(issues, "object-src is not restricted")
		score -= 2
	}
	return score, issues
}

func parseCSPDirectives(value string) map[string][]string {
	out := make(map[string][]string)
	for _, part := range strings.Split(value, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out[fields[0]] = fields[1:]
	}
	return out
}

func checkXFrameOptions(value string) (int, []string) {
	v := strings.ToUpper(value)
	switch {
	case v == "DENY" || v == "SAMEORIGIN":
		return 15, nil
	case strings.HasPrefix(v, "ALLOW-FROM"):
		return 5, []string{"ALLOW-FROM is not supported by modern browsers"}
	default:
		return 0, []string{"invalid X-Frame-Options value '" + value + "'"}
	}
}

func checkXContentTypeOptions(value string) (int, []string) {
	if strings.EqualFold(value, "nosniff") {
		return 15, nil
	}
	return 0, []string{"value must be 'nosniff'"}
}

func checkReferrerPolicy(value string) (int, []string) {
	// The last recognised token wins, as in browsers.
	tokens := strings.Split(strings.ToLower(value), ",")
	policy := strings.TrimSpace(tokens[len(tokens)-1])
	switch policy {
	case "no-referrer", "same-origin", "strict-origin", "strict-origin-when-cross-origin":
		return 10, nil
	case "unsafe-url", "no-referrer-when-downgrade":
		return 2, []string{"policy '" + policy + "' leaks full URLs to other origins"}
	default:
		return 6, []string{"policy '" + policy + "' leaks the origin to other sites"}
	}
}

func checkPermissionsPolicy(value string) (int, []string) {
	if !strings.Contains(value, "=") {
		return 5, []string{"no feature is restricted"}
	}
	return 10, nil
}

func checkCOOP(value string) (int, []string) {
	switch strings.ToLower(value) {
	case "same-origin", "same-origin-allow-popups", "noopener-allow-popups":
		return 5, nil
	case "unsafe-none":
		return 1, []string{"unsafe-none provides no isolation"}
	default:
		return 0, []string{"invalid value '" + value + "'"}
	}
}

func checkCOEP(value string) (int, []string) {
	switch strings.ToLower(value) {
	case "require-corp", "credentialless":
		return 5, nil
	case "unsafe-none":
		return 1, []string{"unsafe-none provides no isolation"}
	default:
		return 0, []string{"invalid value '" + value + "'"}
	}
}

// headerGrade converts a score to a letter grade.
func headerGrade(score, maxScore int) string {
	if maxScore <= 0 {
		return "F"
	}
	percentage := float64(score) / float64(maxScore) * 100
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 75:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 45:
		return "D"
	default:
		return "F"
	}
}
