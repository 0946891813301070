package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func strongHeaders() http.Header {
	h := http.Header{}
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Embedder-Policy", "require-corp")
	return h
}

func TestAnalyzeSecurityHeaders_AllPresent(t *testing.T) {
	result := AnalyzeSecurityHeaders(strongHeaders())

	if result.Score != result.MaxScore {
		t.Errorf("Expected full score, got %d/%d", result.Score, result.MaxScore)
	}
	if result.Grade != "A" {
		t.Errorf("Expected grade A, got %s", result.Grade)
	}
	if len(result.Missing) != 0 || len(result.Steps) != 0 {
		t.Errorf("Expected nothing missing, got %v", result.Missing)
	}
}

func TestAnalyzeSecurityHeaders_AllMissing(t *testing.T) {
	result := AnalyzeSecurityHeaders(http.Header{})

	if result.Score != 0 {
		t.Errorf("Expected score 0 with no headers, got %d", result.Score)
	}
	if result.Grade != "F" {
		t.Errorf("Expected grade F, got %s", result.Grade)
	}
	if len(result.Missing) != len(headerRules) {
		t.Errorf("Expected %d missing headers, got %d", len(headerRules), len(result.Missing))
	}
	if result.Missing[0] != "Strict-Transport-Security" {
		t.Errorf("Expected missing headers in rule order, got %v", result.Missing)
	}
}

func TestAnalyzeSecurityHeaders_Disclosure(t *testing.T) {
	h := strongHeaders()
	h.Set("Server", "Apache/2.4.1")
	h.Set("X-XSS-Protection", "1; mode=block")

	result := AnalyzeSecurityHeaders(h)
	if len(result.Warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %v", result.Warnings)
	}
}

func TestCheckHSTS(t *testing.T) {
	tests := []struct {
		value      string
		wantScore  int
		wantIssues int
	}{
		{"max-age=63072000; includeSubDomains; preload", 20, 0},
		{"max-age=31536000", 15, 1},
		{"max-age=86400; includeSubDomains", 15, 1},
		{"max-age=0", 0, 1},
		{"includeSubDomains", 10, 1},
	}
	for _, tt := range tests {
		score, issues := checkHSTS(tt.value)
		if score != tt.wantScore || len(issues) != tt.wantIssues {
			t.Errorf("checkHSTS(%q) = %d %v, want %d with %d issue(s)", tt.value, score, issues, tt.wantScore, tt.wantIssues)
		}
	}
}

func TestCheckCSP(t *testing.T) {
	score, issues := checkCSP("default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'")
	if score != 10 {
		t.Errorf("Expected score 10, got %d", score)
	}
	if len(issues) != 2 {
		t.Errorf("Expected 2 issues, got %v", issues)
	}

	score, issues = checkCSP("frame-ancestors 'none'")
	if score >= 10 || len(issues) == 0 {
		t.Errorf("Expected a CSP without script control to score low, got %d %v", score, issues)
	}

	// default-src applies to scripts when script-src is absent.
	_, issues = checkCSP("default-src *")
	if len(issues) != 1 || !strings.Contains(issues[0], "any origin") {
		t.Errorf("Expected wildcard finding, got %v", issues)
	}
}

func TestCheckReferrerPolicy(t *testing.T) {
	if score, _ := checkReferrerPolicy("no-referrer, strict-origin-when-cross-origin"); score != 10 {
		t.Errorf("Expected fallback list to use the last policy, got %d", score)
	}
	if score, issues := checkReferrerPolicy("unsafe-url"); score != 2 || len(issues) != 1 {
		t.Errorf("Expected unsafe-url to score 2, got %d", score)
	}
}

func TestHeaderGrade(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"}, {80, "B"}, {60, "C"}, {50, "D"}, {10, "F"},
	}
	for _, tt := range tests {
		if got := headerGrade(tt.score, 100); got != tt.want {
			t.Errorf("headerGrade(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
	if headerGrade(0, 0) != "F" {
		t.Error("Expected F for empty max score")
	}
}

func TestHeadersProbe(t *testing.T) {
	tests := []struct {
		name       string
		headers    http.Header
		wantStatus Status
	}{
		{"strong", strongHeaders(), StatusSecure},
		{"bare", http.Header{}, StatusDanger},
		{"partial", func() http.Header {
			h := http.Header{}
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Content-Security-Policy", "default-src 'self'")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Content-Type-Options", "nosniff")
			return h
		}(), StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, vals := range tt.headers {
					for _, v := range vals {
						w.Header().Add(k, v)
					}
				}
			}))
			defer srv.Close()

			in, err := NewInput(srv.URL, nil, "", NewFetcherWithClient(srv.Client()))
			if err != nil {
				t.Fatalf("NewInput: %v", err)
			}
			v := (&HeadersProbe{probeInfo: probeInfos[ProbeHeaders]}).Run(context.Background(), in)
			if v.Status != tt.wantStatus {
				t.Fatalf("Expected %s, got %s: %s", tt.wantStatus, v.Status, v.Message)
			}
			if !strings.Contains(v.Message, "grade") {
				t.Errorf("Expected grade in message, got %q", v.Message)
			}
		})
	}
}

func TestHeadersProbe_CredentialedWildcardCORS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, vals := range strongHeaders() {
			w.Header()[k] = vals
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}))
	defer srv.Close()

	in, _ := NewInput(srv.URL, nil, "", NewFetcherWithClient(srv.Client()))
	v := (&HeadersProbe{probeInfo: probeInfos[ProbeHeaders]}).Run(context.Background(), in)
	if v.Status != StatusDanger || !strings.Contains(v.Message, "CORS") {
		t.Errorf("Expected CORS danger, got %s: %s", v.Status, v.Message)
	}
}

func TestHeadersProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := srv.Client()
	url := srv.URL
	srv.Close()

	in, _ := NewInput(url, nil, "", NewFetcherWithClient(client))
	v := (&HeadersProbe{probeInfo: probeInfos[ProbeHeaders]}).Run(context.Background(), in)
	if v.Status != StatusUnknown || v.Remediation == nil {
		t.Errorf("Expected unknown with remediation, got %+v", v)
	}
}
