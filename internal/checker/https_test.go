package checker

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serverPool(t *testing.T, srv *httptest.Server) *x509.CertPool {
	t.Helper()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return pool
}

func TestHTTPSProbe_TrustedServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	in, err := NewInput(srv.URL, nil, "", NewFetcherWithClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: 2 * time.Second, RootCAs: serverPool(t, srv)}
	v := p.Run(context.Background(), in)

	// The httptest certificate is self-signed but otherwise sound.
	if v.Status != StatusWarning {
		t.Fatalf("Expected warning, got %s: %s", v.Status, v.Message)
	}
	if !strings.Contains(v.Message, "self-signed") {
		t.Errorf("Expected self-signed finding, got %q", v.Message)
	}
	report, ok := v.Details["tls"].(*TLSReport)
	if !ok || report.Version == "" {
		t.Errorf("Expected TLS report in details, got %#v", v.Details["tls"])
	}
}

func TestHTTPSProbe_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	in, err := NewInput(srv.URL, nil, "", NewFetcherWithClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: 2 * time.Second, RootCAs: x509.NewCertPool()}
	v := p.Run(context.Background(), in)

	if v.Status != StatusDanger {
		t.Fatalf("Expected danger, got %s: %s", v.Status, v.Message)
	}
	if !strings.Contains(v.Message, "certificate verification failed") {
		t.Errorf("unexpected message %q", v.Message)
	}
	if v.Remediation == nil || len(v.Remediation.Steps) == 0 {
		t.Error("Expected remediation steps")
	}
	if _, ok := v.Details["tls"]; !ok {
		t.Error("Expected details of the rejected certificate")
	}
}

func TestHTTPSProbe_NoListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	in, err := NewInput("https://"+addr, nil, "", NewFetcher(time.Second, AllowAnyAddress))
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: time.Second}
	v := p.Run(context.Background(), in)
	if v.Status != StatusDanger || !strings.Contains(v.Message, "HTTPS is not available") {
		t.Errorf("Expected danger for closed port, got %s: %s", v.Status, v.Message)
	}
}

func TestHTTPS_PlainTargetRedirects(t *testing.T) {
	secure := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer secure.Close()
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, secure.URL+r.URL.Path, http.StatusMovedPermanently)
	}))
	defer plain.Close()

	in, err := NewInput(plain.URL, nil, "", NewFetcherWithClient(secure.Client()))
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: time.Second}
	v := p.Run(context.Background(), in)

	redirected, _ := v.Details["redirected_to"].(string)
	if !strings.HasPrefix(redirected, secure.URL) {
		t.Errorf("Expected redirect to %s, got %q", secure.URL, redirected)
	}
	if strings.Contains(v.Message, "without redirecting") {
		t.Errorf("Expected no redirect finding, got %q", v.Message)
	}
}

func TestHTTPS_PlainTargetWithoutRedirect(t *testing.T) {
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer plain.Close()

	in, err := NewInput(plain.URL, nil, "", NewFetcherWithClient(plain.Client()))
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: time.Second}
	v := p.Run(context.Background(), in)

	if v.Status.Severity() < StatusWarning.Severity() {
		t.Fatalf("Expected at least a warning, got %s: %s", v.Status, v.Message)
	}
	if !strings.Contains(v.Message, "plain HTTP is served without redirecting to HTTPS") {
		t.Errorf("Expected redirect finding, got %q", v.Message)
	}
	if _, ok := v.Details["redirected_to"]; ok {
		t.Error("Expected no redirect target in details")
	}
	wantStep := "Redirect every http:// request to https://127.0.0.1 with a 301"
	found := false
	for _, step := range v.Remediation.Steps {
		if step == wantStep {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected step %q, got %v", wantStep, v.Remediation.Steps)
	}
}

func TestHTTPSProbe_ClientOnly(t *testing.T) {
	p := &HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS]}

	v := p.Run(context.Background(), Input{Client: &ClientReport{PageProtocol: "https:", SecureContext: true}})
	if v.Status != StatusSecure {
		t.Errorf("Expected secure, got %s: %s", v.Status, v.Message)
	}

	v = p.Run(context.Background(), Input{Client: &ClientReport{PageProtocol: "http:"}})
	if v.Status != StatusWarning || v.Remediation == nil {
		t.Errorf("Expected warning with remediation, got %s", v.Status)
	}
}

func TestIsCertificateError(t *testing.T) {
	if !isCertificateError(x509.UnknownAuthorityError{}) {
		t.Error("Expected unknown authority to be a certificate error")
	}
	if isCertificateError(context.DeadlineExceeded) {
		t.Error("Expected deadline not to be a certificate error")
	}
}
