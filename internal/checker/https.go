package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// HTTPSProbe verifies that the target is served over a sound TLS
// connection. Without a target it falls back to how the checkup page
// itself was loaded.
type HTTPSProbe struct {
	probeInfo
	Timeout   time.Duration
	Addresses AddressPolicy
	// RootCAs overrides the system pool (tests).
	RootCAs *x509.CertPool
	// Now is injectable for certificate expiry checks.
	Now func() time.Time
}

func (p *HTTPSProbe) Run(ctx context.Context, in Input) Verdict {
	if in.Target == nil {
		return p.runClient(in.Client)
	}

	a := newAssessment()
	t := in.Target
	a.set("target", t.FullURL)
	a.set("tls_address", t.TLSAddress())

	var version string
	state, err := p.handshake(ctx, t, false)
	switch {
	case err == nil:
		report := InspectTLS(state, p.now())
		version = report.Version
		a.set("tls", report)
		for _, f := range report.Findings {
			a.raise(f.Status, f.Description, f.Remediation)
		}
	case isCertificateError(err):
		a.raise(StatusDanger,
			fmt.Sprintf("certificate verification failed: %v", err),
			"Install a certificate from a trusted CA that covers "+t.Host+" and serve the full chain")
		// Collect what the server presented even though it is not trusted.
		if insecure, ierr := p.handshake(ctx, t, true); ierr == nil {
			a.set("tls", InspectTLS(insecure, p.now()))
		}
	case errors.Is(err, sharedErrors.ErrPrivateTarget):
		return failed(ProbeHTTPS, fmt.Sprintf("%s is not checked: %v", t.Host, sharedErrors.ErrPrivateTarget))
	default:
		if ctx.Err() != nil {
			return failed(ProbeHTTPS, fmt.Sprintf("TLS handshake with %s did not complete: %v", t.TLSAddress(), ctx.Err()))
		}
		a.raise(StatusDanger,
			fmt.Sprintf("HTTPS is not available on %s: %v", t.TLSAddress(), err),
			"Enable HTTPS on port 443 with a certificate from a trusted CA")
	}

	if t.Scheme == "http" && in.Snapshot != nil {
		page, ferr := in.Snapshot.Fetch(ctx)
		switch {
		case ferr != nil:
			a.raise(StatusWarning, fmt.Sprintf("could not load %s: %v", t.FullURL, ferr))
		case page.FinalURL != nil && page.FinalURL.Scheme == "https":
			a.set("redirected_to", page.FinalURL.String())
		default:
			a.raise(StatusWarning,
				"plain HTTP is served without redirecting to HTTPS",
				fmt.Sprintf("Redirect every http:// request to %s with a 301", t.HTTPSURL()),
				"Send Strict-Transport-Security once HTTPS is in place")
		}
	}

	if in.Client != nil && in.Client.PageProtocol == "http:" {
		a.raise(StatusWarning, "this checkup page was loaded over plain HTTP")
	}

	return a.verdict(ProbeHTTPS,
		fmt.Sprintf("Connection is encrypted with %s and a valid certificate", version),
		"Serve the site exclusively over HTTPS with a modern TLS configuration.")
}

func (p *HTTPSProbe) runClient(c *ClientReport) Verdict {
	a := newAssessment()
	a.set("page_protocol", c.PageProtocol)
	a.set("secure_context", c.SecureContext)
	if c.PageProtocol != "https:" {
		a.raise(StatusWarning,
			"this page was loaded over an unencrypted connection",
			"Load sites over https:// and enable HTTPS-Only mode in your browser")
	} else if !c.SecureContext {
		a.raise(StatusWarning, "the page is not treated as a secure context")
	}
	return a.verdict(ProbeHTTPS,
		"This page was loaded over HTTPS in a secure context",
		"Use HTTPS for every site you visit.")
}

func (p *HTTPSProbe) handshake(ctx context.Context, t *TargetInfo, insecure bool) (*tls.ConnectionState, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dialer := &tls.Dialer{
		NetDialer: p.Addresses.Dialer(timeout),
		Config: &tls.Config{
			ServerName:         t.Host,
			RootCAs:            p.RootCAs,
			MinVersion:         tls.VersionTLS10,
			InsecureSkipVerify: insecure, // #nosec G402 -- only used to describe an already rejected certificate.
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", t.TLSAddress())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, errors.New("unexpected connection type")
	}
	state := tlsConn.ConnectionState()
	return &state, nil
}

func (p *HTTPSProbe) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
