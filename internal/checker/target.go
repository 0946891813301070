package checker

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original target string
	Scheme   string // http or https
	Host     string // Hostname (without protocol, path, port)
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL (for HTTP requests)
}

// ParseTarget parses a target string into structured components.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:443/path
//   - example.com:8080
//
// A target without a scheme is treated as https.
func ParseTarget(target string) (*TargetInfo, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return nil, sharedErrors.ErrEmptyTarget
	}

	parsed, err := url.Parse(raw)
	// A bare "host:port" parses with the host as scheme; a scheme with dots
	// is never a real one.
	if err != nil || parsed.Scheme == "" || parsed.Host == "" || strings.Contains(parsed.Scheme, ".") {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrInvalidTarget, raw)
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", sharedErrors.ErrInvalidTarget, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", sharedErrors.ErrInvalidTarget, raw)
	}

	parsed.Scheme = scheme
	parsed.Fragment = ""
	return &TargetInfo{
		Original: target,
		Scheme:   scheme,
		Host:     strings.ToLower(parsed.Hostname()),
		Port:     parsed.Port(),
		Path:     parsed.Path,
		FullURL:  parsed.String(),
	}, nil
}

// IsIP reports whether the target host is a literal IP address.
func (t *TargetInfo) IsIP() bool {
	return net.ParseIP(t.Host) != nil
}

// TLSAddress is the host:port used for a direct TLS handshake. Plain-HTTP
// targets are probed on the default HTTPS port.
func (t *TargetInfo) TLSAddress() string {
	port := t.Port
	if port == "" || t.Scheme == "http" {
		port = "443"
	}
	return net.JoinHostPort(t.Host, port)
}

// HTTPSURL returns the target rewritten to https.
func (t *TargetInfo) HTTPSURL() string {
	u, err := url.Parse(t.FullURL)
	if err != nil {
		return "https://" + t.Host
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
		if u.Port() != "" {
			u.Host = u.Hostname()
			if strings.Contains(u.Host, ":") {
				u.Host = "[" + u.Host + "]"
			}
		}
	}
	return u.String()
}
