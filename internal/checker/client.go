package checker

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// ClientReport is what collector.js gathers inside the browser. The
// checkup page posts it with a run; the headless collector produces it
// through chromedp.
type ClientReport struct {
	UserAgent            string         `json:"user_agent"`
	Languages            []string       `json:"languages,omitempty"`
	Platform             string         `json:"platform,omitempty"`
	Timezone             string         `json:"timezone,omitempty"`
	TimezoneOffset       int            `json:"timezone_offset"`
	Screen               ScreenInfo     `json:"screen"`
	HardwareConcurrency  int            `json:"hardware_concurrency,omitempty"`
	DeviceMemory         float64        `json:"device_memory,omitempty"`
	Plugins              []string       `json:"plugins,omitempty"`
	CookieEnabled        bool           `json:"cookie_enabled"`
	DoNotTrack           string         `json:"do_not_track,omitempty"`
	GlobalPrivacyControl bool           `json:"global_privacy_control"`
	Webdriver            bool           `json:"webdriver"`
	TouchPoints          int            `json:"touch_points"`
	CanvasHash           string         `json:"canvas_hash,omitempty"`
	WebGLVendor          string         `json:"webgl_vendor,omitempty"`
	WebGLRenderer        string         `json:"webgl_renderer,omitempty"`
	PageProtocol         string         `json:"page_protocol,omitempty"`
	SecureContext        bool           `json:"secure_context"`
	JavaScript           JavaScriptInfo `json:"javascript"`
	WebRTC               WebRTCInfo     `json:"webrtc"`
}

// ScreenInfo is the reported display geometry.
type ScreenInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"color_depth"`
	PixelRatio float64 `json:"pixel_ratio"`
}

// JavaScriptInfo lists script-related capabilities of the browser.
type JavaScriptInfo struct {
	Enabled             bool `json:"enabled"`
	WebAssembly         bool `json:"webassembly"`
	ServiceWorker       bool `json:"service_worker"`
	TrustedTypes        bool `json:"trusted_types"`
	CrossOriginIsolated bool `json:"cross_origin_isolated"`
}

// WebRTCInfo is the outcome of the ICE gathering test.
type WebRTCInfo struct {
	Supported  bool     `json:"supported"`
	Candidates []string `json:"candidates,omitempty"`
	Error      string   `json:"error,omitempty"`
}

const (
	maxFieldLength   = 1024
	maxListLength    = 128
	maxCandidateList = 64
)

// Validate bounds every free-form field so a hostile page cannot bloat
// stored verdict details.
func (c *ClientReport) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: empty report", sharedErrors.ErrInvalidClientReport)
	}
	fields := map[string]string{
		"user_agent":     c.UserAgent,
		"platform":       c.Platform,
		"timezone":       c.Timezone,
		"do_not_track":   c.DoNotTrack,
		"canvas_hash":    c.CanvasHash,
		"webgl_vendor":   c.WebGLVendor,
		"webgl_renderer": c.WebGLRenderer,
		"page_protocol":  c.PageProtocol,
		"webrtc.error":   c.WebRTC.Error,
	}
	for name, value := range fields {
		if len(value) > maxFieldLength {
			return fmt.Errorf("%w: %s exceeds %d bytes", sharedErrors.ErrInvalidClientReport, name, maxFieldLength)
		}
	}
	if len(c.Languages) > maxListLength || len(c.Plugins) > maxListLength {
		return fmt.Errorf("%w: too many languages or plugins", sharedErrors.ErrInvalidClientReport)
	}
	if len(c.WebRTC.Candidates) > maxCandidateList {
		return fmt.Errorf("%w: too many ICE candidates", sharedErrors.ErrInvalidClientReport)
	}
	for _, list := range [][]string{c.Languages, c.Plugins, c.WebRTC.Candidates} {
		for _, item := range list {
			if len(item) > maxFieldLength {
				return fmt.Errorf("%w: list entry exceeds %d bytes", sharedErrors.ErrInvalidClientReport, maxFieldLength)
			}
		}
	}
	if c.Screen.Width < 0 || c.Screen.Height < 0 || c.HardwareConcurrency < 0 || c.TouchPoints < 0 {
		return fmt.Errorf("%w: negative numeric field", sharedErrors.ErrInvalidClientReport)
	}
	return nil
}

// Candidate is a parsed ICE candidate line.
type Candidate struct {
	Foundation string `json:"foundation"`
	Protocol   string `json:"protocol"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
}

// MDNS reports whether the address is an obfuscated .local hostname.
func (c Candidate) MDNS() bool {
	return strings.HasSuffix(strings.ToLower(c.Address), ".local")
}

// IP returns the candidate address when it is a literal IP.
func (c Candidate) IP() net.IP {
	return net.ParseIP(c.Address)
}

var errMalformedCandidate = errors.New("malformed ICE candidate")

// ParseCandidate parses an RFC 8839 candidate attribute, with or without
// the "candidate:" or "a=candidate:" prefix.
func ParseCandidate(line string) (Candidate, error) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "a=")
	s = strings.TrimPrefix(s, "candidate:")
	fields := strings.Fields(s)
	if len(fields) < 8 || fields[6] != "typ" {
		return Candidate{}, fmt.Errorf("%w: %q", errMalformedCandidate, line)
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil || port < 0 || port > 65535 {
		return Candidate{}, fmt.Errorf("%w: bad port in %q", errMalformedCandidate, line)
	}
	return Candidate{
		Foundation: fields[0],
		Protocol:   strings.ToLower(fields[2]),
		Address:    fields[4],
		Port:       port,
		Type:       strings.ToLower(fields[7]),
	}, nil
}

// isPublicIP reports whether ip is routable on the public internet.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !isSharedAddressSpace(ip)
}

// isSharedAddressSpace matches 100.64.0.0/10 (carrier-grade NAT).
func isSharedAddressSpace(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] == 100 && v4[1]&0xc0 == 64
}
