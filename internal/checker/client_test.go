package checker

import (
	"errors"
	"net"
	"strings"
	"testing"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

func TestParseCandidate(t *testing.T) {
	c, err := ParseCandidate("a=candidate:842163049 1 UDP 1677729535 198.51.100.7 46154 typ srflx raddr 0.0.0.0 rport 0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Foundation != "842163049" || c.Protocol != "udp" || c.Address != "198.51.100.7" || c.Port != 46154 || c.Type != "srflx" {
		t.Errorf("unexpected candidate %+v", c)
	}
	if c.MDNS() {
		t.Error("Expected literal IP not to be mDNS")
	}
	if !c.IP().Equal(net.ParseIP("198.51.100.7")) {
		t.Errorf("unexpected IP %v", c.IP())
	}

	mdns, err := ParseCandidate("candidate:1 1 udp 2113937151 abc.local 5000 typ host")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mdns.MDNS() || mdns.IP() != nil {
		t.Errorf("Expected mDNS candidate, got %+v", mdns)
	}

	for _, bad := range []string{
		"",
		"candidate:1 1 udp 2113937151 10.0.0.1 5000 host",
		"candidate:1 1 udp 2113937151 10.0.0.1 notaport typ host",
		"candidate:1 1 udp 2113937151 10.0.0.1 70000 typ host",
	} {
		if _, err := ParseCandidate(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestIsPublicIP(t *testing.T) {
	tests := map[string]bool{
		"8.8.8.8":      true,
		"203.0.113.10": true,
		"10.1.2.3":     false,
		"192.168.0.1":  false,
		"100.64.0.1":   false,
		"100.128.0.1":  true,
		"127.0.0.1":    false,
		"fe80::1":      false,
		"2001:db8::1":  true,
	}
	for addr, want := range tests {
		if got := isPublicIP(net.ParseIP(addr)); got != want {
			t.Errorf("isPublicIP(%s) = %v, want %v", addr, got, want)
		}
	}
	if isPublicIP(nil) {
		t.Error("Expected nil IP not to be public")
	}
}

func TestClientReport_Validate(t *testing.T) {
	valid := &ClientReport{
		UserAgent: "Mozilla/5.0",
		Languages: []string{"en-US"},
		Screen:    ScreenInfo{Width: 1920, Height: 1080, ColorDepth: 24},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tooLong := &ClientReport{UserAgent: strings.Repeat("x", maxFieldLength+1)}
	if err := tooLong.Validate(); !errors.Is(err, sharedErrors.ErrInvalidClientReport) {
		t.Errorf("Expected ErrInvalidClientReport for oversized field, got %v", err)
	}

	candidates := make([]string, maxCandidateList+1)
	tooMany := &ClientReport{WebRTC: WebRTCInfo{Supported: true, Candidates: candidates}}
	if err := tooMany.Validate(); err == nil {
		t.Error("Expected error for too many candidates")
	}

	negative := &ClientReport{Screen: ScreenInfo{Width: -1}}
	if err := negative.Validate(); err == nil {
		t.Error("Expected error for negative screen width")
	}

	var missing *ClientReport
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for nil report")
	}
}
