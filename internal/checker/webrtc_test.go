package checker

import (
	"context"
	"strings"
	"testing"
)

func runWebRTC(client *ClientReport, observed string) Verdict {
	p := &WebRTCProbe{probeInfo: probeInfos[ProbeWebRTC]}
	return p.Run(context.Background(), Input{Client: client, ObservedIP: observed})
}

func TestWebRTCProbe(t *testing.T) {
	tests := []struct {
		name        string
		webrtc      WebRTCInfo
		observed    string
		wantStatus  Status
		wantMessage string
	}{
		{
			name:        "unsupported",
			webrtc:      WebRTCInfo{Supported: false},
			wantStatus:  StatusSecure,
			wantMessage: "not available",
		},
		{
			name:        "no candidates",
			webrtc:      WebRTCInfo{Supported: true},
			wantStatus:  StatusSecure,
			wantMessage: "no ICE candidates",
		},
		{
			name: "mdns only",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:1 1 udp 2113937151 4f0b3c1e-8a55-4a35-9f8d-1c1c3ad7f0c1.local 54321 typ host",
			}},
			wantStatus: StatusSecure,
		},
		{
			name: "private host candidate",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:1 1 udp 2113937151 192.168.1.23 54321 typ host generation 0",
			}},
			observed:    "203.0.113.10",
			wantStatus:  StatusWarning,
			wantMessage: "192.168.1.23",
		},
		{
			name: "srflx matches observed address",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:2 1 udp 1677729535 203.0.113.10 61000 typ srflx raddr 0.0.0.0 rport 0",
			}},
			observed:   "203.0.113.10",
			wantStatus: StatusSecure,
		},
		{
			name: "srflx bypasses proxy",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"a=candidate:1 1 udp 2113937151 10.0.0.5 54321 typ host",
				"candidate:2 1 udp 1677729535 198.51.100.77 61000 typ srflx raddr 0.0.0.0 rport 0",
			}},
			observed:    "203.0.113.10",
			wantStatus:  StatusDanger,
			wantMessage: "198.51.100.77",
		},
		{
			name: "relay address is not compared",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:2 1 udp 1677729535 203.0.113.10 61000 typ srflx raddr 0.0.0.0 rport 0",
				"candidate:3 1 udp 16777215 198.51.100.77 3478 typ relay raddr 203.0.113.10 rport 61000",
			}},
			observed:   "203.0.113.10",
			wantStatus: StatusSecure,
		},
		{
			name: "ipv6 srflx against ipv4 observed address",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:2 1 udp 1677729535 203.0.113.10 61000 typ srflx raddr 0.0.0.0 rport 0",
				"candidate:4 1 udp 1677729279 2001:db8::1 61002 typ srflx raddr :: rport 0",
			}},
			observed:   "203.0.113.10",
			wantStatus: StatusSecure,
		},
		{
			name: "non-public observed address skips comparison",
			webrtc: WebRTCInfo{Supported: true, Candidates: []string{
				"candidate:2 1 udp 1677729535 198.51.100.77 61000 typ srflx raddr 0.0.0.0 rport 0",
			}},
			observed:   "127.0.0.1",
			wantStatus: StatusSecure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := runWebRTC(&ClientReport{WebRTC: tt.webrtc}, tt.observed)
			if v.Status != tt.wantStatus {
				t.Fatalf("Expected %s, got %s (%s)", tt.wantStatus, v.Status, v.Message)
			}
			if tt.wantMessage != "" && !strings.Contains(v.Message, tt.wantMessage) {
				t.Errorf("Expected message to contain %q, got %q", tt.wantMessage, v.Message)
			}
			if (v.Status == StatusSecure) != (v.Remediation == nil) {
				t.Errorf("remediation presence does not match status %s", v.Status)
			}
		})
	}
}

func TestWebRTCProbe_DangerAlsoReportsLocalLeak(t *testing.T) {
	v := runWebRTC(&ClientReport{WebRTC: WebRTCInfo{Supported: true, Candidates: []string{
		"candidate:1 1 udp 2113937151 10.0.0.5 54321 typ host",
		"candidate:2 1 udp 1677729535 198.51.100.77 61000 typ srflx raddr 10.0.0.5 rport 54321",
	}}}, "203.0.113.10")

	if !strings.HasPrefix(v.Message, "WebRTC reveals public address") {
		t.Errorf("Expected danger finding first, got %q", v.Message)
	}
	if !strings.Contains(v.Message, "10.0.0.5") {
		t.Errorf("Expected local leak in message, got %q", v.Message)
	}
	if len(v.Remediation.Links) == 0 {
		t.Error("Expected reference links")
	}
	if v.Remediation.Risk != riskProfiles[ProbeWebRTC].risk || v.Remediation.Impact == "" {
		t.Errorf("Expected WebRTC risk and impact, got %+v", v.Remediation)
	}
}
