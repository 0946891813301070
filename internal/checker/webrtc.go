package checker

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
)

// WebRTCProbe classifies the ICE candidates the browser gathered. Host
// candidates carrying a raw private address leak the local network. A
// server-reflexive address of the same family as, but different from, the
// one the server observed means WebRTC bypasses the user's VPN or proxy.
// Relay and public host addresses are reported but never compared.
type WebRTCProbe struct {
	probeInfo
}

func (p *WebRTCProbe) Run(ctx context.Context, in Input) Verdict {
	c := in.Client
	a := newAssessment()
	a.set("supported", c.WebRTC.Supported)

	if !c.WebRTC.Supported {
		return a.verdict(ProbeWebRTC,
			"WebRTC is not available in this browser, so it cannot leak IP addresses", "")
	}
	if c.WebRTC.Error != "" {
		a.set("gathering_error", c.WebRTC.Error)
	}

	observed := net.ParseIP(strings.TrimSpace(in.ObservedIP))
	if observed != nil {
		a.set("observed_ip", observed.String())
	}

	var (
		candidates []Candidate
		malformed  int
		localLeaks = map[string]struct{}{}
		publicIPs  = map[string]struct{}{}
		reflexive  = map[string]struct{}{}
		mdns       int
	)
	for _, line := range c.WebRTC.Candidates {
		cand, err := ParseCandidate(line)
		if err != nil {
			malformed++
			continue
		}
		candidates = append(candidates, cand)
		if cand.MDNS() {
			mdns++
			continue
		}
		ip := cand.IP()
		switch {
		case ip == nil:
		case isPublicIP(ip):
			publicIPs[ip.String()] = struct{}{}
			if cand.Type == "srflx" {
				reflexive[ip.String()] = struct{}{}
			}
		case ip.IsPrivate() || ip.IsLinkLocalUnicast() || isSharedAddressSpace(ip):
			if cand.Type == "host" {
				localLeaks[ip.String()] = struct{}{}
			}
		}
	}

	a.set("candidates", candidates)
	a.set("mdns_candidates", mdns)
	if malformed > 0 {
		a.set("malformed_candidates", malformed)
	}

	if len(candidates) == 0 {
		return a.verdict(ProbeWebRTC,
			"WebRTC is enabled but gathered no ICE candidates", "")
	}

	if leaks := sortedKeys(localLeaks); len(leaks) > 0 {
		a.set("local_addresses", leaks)
		a.raise(StatusWarning,
			fmt.Sprintf("WebRTC exposes local address(es) %s", strings.Join(leaks, ", ")),
			"Enable mDNS host candidate obfuscation (default in current Chrome, Firefox and Safari)",
			"Install a WebRTC leak prevention extension or set the browser's WebRTC IP handling policy to 'default_public_interface_only'")
	}

	public := sortedKeys(publicIPs)
	if len(public) > 0 {
		a.set("public_addresses", public)
	}
	if isPublicIP(observed) {
		var mismatched []string
		for _, addr := range sortedKeys(reflexive) {
			ip := net.ParseIP(addr)
			if sameFamily(ip, observed) && !ip.Equal(observed) {
				mismatched = append(mismatched, addr)
			}
		}
		if len(mismatched) > 0 {
			a.raise(StatusDanger,
				fmt.Sprintf("WebRTC reveals public address(es) %s while this server sees %s; a VPN or proxy is being bypassed",
					strings.Join(mismatched, ", "), observed),
				"Disable non-proxied UDP in the browser's WebRTC policy",
				"Use a VPN client that blocks WebRTC traffic outside the tunnel")
		}
	} else if observed != nil && len(public) > 0 {
		a.set("comparison", "skipped: server observed a non-public address")
	}

	return a.verdict(ProbeWebRTC,
		"WebRTC is enabled but only exposes obfuscated or already-visible addresses",
		"Restrict WebRTC so it cannot reveal addresses outside your VPN or proxy.")
}

func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
