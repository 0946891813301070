package checker

import (
	"context"
	"time"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

// SimulatedProbe resolves to a canned verdict after a fixed delay. It backs
// the demo mode of the checkup page, where nothing is inspected.
type SimulatedProbe struct {
	probeInfo
	Delay   time.Duration
	Resolve func(in Input) Verdict
}

func (p *SimulatedProbe) Run(ctx context.Context, in Input) Verdict {
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return cancelledVerdict()
	}
	v := p.Resolve(in)
	if v.Remediation != nil && len(v.Remediation.Links) == 0 {
		v.Remediation.Links = append([]Link(nil), referenceLinks[p.id]...)
	}
	v.Remediation = withRisk(p.id, v.Remediation)
	return v
}

// DefaultSimulatedDelay staggers the canned results in catalog order.
func DefaultSimulatedDelay(id string) time.Duration {
	for i, probeID := range ProbeOrder {
		if probeID == id {
			return consts.SimulatedBaseDelay + time.Duration(i)*consts.SimulatedStepDelay
		}
	}
	return consts.SimulatedBaseDelay
}

// SimulatedCatalog returns canned probes in ProbeOrder. delay defaults to
// DefaultSimulatedDelay. Only the WebRTC and JavaScript entries look at the
// browser report, and only at feature presence.
func SimulatedCatalog(delay func(id string) time.Duration) *Catalog {
	if delay == nil {
		delay = DefaultSimulatedDelay
	}
	probes := make([]Probe, 0, len(ProbeOrder))
	for _, id := range ProbeOrder {
		info := probeInfos[id]
		info.requires = RequiresNothing
		probes = append(probes, &SimulatedProbe{
			probeInfo: info,
			Delay:     delay(id),
			Resolve:   simulatedOutcomes[id],
		})
	}
	return NewCatalog(probes...)
}

func canned(status Status, message, summary string, steps ...string) func(Input) Verdict {
	return func(Input) Verdict {
		v := Verdict{Status: status, Message: message}
		if status != StatusSecure {
			v.Remediation = &Remediation{Summary: summary, Steps: steps}
		}
		return v
	}
}

var simulatedOutcomes = map[string]func(Input) Verdict{
	ProbeHTTPS: canned(StatusSecure, "Your connection is encrypted with HTTPS", ""),
	ProbeWebRTC: func(in Input) Verdict {
		if in.Client != nil && !in.Client.WebRTC.Supported {
			return Verdict{Status: StatusSecure, Message: "WebRTC is disabled, so it cannot leak your IP address"}
		}
		return Verdict{
			Status:  StatusWarning,
			Message: "WebRTC is enabled and may leak your real IP address",
			Remediation: &Remediation{
				Summary: "Disable WebRTC or install an extension that prevents WebRTC IP leaks.",
				Steps:   []string{"Set the browser's WebRTC IP handling policy to 'disable_non_proxied_udp'"},
			},
		}
	},
	ProbeDNS: canned(StatusWarning,
		"Your DNS requests may not be encrypted",
		"Use DNS over HTTPS or DNS over TLS with a trusted resolver.",
		"Enable secure DNS in your browser settings"),
	ProbeJavaScript: func(in Input) Verdict {
		if in.Client != nil && !in.Client.JavaScript.Enabled {
			return Verdict{Status: StatusSecure, Message: "JavaScript is disabled"}
		}
		return Verdict{
			Status:  StatusWarning,
			Message: "JavaScript is enabled; malicious scripts could run on untrusted sites",
			Remediation: &Remediation{
				Summary: "Use a script blocker to allow JavaScript only on sites you trust.",
			},
		}
	},
	ProbeCookies: canned(StatusWarning,
		"Third-party cookies may be enabled",
		"Block third-party cookies in your browser's privacy settings."),
	ProbeFingerprint: canned(StatusDanger,
		"Your browser has a unique fingerprint that can be used to track you",
		"Use a browser with built-in fingerprinting protection.",
		"Try Tor Browser, Brave or Firefox with resistFingerprinting enabled"),
	ProbeHeaders: canned(StatusWarning,
		"Some security headers could not be verified",
		"Websites should send Content-Security-Policy, Strict-Transport-Security and X-Frame-Options."),
}
