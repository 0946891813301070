package checker

import (
	"strings"
)

// referenceLinks are attached to every non-secure verdict of a probe.
var referenceLinks = map[string][]Link{
	ProbeHTTPS: {
		{Title: "MDN: Transport Layer Security", URL: "https://developer.mozilla.org/en-US/docs/Web/Security/Transport_Layer_Security"},
		{Title: "Mozilla SSL Configuration Generator", URL: "https://ssl-config.mozilla.org/"},
	},
	ProbeWebRTC: {
		{Title: "IETF: WebRTC IP Address Handling", URL: "https://datatracker.ietf.org/doc/html/rfc8828"},
		{Title: "MDN: RTCPeerConnection", URL: "https://developer.mozilla.org/en-US/docs/Web/API/RTCPeerConnection"},
	},
	ProbeDNS: {
		{Title: "Cloudflare: What is DNS over HTTPS", URL: "https://www.cloudflare.com/learning/dns/dns-over-tls/"},
		{Title: "RFC 7208: Sender Policy Framework", URL: "https://datatracker.ietf.org/doc/html/rfc7208"},
	},
	ProbeJavaScript: {
		{Title: "MDN: Subresource Integrity", URL: "https://developer.mozilla.org/en-US/docs/Web/Security/Subresource_Integrity"},
		{Title: "MDN: Mixed content", URL: "https://developer.mozilla.org/en-US/docs/Web/Security/Mixed_content"},
	},
	ProbeCookies: {
		{Title: "MDN: Set-Cookie", URL: "https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Set-Cookie"},
		{Title: "OWASP Session Management Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Session_Management_Cheat_Sheet.html"},
	},
	ProbeFingerprint: {
		{Title: "EFF Cover Your Tracks", URL: "https://coveryourtracks.eff.org/"},
		{Title: "Tor Browser fingerprinting protections", URL: "https://support.torproject.org/glossary/browser-fingerprinting/"},
	},
	ProbeHeaders: {
		{Title: "OWASP Secure Headers Project", URL: "https://owasp.org/www-project-secure-headers/"},
		{Title: "MDN: HTTP headers", URL: "https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers"},
	},
}

type riskProfile struct {
	risk   string
	impact string
}

// riskProfiles describe what a non-secure verdict of each probe exposes.
var riskProfiles = map[string]riskProfile{
	ProbeHTTPS: {
		risk:   "Unencrypted or weakly encrypted connections can be intercepted",
		impact: "Traffic to the site can be read or modified by anyone on the network path",
	},
	ProbeWebRTC: {
		risk:   "WebRTC can reveal your real IP address even behind a VPN",
		impact: "Your location and local network can be identified during calls or by any page",
	},
	ProbeDNS: {
		risk:   "DNS queries are not protected from the network",
		impact: "Your ISP or resolver can see and rewrite the sites you look up",
	},
	ProbeJavaScript: {
		risk:   "Scripts run without integrity or transport guarantees",
		impact: "A tampered script can steal data or act on your behalf in the page",
	},
	ProbeCookies: {
		risk:   "Cookies can be read, sent cross-site or used for tracking",
		impact: "Sessions can be hijacked and browsing can be followed across sites",
	},
	ProbeFingerprint: {
		risk:   "Your browser exposes enough attributes to be uniquely identified",
		impact: "Websites can recognise you across sessions without cookies",
	},
	ProbeHeaders: {
		risk:   "Missing security headers leave browser protections switched off",
		impact: "The site is easier to attack with clickjacking, XSS or downgrade attacks",
	},
}

// withRisk fills empty risk and impact text from the probe's profile.
func withRisk(probeID string, r *Remediation) *Remediation {
	if r == nil {
		return nil
	}
	profile := riskProfiles[probeID]
	if r.Risk == "" {
		r.Risk = profile.risk
	}
	if r.Impact == "" {
		r.Impact = profile.impact
	}
	return r
}

// assessment accumulates findings while a probe runs and turns them into a
// verdict. Messages are kept per severity so the verdict message leads with
// the worst finding.
type assessment struct {
	status   Status
	findings map[Status][]string
	steps    []string
	details  map[string]interface{}
}

func newAssessment() *assessment {
	return &assessment{
		status:   StatusSecure,
		findings: make(map[Status][]string),
		details:  make(map[string]interface{}),
	}
}

// raise records a finding at the given status together with optional fix steps.
func (a *assessment) raise(status Status, message string, steps ...string) {
	a.status = Worst(a.status, status)
	a.findings[status] = append(a.findings[status], message)
	for _, step := range steps {
		a.addStep(step)
	}
}

func (a *assessment) addStep(step string) {
	if step == "" {
		return
	}
	for _, existing := range a.steps {
		if existing == step {
			return
		}
	}
	a.steps = append(a.steps, step)
}

func (a *assessment) set(key string, value interface{}) {
	a.details[key] = value
}

// message joins findings worst first.
func (a *assessment) message() string {
	var parts []string
	for _, s := range []Status{StatusDanger, StatusWarning, StatusSecure} {
		parts = append(parts, a.findings[s]...)
	}
	return strings.Join(parts, "; ")
}

// verdict builds the final verdict. secureMessage is used when nothing was
// raised; summary heads the remediation of a non-secure verdict.
func (a *assessment) verdict(probeID, secureMessage, summary string) Verdict {
	v := Verdict{Status: a.status}
	if len(a.details) > 0 {
		v.Details = a.details
	}
	msg := a.message()
	if a.status == StatusSecure {
		if msg == "" {
			msg = secureMessage
		}
		v.Message = msg
		return v
	}
	v.Message = msg
	v.Remediation = withRisk(probeID, &Remediation{
		Summary: summary,
		Steps:   append([]string(nil), a.steps...),
		Links:   append([]Link(nil), referenceLinks[probeID]...),
	})
	return v
}

// failed is the verdict for a probe that could not evaluate its input.
func failed(probeID, message string) Verdict {
	return Verdict{
		Status:  StatusUnknown,
		Message: message,
		Remediation: &Remediation{
			Summary: "The check could not complete. Verify the target is reachable and re-run the checkup.",
			Links:   append([]Link(nil), referenceLinks[probeID]...),
		},
	}
}
