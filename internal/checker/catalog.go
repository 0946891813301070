package checker

import (
	"fmt"
	"strings"
	"time"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

const defaultProbeTimeout = consts.DefaultProbeTimeout

// Probe identifiers, in the order the checkup page lists them.
const (
	ProbeHTTPS       = "https"
	ProbeWebRTC      = "webrtc"
	ProbeDNS         = "dns"
	ProbeJavaScript  = "javascript"
	ProbeCookies     = "cookies"
	ProbeFingerprint = "fingerprint"
	ProbeHeaders     = "headers"
)

// ProbeOrder is the fixed display and execution order.
var ProbeOrder = []string{
	ProbeHTTPS,
	ProbeWebRTC,
	ProbeDNS,
	ProbeJavaScript,
	ProbeCookies,
	ProbeFingerprint,
	ProbeHeaders,
}

// probeInfo carries the static identity shared by every probe implementation.
type probeInfo struct {
	id          string
	title       string
	category    string
	description string
	requires    Requirement
}

func (p probeInfo) ID() string            { return p.id }
func (p probeInfo) Title() string         { return p.title }
func (p probeInfo) Category() string      { return p.category }
func (p probeInfo) Description() string   { return p.description }
func (p probeInfo) Requires() Requirement { return p.requires }

var probeInfos = map[string]probeInfo{
	ProbeHTTPS: {
		id:          ProbeHTTPS,
		title:       "HTTPS",
		category:    "Transport Security",
		description: "Verifies the connection is encrypted with a modern TLS version and a valid certificate",
		requires:    RequiresTargetOrClient,
	},
	ProbeWebRTC: {
		id:          ProbeWebRTC,
		title:       "WebRTC",
		category:    "Privacy",
		description: "Checks whether WebRTC ICE candidates leak local or public IP addresses",
		requires:    RequiresClient,
	},
	ProbeDNS: {
		id:          ProbeDNS,
		title:       "DNS",
		category:    "Network",
		description: "Probes resolver behaviour for NXDOMAIN rewriting and answer consistency",
		requires:    RequiresNothing,
	},
	ProbeJavaScript: {
		id:          ProbeJavaScript,
		title:       "JavaScript",
		category:    "Content Security",
		description: "Inventories scripts for mixed content and missing integrity, and checks the page context",
		requires:    RequiresTargetOrClient,
	},
	ProbeCookies: {
		id:          ProbeCookies,
		title:       "Cookies",
		category:    "Session Security",
		description: "Analyses Set-Cookie flags and domain scope",
		requires:    RequiresTargetOrClient,
	},
	ProbeFingerprint: {
		id:          ProbeFingerprint,
		title:       "Browser Fingerprinting",
		category:    "Privacy",
		description: "Estimates how identifying the browser's exposed attributes are",
		requires:    RequiresClient,
	},
	ProbeHeaders: {
		id:          ProbeHeaders,
		title:       "Security Headers",
		category:    "HTTP Hardening",
		description: "Scores the target's HTTP security response headers",
		requires:    RequiresTarget,
	},
}

// ProbeConfig tunes the live probes.
type ProbeConfig struct {
	Timeout      time.Duration
	Resolvers    []string // host:port of extra DNS resolvers to compare
	CanaryDomain string
	// Addresses limits which target addresses checks may connect to.
	Addresses AddressPolicy
}

// Catalog is an ordered set of probes.
type Catalog struct {
	probes []Probe
}

// NewCatalog builds a catalog preserving the given order.
func NewCatalog(probes ...Probe) *Catalog {
	return &Catalog{probes: append([]Probe(nil), probes...)}
}

// DefaultCatalog returns the live probes in ProbeOrder.
func DefaultCatalog(cfg ProbeConfig) *Catalog {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	canary := cfg.CanaryDomain
	if canary == "" {
		canary = consts.DefaultCanaryDomain
	}
	return NewCatalog(
		&HTTPSProbe{probeInfo: probeInfos[ProbeHTTPS], Timeout: timeout, Addresses: cfg.Addresses},
		&WebRTCProbe{probeInfo: probeInfos[ProbeWebRTC]},
		&DNSProbe{
			probeInfo:    probeInfos[ProbeDNS],
			Timeout:      timeout,
			Resolvers:    append([]string(nil), cfg.Resolvers...),
			CanaryDomain: canary,
		},
		&JavaScriptProbe{probeInfo: probeInfos[ProbeJavaScript]},
		&CookiesProbe{probeInfo: probeInfos[ProbeCookies]},
		&FingerprintProbe{probeInfo: probeInfos[ProbeFingerprint]},
		&HeadersProbe{probeInfo: probeInfos[ProbeHeaders]},
	)
}

// Probes returns a copy of the probe list.
func (c *Catalog) Probes() []Probe {
	if c == nil {
		return nil
	}
	return append([]Probe(nil), c.probes...)
}

// Len returns the number of probes.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.probes)
}

// Lookup finds a probe by id.
func (c *Catalog) Lookup(id string) (Probe, bool) {
	for _, p := range c.probes {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Select returns the subset named by ids, kept in catalog order.
// An empty ids selects everything.
func (c *Catalog) Select(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return NewCatalog(c.probes...), nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}
		if _, ok := c.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrUnknownProbe, raw)
		}
		wanted[id] = struct{}{}
	}
	selected := make([]Probe, 0, len(wanted))
	for _, p := range c.probes {
		if _, ok := wanted[p.ID()]; ok {
			selected = append(selected, p)
		}
	}
	return NewCatalog(selected...), nil
}

// ProbeDescriptor is the serializable description of a probe.
type ProbeDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description" yaml:"description"`
	Requires    string `json:"requires" yaml:"requires"`
	Links       []Link `json:"links,omitempty" yaml:"links,omitempty"`
}

// Describe lists the catalog for display.
func (c *Catalog) Describe() []ProbeDescriptor {
	out := make([]ProbeDescriptor, 0, len(c.probes))
	for _, p := range c.probes {
		out = append(out, ProbeDescriptor{
			ID:          p.ID(),
			Title:       p.Title(),
			Category:    p.Category(),
			Description: p.Description(),
			Requires:    p.Requires().String(),
			Links:       referenceLinks[p.ID()],
		})
	}
	return out
}
