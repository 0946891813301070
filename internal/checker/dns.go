package checker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// DNSResolver is the subset of *net.Resolver the DNS probe uses.
type DNSResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

const systemResolverName = "system"

// DNSProbe probes resolver behaviour. A random label under CanaryDomain
// must not resolve; any answer means the resolver rewrites NXDOMAIN. When
// a target is set, every resolver's answer for it is compared and the
// target's mail-related records are inspected.
type DNSProbe struct {
	probeInfo
	Timeout      time.Duration
	Resolvers    []string // host:port; the system resolver is always used
	CanaryDomain string

	// NewResolver builds the resolver for a server ("" = system). Tests
	// replace it.
	NewResolver func(server string, timeout time.Duration) DNSResolver
	// Label generates the random canary label.
	Label func() string
}

type resolverAnswer struct {
	Resolver string   `json:"resolver"`
	Answers  []string `json:"answers,omitempty"`
	NotFound bool     `json:"not_found,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (p *DNSProbe) Run(ctx context.Context, in Input) Verdict {
	a := newAssessment()
	servers := append([]string{""}, p.Resolvers...)

	canary := p.label() + "." + strings.TrimSuffix(p.CanaryDomain, ".")
	a.set("canary", canary)
	canaryAnswers := p.lookupAll(ctx, servers, canary)
	a.set("nxdomain_probe", canaryAnswers)

	if ctx.Err() != nil {
		return failed(ProbeDNS, "DNS probing was interrupted: "+ctx.Err().Error())
	}

	reachable := 0
	for _, ans := range canaryAnswers {
		switch {
		case len(ans.Answers) > 0:
			reachable++
			a.raise(StatusDanger,
				fmt.Sprintf("%s resolver answered %s for a name that does not exist (NXDOMAIN rewriting)",
					ans.Resolver, strings.Join(ans.Answers, ", ")),
				"Switch to a resolver that does not redirect failed lookups (for example 1.1.1.1 or 9.9.9.9)",
				"Enable DNS over HTTPS in the browser or operating system")
		case ans.NotFound:
			reachable++
		default:
			a.raise(StatusWarning, fmt.Sprintf("%s resolver failed: %s", ans.Resolver, ans.Error),
				"Check that the configured resolver is reachable")
		}
	}
	if reachable == 0 {
		return failed(ProbeDNS, "no resolver answered the NXDOMAIN probe")
	}

	if in.Target != nil && !in.Target.IsIP() {
		p.inspectTarget(ctx, a, servers, in.Target.Host)
	}

	return a.verdict(ProbeDNS,
		"Resolvers answer honestly and consistently",
		"Use a trustworthy, encrypted DNS resolver and publish complete mail authentication records.")
}

func (p *DNSProbe) inspectTarget(ctx context.Context, a *assessment, servers []string, host string) {
	answers := p.lookupAll(ctx, servers, host)
	a.set("target_answers", answers)

	var resolved []resolverAnswer
	for _, ans := range answers {
		if len(ans.Answers) > 0 {
			resolved = append(resolved, ans)
		}
	}
	if len(resolved) == 0 {
		a.raise(StatusWarning, fmt.Sprintf("%s does not resolve", host))
		return
	}
	if disjoint := disjointAnswers(resolved); len(disjoint) > 0 {
		a.raise(StatusWarning,
			fmt.Sprintf("resolvers disagree about %s (%s); this is either CDN geo-routing or DNS tampering",
				host, strings.Join(disjoint, " vs ")),
			"Compare the answers with a trusted resolver over an encrypted transport")
	}

	records := p.targetRecords(ctx, host)
	a.set("records", records)

	if mx, ok := records["mx_records"].([]string); ok && len(mx) > 0 {
		txt, _ := records["txt_records"].([]string)
		if !hasPrefixRecord(txt, "v=spf1") {
			a.raise(StatusWarning,
				fmt.Sprintf("%s receives mail but publishes no SPF record", host),
				"Publish an SPF TXT record listing the hosts allowed to send mail")
		}
		dmarc, _ := records["dmarc_records"].([]string)
		if !hasPrefixRecord(dmarc, "v=dmarc1") {
			a.raise(StatusWarning,
				fmt.Sprintf("%s receives mail but publishes no DMARC policy", host),
				"Publish a _dmarc TXT record with at least p=quarantine")
		}
	}
}

// lookupAll resolves name through every server concurrently.
func (p *DNSProbe) lookupAll(ctx context.Context, servers []string, name string) []resolverAnswer {
	rp := pool.NewWithResults[resolverAnswer]().WithMaxGoroutines(len(servers))
	for _, server := range servers {
		server := server
		rp.Go(func() resolverAnswer {
			label := server
			if label == "" {
				label = systemResolverName
			}
			ans := resolverAnswer{Resolver: label}
			lookupCtx, cancel := context.WithTimeout(ctx, p.timeout())
			defer cancel()

			addrs, err := p.resolver(server).LookupHost(lookupCtx, name)
			if err != nil {
				var dnsErr *net.DNSError
				if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
					ans.NotFound = true
				} else {
					ans.Error = err.Error()
				}
				return ans
			}
			sort.Strings(addrs)
			ans.Answers = addrs
			return ans
		})
	}
	results := rp.Wait()
	sort.Slice(results, func(i, j int) bool {
		return resolverRank(results[i].Resolver) < resolverRank(results[j].Resolver) ||
			(resolverRank(results[i].Resolver) == resolverRank(results[j].Resolver) && results[i].Resolver < results[j].Resolver)
	})
	return results
}

// targetRecords collects informational records through the system resolver.
func (p *DNSProbe) targetRecords(ctx context.Context, host string) map[string]interface{} {
	records := make(map[string]interface{})
	r := p.resolver("")

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if cname, err := r.LookupCNAME(lookupCtx, host); err == nil && cname != host && cname != host+"." {
		records["cname"] = cname
	}
	if mx, err := r.LookupMX(lookupCtx, host); err == nil && len(mx) > 0 {
		hosts := make([]string, 0, len(mx))
		for _, m := range mx {
			hosts = append(hosts, fmt.Sprintf("%d %s", m.Pref, m.Host))
		}
		records["mx_records"] = hosts
	}
	if ns, err := r.LookupNS(lookupCtx, host); err == nil && len(ns) > 0 {
		hosts := make([]string, 0, len(ns))
		for _, n := range ns {
			hosts = append(hosts, n.Host)
		}
		records["ns_records"] = hosts
	}
	if txt, err := r.LookupTXT(lookupCtx, host); err == nil && len(txt) > 0 {
		records["txt_records"] = txt
	}
	if dmarc, err := r.LookupTXT(lookupCtx, "_dmarc."+host); err == nil && len(dmarc) > 0 {
		records["dmarc_records"] = dmarc
	}
	return records
}

func (p *DNSProbe) resolver(server string) DNSResolver {
	if p.NewResolver != nil {
		return p.NewResolver(server, p.timeout())
	}
	return newNetResolver(server, p.timeout())
}

func (p *DNSProbe) timeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultProbeTimeout
	}
	return p.Timeout
}

func (p *DNSProbe) label() string {
	if p.Label != nil {
		return p.Label()
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("nx-%d", time.Now().UnixNano())
	}
	return "nx-" + hex.EncodeToString(b)
}

// newNetResolver returns the pure-Go resolver, pinned to server when set.
func newNetResolver(server string, timeout time.Duration) DNSResolver {
	resolver := &net.Resolver{PreferGo: true}
	if server != "" {
		dialer := &net.Dialer{Timeout: timeout}
		resolver.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, server)
		}
	}
	return resolver
}

func resolverRank(name string) int {
	if name == systemResolverName {
		return 0
	}
	return 1
}

// disjointAnswers returns "a vs b" descriptions for resolver pairs whose
// answer sets share no address.
func disjointAnswers(answers []resolverAnswer) []string {
	var out []string
	for i := 0; i < len(answers); i++ {
		for j := i + 1; j < len(answers); j++ {
			if !overlaps(answers[i].Answers, answers[j].Answers) {
				out = append(out, fmt.Sprintf("%s=%s", answers[i].Resolver, strings.Join(answers[i].Answers, ",")))
				out = append(out, fmt.Sprintf("%s=%s", answers[j].Resolver, strings.Join(answers[j].Answers, ",")))
				return out
			}
		}
	}
	return out
}

func overlaps(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}

func hasPrefixRecord(records []string, prefix string) bool {
	for _, r := range records {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r)), prefix) {
			return true
		}
	}
	return false
}
