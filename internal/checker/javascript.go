package checker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// ScriptInfo is one <script> element found on the target page.
type ScriptInfo struct {
	Src          string `json:"src"`
	ThirdParty   bool   `json:"third_party"`
	Integrity    bool   `json:"integrity"`
	MixedContent bool   `json:"mixed_content"`
}

// ScriptInventory summarises the scripts of a page.
type ScriptInventory struct {
	External []ScriptInfo `json:"external,omitempty"`
	Inline   int          `json:"inline"`
}

// JavaScriptProbe inventories the target's scripts and checks the
// browser's script execution context.
type JavaScriptProbe struct {
	probeInfo
}

func (p *JavaScriptProbe) Run(ctx context.Context, in Input) Verdict {
	a := newAssessment()

	if c := in.Client; c != nil {
		a.set("client", c.JavaScript)
		if !c.SecureContext {
			a.raise(StatusWarning,
				"scripts on this page run outside a secure context, so powerful APIs are exposed over an insecure channel",
				"Load pages over HTTPS so scripts run in a secure context")
		}
		if c.Webdriver {
			a.set("webdriver", true)
		}
	}

	if in.Target != nil {
		page, err := in.Snapshot.Fetch(ctx)
		if err != nil {
			if in.Client == nil {
				return failed(ProbeJavaScript, fmt.Sprintf("could not load %s: %v", in.Target.FullURL, err))
			}
			a.set("target_error", err.Error())
		} else {
			base := page.FinalURL
			if base == nil {
				base, _ = url.Parse(in.Target.FullURL)
			}
			inv, err := InventoryScripts(page.Body, base)
			if err != nil {
				a.set("parse_error", err.Error())
			} else {
				p.assessInventory(a, inv)
			}
		}
	}

	secure := "Scripts run in a secure context"
	if in.Target != nil {
		secure = "Every script is loaded securely and third-party scripts are pinned with integrity hashes"
	}
	return a.verdict(ProbeJavaScript, secure,
		"Load every script over HTTPS and pin third-party scripts with Subresource Integrity.")
}

func (p *JavaScriptProbe) assessInventory(a *assessment, inv *ScriptInventory) {
	a.set("scripts", inv)

	var mixed, unpinned []string
	for _, s := range inv.External {
		if s.MixedContent {
			mixed = append(mixed, s.Src)
		}
		if s.ThirdParty && !s.Integrity {
			unpinned = append(unpinned, s.Src)
		}
	}
	if len(mixed) > 0 {
		a.raise(StatusDanger,
			fmt.Sprintf("%d script(s) load over plain HTTP on an HTTPS page: %s", len(mixed), strings.Join(mixed, ", ")),
			"Serve every script over https://")
	}
	if len(unpinned) > 0 {
		a.raise(StatusWarning,
			fmt.Sprintf("%d third-party script(s) lack an integrity attribute", len(unpinned)),
			"Add integrity and crossorigin attributes to third-party <script> tags")
	}

	srcs := make([]string, 0, len(inv.External))
	for _, s := range inv.External {
		srcs = append(srcs, s.Src)
	}
	vulns := DetectVulnerableLibraries(srcs)
	if len(vulns) == 0 {
		return
	}
	a.set("vulnerable_libraries", vulns)
	for _, v := range vulns {
		status := StatusWarning
		if v.Critical {
			status = StatusDanger
		}
		a.raise(status,
			fmt.Sprintf("%s %s has known vulnerabilities (%s)", v.Name, v.Version, strings.Join(v.CVEs, ", ")),
			fmt.Sprintf("Upgrade %s to %s or later", v.Name, v.FixedIn))
	}
}

// InventoryScripts parses an HTML body and classifies its <script> tags
// relative to base.
func InventoryScripts(body []byte, base *url.URL) (*ScriptInventory, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	inv := &ScriptInventory{}
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			if strings.TrimSpace(sel.Text()) != "" {
				inv.Inline++
			}
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		integrity, _ := sel.Attr("integrity")
		info := ScriptInfo{
			Src:       abs.String(),
			Integrity: strings.TrimSpace(integrity) != "",
		}
		if base != nil {
			info.ThirdParty = !sameSite(base.Hostname(), abs.Hostname())
			info.MixedContent = base.Scheme == "https" && abs.Scheme == "http"
		}
		inv.External = append(inv.External, info)
	})
	return inv, nil
}

// sameSite compares registrable domains, falling back to exact host
// equality for IPs and single-label hosts.
func sameSite(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	ea, errA := publicsuffix.EffectiveTLDPlusOne(a)
	eb, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}
	return ea == eb
}
