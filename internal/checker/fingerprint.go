package checker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	fingerprintDangerBits  = 18.0
	fingerprintWarningBits = 12.0
)

// AttributeEntropy is the identifying information one attribute adds.
type AttributeEntropy struct {
	Name  string  `json:"name"`
	Value string  `json:"value"`
	Bits  float64 `json:"bits"`
}

// FingerprintEstimate is the total over all exposed attributes.
type FingerprintEstimate struct {
	Attributes []AttributeEntropy `json:"attributes"`
	Bits       float64            `json:"bits"`
	// OneIn is the estimated size of the anonymity set.
	OneIn float64 `json:"one_in"`
}

// valueFrequency maps a common value to the share of browsers reporting it.
// Values not listed use the attribute's rare frequency.
type valueFrequency struct {
	common map[string]float64
	rare   float64
}

var fingerprintTable = map[string]valueFrequency{
	"languages": {common: map[string]float64{
		"en-US": 0.30, "en-US,en": 0.25, "en-GB,en": 0.05, "de-DE,de": 0.04,
		"fr-FR,fr": 0.03, "es-ES,es": 0.03, "ja-JP,ja": 0.02, "zh-CN,zh": 0.04,
	}, rare: 0.005},
	"platform": {common: map[string]float64{
		"Win32": 0.55, "MacIntel": 0.20, "Linux x86_64": 0.05, "iPhone": 0.10,
		"Linux armv8l": 0.04, "Linux aarch64": 0.03,
	}, rare: 0.01},
	"timezone": {common: map[string]float64{
		"America/New_York": 0.10, "America/Chicago": 0.05, "America/Los_Angeles": 0.07,
		"Europe/London": 0.05, "Europe/Berlin": 0.04, "Europe/Paris": 0.03,
		"Asia/Kolkata": 0.05, "Asia/Shanghai": 0.05, "Asia/Tokyo": 0.03, "UTC": 0.02,
	}, rare: 0.005},
	"screen": {common: map[string]float64{
		"1920x1080x24": 0.22, "1366x768x24": 0.08, "1536x864x24": 0.07, "1440x900x24": 0.04,
		"2560x1440x24": 0.04, "1280x720x24": 0.03, "390x844x24": 0.04, "393x873x24": 0.02,
		"414x896x24": 0.02, "375x667x24": 0.02, "1280x800x24": 0.02,
	}, rare: 0.002},
	"hardware_concurrency": {common: map[string]float64{
		"4": 0.25, "8": 0.35, "12": 0.08, "16": 0.08, "2": 0.05, "6": 0.06,
	}, rare: 0.02},
	"device_memory": {common: map[string]float64{
		"8": 0.55, "4": 0.20, "2": 0.05, "16": 0.05,
	}, rare: 0.05},
	"touch_points": {common: map[string]float64{
		"0": 0.65, "5": 0.15, "10": 0.10,
	}, rare: 0.03},
	"do_not_track": {common: map[string]float64{
		"": 0.85, "unspecified": 0.85, "1": 0.12,
	}, rare: 0.03},
	"plugins": {common: map[string]float64{
		"": 0.25, "pdf-viewer-set": 0.65,
	}, rare: 0.01},
}

// Bits for attributes whose values are too diverse for a table.
const (
	userAgentCommonBits = 7.0
	userAgentRareBits   = 11.0
	canvasBits          = 8.5
	webglBits           = 4.5
)

// EstimateFingerprint sums the surprisal of every exposed attribute. The
// attributes are treated as independent, which overestimates the total for
// correlated values; the result is an upper bound.
func EstimateFingerprint(c *ClientReport) FingerprintEstimate {
	var attrs []AttributeEntropy
	add := func(name, value string, bits float64) {
		if bits <= 0 {
			return
		}
		attrs = append(attrs, AttributeEntropy{Name: name, Value: value, Bits: round2(bits)})
	}
	lookup := func(name, value string) {
		add(name, value, surprisal(fingerprintTable[name], value))
	}

	if c.UserAgent != "" {
		bits := userAgentRareBits
		if commonUserAgent(c.UserAgent) {
			bits = userAgentCommonBits
		}
		add("user_agent", c.UserAgent, bits)
	}
	if len(c.Languages) > 0 {
		lookup("languages", strings.Join(c.Languages, ","))
	}
	if c.Platform != "" {
		lookup("platform", c.Platform)
	}
	if c.Timezone != "" {
		lookup("timezone", c.Timezone)
	}
	if c.Screen.Width > 0 && c.Screen.Height > 0 {
		lookup("screen", fmt.Sprintf("%dx%dx%d", c.Screen.Width, c.Screen.Height, c.Screen.ColorDepth))
	}
	if c.HardwareConcurrency > 0 {
		lookup("hardware_concurrency", fmt.Sprint(c.HardwareConcurrency))
	}
	if c.DeviceMemory > 0 {
		lookup("device_memory", fmt.Sprint(c.DeviceMemory))
	}
	lookup("plugins", pluginKey(c.Plugins))
	lookup("touch_points", fmt.Sprint(c.TouchPoints))
	lookup("do_not_track", c.DoNotTrack)
	if c.CanvasHash != "" {
		add("canvas", c.CanvasHash, canvasBits)
	}
	if c.WebGLRenderer != "" {
		add("webgl_renderer", c.WebGLRenderer, webglBits)
	}

	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Bits > attrs[j].Bits })

	var total float64
	for _, a := range attrs {
		total += a.Bits
	}
	return FingerprintEstimate{
		Attributes: attrs,
		Bits:       round2(total),
		OneIn:      math.Round(math.Pow(2, total)),
	}
}

// FingerprintProbe estimates how identifying the browser is.
type FingerprintProbe struct {
	probeInfo
}

func (p *FingerprintProbe) Run(ctx context.Context, in Input) Verdict {
	est := EstimateFingerprint(in.Client)
	a := newAssessment()
	a.set("bits", est.Bits)
	a.set("one_in", est.OneIn)
	a.set("attributes", est.Attributes)

	top := make([]string, 0, 3)
	for i := 0; i < len(est.Attributes) && i < 3; i++ {
		top = append(top, est.Attributes[i].Name)
	}
	summary := fmt.Sprintf("your browser exposes about %.1f bits of identifying information (roughly 1 in %s browsers share it)",
		est.Bits, formatOneIn(est.OneIn))
	if len(top) > 0 {
		summary += "; most identifying: " + strings.Join(top, ", ")
	}

	steps := []string{
		"Use a browser with fingerprinting protection (Tor Browser, Brave, or Firefox with privacy.resistFingerprinting)",
		"Block canvas and WebGL readback for sites you do not trust",
		"Avoid uncommon extensions, fonts and display settings that make the browser stand out",
	}
	switch {
	case est.Bits >= fingerprintDangerBits:
		a.raise(StatusDanger, "Likely unique: "+summary, steps...)
	case est.Bits >= fingerprintWarningBits:
		a.raise(StatusWarning, "Fairly identifiable: "+summary, steps...)
	default:
		return a.verdict(ProbeFingerprint, "Blends in: "+summary, "")
	}
	return a.verdict(ProbeFingerprint, "",
		"Reduce the attributes your browser exposes so it blends in with many others.")
}

func surprisal(table valueFrequency, value string) float64 {
	freq, ok := table.common[value]
	if !ok {
		freq = table.rare
	}
	if freq <= 0 || freq >= 1 {
		return 0
	}
	return -math.Log2(freq)
}

func commonUserAgent(ua string) bool {
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "OPR/"):
		return false
	case strings.Contains(ua, "Chrome/") && (strings.Contains(ua, "Windows NT 10.0") || strings.Contains(ua, "Macintosh") || strings.Contains(ua, "Android")):
		return true
	case strings.Contains(ua, "iPhone") && strings.Contains(ua, "Safari/"):
		return true
	case strings.Contains(ua, "Firefox/") && strings.Contains(ua, "Windows NT 10.0"):
		return true
	}
	return false
}

// pluginKey collapses the fixed PDF viewer list modern browsers report.
func pluginKey(plugins []string) string {
	if len(plugins) == 0 {
		return ""
	}
	for _, p := range plugins {
		if !strings.Contains(strings.ToLower(p), "pdf") {
			return strings.Join(plugins, ",")
		}
	}
	return "pdf-viewer-set"
}

func formatOneIn(n float64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.1f billion", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.1f million", n/1e6)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
