package checker

import (
	"regexp"
	"strconv"
	"strings"
)

// VulnerableLibrary is a script whose URL names a version with known flaws.
type VulnerableLibrary struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	FixedIn  string   `json:"fixed_in"`
	CVEs     []string `json:"cves"`
	Critical bool     `json:"critical"`
	Src      string   `json:"src"`
}

type libraryRule struct {
	name     string
	pattern  *regexp.Regexp
	fixedIn  string
	cves     []string
	critical bool
}

// libraryRules match versions embedded in CDN and vendored file paths,
// e.g. jquery-3.4.1.min.js or /ajax/libs/lodash.js/4.17.10/lodash.min.js.
var libraryRules = []libraryRule{
	{"jQuery", regexp.MustCompile(`jquery[/@-](\d+\.\d+(?:\.\d+)?)`), "3.5.0", []string{"CVE-2020-11022", "CVE-2020-11023"}, false},
	{"AngularJS", regexp.MustCompile(`angular(?:js)?(?:\.js)?[/@-](1\.\d+(?:\.\d+)?)`), "1.8.0", []string{"CVE-2019-10768", "CVE-2020-7676"}, true},
	{"Lodash", regexp.MustCompile(`lodash(?:\.js)?[/@-](\d+\.\d+(?:\.\d+)?)`), "4.17.21", []string{"CVE-2019-10744", "CVE-2021-23337"}, true},
	{"Moment.js", regexp.MustCompile(`moment(?:\.js)?[/@-](\d+\.\d+(?:\.\d+)?)`), "2.29.4", []string{"CVE-2022-24785", "CVE-2022-31129"}, false},
	{"Bootstrap", regexp.MustCompile(`bootstrap[/@-](\d+\.\d+(?:\.\d+)?)`), "3.4.1", []string{"CVE-2019-8331"}, false},
	{"Handlebars", regexp.MustCompile(`handlebars(?:\.js)?[/@-](\d+\.\d+(?:\.\d+)?)`), "4.7.7", []string{"CVE-2021-23369"}, true},
}

// DetectVulnerableLibraries matches script URLs against libraryRules.
func DetectVulnerableLibraries(srcs []string) []VulnerableLibrary {
	var out []VulnerableLibrary
	for _, src := range srcs {
		lower := strings.ToLower(src)
		for _, rule := range libraryRules {
			m := rule.pattern.FindStringSubmatch(lower)
			if len(m) < 2 {
				continue
			}
			if compareVersion(m[1], rule.fixedIn) >= 0 {
				continue
			}
			out = append(out, VulnerableLibrary{
				Name:     rule.name,
				Version:  m[1],
				FixedIn:  rule.fixedIn,
				CVEs:     rule.cves,
				Critical: rule.critical,
				Src:      src,
			})
			break
		}
	}
	return out
}

// compareVersion compares dotted numeric versions; missing parts are zero.
func compareVersion(v1, v2 string) int {
	p1 := strings.Split(v1, ".")
	p2 := strings.Split(v2, ".")
	for i := 0; i < len(p1) || i < len(p2); i++ {
		var n1, n2 int
		if i < len(p1) {
			n1, _ = strconv.Atoi(p1[i])
		}
		if i < len(p2) {
			n2, _ = strconv.Atoi(p2[i])
		}
		switch {
		case n1 < n2:
			return -1
		case n1 > n2:
			return 1
		}
	}
	return 0
}
