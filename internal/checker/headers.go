package checker

import (
	"context"
	"fmt"
	"strings"
)

// HeadersProbe grades the security response headers of the target and
// flags CORS headers that expose credentialed responses.
type HeadersProbe struct {
	probeInfo
}

func (p *HeadersProbe) Run(ctx context.Context, in Input) Verdict {
	page, err := in.Snapshot.Fetch(ctx)
	if err != nil {
		return failed(ProbeHeaders, fmt.Sprintf("could not load %s: %v", in.Target.FullURL, err))
	}

	report := AnalyzeSecurityHeaders(page.Header)
	a := newAssessment()
	a.set("grade", report.Grade)
	a.set("score", report.Score)
	a.set("max_score", report.MaxScore)
	a.set("headers", report.Headers)
	a.set("status_code", page.StatusCode)
	if len(report.Warnings) > 0 {
		a.set("warnings", report.Warnings)
	}

	summary := fmt.Sprintf("Security headers earn grade %s (%d/%d)", report.Grade, report.Score, report.MaxScore)
	if len(report.Missing) > 0 {
		summary += ", missing " + strings.Join(report.Missing, ", ")
	}
	switch report.Grade {
	case "A", "B":
	case "C", "D":
		a.raise(StatusWarning, summary, report.Steps...)
	default:
		a.raise(StatusDanger, summary, report.Steps...)
	}

	if cors := AnalyzeCORS(page.Header); cors != nil {
		a.set("cors", cors)
		if cors.Severe {
			a.raise(StatusDanger, "CORS lets other origins read credentialed responses: "+strings.Join(cors.Issues, "; "),
				"Allow only an explicit list of trusted origins when Access-Control-Allow-Credentials is true")
		}
	}

	return a.verdict(ProbeHeaders, summary,
		"Send the missing security headers from the web server or application.")
}
