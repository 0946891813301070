package checker

import (
	_ "embed"
)

// CollectorScript defines window.secheckupCollect in the browser. The
// checkup page loads it as a static asset.
//
//go:embed collector.js
var CollectorScript string

// collectExpression evaluates to a promise of a ClientReport.
var collectExpression = CollectorScript + "\n;window.secheckupCollect()"
