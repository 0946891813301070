// Package checker defines the secheckup probe framework.
//
// Architecture overview:
//
//   - Probes implement the Probe interface (identity, Requires, Run) and turn
//     an Input into a normalized Verdict with remediation guidance. The live
//     probes cover HTTPS, WebRTC, DNS, JavaScript, cookies, browser
//     fingerprinting and security headers; SimulatedCatalog replays canned
//     outcomes after fixed delays, and ExternalProbe adapts executables.
//   - Catalog keeps probes in their fixed display order. Runner executes a
//     catalog with bounded concurrency, a global start rate and a per-probe
//     timeout, and reports verdicts through a callback as they finish.
//   - Probes that inspect the target share one Snapshot, a memoised GET of
//     the target, so a run issues a single request.
//   - Browser-side attributes arrive as a ClientReport, produced by
//     collector.js either on the checkup page or in headless Chrome through
//     BrowserCollector.
package checker
