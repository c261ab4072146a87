// Package export persists intermediate and final refinement artifacts
// for offline inspection: per-stage depth/similarity maps, similarity
// volume cross-sections and sampled depth-profile CSVs.
//
// Every write is best-effort. Failures are logged to the ops stream and
// swallowed; the numeric pipeline never observes them, and exported data
// never influences computed results.
package export
