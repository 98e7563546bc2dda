// Package scanner abstracts the virus-scanning capability consumed by the
// upload pipeline.
package scanner

import (
	"context"
	"io"
)

// Verdict is the outcome of a completed scan.
type Verdict int

const (
	// VerdictClean means no threat was detected.
	VerdictClean Verdict = iota
	// VerdictInfected means the content matched a known threat.
	VerdictInfected
)

// Result carries the scan verdict and, for infected content, the threat name.
type Result struct {
	Verdict Verdict
	Threat  string
}

// Scanner scans content streams for malware.
type Scanner interface {
	// Scan consumes r and returns a verdict. An error means the scan could
	// not be completed, not that the content is infected.
	Scan(ctx context.Context, r io.Reader) (Result, error)

	// HealthCheck reports whether the scanning backend is reachable.
	HealthCheck(ctx context.Context) bool
}
