/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status collects and renders verification findings. Findings are
// not errors in the Go sense: they are recorded with full context and
// surfaced as test failures at end of run, without aborting the run, so
// that later divergence is also observed.
package status

import (
	"bytes"
	"fmt"

	"github.com/verikit-labs/verikit/pkg/types"
)

// Kind classifies a verification finding.
type Kind string

const (
	// DeliveryTimeout indicates an interface-level handshake never
	// completed within the configured edge bound.
	DeliveryTimeout Kind = "DELIVERY_TIMEOUT"

	// MatchTimeout indicates a scoreboard match window elapsed with a
	// transaction still unmatched.
	MatchTimeout Kind = "MATCH_TIMEOUT"

	// Mismatch indicates a reference and an actual transaction were both
	// present but unequal.
	Mismatch Kind = "MISMATCH"

	// Unconsumed indicates a queue or channel was non-empty at teardown.
	Unconsumed Kind = "UNCONSUMED_AT_TEARDOWN"

	// Cancelled indicates an in-flight delivery was aborted by task
	// cancellation.
	Cancelled Kind = "CANCELLED"
)

// Finding is a single recorded verification failure.
type Finding struct {
	Kind    Kind            `json:"kind"`
	Driver  types.DriverID  `json:"driver,omitempty"`
	Channel types.ChannelID `json:"channel,omitempty"`
	Seq     types.SeqNo     `json:"seq,omitempty"`
	Tick    types.Tick      `json:"tick"`
	Age     types.Tick      `json:"age,omitempty"`
	Txn     string          `json:"txn,omitempty"`
	Detail  string          `json:"detail,omitempty"`
}

func (f Finding) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] tick=%d", f.Kind, f.Tick)
	if f.Driver != "" {
		fmt.Fprintf(&buf, " driver=%s", f.Driver)
	}
	if f.Channel != "" {
		fmt.Fprintf(&buf, " channel=%s", f.Channel)
	}
	if f.Seq != 0 {
		fmt.Fprintf(&buf, " seq=%d", f.Seq)
	}
	if f.Age != 0 {
		fmt.Fprintf(&buf, " age=%d", f.Age)
	}
	if f.Txn != "" {
		fmt.Fprintf(&buf, " txn=%s", f.Txn)
	}
	if f.Detail != "" {
		fmt.Fprintf(&buf, " detail=%q", f.Detail)
	}
	return buf.String()
}

// Reporter accumulates findings during a run. An optional observer is
// invoked synchronously on every report, which the bench uses to forward
// findings into the trace.
type Reporter struct {
	findings []Finding
	observer func(Finding)
}

// NewReporter returns an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Observe registers a callback invoked on every reported finding. It is
// set once at bench setup, never concurrently with Report.
func (r *Reporter) Observe(fn func(Finding)) {
	r.observer = fn
}

// Report records a finding.
func (r *Reporter) Report(f Finding) {
	r.findings = append(r.findings, f)
	if r.observer != nil {
		r.observer(f)
	}
}

// Findings returns all findings recorded so far, in report order.
func (r *Reporter) Findings() []Finding {
	out := make([]Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// Failed reports whether any finding has been recorded.
func (r *Reporter) Failed() bool {
	return len(r.findings) > 0
}

// CountByKind tallies findings per kind.
func (r *Reporter) CountByKind() map[Kind]int {
	counts := map[Kind]int{}
	for _, f := range r.findings {
		counts[f.Kind]++
	}
	return counts
}

// Pretty renders the findings as a human-readable report.
func (r *Reporter) Pretty() string {
	if len(r.findings) == 0 {
		return "no findings\n"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d finding(s):\n", len(r.findings))
	for i, f := range r.findings {
		fmt.Fprintf(&buf, "  %3d %s\n", i+1, f)
	}
	return buf.String()
}
