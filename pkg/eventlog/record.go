/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package eventlog captures the engine's lifecycle events into a
// replayable stream: size-prefixed JSON records behind gzip. The format
// is understood by cmd/benchcat.
package eventlog

import (
	"fmt"
)

// Kind classifies a trace record.
type Kind string

const (
	// KindHeader is the first record of every trace, carrying run identity.
	KindHeader Kind = "header"

	// KindTick marks the logical clock advancing one edge.
	KindTick Kind = "tick"

	// KindResume marks a task being handed control.
	KindResume Kind = "task-resume"

	// KindSuspend marks a task parking with a suspension reason.
	KindSuspend Kind = "task-suspend"

	// KindDone marks a task running to completion.
	KindDone Kind = "task-done"

	// KindBus is a lifecycle bus event (ENQUEUE, PRE_DRIVE, POST_DRIVE).
	KindBus Kind = "bus"

	// KindMatch is a scoreboard match.
	KindMatch Kind = "match"

	// KindFinding is a recorded verification finding.
	KindFinding Kind = "finding"
)

// Record is one trace entry. Field presence depends on the kind; Time is
// milliseconds since the interceptor was created, for log synchronization
// only, never for engine semantics.
type Record struct {
	Kind    Kind              `json:"kind"`
	Tick    uint64            `json:"tick"`
	Time    int64             `json:"time,omitempty"`
	Task    string            `json:"task,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Topic   string            `json:"topic,omitempty"`
	Driver  string            `json:"driver,omitempty"`
	Channel string            `json:"channel,omitempty"`
	Seq     uint64            `json:"seq,omitempty"`
	RunID   string            `json:"runId,omitempty"`
	Seed    int64             `json:"seed,omitempty"`
	Detail  string            `json:"detail,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (r *Record) String() string {
	s := fmt.Sprintf("%-12s tick=%-6d", r.Kind, r.Tick)
	if r.Task != "" {
		s += " task=" + r.Task
	}
	if r.Reason != "" {
		s += " reason=" + r.Reason
	}
	if r.Topic != "" {
		s += " topic=" + r.Topic
	}
	if r.Driver != "" {
		s += " driver=" + r.Driver
	}
	if r.Channel != "" {
		s += " channel=" + r.Channel
	}
	if r.Seq != 0 {
		s += fmt.Sprintf(" seq=%d", r.Seq)
	}
	if r.RunID != "" {
		s += " run=" + r.RunID
	}
	if r.Detail != "" {
		s += fmt.Sprintf(" detail=%q", r.Detail)
	}
	return s
}

// Sink consumes trace records. The bench forwards engine lifecycle
// events into whichever sink it is configured with.
type Sink interface {
	Intercept(record *Record) error
}
