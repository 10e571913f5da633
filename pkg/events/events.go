/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package events implements the synchronous lifecycle event bus. Topics
// form a fixed closed set; every transaction fires each lifecycle event
// exactly once, in the order Enqueue, PreDrive, PostDrive.
package events

import (
	"fmt"

	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// Kind identifies a lifecycle topic.
type Kind int

const (
	// Enqueue fires synchronously when a transaction is appended to a
	// driver's queue, before the enqueue call returns.
	Enqueue Kind = iota

	// PreDrive fires when a driver dequeues a transaction, before the
	// interface-level delivery begins.
	PreDrive

	// PostDrive fires after the interface-level delivery completes.
	PostDrive

	numKinds
)

func (k Kind) String() string {
	switch k {
	case Enqueue:
		return "ENQUEUE"
	case PreDrive:
		return "PRE_DRIVE"
	case PostDrive:
		return "POST_DRIVE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a topic name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "ENQUEUE":
		return Enqueue, true
	case "PRE_DRIVE":
		return PreDrive, true
	case "POST_DRIVE":
		return PostDrive, true
	}
	return 0, false
}

// Event is the payload delivered to subscribers: the emitting driver, the
// transaction, and the topic itself.
type Event struct {
	Kind   Kind
	Driver types.DriverID
	Txn    *transaction.Transaction
}

func (e Event) String() string {
	return fmt.Sprintf("%s driver=%s seq=%d", e.Kind, e.Driver, e.Txn.Seq())
}
