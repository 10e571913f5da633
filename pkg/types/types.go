/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package types

import "fmt"

// ================================================================================

// Tick represents a discrete simulated clock edge. All engine timing is
// expressed in ticks; the engine never samples wall-clock time.
type Tick uint64

// ================================================================================

// SeqNo represents the engine-assigned, monotonically increasing sequence
// number of a transaction. Sequence numbers are unique across the whole
// bench, not per component.
type SeqNo uint64

// ================================================================================

// DriverID identifies a registered driver by name.
type DriverID string

// MonitorID identifies a registered monitor by name.
type MonitorID string

// SequenceID identifies a registered stimulus sequence by name.
type SequenceID string

// ChannelID identifies a scoreboard channel by name.
type ChannelID string

// ================================================================================

// TaskID is the numeric handle of a scheduled task, assigned in
// registration order. Registration order determines resumption order.
type TaskID int

func (tid TaskID) String() string {
	return fmt.Sprintf("task-%d", int(tid))
}

// ================================================================================

// LockOwner identifies the holder of a driver lock. An empty LockOwner
// means the lock is free.
type LockOwner string

// NoOwner is the LockOwner value of a free lock.
const NoOwner LockOwner = ""
