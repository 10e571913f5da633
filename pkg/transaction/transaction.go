/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transaction defines the data record that flows through the
// testbench engine: a mapping from field name to typed value plus
// engine-assigned metadata. A transaction is immutable once submitted;
// ownership transfers with the queue that currently holds it.
package transaction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/verikit-labs/verikit/pkg/types"
)

// Fields maps field names to typed values.
type Fields map[string]Value

// Transaction is a single stimulus or observation record. Metadata
// (sequence number, creation tick, origin) is assigned by the engine when
// the transaction is submitted to a driver queue or captured by a monitor.
type Transaction struct {
	seqNo     types.SeqNo
	createdAt types.Tick
	origin    string
	fields    Fields
	stamped   bool
}

// New constructs an unsubmitted transaction from the given fields.
// The field map is copied, so the caller may reuse it.
func New(fields Fields) *Transaction {
	fc := make(Fields, len(fields))
	for k, v := range fields {
		fc[k] = v
	}
	return &Transaction{fields: fc}
}

// Seq returns the engine-assigned sequence number. It is zero until the
// transaction has been submitted.
func (t *Transaction) Seq() types.SeqNo {
	return t.seqNo
}

// CreatedAt returns the logical clock tick at which the transaction was
// submitted to the engine.
func (t *Transaction) CreatedAt() types.Tick {
	return t.createdAt
}

// Origin returns the identity of the driver or monitor that submitted the
// transaction.
func (t *Transaction) Origin() string {
	return t.origin
}

// Stamped reports whether the transaction has been submitted and stamped.
func (t *Transaction) Stamped() bool {
	return t.stamped
}

// Field returns the named field value and whether it is present.
func (t *Transaction) Field(name string) (Value, bool) {
	v, ok := t.fields[name]
	return v, ok
}

// Uint returns the named field as an unsigned integer, or def if the field
// is absent or of a different kind.
func (t *Transaction) Uint(name string, def uint64) uint64 {
	v, ok := t.fields[name]
	if !ok || v.Kind != KindUint {
		return def
	}
	return v.Uint
}

// FieldNames returns the transaction's field names in sorted order.
func (t *Transaction) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports field-wise equality of two transactions. Metadata is
// deliberately excluded: a reference and an actual transaction carrying
// the same payload are equal even though they originate from different
// components at different ticks.
func (t *Transaction) Equal(o *Transaction) bool {
	if len(t.fields) != len(o.fields) {
		return false
	}
	for name, v := range t.fields {
		ov, ok := o.fields[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Diff returns a human-readable description of every field on which the
// two transactions differ, in sorted field order.
func (t *Transaction) Diff(o *Transaction) []string {
	var diffs []string
	for _, name := range t.FieldNames() {
		v := t.fields[name]
		ov, ok := o.fields[name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: %s != <absent>", name, v))
			continue
		}
		if !v.Equal(ov) {
			diffs = append(diffs, fmt.Sprintf("%s: %s != %s", name, v, ov))
		}
	}
	for _, name := range o.FieldNames() {
		if _, ok := t.fields[name]; !ok {
			diffs = append(diffs, fmt.Sprintf("%s: <absent> != %s", name, o.fields[name]))
		}
	}
	return diffs
}

func (t *Transaction) String() string {
	parts := make([]string, 0, len(t.fields))
	for _, name := range t.FieldNames() {
		parts = append(parts, fmt.Sprintf("%s=%s", name, t.fields[name]))
	}
	if !t.stamped {
		return fmt.Sprintf("{%s}", strings.Join(parts, " "))
	}
	return fmt.Sprintf("seq=%d@%d from=%s {%s}", t.seqNo, t.createdAt, t.origin, strings.Join(parts, " "))
}
