/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transaction

import (
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/types"
)

// Stamper assigns sequence numbers and submission metadata. A single
// stamper is shared bench-wide so that sequence numbers are globally
// monotonic, which is what makes traces totally ordered.
type Stamper struct {
	next types.SeqNo
}

// NewStamper returns a stamper whose first assigned sequence number is 1.
// Zero is reserved to mean "not yet submitted".
func NewStamper() *Stamper {
	return &Stamper{next: 1}
}

// Stamp marks the transaction as submitted at the given tick by the given
// origin and assigns the next sequence number. A transaction may be
// stamped only once; restamping indicates the caller is re-submitting an
// already owned record.
func (s *Stamper) Stamp(t *Transaction, now types.Tick, origin string) error {
	if t.stamped {
		return errors.Errorf("transaction seq=%d already submitted by %s", t.seqNo, t.origin)
	}
	t.seqNo = s.next
	t.createdAt = now
	t.origin = origin
	t.stamped = true
	s.next++
	return nil
}
