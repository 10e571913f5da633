/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package simio provides a map-backed implementation of the interface
// binding abstraction: named signals readable and writable synchronously.
// It stands in for the signal-level simulator in tests and local runs.
package simio

// Signals is an in-memory bundle of named signal values. The zero value
// of an unset signal is whatever default the reader supplies, matching
// uninitialized-wire semantics.
type Signals struct {
	values map[string]uint64
	reset  bool
}

// New returns an empty signal bundle.
func New() *Signals {
	return &Signals{values: map[string]uint64{}}
}

// Get reads a signal, returning def when the signal has never been set.
func (s *Signals) Get(name string, def uint64) uint64 {
	v, ok := s.values[name]
	if !ok {
		return def
	}
	return v
}

// Set writes a signal.
func (s *Signals) Set(name string, v uint64) {
	s.values[name] = v
}

// SetReset asserts or deasserts the bundle's reset line.
func (s *Signals) SetReset(asserted bool) {
	s.reset = asserted
}

// Reset reports whether reset is asserted.
func (s *Signals) Reset() bool {
	return s.reset
}
