/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package random provides the bench-wide seeded randomization source.
// All stimulus randomization draws from a single source so that two runs
// with the same seed resolve identical values in identical order.
package random

import (
	prand "math/rand"
)

// DefaultSeed is used when no seed is configured.
const DefaultSeed int64 = 12345

// Source is a deterministic random source. It is not safe for concurrent
// use; the cooperative scheduler guarantees only one task draws at a time.
type Source struct {
	seed int64
	rng  *prand.Rand
}

// NewSource returns a source seeded with the given value.
func NewSource(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  prand.New(prand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Bits returns a uniformly random value with the given number of low bits
// set at most, e.g. Bits(32) draws a random 32-bit payload.
func (s *Source) Bits(n uint) uint64 {
	if n >= 64 {
		return s.rng.Uint64()
	}
	return s.rng.Uint64() & ((1 << n) - 1)
}

// IntRange returns a uniformly random integer in [min, max], inclusive on
// both ends to match declared argument ranges.
func (s *Source) IntRange(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + s.rng.Int63n(max-min+1)
}

// Float64Range returns a uniformly random float in [min, max).
func (s *Source) Float64Range(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

// Bool returns true with probability 0.5.
func (s *Source) Bool() bool {
	return s.rng.Intn(2) == 1
}

// WeightedBool returns true with the given probability.
func (s *Source) WeightedBool(pTrue float64) bool {
	return s.rng.Float64() < pTrue
}

// Choose returns an index into weights, drawn proportionally to the
// weights. Non-positive total weight resolves to index 0.
func (s *Source) Choose(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	draw := s.rng.Float64() * total
	for i, w := range weights {
		draw -= w
		if draw < 0 {
			return i
		}
	}
	return len(weights) - 1
}
