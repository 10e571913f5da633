/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transaction

import "fmt"

// ValueKind enumerates the types a transaction field may carry.
type ValueKind int

const (
	// KindUint is an unsigned integer field (signal payloads, counts).
	KindUint ValueKind = iota

	// KindBool is a boolean field (flags, handshake levels).
	KindBool

	// KindString is a categorical field (opcodes, symbolic states).
	KindString
)

// Value is a typed transaction field value. The zero Value is a KindUint
// zero, which keeps absent numeric fields comparable.
type Value struct {
	Kind ValueKind
	Uint uint64
	Bool bool
	Str  string
}

// U wraps an unsigned integer as a field value.
func U(v uint64) Value {
	return Value{Kind: KindUint, Uint: v}
}

// B wraps a boolean as a field value.
func B(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// S wraps a string as a field value.
func S(v string) Value {
	return Value{Kind: KindString, Str: v}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindUint:
		return v.Uint == o.Uint
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Str == o.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		return fmt.Sprintf("0x%x", v.Uint)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return v.Str
	}
}
