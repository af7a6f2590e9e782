// Mgmt
// Copyright (C) James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// Value represents an immutable runtime value. Composite values are only ever
// built by construction, never updated in place.
type Value interface {
	fmt.Stringer

	// Linear returns true if this value holds a resource somewhere in it,
	// which means it must be consumed exactly once.
	Linear() bool
}

// UnitValue is the single value of the unit type. It is also what nil is.
type UnitValue struct{}

// String returns the literal form of this value.
func (obj *UnitValue) String() string { return "nil" }

// Linear is always false for this value.
func (obj *UnitValue) Linear() bool { return false }

// BoolValue is a boolean.
type BoolValue struct {
	V bool
}

// String returns the literal form of this value.
func (obj *BoolValue) String() string {
	if obj.V {
		return "true"
	}
	return "false"
}

// Linear is always false for this value.
func (obj *BoolValue) Linear() bool { return false }

// IntValue is a signed 64 bit integer.
type IntValue struct {
	V int64
}

// String returns the literal form of this value.
func (obj *IntValue) String() string { return fmt.Sprintf("%d", obj.V) }

// Linear is always false for this value.
func (obj *IntValue) Linear() bool { return false }

// StrValue is a string.
type StrValue struct {
	V string
}

// String returns the quoted literal form of this value.
func (obj *StrValue) String() string { return Quote(obj.V) }

// Linear is always false for this value.
func (obj *StrValue) Linear() bool { return false }

// SymbolValue is an interned name, written as 'name in source.
type SymbolValue struct {
	V string
}

// String returns the quoted symbol.
func (obj *SymbolValue) String() string { return "'" + obj.V }

// Linear is always false for this value.
func (obj *SymbolValue) Linear() bool { return false }

// ListValue is an ordered list.
type ListValue struct {
	V []Value
}

// String returns the list constructor form of this value.
func (obj *ListValue) String() string {
	s := []string{"list"}
	for _, x := range obj.V {
		s = append(s, x.String())
	}
	return "(" + strings.Join(s, " ") + ")"
}

// Linear returns true if any element is linear.
func (obj *ListValue) Linear() bool {
	for _, x := range obj.V {
		if x.Linear() {
			return true
		}
	}
	return false
}

// RecordValue is a record, which is a map from field names to values.
type RecordValue struct {
	V map[string]Value
}

// Keys returns the sorted field names of this record.
func (obj *RecordValue) Keys() []string {
	keys := []string{}
	for k := range obj.V {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the record constructor form of this value. Fields are sorted.
func (obj *RecordValue) String() string {
	s := []string{"record"}
	for _, k := range obj.Keys() {
		s = append(s, fmt.Sprintf("(%s %s)", k, obj.V[k].String()))
	}
	return "(" + strings.Join(s, " ") + ")"
}

// Linear returns true if any field is linear.
func (obj *RecordValue) Linear() bool {
	for _, x := range obj.V {
		if x.Linear() {
			return true
		}
	}
	return false
}

// ProductValue is the result of a tensor.
type ProductValue struct {
	L Value
	R Value
}

// String returns the tensor constructor form of this value.
func (obj *ProductValue) String() string {
	return fmt.Sprintf("(tensor %s %s)", obj.L.String(), obj.R.String())
}

// Linear returns true if either side is linear.
func (obj *ProductValue) Linear() bool { return obj.L.Linear() || obj.R.Linear() }

// SumValue is one side of a tagged union.
type SumValue struct {
	Right bool
	V     Value
}

// String returns the injection form of this value.
func (obj *SumValue) String() string {
	if obj.Right {
		return fmt.Sprintf("(inr %s)", obj.V.String())
	}
	return fmt.Sprintf("(inl %s)", obj.V.String())
}

// Linear returns true if the payload is linear.
func (obj *SumValue) Linear() bool { return obj.V.Linear() }

// ResourceValue is a handle to a linear resource. The ID is deterministic and
// unique within an execution. The value it holds is released by consuming it.
type ResourceValue struct {
	ID string
	V  Value
}

// String returns a printable form of this resource. It does not include the
// id, since that is an artifact of the execution and not of the program.
func (obj *ResourceValue) String() string {
	return fmt.Sprintf("(resource %s)", obj.V.String())
}

// Linear is always true for this value.
func (obj *ResourceValue) Linear() bool { return true }

// RefValue is a reference to some content by its id.
type RefValue struct {
	ID string
}

// String returns a printable form of this reference.
func (obj *RefValue) String() string { return fmt.Sprintf("(ref %s)", obj.ID) }

// Linear is always false for this value.
func (obj *RefValue) Linear() bool { return false }

// ClosureValue is a function value built by the interpreter. The body is stored
// as the id of an expression, and the environment only holds the captured free
// variables. If Self is set, the closure is recursive, and that name is bound
// to the closure itself whenever it is called.
type ClosureValue struct {
	Params []string
	Self   string
	Body   string
	Env    map[string]Value
}

// String returns a printable form of this closure.
func (obj *ClosureValue) String() string {
	if obj.Self != "" {
		return fmt.Sprintf("(closure %s (%s))", obj.Self, strings.Join(obj.Params, " "))
	}
	return fmt.Sprintf("(closure (%s))", strings.Join(obj.Params, " "))
}

// Linear is always false for closures. Closures that would capture a linear
// value are rejected before they can be built.
func (obj *ClosureValue) Linear() bool { return false }

// Equal returns true if the two values are structurally identical. Resources
// are only equal if they have the same id and hold equal values.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case *UnitValue:
		_, ok := b.(*UnitValue)
		return ok
	case *BoolValue:
		y, ok := b.(*BoolValue)
		return ok && x.V == y.V
	case *IntValue:
		y, ok := b.(*IntValue)
		return ok && x.V == y.V
	case *StrValue:
		y, ok := b.(*StrValue)
		return ok && x.V == y.V
	case *SymbolValue:
		y, ok := b.(*SymbolValue)
		return ok && x.V == y.V
	case *RefValue:
		y, ok := b.(*RefValue)
		return ok && x.ID == y.ID

	case *ListValue:
		y, ok := b.(*ListValue)
		if !ok || len(x.V) != len(y.V) {
			return false
		}
		for i := range x.V {
			if !Equal(x.V[i], y.V[i]) {
				return false
			}
		}
		return true

	case *RecordValue:
		y, ok := b.(*RecordValue)
		if !ok || len(x.V) != len(y.V) {
			return false
		}
		for k, v := range x.V {
			w, exists := y.V[k]
			if !exists || !Equal(v, w) {
				return false
			}
		}
		return true

	case *ProductValue:
		y, ok := b.(*ProductValue)
		return ok && Equal(x.L, y.L) && Equal(x.R, y.R)

	case *SumValue:
		y, ok := b.(*SumValue)
		return ok && x.Right == y.Right && Equal(x.V, y.V)

	case *ResourceValue:
		y, ok := b.(*ResourceValue)
		return ok && x.ID == y.ID && Equal(x.V, y.V)
	}

	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String() // closures and foreign values
}

// Resources returns every resource contained in the value, in a stable order.
func Resources(v Value) []*ResourceValue {
	out := []*ResourceValue{}
	switch x := v.(type) {
	case *ResourceValue:
		out = append(out, x)
	case *ListValue:
		for _, e := range x.V {
			out = append(out, Resources(e)...)
		}
	case *RecordValue:
		for _, k := range x.Keys() {
			out = append(out, Resources(x.V[k])...)
		}
	case *ProductValue:
		out = append(out, Resources(x.L)...)
		out = append(out, Resources(x.R)...)
	case *SumValue:
		out = append(out, Resources(x.V)...)
	}
	return out
}

// Quote returns the string literal for s, escaping only the characters that
// the lexer knows how to unescape.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
