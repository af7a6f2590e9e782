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

// Package types provides the type system and the runtime values of the
// language.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/purpleidea/causality/util/disjoint"
)

// Elem is the union-find element used to track unification variables. The Data
// of the representative element is the type the whole set was solved to, or nil
// if it is still unsolved.
type Elem = disjoint.Elem[*Type]

// Basic types. These are never mutated, so they can be shared freely.
var (
	TypeUnit   = &Type{Kind: KindUnit}
	TypeBool   = &Type{Kind: KindBool}
	TypeInt    = &Type{Kind: KindInt}
	TypeStr    = &Type{Kind: KindStr}
	TypeSymbol = &Type{Kind: KindSymbol}
)

// Kind represents the base type of each value.
type Kind int // this used to be called Type

// Each Kind represents a type in the language type system.
const (
	KindUnification Kind = iota
	KindUnit
	KindBool
	KindInt
	KindStr
	KindSymbol
	KindFunc
	KindProduct
	KindSum
	KindRecord
	KindResource
	KindList
)

// Type is the datastructure representing any type. It can be recursive for the
// composite kinds.
type Type struct {
	Kind Kind

	Val *Type // if Kind == List or Resource, use Val only

	// If Kind == Record, Map and Ord hold the known fields, and Tail is nil
	// for a closed record, or a unification variable standing for the rest
	// of an open one. Ord is always sorted.
	Map  map[string]*Type
	Ord  []string
	Tail *Type

	Args []*Type // if Kind == Func, the inputs, if Product or Sum, both sides
	Out  *Type   // if Kind == Func, the output

	Uni *Elem // if Kind == Unification, the variable
}

// NewUni returns a new unsolved unification variable.
func NewUni() *Type {
	return &Type{
		Kind: KindUnification,
		Uni:  disjoint.NewElem[*Type](),
	}
}

// NewFunc returns a linear function type from the args to the output.
func NewFunc(out *Type, args ...*Type) *Type {
	return &Type{
		Kind: KindFunc,
		Args: args,
		Out:  out,
	}
}

// NewProduct returns the type of a tensor of a and b.
func NewProduct(a, b *Type) *Type {
	return &Type{
		Kind: KindProduct,
		Args: []*Type{a, b},
	}
}

// NewSum returns the type of a tagged union of a and b.
func NewSum(a, b *Type) *Type {
	return &Type{
		Kind: KindSum,
		Args: []*Type{a, b},
	}
}

// NewList returns the list type of the element type.
func NewList(val *Type) *Type {
	return &Type{
		Kind: KindList,
		Val:  val,
	}
}

// NewResource returns the linear resource type which wraps the value type.
func NewResource(val *Type) *Type {
	return &Type{
		Kind: KindResource,
		Val:  val,
	}
}

// NewRecord returns a record type with these fields. If tail is nil the record
// is closed, otherwise tail must be a unification variable, and the record is
// open.
func NewRecord(fields map[string]*Type, tail *Type) *Type {
	m := make(map[string]*Type, len(fields))
	ord := []string{}
	for k, v := range fields {
		m[k] = v
		ord = append(ord, k)
	}
	sort.Strings(ord)
	return &Type{
		Kind: KindRecord,
		Map:  m,
		Ord:  ord,
		Tail: tail,
	}
}

// Prune follows solved unification variables until it reaches either a
// concrete type or an unsolved variable.
func (obj *Type) Prune() *Type {
	t := obj
	for t != nil && t.Kind == KindUnification {
		data := t.Uni.Find().Data
		if data == nil {
			return t
		}
		t = data
	}
	return t
}

// Fields returns every known field of a record type, following any tail that
// has been solved to another record. It also returns the final tail, which is
// nil when the record is closed.
func (obj *Type) Fields() (map[string]*Type, *Type) {
	m := make(map[string]*Type)
	t := obj.Prune()
	for {
		for k, v := range t.Map {
			m[k] = v
		}
		if t.Tail == nil {
			return m, nil
		}
		tail := t.Tail.Prune()
		if tail.Kind != KindRecord {
			return m, tail
		}
		t = tail
	}
}

// Resolve returns a copy of this type with all the solved unification
// variables substituted in, and all record tails flattened. Unsolved variables
// are left in place.
func (obj *Type) Resolve() *Type {
	t := obj.Prune()
	switch t.Kind {
	case KindList, KindResource:
		return &Type{Kind: t.Kind, Val: t.Val.Resolve()}

	case KindFunc:
		args := []*Type{}
		for _, x := range t.Args {
			args = append(args, x.Resolve())
		}
		return NewFunc(t.Out.Resolve(), args...)

	case KindProduct, KindSum:
		return &Type{Kind: t.Kind, Args: []*Type{t.Args[0].Resolve(), t.Args[1].Resolve()}}

	case KindRecord:
		fields, tail := t.Fields()
		m := make(map[string]*Type)
		for k, v := range fields {
			m[k] = v.Resolve()
		}
		return NewRecord(m, tail)
	}

	return t // basic types and unsolved variables
}

// Instantiate returns a copy of this type where every unsolved unification
// variable has been replaced by a fresh one. Variables which were joined stay
// joined in the copy. This is used so that annotations stored in the syntax
// tree are never mutated by a type check.
func (obj *Type) Instantiate() *Type {
	return obj.instantiate(make(map[*Elem]*Type))
}

func (obj *Type) instantiate(fresh map[*Elem]*Type) *Type {
	t := obj.Prune()
	switch t.Kind {
	case KindUnification:
		root := t.Uni.Find()
		if x, exists := fresh[root]; exists {
			return x
		}
		x := NewUni()
		fresh[root] = x
		return x

	case KindList, KindResource:
		return &Type{Kind: t.Kind, Val: t.Val.instantiate(fresh)}

	case KindFunc:
		args := []*Type{}
		for _, x := range t.Args {
			args = append(args, x.instantiate(fresh))
		}
		return NewFunc(t.Out.instantiate(fresh), args...)

	case KindProduct, KindSum:
		return &Type{Kind: t.Kind, Args: []*Type{t.Args[0].instantiate(fresh), t.Args[1].instantiate(fresh)}}

	case KindRecord:
		fields, tail := t.Fields()
		m := make(map[string]*Type)
		for k, v := range fields {
			m[k] = v.instantiate(fresh)
		}
		if tail != nil {
			tail = tail.instantiate(fresh)
		}
		return NewRecord(m, tail)
	}

	return t
}

// IsLinear returns true if values of this type must be used exactly once. This
// is the case for resources and for anything built out of one. Functions are
// never linear, and unsolved variables are treated as non-linear.
func (obj *Type) IsLinear() bool {
	t := obj.Prune()
	switch t.Kind {
	case KindResource:
		return true

	case KindList:
		return t.Val.IsLinear()

	case KindProduct, KindSum:
		return t.Args[0].IsLinear() || t.Args[1].IsLinear()

	case KindRecord:
		fields, _ := t.Fields()
		for _, v := range fields {
			if v.IsLinear() {
				return true
			}
		}
	}
	return false
}

// HasUni returns true if this type still contains an unsolved variable.
func (obj *Type) HasUni() bool {
	t := obj.Prune()
	switch t.Kind {
	case KindUnification:
		return true
	case KindList, KindResource:
		return t.Val.HasUni()
	case KindFunc:
		for _, x := range t.Args {
			if x.HasUni() {
				return true
			}
		}
		return t.Out.HasUni()
	case KindProduct, KindSum:
		return t.Args[0].HasUni() || t.Args[1].HasUni()
	case KindRecord:
		fields, tail := t.Fields()
		for _, v := range fields {
			if v.HasUni() {
				return true
			}
		}
		return tail != nil
	}
	return false
}

// String returns the textual representation of this type. This is the same
// syntax that is used for type annotations, except that an unsolved variable
// prints as a question mark. The open tail of a record prints as an ampersand.
func (obj *Type) String() string {
	t := obj.Prune()
	switch t.Kind {
	case KindUnification:
		return "?"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindSymbol:
		return "symbol"

	case KindList:
		if t.Val == nil {
			panic("malformed list type")
		}
		return fmt.Sprintf("(list %s)", t.Val.String())

	case KindResource:
		if t.Val == nil {
			panic("malformed resource type")
		}
		return fmt.Sprintf("(resource %s)", t.Val.String())

	case KindFunc:
		if t.Out == nil {
			panic("malformed func type")
		}
		s := []string{"-o"}
		for _, x := range t.Args {
			s = append(s, x.String())
		}
		s = append(s, t.Out.String())
		return "(" + strings.Join(s, " ") + ")"

	case KindProduct, KindSum:
		if len(t.Args) != 2 {
			panic("malformed binary type")
		}
		op := "*"
		if t.Kind == KindSum {
			op = "+"
		}
		return fmt.Sprintf("(%s %s %s)", op, t.Args[0].String(), t.Args[1].String())

	case KindRecord:
		fields, tail := t.Fields()
		keys := []string{}
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := []string{"record"}
		for _, k := range keys {
			s = append(s, fmt.Sprintf("(%s %s)", k, fields[k].String()))
		}
		if tail != nil {
			s = append(s, "&")
		}
		return "(" + strings.Join(s, " ") + ")"
	}

	panic("malformed type")
}

// Cmp compares this type to another. Unsolved variables only compare equal to
// variables in the same set.
func (obj *Type) Cmp(typ *Type) error {
	a, b := obj.Prune(), typ.Prune()
	if a == nil || b == nil {
		if a != b {
			return fmt.Errorf("cannot compare to nil")
		}
		return nil
	}
	if a.Kind != b.Kind {
		return fmt.Errorf("base kind does not match (%s != %s)", a, b)
	}

	switch a.Kind {
	case KindUnification:
		if !disjoint.IsConnected(a.Uni, b.Uni) {
			return fmt.Errorf("unification variables differ")
		}

	case KindList, KindResource:
		return a.Val.Cmp(b.Val)

	case KindFunc:
		if len(a.Args) != len(b.Args) {
			return fmt.Errorf("func arg count differs (%d != %d)", len(a.Args), len(b.Args))
		}
		for i := range a.Args {
			if err := a.Args[i].Cmp(b.Args[i]); err != nil {
				return err
			}
		}
		return a.Out.Cmp(b.Out)

	case KindProduct, KindSum:
		if err := a.Args[0].Cmp(b.Args[0]); err != nil {
			return err
		}
		return a.Args[1].Cmp(b.Args[1])

	case KindRecord:
		fa, ta := a.Fields()
		fb, tb := b.Fields()
		if len(fa) != len(fb) {
			return fmt.Errorf("record field count differs (%d != %d)", len(fa), len(fb))
		}
		for k, v := range fa {
			x, exists := fb[k]
			if !exists {
				return fmt.Errorf("record field `%s` missing", k)
			}
			if err := v.Cmp(x); err != nil {
				return err
			}
		}
		if (ta == nil) != (tb == nil) {
			return fmt.Errorf("record openness differs")
		}
		if ta != nil {
			return ta.Cmp(tb)
		}
	}

	return nil
}
