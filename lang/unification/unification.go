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

// Package unification contains the unification algorithm that the type checker
// uses to solve types. Record types are unified with row polymorphism: the
// known fields of both sides are merged, and the leftovers flow into the open
// tails.
package unification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/purpleidea/causality/lang/types"
)

// Unify takes two types and tries to make them equivalent. It works by drawing
// conclusions from the assertion that both sides are equal: a variable on one
// side must be equal to the sub-tree at the same position on the other side.
// This modifies the solution stored in the variables of the inputs. If it
// errors, some of those variables may have been solved anyways, so a failed
// unification should abort the whole check.
func Unify(typ1, typ2 *types.Type) error {
	if typ1 == nil || typ2 == nil {
		return fmt.Errorf("nil type")
	}
	typ1, typ2 = typ1.Prune(), typ2.Prune()

	// Both of these are of the form ?1 and ?2, and both are unsolved,
	// otherwise prune would have followed them.
	if typ1.Kind == types.KindUnification && typ2.Kind == types.KindUnification {
		typ1.Uni.Union(typ2.Uni) // both data fields are empty
		return nil
	}
	if typ1.Kind == types.KindUnification {
		return bind(typ1, typ2)
	}
	if typ2.Kind == types.KindUnification {
		return bind(typ2, typ1)
	}

	if k1, k2 := typ1.Kind, typ2.Kind; k1 != k2 {
		return &Error{Have: typ1, Want: typ2}
	}

	switch typ1.Kind {
	case types.KindUnit, types.KindBool, types.KindInt, types.KindStr, types.KindSymbol:
		return nil

	case types.KindList, types.KindResource:
		return Unify(typ1.Val, typ2.Val)

	case types.KindFunc:
		if l1, l2 := len(typ1.Args), len(typ2.Args); l1 != l2 {
			return fmt.Errorf("func arity differs: %d != %d", l1, l2)
		}
		for i := range typ1.Args {
			if err := Unify(typ1.Args[i], typ2.Args[i]); err != nil {
				return err
			}
		}
		return Unify(typ1.Out, typ2.Out)

	case types.KindProduct, types.KindSum:
		if err := Unify(typ1.Args[0], typ2.Args[0]); err != nil {
			return err
		}
		return Unify(typ1.Args[1], typ2.Args[1])

	case types.KindRecord:
		return unifyRecords(typ1, typ2)
	}

	// programming error
	return fmt.Errorf("unhandled type case")
}

// bind solves the unsolved variable uni to typ.
func bind(uni, typ *types.Type) error {
	root := uni.Uni.Find()
	if err := OccursCheck(root, typ); err != nil {
		return err
	}
	root.Data = typ // learn!
	return nil
}

// unifyRecords merges the rows of two record types. Fields known on both sides
// must unify. A field known on only one side must be absorbed by the tail of
// the other side, which is only possible if that side is open.
func unifyRecords(typ1, typ2 *types.Type) error {
	fields1, tail1 := typ1.Fields()
	fields2, tail2 := typ2.Fields()

	for _, k := range sortedKeys(fields1) {
		if x, exists := fields2[k]; exists {
			if err := Unify(fields1[k], x); err != nil {
				return fmt.Errorf("field `%s`: %w", k, err)
			}
		}
	}

	only1 := extra(fields1, fields2)
	only2 := extra(fields2, fields1)

	if len(only2) > 0 && tail1 == nil {
		return &RowError{Fields: sortedKeys(only2), Closed: typ1}
	}
	if len(only1) > 0 && tail2 == nil {
		return &RowError{Fields: sortedKeys(only1), Closed: typ2}
	}

	switch {
	case tail1 == nil && tail2 == nil:
		return nil

	case tail1 != nil && tail2 == nil:
		return bind(tail1, types.NewRecord(only2, nil))

	case tail1 == nil && tail2 != nil:
		return bind(tail2, types.NewRecord(only1, nil))
	}

	// both open
	if tail1.Cmp(tail2) == nil { // same row variable
		if len(only1) > 0 || len(only2) > 0 {
			return fmt.Errorf("records share a tail but differ in fields")
		}
		return nil
	}
	rest := types.NewUni()
	if err := bind(tail1, types.NewRecord(only2, rest)); err != nil {
		return err
	}
	return bind(tail2, types.NewRecord(only1, rest))
}

// OccursCheck determines if elem exists inside of this type. This is important
// so that we can avoid infinite self-referential types. This must only be
// called on an elem whose set is still unsolved.
func OccursCheck(elem *types.Elem, typ *types.Type) error {
	if elem == nil {
		panic("nil elem")
	}
	if typ == nil {
		panic("nil type")
	}
	t := typ.Prune()

	switch t.Kind {
	case types.KindUnification:
		if elem.Find() == t.Uni.Find() {
			return fmt.Errorf("directly in the same set")
		}
		return nil

	case types.KindList, types.KindResource:
		return OccursCheck(elem, t.Val)

	case types.KindFunc:
		for _, x := range t.Args {
			if err := OccursCheck(elem, x); err != nil {
				return err
			}
		}
		return OccursCheck(elem, t.Out)

	case types.KindProduct, types.KindSum:
		if err := OccursCheck(elem, t.Args[0]); err != nil {
			return err
		}
		return OccursCheck(elem, t.Args[1])

	case types.KindRecord:
		fields, tail := t.Fields()
		for _, k := range sortedKeys(fields) {
			if err := OccursCheck(elem, fields[k]); err != nil {
				return err
			}
		}
		if tail != nil {
			return OccursCheck(elem, tail)
		}
	}

	return nil
}

// Error is returned when two types of a different kind are unified.
type Error struct {
	Have *types.Type
	Want *types.Type
}

// Error returns the printable error message.
func (obj *Error) Error() string {
	return fmt.Sprintf("type mismatch: %s != %s", obj.Have, obj.Want)
}

// RowError is returned when a closed record is unified with a record that has
// fields the closed one lacks.
type RowError struct {
	Fields []string
	Closed *types.Type
}

// Error returns the printable error message.
func (obj *RowError) Error() string {
	return fmt.Sprintf("closed record %s has no field `%s`", obj.Closed, strings.Join(obj.Fields, "`, `"))
}

// extra returns the fields of a which are not in b.
func extra(a, b map[string]*types.Type) map[string]*types.Type {
	m := make(map[string]*types.Type)
	for k, v := range a {
		if _, exists := b[k]; !exists {
			m[k] = v
		}
	}
	return m
}

func sortedKeys(m map[string]*types.Type) []string {
	keys := []string{}
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
