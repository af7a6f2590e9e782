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

//go:build !root

package unification

import (
	"errors"
	"fmt"
	"testing"

	"github.com/purpleidea/causality/lang/types"
)

func TestUnify0(t *testing.T) {
	type test struct { // an individual test
		name string
		typ1 *types.Type
		typ2 *types.Type
		fail bool
	}
	u := types.NewUni()
	testCases := []test{
		{"same base", types.TypeInt, types.TypeInt, false},
		{"different base", types.TypeInt, types.TypeStr, true},
		{"var left", types.NewUni(), types.TypeInt, false},
		{"var inside", types.NewList(types.NewUni()), types.NewList(types.TypeBool), false},
		{"func arity", types.NewFunc(types.TypeInt, types.TypeInt), types.NewFunc(types.TypeInt), true},
		{"occurs", u, types.NewList(u), true},
		{"resource", types.NewResource(types.NewUni()), types.NewResource(types.TypeInt), false},
		{"resource vs int", types.NewResource(types.TypeInt), types.TypeInt, true},
	}

	for index, tc := range testCases { // run all the tests
		name, typ1, typ2, fail := tc.name, tc.typ1, tc.typ2, tc.fail
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			err := Unify(typ1, typ2)
			if !fail && err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: unify failed with: %+v", index, err)
				return
			}
			if fail && err == nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: unify passed, expected fail", index)
				return
			}
			if fail {
				return
			}
			if err := typ1.Cmp(typ2); err != nil {
				t.Errorf("test #%d: unified types differ: %+v", index, err)
			}
		})
	}
}

func TestUnifyVars0(t *testing.T) {
	a, b := types.NewUni(), types.NewUni()
	if err := Unify(a, b); err != nil {
		t.Errorf("unify error: %v", err)
		return
	}
	if err := Unify(b, types.TypeSymbol); err != nil {
		t.Errorf("unify error: %v", err)
		return
	}
	if a.Prune() != types.TypeSymbol {
		t.Errorf("joined variable was not solved, got: %s", a)
	}
}

func TestUnifyRecord0(t *testing.T) {
	// (record (a int) &) ~ (record (a ?) (b str))
	open := types.NewRecord(map[string]*types.Type{"a": types.TypeInt}, types.NewUni())
	x := types.NewUni()
	closed := types.NewRecord(map[string]*types.Type{"a": x, "b": types.TypeStr}, nil)

	if err := Unify(open, closed); err != nil {
		t.Errorf("unify error: %v", err)
		return
	}
	if x.Prune() != types.TypeInt {
		t.Errorf("common field was not unified")
	}
	if s := open.String(); s != "(record (a int) (b str))" {
		t.Errorf("open record did not absorb the extra field, got: %s", s)
	}
}

func TestUnifyRecord1(t *testing.T) {
	// a closed record conflicts with one that has extra fields
	closed := types.NewRecord(map[string]*types.Type{"a": types.TypeInt}, nil)
	open := types.NewRecord(map[string]*types.Type{"b": types.TypeInt}, types.NewUni())

	err := Unify(closed, open)
	if err == nil {
		t.Errorf("expected a row error")
		return
	}
	var rerr *RowError
	if !errors.As(err, &rerr) {
		t.Errorf("expected a row error, got: %v", err)
		return
	}
	if len(rerr.Fields) != 1 || rerr.Fields[0] != "b" {
		t.Errorf("unexpected fields: %v", rerr.Fields)
	}
}

func TestUnifyRecord2(t *testing.T) {
	// two open records with different fields share a fresh tail
	r1 := types.NewRecord(map[string]*types.Type{"a": types.TypeInt}, types.NewUni())
	r2 := types.NewRecord(map[string]*types.Type{"b": types.TypeStr}, types.NewUni())
	if err := Unify(r1, r2); err != nil {
		t.Errorf("unify error: %v", err)
		return
	}
	if s := r1.String(); s != "(record (a int) (b str) &)" {
		t.Errorf("unexpected merged row: %s", s)
	}
	if err := r1.Cmp(r2); err != nil {
		t.Errorf("merged rows differ: %v", err)
	}

	// closing the row afterwards is seen from both sides
	closed := types.NewRecord(map[string]*types.Type{"a": types.TypeInt, "b": types.TypeStr}, nil)
	if err := Unify(r2, closed); err != nil {
		t.Errorf("unify error: %v", err)
		return
	}
	if s := r1.String(); s != "(record (a int) (b str))" {
		t.Errorf("row was not closed: %s", s)
	}
}
