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

package typecheck

import (
	"errors"
	"fmt"
	"testing"

	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/types"
)

func check(t *testing.T, code string, checker *Checker) (*TypedExpr, error) {
	prog, err := parser.Parse(code)
	if err != nil {
		t.Fatalf("parse failed with: %+v", err)
	}
	if checker == nil {
		checker = &Checker{}
	}
	checker.Logf = func(format string, v ...interface{}) {
		t.Logf("checker: "+format, v...)
	}
	return checker.Check(prog)
}

func TestCheck0(t *testing.T) {
	type test struct { // an individual test
		name string
		code string
		exp  string // the root type
	}
	testCases := []test{
		{"arithmetic", "(+ 1 2)", "int"},
		{"alloc", "(pure (alloc 100))", "(resource int)"},
		{"transfer", "(let ((bal (alloc 100))) (let ((v (consume bal))) (tensor (alloc (- v 30)) (alloc 30))))", "(* (resource int) (resource int))"},
		{"annotated", "(lambda ((r (resource int))) (consume r))", "(-o (resource int) int)"},
		{"record get", `(get (record (a 1) (b "x")) 'b)`, "str"},
		{"record set", "(set (record (a 1)) 'a 2)", "(record (a int))"},
		{"sum", "(case (inl 1) l (+ l 1) r (str-len r))", "int"},
		{"letrec", "(letrec ((loop (lambda (n acc) (if (= n 0) acc (loop (- n 1) (+ acc n)))))) (loop 10 0))", "int"},
		{"branches agree", "(let ((r (alloc 1))) (if true (consume r) (consume r)))", "int"},
		{"padding with free", "(let ((r (alloc 1))) (if true (consume r) (let-unit (free r) 0)))", "int"},
		{"let-tensor", "(let-tensor (tensor (alloc 1) 2) r n (+ (consume r) n))", "int"},
		{"dynamic", "(dynamic 5 (+ 1 2))", "int"},
		{"list", "(head (cons 1 (list 2 3)))", "int"},
		{"symbols", "(= 'a 'b)", "bool"},
		{"define", "(define 'x 5)", "unit"},
		{"non-linear reuse", "(let ((x 5)) (+ x x))", "int"},
		{"resource in a record", "(let ((r (record (coin (alloc 5)) (owner 'bob)))) (consume (get r 'coin)))", "int"},
	}

	for index, tc := range testCases { // run all the tests
		name, code, exp := tc.name, tc.code, tc.exp
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			typed, err := check(t, code, nil)
			if err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: check failed with: %+v", index, err)
				return
			}
			if s := typed.Type.String(); s != exp {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: got: %s", index, s)
				t.Errorf("test #%d: exp: %s", index, exp)
			}
		})
	}
}

func TestCheckRowPolymorphism0(t *testing.T) {
	typed, err := check(t, "(lambda (r) (get r 'amount))", nil)
	if err != nil {
		t.Errorf("check failed with: %+v", err)
		return
	}
	typ := typed.Type
	if typ.Kind != types.KindFunc {
		t.Errorf("expected a function, got: %s", typ)
		return
	}
	in := typ.Args[0]
	fields, tail := in.Fields()
	if in.Kind != types.KindRecord || tail == nil || len(fields) != 1 {
		t.Errorf("expected an open record with one field, got: %s", in)
	}
	if err := fields["amount"].Cmp(typ.Out); err != nil {
		t.Errorf("the field type should be the result type: %v", err)
	}
}

func TestCheckEnv0(t *testing.T) {
	checker := &Checker{
		Env: map[string]*types.Type{
			"transfer": types.NewFunc(types.TypeBool, types.TypeSymbol, types.TypeInt),
			"balance":  types.NewResource(types.TypeInt),
		},
	}
	typed, err := check(t, "(transfer 'bob (consume balance))", checker)
	if err != nil {
		t.Errorf("check failed with: %+v", err)
		return
	}
	if err := typed.Type.Cmp(types.TypeBool); err != nil {
		t.Errorf("unexpected type: %s", typed.Type)
	}
}

func TestCheckErrors0(t *testing.T) {
	type test struct { // an individual test
		name string
		code string
		kind LinearityKind // empty for a type error
		v    string        // the variable in a linearity error
	}
	testCases := []test{
		{"mismatch", `(+ 1 "x")`, "", ""},
		{"condition", "(if 1 2 3)", "", ""},
		{"branches differ", `(if true 1 "x")`, "", ""},
		{"unbound", "(+ y 1)", "", ""},
		{"arity", "((lambda (x) x) 1 2)", "", ""},
		{"closed record", "(get (record (a 1)) 'b)", "", ""},
		{"compare resources", "(= (alloc 1) (alloc 1))", "", ""},
		{"list of resources", "(list (alloc 1))", "", ""},
		{"define resource", "(define 'x (alloc 1))", "", ""},
		{"unapplied combinator", "(tensor + 1)", "", ""},
		{"consume non-resource", "(consume 5)", "", ""},
		{"duplicate", "(let ((x (alloc 1))) (tensor x x))", LinearityDuplicate, "x"},
		{"unused", "(let ((x (alloc 1))) 5)", LinearityUnused, "x"},
		{"branch", "(let ((x (alloc 1))) (if true (consume x) 0))", LinearityBranch, "x"},
		{"case branch", "(let ((x (alloc 1))) (case (inl 1) l (+ l (consume x)) r r))", LinearityBranch, "x"},
		{"capture", "(let ((x (alloc 1))) (let ((f (lambda (y) (+ y (consume x))))) (f 1)))", LinearityCapture, "x"},
		{"conditional", "(let ((x (alloc 1))) (and true (= (consume x) 1)))", LinearityConditional, "x"},
		{"discard on get", "(get (record (a (alloc 1)) (b 2)) 'b)", LinearityDiscard, "a"},
		{"discard on set", "(set (record (a (alloc 1))) 'a (alloc 2))", LinearityDiscard, "a"},
		{"unused tensor half", "(let-tensor (tensor (alloc 1) (alloc 2)) a b (consume a))", LinearityUnused, "b"},
		{"fix capture", "(let ((x (alloc 1))) (letrec ((f (lambda (n) (consume x)))) (f 1)))", LinearityCapture, "x"},
	}

	for index, tc := range testCases { // run all the tests
		name, code, kind, v := tc.name, tc.code, tc.kind, tc.v
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			_, err := check(t, code, nil)
			if err == nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: check passed, expected fail", index)
				return
			}
			if kind == "" {
				var terr *TypeError
				if !errors.As(err, &terr) {
					t.Errorf("test #%d: expected a type error, got: %+v", index, err)
				}
				return
			}
			var lerr *LinearityError
			if !errors.As(err, &lerr) {
				t.Errorf("test #%d: expected a linearity error, got: %+v", index, err)
				return
			}
			if lerr.Kind != kind || lerr.Var != v {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: got: %s (%s)", index, lerr.Kind, lerr.Var)
				t.Errorf("test #%d: exp: %s (%s)", index, kind, v)
			}
		})
	}
}

func TestCheckBranchName0(t *testing.T) {
	_, err := check(t, "(let ((x (alloc 1))) (if true (consume x) 0))", nil)
	var lerr *LinearityError
	if !errors.As(err, &lerr) {
		t.Errorf("expected a linearity error, got: %+v", err)
		return
	}
	if lerr.Branch != "else" {
		t.Errorf("expected the else branch to be blamed, got: %s", lerr.Branch)
	}
}

func TestCheckPosition0(t *testing.T) {
	_, err := check(t, "(+ 1\n   \"x\")", nil)
	var terr *TypeError
	if !errors.As(err, &terr) {
		t.Errorf("expected a type error, got: %+v", err)
		return
	}
	if terr.Pos.Row != 2 || terr.Pos.Col != 4 {
		t.Errorf("expected the error at the string, got: %s", terr.Pos)
	}
}

func TestCheckCapabilities0(t *testing.T) {
	code := "(get (set (record (a 1) (b 2)) 'a 5) 'b)"
	if _, err := check(t, code, &Checker{Capabilities: []string{"read:*", "write:a"}}); err != nil {
		t.Errorf("check failed with: %+v", err)
	}
	if _, err := check(t, code, &Checker{Capabilities: []string{"read:b"}}); err == nil {
		t.Errorf("expected a missing write capability")
	}
	if _, err := check(t, code, &Checker{Capabilities: []string{"write:a", "read:a"}}); err == nil {
		t.Errorf("expected a missing read capability")
	}
}
