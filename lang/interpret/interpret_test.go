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

package interpret

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
)

func prepare(t *testing.T, code string, env map[string]*types.Type) *typecheck.TypedExpr {
	prog, err := parser.Parse(code)
	if err != nil {
		t.Fatalf("parse failed with: %+v", err)
	}
	checker := &typecheck.Checker{Env: env}
	te, err := checker.Check(prog)
	if err != nil {
		t.Fatalf("check failed with: %+v", err)
	}
	return te
}

func newInterpreter(t *testing.T) *Interpreter {
	return &Interpreter{
		Debug: testing.Verbose(),
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
		Seed: "test",
	}
}

func TestEvaluate0(t *testing.T) {
	type test struct { // an individual test
		name string
		code string
		exp  string
	}
	testCases := []test{
		{"arithmetic", "(+ 1 (* 2 3))", "7"},
		{"alloc", "(pure (alloc 100))", "(resource 100)"},
		{"transfer", "(let ((bal (alloc 100))) (let ((v (consume bal))) (tensor (alloc (- v 30)) (alloc 30))))", "(tensor (resource 70) (resource 30))"},
		{"letrec", "(letrec ((sum (lambda (n acc) (if (= n 0) acc (sum (- n 1) (+ acc n)))))) (sum 10 0))", "55"},
		{"case", `(case (inr "ab") l (+ l 1) r (str-len r))`, "2"},
		{"records", "(get (set (record (a 1) (b 2)) 'a 5) 'a)", "5"},
		{"and short circuit", "(and false (= (/ 1 0) 1))", "false"},
		{"or short circuit", "(or true (= (/ 1 0) 1))", "true"},
		{"lists", "(head (tail (list 1 2 3)))", "2"},
		{"let-tensor", "(let-tensor (tensor 3 4) a b (- a b))", "-1"},
		{"closures", "(let ((add (lambda (x) (lambda (y) (+ x y))))) ((add 1) 2))", "3"},
		{"free", "(let ((r (alloc 1))) (let-unit (free r) 'done))", "'done"},
		{"dynamic", "(dynamic 100 (+ 1 2))", "3"},
		{"strings", `(concat "a" (symbol->str 'b))`, `"ab"`},
		{"unit", "(unit)", "nil"},
	}

	for index, tc := range testCases { // run all the tests
		name, code, exp := tc.name, tc.code, tc.exp
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			te := prepare(t, code, nil)
			result, err := newInterpreter(t).Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
			if err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: evaluate failed with: %+v", index, err)
				return
			}
			if s := result.Value.String(); s != exp {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: got: %s", index, s)
				t.Errorf("test #%d: exp: %s", index, exp)
			}
		})
	}
}

func TestEvaluateResources0(t *testing.T) {
	te := prepare(t, "(let ((bal (alloc 100))) (let ((v (consume bal))) (tensor (alloc (- v 30)) (alloc 30))))", nil)
	result, err := newInterpreter(t).Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
	if err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	if l := len(result.Resources); l != 2 {
		t.Errorf("expected 2 live resources, got: %d", l)
	}
	if l := len(result.Nullifiers); l != 1 {
		t.Errorf("expected 1 nullifier, got: %d", l)
	}

	// the same seed always gives the same ids
	again, err := newInterpreter(t).Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
	if err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	for i := range result.Resources {
		if result.Resources[i].ID != again.Resources[i].ID {
			t.Errorf("resource ids differ between runs")
		}
	}

	other := newInterpreter(t)
	other.Seed = "other"
	changed, err := other.Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
	if err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	if changed.Resources[0].ID == result.Resources[0].ID {
		t.Errorf("resource ids should depend on the seed")
	}
}

func TestEvaluateErrors0(t *testing.T) {
	type test struct { // an individual test
		name string
		code string
		env  map[string]*types.Type
		kind ExprErrorKind
	}
	testCases := []test{
		{"division", "(/ 1 0)", nil, ExprExecution},
		{"bounded", "(dynamic 3 (+ 1 (+ 2 (+ 3 4))))", nil, ExprBounded},
		{"missing host", "(launch 1)", map[string]*types.Type{"launch": types.NewFunc(types.TypeInt, types.TypeInt)}, ExprMissingSymbol},
		{"missing symbol", "(+ amount 1)", map[string]*types.Type{"amount": types.TypeInt}, ExprMissingSymbol},
		{"head of empty", "(head (tail (list 1)))", nil, ExprExecution},
		{"empty effect", `(completed? "")`, nil, ExprExecution},
		{"too deep", "(letrec ((sum (lambda (n) (if (= n 0) 0 (+ n (sum (- n 1))))))) (sum 10001))", nil, ExprDepth},
		{"deep tail calls", "(letrec ((loop (lambda (n) (if (= n 0) (/ 1 0) (loop (- n 1)))))) (loop 20000))", nil, ExprExecution},
	}

	for index, tc := range testCases { // run all the tests
		name, code, env, kind := tc.name, tc.code, tc.env, tc.kind
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			te := prepare(t, code, env)
			_, err := newInterpreter(t).Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
			var e *ExprError
			if !errors.As(err, &e) {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: expected an expr error, got: %+v", index, err)
				return
			}
			if e.Kind != kind {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: got: %s", index, e.Kind)
				t.Errorf("test #%d: exp: %s", index, kind)
			}
		})
	}
}

func TestEvaluateHost0(t *testing.T) {
	env := map[string]*types.Type{
		"double": types.NewFunc(types.TypeInt, types.TypeInt),
		"flag":   types.NewFunc(types.TypeBool),
	}
	te := prepare(t, "(double 21)", env)
	c := NewTestContext(te.Program.Arena)
	c.AddFunction("double", func(args []types.Value) (types.Value, error) {
		return &types.IntValue{V: 2 * args[0].(*types.IntValue).V}, nil
	})
	result, err := newInterpreter(t).Evaluate(context.Background(), te, c)
	if err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	if s := result.Value.String(); s != "42" {
		t.Errorf("unexpected result: %s", s)
	}

	// a host which lies about its types is caught at the value level
	te = prepare(t, "(if (flag) 1 2)", env)
	c = NewTestContext(te.Program.Arena)
	c.AddFunction("flag", func(args []types.Value) (types.Value, error) {
		return &types.IntValue{V: 1}, nil
	})
	_, err = newInterpreter(t).Evaluate(context.Background(), te, c)
	var e *ExprError
	if !errors.As(err, &e) || e.Kind != ExprTypeMismatch {
		t.Errorf("expected a type mismatch, got: %+v", err)
	}
}

func TestEvaluateContexts0(t *testing.T) {
	te := prepare(t, "(define 'x 5)", nil)

	test := NewTestContext(te.Program.Arena)
	if _, err := newInterpreter(t).Evaluate(context.Background(), te, test); err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	if v, ok := test.GetSymbol("x"); !ok || v.String() != "5" {
		t.Errorf("symbol was not defined")
	}

	validation := &ValidationContext{Arena: te.Program.Arena}
	_, err := newInterpreter(t).Evaluate(context.Background(), te, validation)
	if !errors.Is(err, interfaces.ErrReadOnly) {
		t.Errorf("expected a read only error, got: %+v", err)
	}

	handler := &HandlerContext{Parent: test}
	_, err = newInterpreter(t).Evaluate(context.Background(), te, handler)
	if !errors.Is(err, interfaces.ErrReadOnly) {
		t.Errorf("expected a read only error, got: %+v", err)
	}

	env := map[string]*types.Type{"double": types.NewFunc(types.TypeInt, types.TypeInt)}
	te = prepare(t, "(double 1)", env)
	validation = &ValidationContext{Arena: te.Program.Arena}
	_, err = newInterpreter(t).Evaluate(context.Background(), te, validation)
	if !errors.Is(err, interfaces.ErrHostDisabled) {
		t.Errorf("expected host calls to be disabled, got: %+v", err)
	}

	// without the arena nothing can be found
	_, err = newInterpreter(t).Evaluate(context.Background(), te, NewTestContext(nil))
	var e *ExprError
	if !errors.As(err, &e) || e.Kind != ExprExecution || !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected an unknown expression, got: %+v", err)
	}
	_, err = newInterpreter(t).Evaluate(context.Background(), te, &HandlerContext{})
	if !errors.As(err, &e) || e.Kind != ExprExecution {
		t.Errorf("expected an orphan handler to fail, got: %+v", err)
	}
}

func TestEvaluateHandler0(t *testing.T) {
	env := map[string]*types.Type{"amount": types.TypeInt}
	te := prepare(t, "(if (completed? \"deposit\") (+ amount 1) 0)", env)
	parent := NewTestContext(te.Program.Arena)
	parent.Complete("deposit")
	handler := &HandlerContext{
		Parent:   parent,
		Bindings: map[string]types.Value{"amount": &types.IntValue{V: 41}},
	}
	result, err := newInterpreter(t).Evaluate(context.Background(), te, handler)
	if err != nil {
		t.Errorf("evaluate failed with: %+v", err)
		return
	}
	if s := result.Value.String(); s != "42" {
		t.Errorf("unexpected result: %s", s)
	}
}

func TestEvaluateLimits0(t *testing.T) {
	code := "(letrec ((loop (lambda (n) (if (= n 0) 0 (loop (- n 1)))))) (loop 100))"
	te := prepare(t, code, nil)

	interp := newInterpreter(t)
	interp.MaxSteps = 50
	_, err := interp.Evaluate(context.Background(), te, NewTestContext(te.Program.Arena))
	var e *ExprError
	if !errors.As(err, &e) || e.Kind != ExprBounded {
		t.Errorf("expected a bounded execution error, got: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newInterpreter(t).Evaluate(ctx, te, NewTestContext(te.Program.Arena))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected a cancelled evaluation, got: %+v", err)
	}
}
