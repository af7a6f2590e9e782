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

package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/purpleidea/causality/lang/interpret"
	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"

	"github.com/spf13/afero"
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

func newCompiler(t *testing.T, config *Config) *Compiler {
	return &Compiler{
		Debug: testing.Verbose(),
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
		Config: config,
	}
}

func run(t *testing.T, te *typecheck.TypedExpr, a *Artifact) (*machine.Result, error) {
	executor := &machine.Executor{
		Debug: testing.Verbose(),
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
		Seed: "test",
		Host: interpret.NewTestContext(te.Program.Arena),
	}
	return executor.Run(context.Background(), a.Program)
}

// count returns the number of instructions with this op in the whole program.
func count(prog *machine.Program, op machine.Op, name string) int {
	n := 0
	for _, fn := range prog.Funcs {
		for _, ins := range fn.Code {
			if ins.Op == op && (name == "" || ins.Name == name) {
				n++
			}
		}
	}
	return n
}

func TestCompile0(t *testing.T) {
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
		{"case left", `(case (inl 4) l (+ l 1) r (str-len r))`, "5"},
		{"records", "(get (set (record (a 1) (b 2)) 'a 5) 'a)", "5"},
		{"and short circuit", "(and false (= (/ 1 0) 1))", "false"},
		{"or short circuit", "(or true (= (/ 1 0) 1))", "true"},
		{"lists", "(head (tail (list 1 2 3)))", "2"},
		{"let-tensor", "(let-tensor (tensor 3 4) a b (- a b))", "-1"},
		{"closures", "(let ((add (lambda (x) (lambda (y) (+ x y))))) ((add 1) 2))", "3"},
		{"free", "(let ((r (alloc 1))) (let-unit (free r) 'done))", "'done"},
		{"dynamic", "(dynamic 100 (+ 1 2))", "3"},
		{"strings", `(concat "a" (symbol->str 'b))`, `"ab"`},
		{"shared", "(let ((x 5)) (+ (* x x) (* x x)))", "50"},
		{"linear branch", "(let ((r (alloc 7))) (if (< 1 2) (consume r) (+ (consume r) 1)))", "7"},
		{"resource in record", "(let ((r (record (coin (alloc 3)) (n 1)))) (get r 'coin))", "(resource 3)"},
	}
	levels := []OptLevel{OptNone, OptBasic, OptAggressive}

	for index, tc := range testCases { // run all the tests
		name, code, exp := tc.name, tc.code, tc.exp
		for _, level := range levels {
			t.Run(fmt.Sprintf("test #%d (%s, %s)", index, name, level), func(t *testing.T) {
				te := prepare(t, code, nil)
				config := DefaultConfig()
				config.OptLevel = level
				a, err := newCompiler(t, config).Compile(te)
				if err != nil {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: compile failed with: %+v", index, err)
					return
				}
				result, err := run(t, te, a)
				if err != nil {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: run failed with: %+v", index, err)
					t.Logf("test #%d: program:\n%s", index, a.Program)
					return
				}
				if s := result.Value.String(); s != exp {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: got: %s", index, s)
					t.Errorf("test #%d: exp: %s", index, exp)
				}

				// the interpreter must agree, down to the resource ids
				interpreter := &interpret.Interpreter{Seed: "test"}
				expected, err := interpreter.Evaluate(context.Background(), te, interpret.NewTestContext(te.Program.Arena))
				if err != nil {
					t.Errorf("test #%d: evaluate failed with: %+v", index, err)
					return
				}
				if !types.Equal(expected.Value, result.Value) {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: interpreter got: %s", index, expected.Value)
				}
				if len(expected.Nullifiers) != len(result.Nullifiers) {
					t.Errorf("test #%d: expected %d nullifiers, got: %d", index, len(expected.Nullifiers), len(result.Nullifiers))
				}
			})
		}
	}
}

func TestCompileListing0(t *testing.T) {
	te := prepare(t, "(pure (alloc 100))", nil)
	config := DefaultConfig()
	config.OptLevel = OptNone
	a, err := newCompiler(t, config).Compile(te)
	if err != nil {
		t.Errorf("compile failed with: %+v", err)
		return
	}
	exp := []string{"r0 = const 100", "r1 = alloc r0", "return r1"}
	code := a.Program.Funcs[0].Code
	if len(code) != len(exp) {
		t.Errorf("expected %d instructions, got:\n%s", len(exp), a.Program)
		return
	}
	for i := range exp {
		if s := code[i].String(); s != exp[i] {
			t.Errorf("instruction %d: got: %s", i, s)
			t.Errorf("instruction %d: exp: %s", i, exp[i])
		}
	}
	if a.Type != "(resource int)" {
		t.Errorf("unexpected type: %s", a.Type)
	}
}

func TestCompileOptimize0(t *testing.T) {
	type test struct { // an individual test
		name  string
		code  string
		level OptLevel
		op    machine.Op
		opn   string // op name, if any
		exp   int
	}
	testCases := []test{
		{"no folding", "(+ 1 2)", OptNone, machine.OpOp, "+", 1},
		{"folding", "(+ 1 2)", OptBasic, machine.OpOp, "+", 0},
		{"nested folding", "(* (+ 1 2) (- 5 1))", OptBasic, machine.OpConst, "", 1},
		{"division is kept", "(/ 1 0)", OptBasic, machine.OpOp, "/", 1},
		{"constant branch", "(if true 1 2)", OptBasic, machine.OpBranch, "", 0},
		{"unused binding", "(let ((x (+ 1 2))) 4)", OptBasic, machine.OpConst, "", 1},
		{"no sharing", "(let ((x 5)) (+ (* x x) (* x x)))", OptBasic, machine.OpOp, "*", 2},
		{"sharing", "(let ((x 5)) (+ (* x x) (* x x)))", OptAggressive, machine.OpOp, "*", 1},
		{"tail calls", "(letrec ((loop (lambda (n) (if (= n 0) 0 (loop (- n 1)))))) (loop 3))", OptNone, machine.OpTailCall, "", 2},
		{"tail calls folded", "(letrec ((loop (lambda (n) (if (= n 0) 0 (loop (- n 1)))))) (loop 3))", OptBasic, machine.OpTailCall, "", 2},
		{"no tail call", "(letrec ((sum (lambda (n) (if (= n 0) 0 (+ n (sum (- n 1))))))) (sum 3))", OptNone, machine.OpTailCall, "", 1},
	}

	for index, tc := range testCases { // run all the tests
		name, code, level, op, opn, exp := tc.name, tc.code, tc.level, tc.op, tc.opn, tc.exp
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			te := prepare(t, code, nil)
			config := DefaultConfig()
			config.OptLevel = level
			a, err := newCompiler(t, config).Compile(te)
			if err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: compile failed with: %+v", index, err)
				return
			}
			if n := count(a.Program, op, opn); n != exp {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: got: %d of %s", index, n, op)
				t.Errorf("test #%d: exp: %d of %s", index, exp, op)
				t.Logf("test #%d: program:\n%s", index, a.Program)
			}
		})
	}
}

func TestCompileSteps0(t *testing.T) {
	type test struct { // an individual test
		name string
		code string
		fail bool // runs out of steps
	}
	testCases := []test{
		{"arithmetic", "(+ (+ 1 2) (+ 3 4))", false},
		{"branch", "(if (= 1 1) (* 2 3) 4)", false},
		{"binding", "(let ((x (+ 1 2))) (* x x))", false},
		{"folded budget", "(dynamic 7 (+ (+ 1 2) (+ 3 4)))", false},
		{"folded budget exceeded", "(dynamic 6 (+ (+ 1 2) (+ 3 4)))", true},
	}
	levels := []OptLevel{OptNone, OptBasic, OptAggressive}

	for index, tc := range testCases { // run all the tests
		name, code, fail := tc.name, tc.code, tc.fail
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			te := prepare(t, code, nil)
			interpreter := &interpret.Interpreter{Seed: "test"}
			expected, ierr := interpreter.Evaluate(context.Background(), te, interpret.NewTestContext(te.Program.Arena))
			if fail != (ierr != nil) {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: interpreter error: %v", index, ierr)
				return
			}

			for _, level := range levels {
				config := DefaultConfig()
				config.OptLevel = level
				a, err := newCompiler(t, config).Compile(te)
				if err != nil {
					t.Errorf("test #%d: compile failed with: %+v", index, err)
					return
				}
				result, err := run(t, te, a)
				if fail {
					if err == nil || !strings.Contains(err.Error(), "ran out of steps") {
						t.Errorf("test #%d: FAIL", index)
						t.Errorf("test #%d: %s: expected to run out of steps, got: %v", index, level, err)
					}
					continue
				}
				if err != nil {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: %s: run failed with: %+v", index, level, err)
					continue
				}
				if result.Steps != expected.Steps {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: %s: got: %d steps", index, level, result.Steps)
					t.Errorf("test #%d: %s: exp: %d steps", index, level, expected.Steps)
					t.Logf("test #%d: program:\n%s", index, a.Program)
				}
			}
		})
	}
}

func TestCompileCircuit0(t *testing.T) {
	env := map[string]*types.Type{
		"launch": types.NewFunc(types.TypeInt, types.TypeInt),
		"amount": types.TypeInt,
	}
	loop := "(letrec ((loop (lambda (n) (if (= n 0) 0 (loop (- n 1)))))) (loop 3))"
	type test struct { // an individual test
		name string
		code string
		fail bool
	}
	testCases := []test{
		{"plain", "(+ 1 2)", false},
		{"host function", "(launch 1)", true},
		{"symbol", "(+ amount 1)", true},
		{"define", "(define 'x 5)", true},
		{"completed", `(completed? "effect")`, true},
		{"unbounded recursion", loop, true},
		{"bounded recursion", "(dynamic 1000 " + loop + ")", false},
	}

	for index, tc := range testCases { // run all the tests
		name, code, fail := tc.name, tc.code, tc.fail
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			te := prepare(t, code, env)
			config := DefaultConfig()
			config.Target = TargetCircuit
			_, err := newCompiler(t, config).Compile(te)
			if !fail && err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: compile failed with: %+v", index, err)
				return
			}
			if fail && err == nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: compile passed, expected fail", index)
				return
			}
			if !fail {
				return
			}
			var e *CompilationError
			if !errors.As(err, &e) || e.Internal {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: unexpected error: %+v", index, err)
			}
		})
	}
}

func TestCompileDeterminism0(t *testing.T) {
	code := "(letrec ((sum (lambda (n acc) (if (= n 0) acc (sum (- n 1) (+ acc n)))))) (let ((x (sum 10 0))) (tensor (alloc x) (record (a x) (b 'b)))))"
	encode := func(config *Config) *Artifact {
		a, err := newCompiler(t, config).Compile(prepare(t, code, nil))
		if err != nil {
			t.Fatalf("compile failed with: %+v", err)
		}
		return a
	}
	a1, a2 := encode(DefaultConfig()), encode(DefaultConfig())
	b1, err := a1.Encode()
	if err != nil {
		t.Errorf("encode failed with: %+v", err)
		return
	}
	b2, err := a2.Encode()
	if err != nil {
		t.Errorf("encode failed with: %+v", err)
		return
	}
	if !bytes.Equal(b1, b2) {
		t.Errorf("artifacts differ between compiles")
	}

	decoded, err := Decode(b1)
	if err != nil {
		t.Errorf("decode failed with: %+v", err)
		return
	}
	b3, err := decoded.Encode()
	if err != nil {
		t.Errorf("encode failed with: %+v", err)
		return
	}
	if !bytes.Equal(b1, b3) {
		t.Errorf("artifact changed after decoding")
	}

	config := DefaultConfig()
	config.OptLevel = OptAggressive
	if a3 := encode(config); a3.ID == a1.ID {
		t.Errorf("artifacts with different configs share an id")
	}
}

func TestCompileDebugInfo0(t *testing.T) {
	code := "(+ 1 (* 2 x))"
	env := map[string]*types.Type{"x": types.TypeInt}
	for _, debug := range []bool{false, true} {
		config := DefaultConfig()
		config.DebugInfo = debug
		a, err := newCompiler(t, config).Compile(prepare(t, code, env))
		if err != nil {
			t.Errorf("compile failed with: %+v", err)
			return
		}
		found := false
		for _, ins := range a.Program.Funcs[0].Code {
			found = found || ins.Expr != ""
		}
		if found != debug {
			t.Errorf("debug info is %t, but expressions found is %t", debug, found)
		}
		if len(a.Symbols) != 1 || a.Symbols[0] != "x" {
			t.Errorf("unexpected symbols: %v", a.Symbols)
		}
	}
}

func TestStore0(t *testing.T) {
	stores := map[string]Store{
		"mem": NewMemStore(),
		"fs":  &FsStore{Fs: afero.NewMemMapFs(), Dir: "/var/lib/causality/artifacts"},
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			te := prepare(t, "(+ 40 2)", nil)
			c := newCompiler(t, nil)
			c.Store = store
			a, err := c.Compile(te)
			if err != nil {
				t.Errorf("compile failed with: %+v", err)
				return
			}
			cached, exists := store.Get(a.ID)
			if !exists {
				t.Errorf("artifact was not stored")
				return
			}
			b1, _ := a.Encode()
			b2, _ := cached.Encode()
			if !bytes.Equal(b1, b2) {
				t.Errorf("stored artifact differs")
			}

			again, err := c.Compile(te)
			if err != nil {
				t.Errorf("compile failed with: %+v", err)
				return
			}
			if again.ID != a.ID {
				t.Errorf("cache returned a different artifact")
			}

			if err := store.Evict(a.ID); err != nil {
				t.Errorf("evict failed with: %+v", err)
			}
			if _, exists := store.Get(a.ID); exists {
				t.Errorf("artifact is still present after evict")
			}
			if err := store.Evict(a.ID); err != nil {
				t.Errorf("second evict failed with: %+v", err)
			}
		})
	}
}

func TestConfig0(t *testing.T) {
	config := &Config{OptLevel: "extreme", Target: TargetRuntime}
	if err := config.Validate(); err == nil {
		t.Errorf("expected an invalid opt level to fail")
	}
	if _, err := newCompiler(t, config).Compile(prepare(t, "1", nil)); err == nil {
		t.Errorf("expected compile with an invalid config to fail")
	}
	if DefaultConfig().Hash() != DefaultConfig().Hash() {
		t.Errorf("config hash is not stable")
	}
}
