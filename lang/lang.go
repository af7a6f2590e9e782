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

// Package lang ties the language together. It takes source text through the
// parser and the type checker, and then either evaluates it directly or
// compiles it and runs it on the machine.
package lang

import (
	"context"
	"fmt"
	"os"

	"github.com/purpleidea/causality/compiler"
	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/interpret"
	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/sanity-io/litter"
	"github.com/spf13/afero"
)

// Lang is the main language object. It holds configuration only, and every
// method can be called many times.
type Lang struct {
	// Fs is where inputs are read from. If it is nil, the os is used.
	Fs afero.Fs

	Debug bool
	Logf  func(format string, v ...interface{})

	// Env holds the types of the symbols and host functions that programs
	// may use without binding them.
	Env map[string]*types.Type

	// Capabilities restricts record access in the type checker.
	Capabilities []string

	// Config is the compiler config. If it is nil, the default is used.
	Config *compiler.Config

	// Store caches compiled artifacts if it is set.
	Store compiler.Store

	// Seed is mixed into every resource id.
	Seed string

	// MaxSteps bounds the interpreter. Zero means no bound.
	MaxSteps int64

	// Gas bounds the machine. Zero means no bound.
	Gas int64

	// Trace records every machine step.
	Trace bool
}

func (obj *Lang) logf(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		if obj.Logf == nil {
			return
		}
		obj.Logf(prefix+": "+format, v...)
	}
}

// ReadInput returns the code named by input. If it is the path of a file, then
// the file is read. If it is a single dash, stdin is read. Anything else is
// treated as code.
func (obj *Lang) ReadInput(input string) (string, string, error) {
	fs := obj.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if input == "-" {
		b, err := afero.ReadAll(os.Stdin)
		if err != nil {
			return "", "", errwrap.Wrapf(err, "can't read stdin")
		}
		return "<stdin>", string(b), nil
	}
	if fi, err := fs.Stat(input); err == nil && !fi.IsDir() {
		b, err := afero.ReadFile(fs, input)
		if err != nil {
			return "", "", errwrap.Wrapf(err, "can't read `%s`", input)
		}
		return input, string(b), nil
	}
	return "<code>", input, nil
}

// Parse parses the source text.
func (obj *Lang) Parse(filename, src string) (*ast.Program, error) {
	obj.logf("lang")("lexing/parsing...")
	prog, err := parser.ParseInto(ast.NewArena(), filename, src)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not generate AST")
	}
	if obj.Debug {
		lo := &litter.Options{
			StripPackageNames: true,
			HidePrivateFields: true,
			HideZeroValues:    true,
		}
		obj.logf("lang")("behold, the AST: %s", lo.Sdump(prog.Expr()))
	}
	return prog, nil
}

// Check type checks the program.
func (obj *Lang) Check(prog *ast.Program) (*typecheck.TypedExpr, error) {
	obj.logf("lang")("running type checking...")
	checker := &typecheck.Checker{
		Debug:        obj.Debug,
		Logf:         obj.logf("typecheck"),
		Env:          obj.Env,
		Capabilities: obj.Capabilities,
	}
	te, err := checker.Check(prog)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not check types")
	}
	if obj.Debug {
		obj.logf("lang")("type: %s", te.Type)
	}
	return te, nil
}

// Load reads, parses and checks the input in one step.
func (obj *Lang) Load(input string) (*typecheck.TypedExpr, error) {
	filename, src, err := obj.ReadInput(input)
	if err != nil {
		return nil, err
	}
	prog, err := obj.Parse(filename, src)
	if err != nil {
		return nil, err
	}
	return obj.Check(prog)
}

// Eval runs the program on the interpreter. If the context is nil, a test
// context over the program arena is used.
func (obj *Lang) Eval(ctx context.Context, te *typecheck.TypedExpr, c interfaces.Context) (*interpret.Result, error) {
	if c == nil {
		c = interpret.NewTestContext(te.Program.Arena)
	}
	interpreter := &interpret.Interpreter{
		Debug:    obj.Debug,
		Logf:     obj.logf("interpret"),
		Seed:     obj.Seed,
		MaxSteps: obj.MaxSteps,
	}
	return interpreter.Evaluate(ctx, te, c)
}

// Compile compiles the program.
func (obj *Lang) Compile(te *typecheck.TypedExpr) (*compiler.Artifact, error) {
	c := &compiler.Compiler{
		Debug:  obj.Debug,
		Logf:   obj.logf("compiler"),
		Config: obj.Config,
		Store:  obj.Store,
	}
	if c.Config == nil {
		c.Config = compiler.DefaultConfig()
	}
	return c.Compile(te)
}

// Run runs a compiled program on the machine.
func (obj *Lang) Run(ctx context.Context, a *compiler.Artifact, host interfaces.Host) (*machine.Result, error) {
	executor := &machine.Executor{
		Debug: obj.Debug,
		Logf:  obj.logf("machine"),
		Gas:   obj.Gas,
		Seed:  obj.Seed,
		Host:  host,
		Trace: obj.Trace,
	}
	return executor.Run(ctx, a.Program)
}

// CompileSource compiles a single graph node. The env is added to the one of
// the language, and it wins if a name is in both.
func (obj *Lang) CompileSource(name, src string, env map[string]*types.Type) (*machine.Program, *types.Type, error) {
	merged := make(map[string]*types.Type)
	for k, v := range obj.Env {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	l := *obj
	l.Env = merged
	prog, err := l.Parse(name, src)
	if err != nil {
		return nil, nil, err
	}
	te, err := l.Check(prog)
	if err != nil {
		return nil, nil, err
	}
	a, err := l.Compile(te)
	if err != nil {
		return nil, nil, err
	}
	return a.Program, te.Type, nil
}

// Output is the printable form of a result, as the golden tests expect it.
func Output(v types.Value, resources []*types.ResourceValue) string {
	s := fmt.Sprintf("value: %s\n", v)
	for _, res := range resources {
		s += fmt.Sprintf("resource: %s\n", res.V)
	}
	return s
}
