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

package cli

import (
	"context"
	"fmt"
	"strings"

	cliUtil "github.com/purpleidea/causality/cli/util"
	"github.com/purpleidea/causality/compiler"
	"github.com/purpleidea/causality/lang"
	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/interpret"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/spf13/afero"
)

// ParseArgs is the parse CLI parsing structure and type of the parsed result.
type ParseArgs struct {
	cliUtil.InputArgs
}

// Run parses the input and prints it back in canonical form.
func (obj *ParseArgs) Run(ctx context.Context, env *env) error {
	l := env.lang()
	filename, src, err := l.ReadInput(obj.Input)
	if err != nil {
		return err
	}
	prog, err := l.Parse(filename, src)
	if err != nil {
		return err
	}
	s, err := ast.Print(prog.Arena, prog.Root)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", s)
	return nil
}

// CheckArgs is the check CLI parsing structure and type of the parsed result.
type CheckArgs struct {
	cliUtil.InputArgs
}

// Run type checks the input and prints its type.
func (obj *CheckArgs) Run(ctx context.Context, env *env) error {
	te, err := env.lang().Load(obj.Input)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", te.Type)
	return nil
}

// EvalArgs is the eval CLI parsing structure and type of the parsed result.
type EvalArgs struct {
	cliUtil.InputArgs

	Validate bool `arg:"--validate" help:"dry run without host functions or definitions"`
}

// Run evaluates the input with the interpreter.
func (obj *EvalArgs) Run(ctx context.Context, env *env) error {
	l := env.lang()
	te, err := l.Load(obj.Input)
	if err != nil {
		return err
	}
	var c interfaces.Context = env.host(interpret.NewTestContext(te.Program.Arena))
	if obj.Validate {
		c = &interpret.ValidationContext{Arena: te.Program.Arena}
	}
	result, err := l.Eval(ctx, te, c)
	if err != nil {
		return err
	}
	fmt.Print(lang.Output(result.Value, result.Resources))
	fmt.Printf("steps: %d\n", result.Steps)
	printNullifiers(result.Nullifiers)
	return nil
}

// RunArgs is the run CLI parsing structure and type of the parsed result.
type RunArgs struct {
	// Input is optional here, since an artifact can be run instead.
	Input string `arg:"positional" help:"code, file path, or - for stdin"`

	Artifact string `arg:"--artifact" help:"run a compiled artifact file instead of code"`
	Trace    bool   `arg:"--trace" help:"print every machine step"`
}

// Run compiles the input, or loads an artifact, and runs it on the machine.
func (obj *RunArgs) Run(ctx context.Context, env *env) error {
	l := env.lang()
	if obj.Trace {
		l.Trace = true
	}

	var a *compiler.Artifact
	arena := ast.NewArena()
	switch {
	case obj.Artifact != "":
		b, err := afero.ReadFile(env.fs, obj.Artifact)
		if err != nil {
			return errwrap.Wrapf(err, "can't read artifact")
		}
		if a, err = compiler.Decode(b); err != nil {
			return err
		}

	case obj.Input != "":
		te, err := l.Load(obj.Input)
		if err != nil {
			return err
		}
		if a, err = l.Compile(te); err != nil {
			return err
		}
		arena = te.Program.Arena

	default:
		return cliUtil.MissingInput
	}

	result, err := l.Run(ctx, a, env.host(interpret.NewTestContext(arena)))
	if err != nil {
		return err
	}
	for _, step := range result.Trace {
		fmt.Printf("trace: %s\n", step)
	}
	fmt.Print(lang.Output(result.Value, result.Resources))
	fmt.Printf("steps: %d\n", result.Steps)
	fmt.Printf("gas: %d\n", result.GasUsed)
	printNullifiers(result.Nullifiers)
	return nil
}

func printNullifiers(nullifiers []string) {
	if len(nullifiers) == 0 {
		return
	}
	short := []string{}
	for _, n := range nullifiers {
		if len(n) > 12 {
			n = n[:12]
		}
		short = append(short, n)
	}
	fmt.Printf("nullifiers: %s\n", strings.Join(short, " "))
}
