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

package compiler

import (
	"fmt"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/machine"
)

// prims is the instruction for each combinator that is not an operator.
var prims = map[string]machine.Op{
	funcs.Alloc:     machine.OpAlloc,
	funcs.Consume:   machine.OpConsume,
	funcs.Free:      machine.OpFree,
	funcs.Tensor:    machine.OpTensor,
	funcs.Inl:       machine.OpInject,
	funcs.Inr:       machine.OpInject,
	funcs.Record:    machine.OpRecord,
	funcs.Get:       machine.OpGetField,
	funcs.Set:       machine.OpSetField,
	funcs.Define:    machine.OpDefine,
	funcs.Completed: machine.OpCompleted,
}

// selectOps replaces each combinator with its instruction. For the circuit
// target, it also rejects the code that a circuit can't express.
func selectOps(prog *ast.Program, fns []*irFunc, target Target) error {
	for _, fn := range fns {
		for i := range fn.code {
			ins := &fn.code[i]
			if ins.Op != opPrim {
				continue
			}
			if op, exists := prims[ins.Name]; exists {
				switch name := ins.Name; name {
				case funcs.Get, funcs.Set, funcs.Define:
					ins.Name = ins.Fields[0] // the field or symbol
					ins.Fields = nil
				default:
					ins.Name = ""
					if name == funcs.Inr {
						ins.N = 1
					}
				}
				ins.Op = op
				continue
			}
			if b, exists := funcs.Lookup(ins.Name); exists && b.Operator() {
				ins.Op = machine.OpOp
				continue
			}
			return &CompilationError{Stage: "select", Msg: fmt.Sprintf("no instruction for `%s`", ins.Name), Expr: ast.ID(ins.Expr), Internal: true}
		}
	}

	if target == TargetCircuit {
		return circuit(prog, fns)
	}
	return nil
}

// circuit checks that the code stays inside what a circuit can express. There
// is no host, and every recursive function must be built inside a budget.
func circuit(prog *ast.Program, fns []*irFunc) error {
	for _, fn := range fns {
		depth := 0
		for _, ins := range fn.code {
			fail := func(format string, v ...interface{}) error {
				id := ast.ID(ins.Expr)
				return &CompilationError{Stage: "select", Msg: fmt.Sprintf(format, v...), Expr: id, Pos: prog.Position(id)}
			}
			switch ins.Op {
			case machine.OpBudget:
				depth++
			case machine.OpEndBudget:
				depth--
			case machine.OpHost:
				return fail("host function `%s` is not available on the circuit target", ins.Name)
			case machine.OpLoadSym:
				return fail("symbol `%s` is not available on the circuit target", ins.Name)
			case machine.OpDefine, machine.OpCompleted:
				return fail("%s is not available on the circuit target", ins.Op)
			case machine.OpClosure:
				if fns[ins.N].self && depth == 0 {
					return fail("recursion on the circuit target must be inside a dynamic bound")
				}
			}
		}
	}
	return nil
}
