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
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
)

// optimize runs the passes of the chosen level over every function. Sharing of
// common subexpressions and tail calls already happened during lowering. No
// pass changes the source steps that a path through the code accounts for.
func optimize(fns []*irFunc, level OptLevel) {
	if level == OptNone {
		return
	}
	for _, fn := range fns {
		for changed := true; changed; {
			changed = constfold(fn)
			changed = dce(fn) || changed
		}
	}
}

// sweep removes the dead instructions, each of which must fall through to the
// next one. The cost of a removed instruction moves on to the next instruction
// that is kept, since that one runs exactly when it would have. If a label
// comes first, another path joins there, so the last removed instruction stays
// to keep the cost. It returns false if nothing was removed.
func sweep(fn *irFunc, dead map[int]struct{}) bool {
	changed := false
	code := []machine.Instruction{}
	var carry int64
	last := -1 // the last removed instruction that carries a cost
	for i, ins := range fn.code {
		if _, exists := dead[i]; exists {
			carry += ins.Cost
			if carry > 0 {
				last = i
			}
			changed = true
			continue
		}
		if carry > 0 && ins.Op == opLabel {
			kept := fn.code[last]
			kept.Cost = carry
			code = append(code, kept)
			carry, last = 0, -1
		}
		ins.Cost += carry
		carry, last = 0, -1
		code = append(code, ins)
	}
	if carry > 0 { // nothing follows, which lowering never emits
		kept := fn.code[last]
		kept.Cost = carry
		code = append(code, kept)
	}
	fn.code = code
	return changed
}

// usage counts the definitions and the reads of each register.
func usage(fn *irFunc) (map[machine.Reg]int, map[machine.Reg]int, map[machine.Reg]int) {
	defs := make(map[machine.Reg]int)
	uses := make(map[machine.Reg]int)
	at := make(map[machine.Reg]int) // index of the last definition
	for i, ins := range fn.code {
		for _, r := range ins.Src {
			uses[r]++
		}
		if ins.Op == opLabel || !ins.Op.Writes() {
			continue
		}
		defs[ins.Dst]++
		at[ins.Dst] = i
		if ins.Op == machine.OpSplit {
			defs[ins.Dst2]++
			at[ins.Dst2] = i
		}
	}
	return defs, uses, at
}

// constfold computes the operators whose arguments are all constants, and
// removes the branches on constant conditions. An operator that fails is left
// alone, so that the error still happens when the code runs.
func constfold(fn *irFunc) bool {
	defs, uses, at := usage(fn)

	// constant returns the value of a register that is only written by a
	// single earlier const, and only read once.
	constant := func(r machine.Reg, before int) (types.Value, int, bool) {
		if defs[r] != 1 || uses[r] != 1 {
			return nil, 0, false
		}
		i := at[r]
		if i >= before || fn.code[i].Op != machine.OpConst {
			return nil, 0, false
		}
		v, err := fn.code[i].Lit.Value()
		if err != nil {
			return nil, 0, false
		}
		return v, i, true
	}

	dead := make(map[int]struct{})
	for i := range fn.code {
		ins := &fn.code[i]
		switch ins.Op {
		case machine.OpOp:
			b, exists := funcs.Lookup(ins.Name)
			if !exists || !b.Operator() {
				continue
			}
			args := []types.Value{}
			from := []int{}
			for _, r := range ins.Src {
				v, j, ok := constant(r, i)
				if !ok {
					break
				}
				args = append(args, v)
				from = append(from, j)
			}
			if len(args) != len(ins.Src) {
				continue
			}
			v, err := b.Call(args)
			if err != nil {
				continue
			}
			lit, err := types.LiteralOf(v)
			if err != nil {
				continue // lists stay as they are
			}
			*ins = machine.Instruction{Op: machine.OpConst, Dst: ins.Dst, Lit: lit, Cost: ins.Cost, Expr: ins.Expr}
			for _, j := range from {
				dead[j] = struct{}{}
			}

		case machine.OpBranch:
			v, j, ok := constant(ins.Src[0], i)
			if !ok {
				continue
			}
			c, ok := v.(*types.BoolValue)
			if !ok {
				continue
			}
			if c.V {
				dead[i] = struct{}{} // fall through to the first arm
			} else {
				*ins = machine.Instruction{Op: machine.OpJump, Target: ins.Target, Cost: ins.Cost, Expr: ins.Expr}
			}
			dead[j] = struct{}{}
		}
	}

	return sweep(fn, dead)
}

// removable returns true if the instruction has no effect other than writing
// its register.
func removable(ins *machine.Instruction) bool {
	switch ins.Op {
	case machine.OpConst, machine.OpCopy, machine.OpClosure:
		return true
	case machine.OpOp:
		b, exists := funcs.Lookup(ins.Name)
		return exists && !b.Fallible
	}
	return false
}

// dce removes the instructions whose result is never read.
func dce(fn *irFunc) bool {
	_, uses, _ := usage(fn)
	dead := make(map[int]struct{})
	for i := range fn.code {
		ins := &fn.code[i]
		if removable(ins) && uses[ins.Dst] == 0 {
			dead[i] = struct{}{}
		}
	}
	if len(dead) == 0 {
		return false
	}
	before := len(fn.code)
	sweep(fn, dead)
	return len(fn.code) < before
}
