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
	"github.com/purpleidea/causality/machine"
)

// assemble resolves the labels and numbers the registers of each function. The
// parameters, captures, and self keep their place at the start, and every other
// register is numbered in the order it first appears.
func assemble(fns []*irFunc, debug bool) *machine.Program {
	prog := &machine.Program{}
	for _, fn := range fns {
		labels := make(map[int]int)
		n := 0
		for _, ins := range fn.code {
			if ins.Op == opLabel {
				labels[ins.Target] = n
				continue
			}
			n++
		}

		layout := fn.params + fn.captures
		if fn.self {
			layout++
		}
		regs := make(map[machine.Reg]machine.Reg)
		for i := 0; i < layout; i++ {
			regs[machine.Reg(i)] = machine.Reg(i)
		}
		next := machine.Reg(layout)
		number := func(r machine.Reg) machine.Reg {
			if x, exists := regs[r]; exists {
				return x
			}
			regs[r] = next
			next++
			return regs[r]
		}

		code := []machine.Instruction{}
		for _, ins := range fn.code {
			if ins.Op == opLabel {
				continue
			}
			out := ins
			out.Src = nil
			for _, r := range ins.Src {
				out.Src = append(out.Src, number(r))
			}
			out.Dst = 0
			if ins.Op.Writes() {
				out.Dst = number(ins.Dst)
			}
			if ins.Op == machine.OpSplit {
				out.Dst2 = number(ins.Dst2)
			}
			if ins.Op.Jumps() {
				out.Target = labels[ins.Target]
			}
			if !debug {
				out.Expr = ""
			}
			code = append(code, out)
		}

		prog.Funcs = append(prog.Funcs, &machine.Func{
			Name:     fn.name,
			Params:   fn.params,
			Captures: fn.captures,
			Self:     fn.self,
			Regs:     int(next),
			Code:     code,
		})
	}
	return prog
}
