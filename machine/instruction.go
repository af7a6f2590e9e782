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

// Package machine is the register machine that compiled programs run on. The
// instruction set is small and fixed. Every instruction names its registers by
// index, and reading a register moves the value out of it, except for copy,
// which refuses linear values.
package machine

import (
	"fmt"
	"strings"

	"github.com/purpleidea/causality/lang/types"
)

// Op is the name of an instruction.
type Op string

// This is the complete instruction set. The comments show the effect, where
// dst is the Dst register and src0, src1 are the entries of Src.
const (
	OpConst     Op = "const"     // dst = Lit
	OpMove      Op = "move"      // dst = src0, and src0 is emptied
	OpCopy      Op = "copy"      // dst = src0, and src0 keeps its value, which must not be linear
	OpAlloc     Op = "alloc"     // dst = a new resource holding src0
	OpConsume   Op = "consume"   // dst = the value held by the resource in src0
	OpFree      Op = "free"      // destroys the resource in src0, dst = unit
	OpOp        Op = "op"        // dst = Name(src...), a pure operator
	OpTensor    Op = "tensor"    // dst = (src0, src1)
	OpSplit     Op = "split"     // dst, Dst2 = the halves of src0
	OpInject    Op = "inject"    // dst = inl src0 if N is 0, else inr src0
	OpCase      Op = "case"      // dst = the payload of src0, then jump to Target if it is inr
	OpRecord    Op = "record"    // dst = a record with Fields[i] = src[i]
	OpGetField  Op = "getfield"  // dst = field Name of src0
	OpSetField  Op = "setfield"  // dst = src0 with field Name set to src1
	OpClosure   Op = "closure"   // dst = a closure of function N over the captures in src
	OpCall      Op = "call"      // dst = src0(src1...)
	OpTailCall  Op = "tailcall"  // return src0(src1...), reusing the frame
	OpHost      Op = "host"      // dst = the host function Name(src...)
	OpLoadSym   Op = "loadsym"   // dst = the host symbol Name
	OpDefine    Op = "define"    // defines the host symbol Name as src0, dst = unit
	OpCompleted Op = "completed" // dst = true if the effect with the id in src0 has run
	OpBranch    Op = "branch"    // jump to Target if src0 is false
	OpJump      Op = "jump"      // jump to Target
	OpBudget    Op = "budget"    // start a budget of N source steps
	OpEndBudget Op = "endbudget" // end the innermost budget
	OpReturn    Op = "return"    // return src0 to the caller
)

// operands is the number of source registers of each instruction, or -1 if it
// can have any number.
var operands = map[Op]int{
	OpConst:     0,
	OpMove:      1,
	OpCopy:      1,
	OpAlloc:     1,
	OpConsume:   1,
	OpFree:      1,
	OpOp:        -1,
	OpTensor:    2,
	OpSplit:     1,
	OpInject:    1,
	OpCase:      1,
	OpRecord:    -1,
	OpGetField:  1,
	OpSetField:  2,
	OpClosure:   -1,
	OpCall:      -1,
	OpTailCall:  -1,
	OpHost:      -1,
	OpLoadSym:   0,
	OpDefine:    1,
	OpCompleted: 1,
	OpBranch:    1,
	OpJump:      0,
	OpBudget:    0,
	OpEndBudget: 0,
	OpReturn:    1,
}

// Ops returns every instruction name, in the order they are documented.
func Ops() []Op {
	return []Op{
		OpConst, OpMove, OpCopy, OpAlloc, OpConsume, OpFree, OpOp, OpTensor,
		OpSplit, OpInject, OpCase, OpRecord, OpGetField, OpSetField,
		OpClosure, OpCall, OpTailCall, OpHost, OpLoadSym, OpDefine,
		OpCompleted, OpBranch, OpJump, OpBudget, OpEndBudget, OpReturn,
	}
}

// Writes returns true if the instruction writes its Dst register.
func (obj Op) Writes() bool {
	switch obj {
	case OpBranch, OpJump, OpBudget, OpEndBudget, OpReturn, OpTailCall:
		return false
	}
	return true
}

// Jumps returns true if the instruction uses its Target.
func (obj Op) Jumps() bool {
	return obj == OpBranch || obj == OpJump || obj == OpCase
}

// Reg is the index of a register in the current frame.
type Reg int

// String returns the register in the usual assembly form.
func (obj Reg) String() string {
	return fmt.Sprintf("r%d", obj)
}

// Instruction is a single machine instruction. Only the fields that the Op
// uses are set, so that the encoding stays canonical.
type Instruction struct {
	Op     Op             `json:"op"`
	Dst    Reg            `json:"dst"`
	Dst2   Reg            `json:"dst2,omitempty"`
	Src    []Reg          `json:"src,omitempty"`
	Lit    *types.Literal `json:"lit,omitempty"`
	Name   string         `json:"name,omitempty"`
	Fields []string       `json:"fields,omitempty"`
	Target int            `json:"target,omitempty"`
	N      int64          `json:"n,omitempty"`

	// Cost is the number of source steps that this instruction accounts
	// for. Budgets are measured in these, so that a program runs out of
	// steps at the same point whatever the optimization level.
	Cost int64 `json:"cost,omitempty"`

	// Expr is the id of the expression this came from. It is only set if
	// debug info was requested.
	Expr string `json:"expr,omitempty"`
}

// String returns the assembly form of the instruction.
func (obj *Instruction) String() string {
	src := []string{}
	for _, r := range obj.Src {
		src = append(src, r.String())
	}
	args := strings.Join(src, " ")

	var s string
	switch obj.Op {
	case OpConst:
		s = fmt.Sprintf("%s = const %s", obj.Dst, obj.Lit)
	case OpOp, OpHost:
		s = fmt.Sprintf("%s = %s %s %s", obj.Dst, obj.Op, obj.Name, args)
	case OpGetField, OpSetField, OpDefine:
		s = fmt.Sprintf("%s = %s %s '%s", obj.Dst, obj.Op, args, obj.Name)
	case OpLoadSym:
		s = fmt.Sprintf("%s = loadsym %s", obj.Dst, obj.Name)
	case OpSplit:
		s = fmt.Sprintf("%s %s = split %s", obj.Dst, obj.Dst2, args)
	case OpInject:
		side := "inl"
		if obj.N != 0 {
			side = "inr"
		}
		s = fmt.Sprintf("%s = %s %s", obj.Dst, side, args)
	case OpCase:
		s = fmt.Sprintf("%s = case %s @%d", obj.Dst, args, obj.Target)
	case OpRecord:
		fields := []string{}
		for i, f := range obj.Fields {
			if i < len(obj.Src) {
				fields = append(fields, fmt.Sprintf("%s:%s", f, obj.Src[i]))
			}
		}
		s = fmt.Sprintf("%s = record %s", obj.Dst, strings.Join(fields, " "))
	case OpClosure:
		s = fmt.Sprintf("%s = closure #%d %s", obj.Dst, obj.N, args)
	case OpBranch:
		s = fmt.Sprintf("branch %s @%d", args, obj.Target)
	case OpJump:
		s = fmt.Sprintf("jump @%d", obj.Target)
	case OpBudget:
		s = fmt.Sprintf("budget %d", obj.N)
	case OpEndBudget:
		s = "endbudget"
	case OpReturn, OpTailCall:
		s = fmt.Sprintf("%s %s", obj.Op, args)
	default:
		s = fmt.Sprintf("%s = %s %s", obj.Dst, obj.Op, args)
	}
	return strings.TrimSpace(s)
}

// Func is a single function. The registers start with the parameters, followed
// by the captured values, and then the function itself if it is recursive.
type Func struct {
	Name     string        `json:"name"`
	Params   int           `json:"params"`
	Captures int           `json:"captures"`
	Self     bool          `json:"self,omitempty"`
	Regs     int           `json:"regs"`
	Code     []Instruction `json:"code"`
}

// SelfReg returns the register that holds the function itself.
func (obj *Func) SelfReg() Reg {
	return Reg(obj.Params + obj.Captures)
}

// Program is a complete compiled program. The first function is the entry
// point, and it takes no parameters.
type Program struct {
	Funcs []*Func `json:"funcs"`
}

// Len returns the total number of instructions.
func (obj *Program) Len() int {
	n := 0
	for _, fn := range obj.Funcs {
		n += len(fn.Code)
	}
	return n
}

// String returns a printable listing of the whole program.
func (obj *Program) String() string {
	var b strings.Builder
	for i, fn := range obj.Funcs {
		fmt.Fprintf(&b, "#%d %s (params: %d, captures: %d, regs: %d)\n", i, fn.Name, fn.Params, fn.Captures, fn.Regs)
		for pc := range fn.Code {
			fmt.Fprintf(&b, "  %3d: %s\n", pc, &fn.Code[pc])
		}
	}
	return b.String()
}

// Validate checks every register, jump target, and function reference, so that
// a malformed program is rejected before it runs.
func (obj *Program) Validate() error {
	if obj == nil || len(obj.Funcs) == 0 {
		return &Error{Kind: ErrMachine, Msg: "empty program", PC: -1}
	}
	if obj.Funcs[0].Params != 0 || obj.Funcs[0].Captures != 0 {
		return &Error{Kind: ErrMachine, Msg: "entry point must not take arguments", PC: -1}
	}
	for f, fn := range obj.Funcs {
		layout := fn.Params + fn.Captures
		if fn.Self {
			layout++
		}
		if fn.Regs < layout {
			return &Error{Kind: ErrMachine, Func: f, PC: -1, Msg: fmt.Sprintf("function needs at least %d registers", layout)}
		}
		if len(fn.Code) == 0 {
			return &Error{Kind: ErrMachine, Func: f, PC: -1, Msg: "function has no code"}
		}
		for pc := range fn.Code {
			if err := obj.check(f, fn, pc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (obj *Program) check(f int, fn *Func, pc int) error {
	ins := &fn.Code[pc]
	fail := func(format string, v ...interface{}) error {
		return &Error{Kind: ErrMachine, Func: f, PC: pc, Expr: ins.Expr, Msg: fmt.Sprintf(format, v...)}
	}

	n, exists := operands[ins.Op]
	if !exists {
		return fail("unknown instruction `%s`", ins.Op)
	}
	if n >= 0 && len(ins.Src) != n {
		return fail("%s expects %d operands, got %d", ins.Op, n, len(ins.Src))
	}
	inRange := func(r Reg) bool { return r >= 0 && int(r) < fn.Regs }
	for _, r := range ins.Src {
		if !inRange(r) {
			return fail("register %s out of range", r)
		}
	}
	if ins.Op.Writes() && !inRange(ins.Dst) {
		return fail("register %s out of range", ins.Dst)
	}
	if ins.Op == OpSplit && !inRange(ins.Dst2) {
		return fail("register %s out of range", ins.Dst2)
	}
	if ins.Op.Jumps() && (ins.Target < 0 || ins.Target >= len(fn.Code)) {
		return fail("jump target %d out of range", ins.Target)
	}
	if ins.Cost < 0 {
		return fail("negative cost")
	}

	switch ins.Op {
	case OpConst:
		if ins.Lit == nil {
			return fail("const without a literal")
		}
	case OpCall, OpTailCall:
		if len(ins.Src) == 0 {
			return fail("%s without a function", ins.Op)
		}
	case OpClosure:
		if ins.N <= 0 || int(ins.N) >= len(obj.Funcs) {
			return fail("closure of unknown function #%d", ins.N)
		}
		if target := obj.Funcs[ins.N]; len(ins.Src) != target.Captures {
			return fail("closure of #%d needs %d captures, got %d", ins.N, target.Captures, len(ins.Src))
		}
	case OpRecord:
		if len(ins.Fields) != len(ins.Src) {
			return fail("record has %d fields and %d values", len(ins.Fields), len(ins.Src))
		}
	case OpOp, OpHost, OpLoadSym, OpGetField, OpSetField, OpDefine:
		if ins.Name == "" {
			return fail("%s without a name", ins.Op)
		}
	case OpBudget:
		if ins.N <= 0 {
			return fail("budget must be positive")
		}
	}
	return nil
}
