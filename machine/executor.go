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

package machine

import (
	"context"
	"fmt"
	"sort"

	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util"
)

// Executor runs programs one instruction at a time, on a single goroutine. It
// holds configuration only. Each call to Run has its own registers and its own
// resource table.
type Executor struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// Gas is the number of instructions the program may run. Zero means
	// there is no limit. Unlike a budget, it depends on how the program was
	// optimized.
	Gas int64

	// Seed is mixed into every resource id that is allocated.
	Seed string

	// Host provides symbols and host functions. If it is nil, any attempt
	// to reach the host is denied.
	Host interfaces.Host

	// Trace records every step in the result.
	Trace bool
}

// Result is the outcome of a successful run.
type Result struct {
	Value types.Value

	// Resources are the live resources, all of which are held by the
	// value.
	Resources []*types.ResourceValue

	// Nullifiers are recorded for each consumed resource, in order.
	Nullifiers []string

	// Steps is the number of source steps, which is the same count that
	// the interpreter reaches for the same program.
	Steps int64

	// GasUsed is the number of instructions that ran.
	GasUsed int64

	Trace []*TraceStep
}

type regState uint8

const (
	regUnset regState = iota
	regFull
	regEmptied
)

type frame struct {
	index int
	fn    *Func
	regs  []types.Value
	state []regState
	pc    int
	ret   Reg // where the caller wants the result
}

func newFrame(index int, fn *Func) *frame {
	return &frame{
		index: index,
		fn:    fn,
		regs:  make([]types.Value, fn.Regs),
		state: make([]regState, fn.Regs),
	}
}

// run is the state of a single execution.
type run struct {
	*Executor
	ctx  context.Context
	prog *Program

	stack   []*frame
	budgets []int64 // the source step at which each budget runs out

	steps      int64 // instructions
	cost       int64 // source steps
	seq        uint64
	live       map[string]*types.ResourceValue
	seen       map[string]struct{} // every resource id that was ever live
	nullifiers []string
	trace      []*TraceStep
	current    *TraceStep
}

// Run executes the program to completion.
func (obj *Executor) Run(ctx context.Context, prog *Program) (*Result, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	r := &run{
		Executor: obj,
		ctx:      ctx,
		prog:     prog,
		stack:    []*frame{newFrame(0, prog.Funcs[0])},
		live:     make(map[string]*types.ResourceValue),
		seen:     make(map[string]struct{}),
	}
	v, err := r.loop()
	if err != nil {
		if obj.Debug {
			obj.Logf("machine: failed after %d instructions: %v", r.steps, err)
		}
		return nil, err
	}

	// anything still live must be part of the result
	held := make(map[string]struct{})
	collect(v, held)
	ids := []string{}
	for id := range r.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, exists := held[id]; !exists {
			return nil, &Error{Kind: ErrLinearityViolation, PC: -1, Msg: fmt.Sprintf("resource %s was never consumed", id)}
		}
	}

	if obj.Debug {
		obj.Logf("machine: result: %s (%d steps, %d instructions)", v, r.cost, r.steps)
	}
	return &Result{
		Value:      v,
		Resources:  types.Resources(v),
		Nullifiers: r.nullifiers,
		Steps:      r.cost,
		GasUsed:    r.steps,
		Trace:      r.trace,
	}, nil
}

// collect adds the ids of every resource held by the value, including the ones
// nested inside other resources.
func collect(v types.Value, held map[string]struct{}) {
	for _, res := range types.Resources(v) {
		held[res.ID] = struct{}{}
		collect(res.V, held)
	}
}

func (obj *run) top() *frame {
	return obj.stack[len(obj.stack)-1]
}

func (obj *run) fail(kind util.Error, reg *Reg, err error, format string, v ...interface{}) error {
	f := obj.top()
	e := &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, v...),
		Func: f.index,
		PC:   f.pc,
		Reg:  reg,
		Err:  err,
	}
	if f.pc >= 0 && f.pc < len(f.fn.Code) {
		e.Expr = f.fn.Code[f.pc].Expr
	}
	return e
}

func (obj *run) loop() (types.Value, error) {
	for {
		f := obj.top()
		if f.pc < 0 || f.pc >= len(f.fn.Code) {
			return nil, &Error{Kind: ErrMachine, Func: f.index, PC: -1, Msg: "ran past the end of the function"}
		}
		ins := &f.fn.Code[f.pc]
		if obj.Gas > 0 && obj.steps >= obj.Gas {
			return nil, obj.fail(ErrExecutionFailed, nil, nil, "out of gas after %d instructions", obj.steps)
		}
		if n := len(obj.budgets); n > 0 && obj.cost+ins.Cost > obj.budgets[n-1] {
			return nil, obj.fail(ErrExecutionFailed, nil, nil, "ran out of steps after %d", obj.cost)
		}
		if obj.steps%64 == 0 {
			select {
			case <-obj.ctx.Done():
				return nil, obj.fail(ErrExecutionTimeout, nil, obj.ctx.Err(), "execution cancelled")
			default:
			}
		}

		obj.steps++
		obj.cost += ins.Cost
		if obj.Trace {
			obj.current = &TraceStep{Step: obj.steps, Func: f.index, PC: f.pc, Op: ins.Op}
			obj.trace = append(obj.trace, obj.current)
		}
		if obj.Debug {
			obj.Logf("machine: #%d@%d: %s", f.index, f.pc, ins)
		}

		v, done, err := obj.exec(f, ins)
		if err != nil {
			return nil, err
		}
		if done {
			return v, nil
		}
	}
}

func (obj *run) check(f *frame, r Reg) error {
	if r < 0 || int(r) >= len(f.regs) {
		return obj.fail(ErrMachine, &r, nil, "register out of range")
	}
	return nil
}

// read returns the value in the register, which must be full.
func (obj *run) read(f *frame, r Reg) (types.Value, error) {
	if err := obj.check(f, r); err != nil {
		return nil, err
	}
	switch f.state[r] {
	case regUnset:
		return nil, obj.fail(ErrMachine, &r, nil, "read of a register that was never written")
	case regEmptied:
		return nil, obj.fail(ErrLinearityViolation, &r, nil, "read of a register that was moved out")
	}
	if obj.current != nil {
		obj.current.Read = append(obj.current.Read, r)
	}
	return f.regs[r], nil
}

// take moves the value out of the register.
func (obj *run) take(f *frame, r Reg) (types.Value, error) {
	v, err := obj.read(f, r)
	if err != nil {
		return nil, err
	}
	f.regs[r] = nil
	f.state[r] = regEmptied
	return v, nil
}

func (obj *run) takeAll(f *frame, regs []Reg) ([]types.Value, error) {
	out := []types.Value{}
	for _, r := range regs {
		v, err := obj.take(f, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// put writes the register. A live linear value may not be overwritten.
func (obj *run) put(f *frame, r Reg, v types.Value) error {
	if err := obj.check(f, r); err != nil {
		return err
	}
	if f.state[r] == regFull && f.regs[r].Linear() {
		return obj.fail(ErrLinearityViolation, &r, nil, "overwrite of a linear value")
	}
	f.regs[r] = v
	f.state[r] = regFull
	if obj.current != nil {
		obj.current.Written = append(obj.current.Written, r)
	}
	return nil
}

// enter adds the resources that arrive from the host to the resource table.
// Each resource may only arrive once.
func (obj *run) enter(v types.Value) error {
	for _, res := range types.Resources(v) {
		if _, exists := obj.seen[res.ID]; exists {
			return obj.fail(ErrLinearityViolation, nil, nil, "resource %s was received twice", res.ID)
		}
		obj.seen[res.ID] = struct{}{}
		obj.live[res.ID] = res
	}
	return nil
}

// destroy removes the resource from the table and records its nullifier.
func (obj *run) destroy(r Reg, v types.Value) (*types.ResourceValue, error) {
	res, ok := v.(*types.ResourceValue)
	if !ok {
		return nil, obj.fail(ErrExecutionFailed, &r, nil, "expected a resource, got %s", v)
	}
	if _, exists := obj.live[res.ID]; !exists {
		return nil, obj.fail(ErrResourceNotFound, &r, nil, "resource %s is not live", res.ID)
	}
	delete(obj.live, res.ID)
	obj.nullifiers = append(obj.nullifiers, types.Nullifier(res.ID))
	if obj.current != nil {
		obj.current.Consumed = append(obj.current.Consumed, res.ID)
	}
	return res, nil
}

func (obj *run) host(r Reg) error {
	if obj.Host == nil {
		return obj.fail(ErrPermissionDenied, &r, nil, "no host is available")
	}
	return nil
}

// exec runs one instruction. It returns true when the program has finished.
func (obj *run) exec(f *frame, ins *Instruction) (types.Value, bool, error) {
	next := f.pc + 1
	var src0 Reg
	if len(ins.Src) > 0 {
		src0 = ins.Src[0]
	}

	switch ins.Op {
	case OpConst:
		v, err := ins.Lit.Value()
		if err != nil {
			return nil, false, obj.fail(ErrMachine, nil, err, "bad literal")
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpMove:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpCopy:
		v, err := obj.read(f, src0)
		if err != nil {
			return nil, false, err
		}
		if v.Linear() {
			return nil, false, obj.fail(ErrLinearityViolation, &src0, nil, "copy of a linear value")
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpAlloc:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		res := &types.ResourceValue{ID: types.ResourceID(obj.Seed, obj.seq, v), V: v}
		obj.seq++
		obj.seen[res.ID] = struct{}{}
		obj.live[res.ID] = res
		if obj.current != nil {
			obj.current.Allocated = append(obj.current.Allocated, res.ID)
		}
		if err := obj.put(f, ins.Dst, res); err != nil {
			return nil, false, err
		}

	case OpConsume, OpFree:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		res, err := obj.destroy(src0, v)
		if err != nil {
			return nil, false, err
		}
		var out types.Value = &types.UnitValue{}
		if ins.Op == OpConsume {
			out = res.V
		}
		if err := obj.put(f, ins.Dst, out); err != nil {
			return nil, false, err
		}

	case OpOp:
		b, exists := funcs.Lookup(ins.Name)
		if !exists || !b.Operator() {
			return nil, false, obj.fail(ErrMachine, nil, nil, "unknown operator `%s`", ins.Name)
		}
		args, err := obj.takeAll(f, ins.Src)
		if err != nil {
			return nil, false, err
		}
		v, err := b.Call(args)
		if err != nil {
			return nil, false, obj.fail(ErrExecutionFailed, nil, err, "operator `%s` failed", ins.Name)
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpTensor:
		args, err := obj.takeAll(f, ins.Src)
		if err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, &types.ProductValue{L: args[0], R: args[1]}); err != nil {
			return nil, false, err
		}

	case OpSplit:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		p, ok := v.(*types.ProductValue)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "expected a tensor, got %s", v)
		}
		if err := obj.put(f, ins.Dst, p.L); err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst2, p.R); err != nil {
			return nil, false, err
		}

	case OpInject:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, &types.SumValue{Right: ins.N != 0, V: v}); err != nil {
			return nil, false, err
		}

	case OpCase:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		s, ok := v.(*types.SumValue)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "expected a sum, got %s", v)
		}
		if err := obj.put(f, ins.Dst, s.V); err != nil {
			return nil, false, err
		}
		if s.Right {
			next = ins.Target
		}

	case OpRecord:
		args, err := obj.takeAll(f, ins.Src)
		if err != nil {
			return nil, false, err
		}
		fields := make(map[string]types.Value)
		for i, name := range ins.Fields {
			fields[name] = args[i]
		}
		if err := obj.put(f, ins.Dst, &types.RecordValue{V: fields}); err != nil {
			return nil, false, err
		}

	case OpGetField, OpSetField:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		rec, ok := v.(*types.RecordValue)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "expected a record, got %s", v)
		}
		var out types.Value
		if ins.Op == OpGetField {
			field, exists := rec.V[ins.Name]
			if !exists {
				return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "record has no field `%s`", ins.Name)
			}
			out = field
		} else {
			x, err := obj.take(f, ins.Src[1])
			if err != nil {
				return nil, false, err
			}
			fields := make(map[string]types.Value)
			for k, v := range rec.V {
				fields[k] = v
			}
			fields[ins.Name] = x
			out = &types.RecordValue{V: fields}
		}
		if err := obj.put(f, ins.Dst, out); err != nil {
			return nil, false, err
		}

	case OpClosure:
		env, err := obj.takeAll(f, ins.Src)
		if err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, &Closure{Func: int(ins.N), Env: env}); err != nil {
			return nil, false, err
		}

	case OpCall, OpTailCall:
		return obj.call(f, ins)

	case OpHost:
		if err := obj.host(ins.Dst); err != nil {
			return nil, false, err
		}
		args, err := obj.takeAll(f, ins.Src)
		if err != nil {
			return nil, false, err
		}
		v, ok, err := obj.Host.TryCallHostFunction(ins.Name, args)
		if err != nil {
			return nil, false, obj.fail(ErrExecutionFailed, nil, err, "host function `%s` failed", ins.Name)
		}
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, nil, nil, "unknown host function `%s`", ins.Name)
		}
		if err := obj.enter(v); err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpLoadSym:
		if err := obj.host(ins.Dst); err != nil {
			return nil, false, err
		}
		v, ok := obj.Host.GetSymbol(ins.Name)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, nil, nil, "unknown symbol `%s`", ins.Name)
		}
		if err := obj.enter(v); err != nil {
			return nil, false, err
		}
		if err := obj.put(f, ins.Dst, v); err != nil {
			return nil, false, err
		}

	case OpDefine:
		if err := obj.host(src0); err != nil {
			return nil, false, err
		}
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		if err := obj.Host.DefineSymbol(ins.Name, v); err != nil {
			return nil, false, obj.fail(ErrPermissionDenied, nil, err, "can't define `%s`", ins.Name)
		}
		if err := obj.put(f, ins.Dst, &types.UnitValue{}); err != nil {
			return nil, false, err
		}

	case OpCompleted:
		if err := obj.host(src0); err != nil {
			return nil, false, err
		}
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		s, ok := v.(*types.StrValue)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "expected an effect id, got %s", v)
		}
		done, err := obj.Host.IsEffectCompleted(s.V)
		if err != nil {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, err, "can't check effect %s", s.V)
		}
		if err := obj.put(f, ins.Dst, &types.BoolValue{V: done}); err != nil {
			return nil, false, err
		}

	case OpBranch:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		b, ok := v.(*types.BoolValue)
		if !ok {
			return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "expected a bool, got %s", v)
		}
		if !b.V {
			next = ins.Target
		}

	case OpJump:
		next = ins.Target

	case OpBudget:
		limit := obj.cost + ins.N
		if n := len(obj.budgets); n > 0 && obj.budgets[n-1] < limit {
			limit = obj.budgets[n-1] // the outer budget is tighter
		}
		obj.budgets = append(obj.budgets, limit)

	case OpEndBudget:
		if len(obj.budgets) == 0 {
			return nil, false, obj.fail(ErrMachine, nil, nil, "end of a budget that never started")
		}
		obj.budgets = obj.budgets[:len(obj.budgets)-1]

	case OpReturn:
		v, err := obj.take(f, src0)
		if err != nil {
			return nil, false, err
		}
		obj.stack = obj.stack[:len(obj.stack)-1]
		if len(obj.stack) == 0 {
			return v, true, nil
		}
		caller := obj.top()
		if err := obj.put(caller, f.ret, v); err != nil {
			return nil, false, err
		}
		return nil, false, nil

	default:
		return nil, false, obj.fail(ErrMachine, nil, nil, "unknown instruction `%s`", ins.Op)
	}

	f.pc = next
	return nil, false, nil
}

// call enters a closure. A tail call replaces the current frame, so that loops
// written as recursion run in constant space. The frames above the entry point
// are the nested calls, of which there may be at most MaxCallDepth.
func (obj *run) call(f *frame, ins *Instruction) (types.Value, bool, error) {
	src0 := ins.Src[0]
	v, err := obj.take(f, src0)
	if err != nil {
		return nil, false, err
	}
	cl, ok := v.(*Closure)
	if !ok {
		return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "can't call %s", v)
	}
	args, err := obj.takeAll(f, ins.Src[1:])
	if err != nil {
		return nil, false, err
	}
	if cl.Func <= 0 || cl.Func >= len(obj.prog.Funcs) {
		return nil, false, obj.fail(ErrMachine, &src0, nil, "closure of unknown function #%d", cl.Func)
	}
	fn := obj.prog.Funcs[cl.Func]
	if len(args) != fn.Params || len(cl.Env) != fn.Captures {
		return nil, false, obj.fail(ErrExecutionFailed, &src0, nil, "function #%d expects %d args, got %d", cl.Func, fn.Params, len(args))
	}

	callee := newFrame(cl.Func, fn)
	values := append(append([]types.Value{}, args...), cl.Env...)
	if fn.Self {
		values = append(values, cl)
	}
	for i, x := range values {
		callee.regs[i] = x
		callee.state[i] = regFull
	}

	if ins.Op == OpTailCall {
		callee.ret = f.ret
		obj.stack[len(obj.stack)-1] = callee
		return nil, false, nil
	}
	if len(obj.stack) > interfaces.MaxCallDepth {
		return nil, false, obj.fail(ErrExecutionFailed, nil, nil, "call depth exceeded: more than %d nested calls", interfaces.MaxCallDepth)
	}
	callee.ret = ins.Dst
	f.pc++
	obj.stack = append(obj.stack, callee)
	return nil, false, nil
}
