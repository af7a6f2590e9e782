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
	"sort"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
)

// These pseudo instructions only exist between lowering and assembly.
const (
	opLabel machine.Op = "label" // marks the label in Target
	opPrim  machine.Op = "prim"  // applies the combinator in Name
)

// irFunc is a function in the intermediate form. Registers are virtual, and
// jump targets are label ids.
type irFunc struct {
	name     string
	params   int
	captures int
	self     bool
	regs     int // virtual registers used so far
	code     []machine.Instruction
}

// binding is a variable bound to a register.
type binding struct {
	name   string
	reg    machine.Reg
	linear bool
	index  int // unique within a compilation

	remaining int  // reads left on the current path
	moved     bool // the register was handed to its last reader
}

type scope struct {
	b      *binding
	parent *scope
}

func (obj *scope) push(b *binding) *scope {
	return &scope{b: b, parent: obj}
}

func (obj *scope) lookup(name string) *binding {
	for s := obj; s != nil; s = s.parent {
		if s.b.name == name {
			return s.b
		}
	}
	return nil
}

// state is the saved read state of a binding.
type state struct {
	remaining int
	moved     bool
}

func snapshot(sc *scope) map[*binding]state {
	out := make(map[*binding]state)
	for s := sc; s != nil; s = s.parent {
		out[s.b] = state{remaining: s.b.remaining, moved: s.b.moved}
	}
	return out
}

func restore(saved map[*binding]state) {
	for b, s := range saved {
		b.remaining = s.remaining
		b.moved = s.moved
	}
}

// lowerer holds the state of lowering one program.
type lowerer struct {
	prog   *ast.Program
	config *Config

	funcs    []*irFunc
	labels   int
	bindings int
	frees    map[*term][]string
}

// builder emits the code of one function.
type builder struct {
	*lowerer
	fn *irFunc

	// cse maps a pure subterm to the register that keeps its value. It is
	// only used at the aggressive level.
	cse    map[string]machine.Reg
	occurs map[ast.ID]int

	// pending is the source steps of the terms lowered since the last
	// instruction, which the next instruction accounts for.
	pending int64
}

// lower turns the expanded program into functions with virtual registers. The
// entry point is the first function. Each read of a variable moves its register
// if there are no more reads on the same path, and copies it otherwise.
func lower(prog *ast.Program, root *term, config *Config) ([]*irFunc, error) {
	l := &lowerer{
		prog:   prog,
		config: config,
		frees:  make(map[*term][]string),
	}
	entry := &irFunc{name: "main"}
	l.funcs = append(l.funcs, entry)

	b := l.builder(entry, root)
	r, err := b.lower(root, nil)
	if err != nil {
		return nil, err
	}
	b.emit(machine.Instruction{Op: machine.OpReturn, Src: []machine.Reg{r}}, root)
	return l.funcs, nil
}

func (obj *lowerer) builder(fn *irFunc, body *term) *builder {
	b := &builder{
		lowerer: obj,
		fn:      fn,
	}
	if obj.config.OptLevel == OptAggressive {
		b.cse = make(map[string]machine.Reg)
		b.occurs = make(map[ast.ID]int)
		b.tally(body)
	}
	return b
}

func (obj *lowerer) internal(t *term, format string, v ...interface{}) error {
	return &CompilationError{Stage: "lower", Msg: fmt.Sprintf(format, v...), Expr: t.id, Pos: t.pos, Internal: true}
}

func (obj *lowerer) label() int {
	l := obj.labels
	obj.labels++
	return l
}

// free returns the sorted names of the free variables of the term.
func (obj *lowerer) free(t *term) []string {
	if names, exists := obj.frees[t]; exists {
		return names
	}
	set := make(map[string]struct{})
	switch t.kind {
	case termVar:
		set[t.name] = struct{}{}

	case termLambda:
		for _, name := range obj.free(t.kids[0]) {
			set[name] = struct{}{}
		}
		for _, p := range t.params {
			delete(set, p)
		}

	default:
		for _, k := range t.kids {
			for _, name := range obj.free(k) {
				set[name] = struct{}{}
			}
		}
	}
	names := []string{}
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	obj.frees[t] = names
	return names
}

// tally counts the occurrences of each subterm in this function.
func (obj *builder) tally(t *term) {
	if t.id != "" {
		obj.occurs[t.id]++
	}
	for i, k := range t.kids {
		if k.kind == termLambda && !t.inline(i) {
			continue // a separate function
		}
		obj.tally(k)
	}
}

// count returns how many times each binding in scope is read by the term. A
// closure reads each variable it captures exactly once, when it is built.
func (obj *builder) count(t *term, sc *scope, masked map[string]struct{}) map[*binding]int {
	out := make(map[*binding]int)
	obj.countInto(t, sc, masked, out)
	return out
}

func (obj *builder) countInto(t *term, sc *scope, masked map[string]struct{}, out map[*binding]int) {
	resolve := func(name string) {
		if _, exists := masked[name]; exists {
			return
		}
		if b := sc.lookup(name); b != nil {
			out[b]++
		}
	}

	switch t.kind {
	case termVar:
		resolve(t.name)
		return

	case termLambda:
		for _, name := range obj.free(t) {
			resolve(name)
		}
		return
	}

	for i, k := range t.kids {
		if k.kind == termLambda && t.inline(i) {
			obj.countInto(k.kids[0], sc, mask(masked, k.params), out)
			continue
		}
		obj.countInto(k, sc, masked, out)
	}
}

func mask(masked map[string]struct{}, names []string) map[string]struct{} {
	out := make(map[string]struct{})
	for name := range masked {
		out[name] = struct{}{}
	}
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out
}

func (obj *builder) reg() machine.Reg {
	r := machine.Reg(obj.fn.regs)
	obj.fn.regs++
	return r
}

func (obj *builder) emit(ins machine.Instruction, t *term) {
	if t != nil {
		ins.Expr = string(t.id)
	}
	if ins.Op != opLabel {
		ins.Cost = obj.pending
		obj.pending = 0
	}
	obj.fn.code = append(obj.fn.code, ins)
}

// bind introduces the names in a new scope, for the given body.
func (obj *builder) bind(sc *scope, names []string, regs []machine.Reg, linear []bool, body *term) (*scope, []*binding) {
	bs := []*binding{}
	for i, name := range names {
		b := &binding{
			name:   name,
			reg:    regs[i],
			linear: i < len(linear) && linear[i],
			index:  obj.bindings,
		}
		obj.bindings++
		sc = sc.push(b)
		bs = append(bs, b)
	}
	counts := obj.count(body, sc, nil)
	for _, b := range bs {
		b.remaining = counts[b]
	}
	return sc, bs
}

// done checks that every linear binding was handed off by the end of its scope.
func (obj *builder) done(bs []*binding, t *term) error {
	for _, b := range bs {
		if b.linear && !b.moved {
			return obj.internal(t, "linear `%s` is never consumed", b.name)
		}
	}
	return nil
}

// read returns a register holding the value of the binding, which the caller
// then owns.
func (obj *builder) read(b *binding, t *term) (machine.Reg, error) {
	if b.moved {
		return 0, obj.internal(t, "`%s` is read after it was moved", b.name)
	}
	b.remaining--
	if b.remaining < 0 {
		return 0, obj.internal(t, "`%s` is read more often than counted", b.name)
	}
	if b.remaining > 0 {
		if b.linear {
			return 0, obj.internal(t, "linear `%s` is read more than once", b.name)
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpCopy, Dst: r, Src: []machine.Reg{b.reg}}, t)
		return r, nil
	}
	b.moved = true
	return b.reg, nil
}

func (obj *builder) list(ts []*term, sc *scope) ([]machine.Reg, error) {
	regs := []machine.Reg{}
	for _, t := range ts {
		r, err := obj.lower(t, sc)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

func (obj *builder) lower(t *term, sc *scope) (machine.Reg, error) {
	obj.pending += t.cost
	switch t.kind {
	case termConst:
		lit, err := types.LiteralOf(t.value)
		if err != nil {
			return 0, &CompilationError{Stage: "lower", Msg: err.Error(), Expr: t.id, Pos: t.pos}
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpConst, Dst: r, Lit: lit}, t)
		return r, nil

	case termVar:
		if b := sc.lookup(t.name); b != nil {
			return obj.read(b, t)
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpLoadSym, Dst: r, Name: t.name}, t)
		return r, nil

	case termLambda:
		return obj.closure(t, sc, "")

	case termDynamic: // the steps so far are charged outside of the budget
		obj.emit(machine.Instruction{Op: machine.OpBudget, N: t.steps}, t)
		r, err := obj.lower(t.kids[0], sc)
		if err != nil {
			return 0, err
		}
		obj.emit(machine.Instruction{Op: machine.OpEndBudget}, t)
		return r, nil

	case termApply:
		return obj.apply(t, sc)

	case termPrim:
		return obj.prim(t, sc)
	}
	return 0, obj.internal(t, "unknown term")
}

func (obj *builder) apply(t *term, sc *scope) (machine.Reg, error) {
	head, args := t.kids[0], t.kids[1:]

	if head.kind == termLambda { // a let
		regs, err := obj.list(args, sc)
		if err != nil {
			return 0, err
		}
		if len(regs) != len(head.params) {
			return 0, obj.internal(t, "expected %d args, got %d", len(head.params), len(regs))
		}
		inner, bs := obj.bind(sc, head.params, regs, head.linear, head.kids[0])
		r, err := obj.lower(head.kids[0], inner)
		if err != nil {
			return 0, err
		}
		return r, obj.done(bs, head)
	}

	if head.kind == termVar && sc.lookup(head.name) == nil { // a host function
		regs, err := obj.list(args, sc)
		if err != nil {
			return 0, err
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpHost, Dst: r, Name: head.name, Src: regs}, t)
		return r, nil
	}

	fn, err := obj.lower(head, sc)
	if err != nil {
		return 0, err
	}
	regs, err := obj.list(args, sc)
	if err != nil {
		return 0, err
	}
	r := obj.reg()
	if t.tail { // r is never written, since the caller is gone
		obj.emit(machine.Instruction{Op: machine.OpTailCall, Src: append([]machine.Reg{fn}, regs...)}, t)
		return r, nil
	}
	obj.emit(machine.Instruction{Op: machine.OpCall, Dst: r, Src: append([]machine.Reg{fn}, regs...)}, t)
	return r, nil
}

func (obj *builder) symbol(t *term) (string, error) {
	sym, ok := t.value.(*types.SymbolValue)
	if t.kind != termConst || !ok {
		return "", obj.internal(t, "expected a quoted symbol")
	}
	return sym.V, nil
}

func (obj *builder) prim(t *term, sc *scope) (machine.Reg, error) {
	args := t.kids

	switch t.name {
	case funcs.If:
		c, err := obj.lower(args[0], sc)
		if err != nil {
			return 0, err
		}
		other := obj.label()
		obj.emit(machine.Instruction{Op: machine.OpBranch, Src: []machine.Reg{c}, Target: other}, t)
		return obj.join(t, sc, &arm{label: -1, body: args[1]}, &arm{label: other, body: args[2]})

	case funcs.Case:
		v, err := obj.lower(args[0], sc)
		if err != nil {
			return 0, err
		}
		payload := obj.reg()
		right := obj.label()
		obj.emit(machine.Instruction{Op: machine.OpCase, Dst: payload, Src: []machine.Reg{v}, Target: right}, t)
		l, r := args[1], args[2]
		return obj.join(t, sc,
			&arm{label: -1, lambda: l, body: l.kids[0], payload: payload},
			&arm{label: right, lambda: r, body: r.kids[0], payload: payload},
		)

	case funcs.LetTensor:
		v, err := obj.lower(args[0], sc)
		if err != nil {
			return 0, err
		}
		lam := args[1]
		l, r := obj.reg(), obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpSplit, Dst: l, Dst2: r, Src: []machine.Reg{v}}, t)
		inner, bs := obj.bind(sc, lam.params, []machine.Reg{l, r}, lam.linear, lam.kids[0])
		out, err := obj.lower(lam.kids[0], inner)
		if err != nil {
			return 0, err
		}
		return out, obj.done(bs, lam)

	case funcs.LetUnit:
		if _, err := obj.lower(args[0], sc); err != nil {
			return 0, err
		}
		return obj.lower(args[1], sc)

	case funcs.Fix:
		lam := args[0]
		if lam.kind != termLambda || len(lam.params) < 2 {
			return 0, obj.internal(t, "fix of something other than a recursive lambda")
		}
		return obj.closure(lam, sc, lam.params[0])

	case funcs.Record:
		fields := []string{}
		regs := []machine.Reg{}
		for i := 0; i+1 < len(args); i += 2 {
			name, err := obj.symbol(args[i])
			if err != nil {
				return 0, err
			}
			r, err := obj.lower(args[i+1], sc)
			if err != nil {
				return 0, err
			}
			fields = append(fields, name)
			regs = append(regs, r)
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: opPrim, Dst: r, Name: t.name, Fields: fields, Src: regs}, t)
		return r, nil

	case funcs.Get, funcs.Set, funcs.Define:
		sym, val := args[1], args[:1] // get and set
		if t.name == funcs.Define {
			sym, val = args[0], args[1:]
		} else if t.name == funcs.Set {
			val = []*term{args[0], args[2]}
		}
		name, err := obj.symbol(sym)
		if err != nil {
			return 0, err
		}
		regs, err := obj.list(val, sc)
		if err != nil {
			return 0, err
		}
		r := obj.reg()
		obj.emit(machine.Instruction{Op: opPrim, Dst: r, Name: t.name, Fields: []string{name}, Src: regs}, t)
		return r, nil
	}

	if b, exists := funcs.Lookup(t.name); exists && b.Operator() && obj.cse != nil {
		return obj.shared(t, sc)
	}
	return obj.simple(t, sc)
}

// simple lowers a combinator whose args are all plain values.
func (obj *builder) simple(t *term, sc *scope) (machine.Reg, error) {
	regs, err := obj.list(t.kids, sc)
	if err != nil {
		return 0, err
	}
	r := obj.reg()
	obj.emit(machine.Instruction{Op: opPrim, Dst: r, Name: t.name, Src: regs}, t)
	return r, nil
}

// arm is one of the two ways through a branch. The arms of a case bind the
// payload to the parameter of their lambda.
type arm struct {
	label   int // emitted before the arm, or -1 if it falls through
	lambda  *term
	body    *term
	payload machine.Reg
}

func (obj *builder) countArm(a *arm, sc *scope) map[*binding]int {
	if a.lambda == nil {
		return obj.count(a.body, sc, nil)
	}
	return obj.count(a.body, sc, mask(nil, a.lambda.params))
}

// join lowers the two arms of a branch into a shared result register. Each arm
// starts with the reads of the other arm removed from the counts, and on the
// way out the linear bindings must agree.
func (obj *builder) join(t *term, sc *scope, arms ...*arm) (machine.Reg, error) {
	dst := obj.reg()
	end := obj.label()
	before := snapshot(sc)
	cse := obj.cse

	counts := []map[*binding]int{obj.countArm(arms[0], sc), obj.countArm(arms[1], sc)}
	after := []map[*binding]state{}
	for i, a := range arms {
		restore(before)
		obj.cse = clone(cse)
		for b, n := range counts[1-i] {
			b.remaining -= n
		}
		if a.label >= 0 {
			obj.emit(machine.Instruction{Op: opLabel, Target: a.label}, nil)
		}

		inner := sc
		var bs []*binding
		if a.lambda != nil {
			inner, bs = obj.bind(sc, a.lambda.params, []machine.Reg{a.payload}, a.lambda.linear, a.body)
		}
		r, err := obj.lower(a.body, inner)
		if err != nil {
			return 0, err
		}
		if err := obj.done(bs, a.body); err != nil {
			return 0, err
		}
		obj.emit(machine.Instruction{Op: machine.OpMove, Dst: dst, Src: []machine.Reg{r}}, t)
		if i == 0 {
			obj.emit(machine.Instruction{Op: machine.OpJump, Target: end}, t)
		}
		after = append(after, snapshot(sc))
	}
	obj.emit(machine.Instruction{Op: opLabel, Target: end}, nil)
	obj.cse = cse

	for b, s0 := range after[0] {
		s1 := after[1][b]
		if s0.remaining != s1.remaining {
			return 0, obj.internal(t, "`%s` has a different number of reads after each branch", b.name)
		}
		if b.linear && s0.moved != s1.moved {
			return 0, obj.internal(t, "linear `%s` is consumed in only one branch", b.name)
		}
		b.remaining = s0.remaining
		b.moved = s0.moved || s1.moved
	}
	return dst, nil
}

func clone(m map[string]machine.Reg) map[string]machine.Reg {
	if m == nil {
		return nil
	}
	out := make(map[string]machine.Reg)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// closure lowers a lambda into a new function, and emits the code that builds
// the closure value. If self is set, the first parameter is the function
// itself.
func (obj *builder) closure(lam *term, sc *scope, self string) (machine.Reg, error) {
	params, linear := lam.params, lam.linear
	if self != "" {
		params, linear = params[1:], linear[1:]
	}
	captures := []*binding{}
	for _, name := range obj.free(lam) {
		if b := sc.lookup(name); b != nil {
			if b.linear {
				return 0, obj.internal(lam, "closure captures linear `%s`", name)
			}
			captures = append(captures, b)
		}
	}

	name := "lambda"
	if self != "" {
		name = self
	}
	fn := &irFunc{
		name:     fmt.Sprintf("%s@%s", name, lam.pos),
		params:   len(params),
		captures: len(captures),
		self:     self != "",
	}
	index := len(obj.funcs)
	obj.funcs = append(obj.funcs, fn)

	body := lam.kids[0]
	child := obj.builder(fn, body)
	pregs := []machine.Reg{}
	for range params {
		pregs = append(pregs, child.reg())
	}
	cnames := []string{}
	cregs := []machine.Reg{}
	for _, b := range captures {
		cnames = append(cnames, b.name)
		cregs = append(cregs, child.reg())
	}
	inner, _ := child.bind(nil, cnames, cregs, nil, body)
	if self != "" {
		inner, _ = child.bind(inner, []string{self}, []machine.Reg{child.reg()}, nil, body)
	}
	inner, bs := child.bind(inner, params, pregs, linear, body)

	r, err := child.lower(body, inner)
	if err != nil {
		return 0, err
	}
	child.emit(machine.Instruction{Op: machine.OpReturn, Src: []machine.Reg{r}}, body)
	if err := child.done(bs, lam); err != nil {
		return 0, err
	}

	src := []machine.Reg{}
	for _, b := range captures {
		r, err := obj.read(b, lam)
		if err != nil {
			return 0, err
		}
		src = append(src, r)
	}
	dst := obj.reg()
	obj.emit(machine.Instruction{Op: machine.OpClosure, Dst: dst, N: int64(index), Src: src}, lam)
	return dst, nil
}

// pure returns true if the term always computes the same value from the same
// variables, without effects.
func (obj *builder) pure(t *term) bool {
	switch t.kind {
	case termConst, termVar:
		return true
	case termPrim:
		b, exists := funcs.Lookup(t.name)
		if !exists || !b.Operator() {
			return false
		}
		for _, k := range t.kids {
			if !obj.pure(k) {
				return false
			}
		}
		return true
	}
	return false
}

// shared lowers a pure operator application. If the same subterm, over the
// same bindings, was already computed on this path, its kept value is copied
// instead of computing it again.
func (obj *builder) shared(t *term, sc *scope) (machine.Reg, error) {
	if t.id == "" || obj.occurs[t.id] < 2 || !obj.pure(t) {
		return obj.simple(t, sc)
	}
	key := string(t.id)
	for _, name := range obj.free(t) {
		b := sc.lookup(name)
		if b == nil {
			return obj.simple(t, sc) // reads the host
		}
		key += fmt.Sprintf("/%d", b.index)
	}

	if keeper, exists := obj.cse[key]; exists {
		obj.skip(t, sc)
		obj.pending += t.total() - t.cost // the steps of the skipped kids
		r := obj.reg()
		obj.emit(machine.Instruction{Op: machine.OpCopy, Dst: r, Src: []machine.Reg{keeper}}, t)
		return r, nil
	}

	r, err := obj.simple(t, sc)
	if err != nil {
		return 0, err
	}
	keeper := obj.reg()
	obj.emit(machine.Instruction{Op: machine.OpCopy, Dst: keeper, Src: []machine.Reg{r}}, t)
	obj.cse[key] = keeper
	return r, nil
}

// skip accounts for the reads of a term that is not lowered.
func (obj *builder) skip(t *term, sc *scope) {
	if t.kind == termVar {
		if b := sc.lookup(t.name); b != nil {
			b.remaining--
		}
		return
	}
	for _, k := range t.kids {
		obj.skip(k, sc)
	}
}
