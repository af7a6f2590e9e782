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

// Package interpret evaluates checked programs directly, without compiling
// them. It is the reference that compiled code must agree with. All of the
// state that outlives a single evaluation lives in the interfaces.Context that
// the caller passes in.
package interpret

import (
	"context"
	"fmt"
	"sort"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util/errwrap"
)

// Interpreter evaluates programs. It holds configuration only, so a single
// instance can run many evaluations at the same time.
type Interpreter struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// Seed is mixed into every resource id that is allocated, so that two
	// runs with the same seed produce identical resources.
	Seed string

	// MaxSteps bounds the whole evaluation. Zero means no bound.
	MaxSteps int64
}

// Result is the outcome of an evaluation.
type Result struct {
	Value types.Value

	// Resources are the live resources held by the value.
	Resources []*types.ResourceValue

	// Nullifiers are recorded for each consumed resource, in order.
	Nullifiers []string

	Steps int64
}

// Evaluate runs the checked program against the context.
func (obj *Interpreter) Evaluate(ctx context.Context, te *typecheck.TypedExpr, c interfaces.Context) (*Result, error) {
	if te == nil || te.Program == nil {
		return nil, fmt.Errorf("no program to evaluate")
	}
	if c == nil {
		return nil, fmt.Errorf("no context")
	}
	st := &state{
		Interpreter: obj,
		ctx:         ctx,
		c:           c,
		prog:        te.Program,
		limit:       -1,
		consumed:    make(map[string]struct{}),
	}
	if obj.MaxSteps > 0 {
		st.limit = obj.MaxSteps
	}

	v, err := st.finish(st.expr(te.Program.Root, nil, true))
	if err != nil {
		return nil, err
	}
	if obj.Debug {
		obj.Logf("interpret: result: %s (%d steps)", v, st.steps)
	}
	return &Result{
		Value:      v,
		Resources:  types.Resources(v),
		Nullifiers: st.nullifiers,
		Steps:      st.steps,
	}, nil
}

// env is a persistent linked list of bound variables.
type env struct {
	name   string
	value  types.Value
	parent *env
}

func (obj *env) push(name string, value types.Value) *env {
	return &env{name: name, value: value, parent: obj}
}

func (obj *env) lookup(name string) (types.Value, bool) {
	for e := obj; e != nil; e = e.parent {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// state is everything that belongs to one evaluation.
type state struct {
	*Interpreter
	ctx  context.Context
	c    interfaces.Context
	prog *ast.Program

	steps int64
	limit int64 // the step at which the innermost budget runs out, or -1
	depth int   // calls in progress, not counting the ones in tail position

	seq        uint64 // allocation counter
	consumed   map[string]struct{}
	nullifiers []string
}

func (obj *state) errorf(kind ExprErrorKind, id ast.ID, err error, format string, v ...interface{}) error {
	return &ExprError{
		Kind: kind,
		Msg:  fmt.Sprintf(format, v...),
		Expr: id,
		Pos:  obj.prog.Position(id),
		Err:  err,
	}
}

func (obj *state) get(id ast.ID) (*ast.Expr, error) {
	expr, err := obj.c.GetExprByID(id)
	if err != nil {
		return nil, obj.errorf(ExprExecution, id, err, "can't resolve expression %s", id.Short())
	}
	return expr, nil
}

// step counts one evaluation step against the budgets.
func (obj *state) step(id ast.ID) error {
	obj.steps++
	if obj.limit >= 0 && obj.steps > obj.limit {
		return obj.errorf(ExprBounded, id, nil, "ran out of steps after %d", obj.steps-1)
	}
	if obj.steps%64 == 0 {
		select {
		case <-obj.ctx.Done():
			return obj.errorf(ExprExecution, id, obj.ctx.Err(), "evaluation cancelled")
		default:
		}
	}
	return nil
}

// jump is a call in tail position. It is made in place of the caller, so it
// doesn't nest.
type jump struct {
	id   ast.ID
	fn   types.Value
	args []types.Value
}

func (obj *state) eval(id ast.ID, e *env) (types.Value, error) {
	v, _, err := obj.expr(id, e, false)
	return v, err
}

// expr evaluates the expression. In tail position, a call is returned as a jump
// instead of being made.
func (obj *state) expr(id ast.ID, e *env, tail bool) (types.Value, *jump, error) {
	if err := obj.step(id); err != nil {
		return nil, nil, err
	}
	expr, err := obj.get(id)
	if err != nil {
		return nil, nil, err
	}

	switch expr.Kind {
	case ast.KindAtom, ast.KindConst:
		return expr.Value, nil, nil

	case ast.KindVar:
		if v, ok := e.lookup(expr.Name); ok {
			return v, nil, nil
		}
		if v, ok := obj.c.GetSymbol(expr.Name); ok {
			return v, nil, nil
		}
		return nil, nil, obj.errorf(ExprMissingSymbol, id, nil, "unknown variable `%s`", expr.Name)

	case ast.KindLambda:
		v, err := obj.closure(id, expr, "", expr.ParamNames(), e)
		return v, nil, err

	case ast.KindDynamic:
		limit := obj.steps + expr.Steps
		if obj.limit >= 0 && obj.limit < limit {
			limit = obj.limit // an outer budget is tighter
		}
		saved := obj.limit
		obj.limit = limit
		v, err := obj.eval(expr.Body, e) // a jump can't leave the budget
		obj.limit = saved
		return v, nil, err

	case ast.KindApply:
		return obj.apply(id, expr, e, tail)

	case ast.KindCombinator:
		return nil, nil, obj.errorf(ExprTypeMismatch, id, nil, "combinator `%s` must be applied", expr.Name)
	}

	return nil, nil, obj.errorf(ExprExecution, id, nil, "unknown expression kind: %s", expr.Kind)
}

// closure builds a closure over the free variables of the lambda.
func (obj *state) closure(id ast.ID, lambda *ast.Expr, self string, params []string, e *env) (types.Value, error) {
	free, err := obj.prog.Arena.FreeVars(id)
	if err != nil {
		return nil, obj.errorf(ExprExecution, id, err, "can't build closure")
	}
	captured := make(map[string]types.Value)
	for _, name := range free {
		if name == self {
			continue
		}
		if v, ok := e.lookup(name); ok {
			captured[name] = v
		}
		// anything else is resolved through the context when called
	}
	return &types.ClosureValue{
		Params: params,
		Self:   self,
		Body:   string(lambda.Body),
		Env:    captured,
	}, nil
}

func (obj *state) list(ids []ast.ID, e *env) ([]types.Value, error) {
	out := []types.Value{}
	for _, id := range ids {
		v, err := obj.eval(id, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (obj *state) apply(id ast.ID, expr *ast.Expr, e *env, tail bool) (types.Value, *jump, error) {
	head, err := obj.get(expr.Fn)
	if err != nil {
		return nil, nil, err
	}

	switch head.Kind {
	case ast.KindCombinator:
		return obj.combinator(id, head.Name, expr.Args, e, tail)

	case ast.KindLambda: // a let, so skip building the closure
		args, err := obj.list(expr.Args, e)
		if err != nil {
			return nil, nil, err
		}
		if len(args) != len(head.Params) {
			return nil, nil, obj.errorf(ExprTypeMismatch, id, nil, "expected %d args, got %d", len(head.Params), len(args))
		}
		for i, p := range head.Params {
			e = e.push(p.Name, args[i])
		}
		return obj.expr(head.Body, e, tail)

	case ast.KindVar:
		if _, ok := e.lookup(head.Name); ok {
			break
		}
		// not bound by the program, so try the host first
		args, err := obj.list(expr.Args, e)
		if err != nil {
			return nil, nil, err
		}
		v, ok, err := obj.c.TryCallHostFunction(head.Name, args)
		if err != nil {
			return nil, nil, obj.errorf(ExprExecution, id, err, "host function `%s` failed", head.Name)
		}
		if ok {
			return v, nil, nil
		}
		fn, ok := obj.c.GetSymbol(head.Name)
		if !ok {
			return nil, nil, obj.errorf(ExprMissingSymbol, expr.Fn, nil, "unknown function `%s`", head.Name)
		}
		v, err = obj.call(id, fn, args)
		return v, nil, err
	}

	fn, err := obj.eval(expr.Fn, e)
	if err != nil {
		return nil, nil, err
	}
	args, err := obj.list(expr.Args, e)
	if err != nil {
		return nil, nil, err
	}
	if tail {
		return nil, &jump{id: id, fn: fn, args: args}, nil
	}
	v, err := obj.call(id, fn, args)
	return v, nil, err
}

// call applies a closure to its arguments, and then makes the calls that it
// returns from tail position. Only this nests, so the depth is bounded here.
func (obj *state) call(id ast.ID, fn types.Value, args []types.Value) (types.Value, error) {
	if obj.depth >= interfaces.MaxCallDepth {
		return nil, obj.errorf(ExprDepth, id, nil, "more than %d nested calls", interfaces.MaxCallDepth)
	}
	obj.depth++
	defer func() { obj.depth-- }()
	return obj.finish(nil, &jump{id: id, fn: fn, args: args}, nil)
}

// finish makes jumps until one of them returns a value.
func (obj *state) finish(v types.Value, j *jump, err error) (types.Value, error) {
	for err == nil && j != nil {
		var body ast.ID
		var e *env
		if body, e, err = obj.enter(j); err != nil {
			return nil, err
		}
		v, j, err = obj.expr(body, e, true)
	}
	return v, err
}

// enter binds the arguments of a call, and returns the body to evaluate.
func (obj *state) enter(j *jump) (ast.ID, *env, error) {
	cl, ok := j.fn.(*types.ClosureValue)
	if !ok {
		return "", nil, obj.errorf(ExprTypeMismatch, j.id, nil, "can't call `%s`", j.fn)
	}
	if len(j.args) != len(cl.Params) {
		return "", nil, obj.errorf(ExprTypeMismatch, j.id, nil, "expected %d args, got %d", len(cl.Params), len(j.args))
	}

	var e *env
	names := []string{}
	for name := range cl.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e = e.push(name, cl.Env[name])
	}
	if cl.Self != "" {
		e = e.push(cl.Self, cl)
	}
	for i, p := range cl.Params {
		e = e.push(p, j.args[i])
	}
	return ast.ID(cl.Body), e, nil
}

// bind evaluates the body of a binding lambda with the given values.
func (obj *state) bind(id ast.ID, values []types.Value, e *env, tail bool) (types.Value, *jump, error) {
	lam, err := obj.get(id)
	if err != nil {
		return nil, nil, err
	}
	if lam.Kind != ast.KindLambda || len(lam.Params) != len(values) {
		return nil, nil, obj.errorf(ExprTypeMismatch, id, nil, "expected a lambda with %d parameters", len(values))
	}
	for i, p := range lam.Params {
		e = e.push(p.Name, values[i])
	}
	return obj.expr(lam.Body, e, tail)
}

func (obj *state) symbol(id ast.ID) (string, error) {
	expr, err := obj.get(id)
	if err != nil {
		return "", err
	}
	sym, ok := expr.Value.(*types.SymbolValue)
	if expr.Kind != ast.KindConst || !ok {
		return "", obj.errorf(ExprTypeMismatch, id, nil, "expected a quoted symbol")
	}
	return sym.V, nil
}

func (obj *state) boolean(id ast.ID, e *env) (bool, error) {
	v, err := obj.eval(id, e)
	if err != nil {
		return false, err
	}
	b, ok := v.(*types.BoolValue)
	if !ok {
		return false, obj.errorf(ExprTypeMismatch, id, nil, "expected a bool, got %s", v)
	}
	return b.V, nil
}

func (obj *state) resource(id ast.ID, e *env) (*types.ResourceValue, error) {
	v, err := obj.eval(id, e)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*types.ResourceValue)
	if !ok {
		return nil, obj.errorf(ExprTypeMismatch, id, nil, "expected a resource, got %s", v)
	}
	if _, exists := obj.consumed[r.ID]; exists {
		return nil, obj.errorf(ExprExecution, id, nil, "resource %s was already consumed", r.ID)
	}
	obj.consumed[r.ID] = struct{}{}
	obj.nullifiers = append(obj.nullifiers, types.Nullifier(r.ID))
	return r, nil
}

func (obj *state) record(id ast.ID, e *env) (*types.RecordValue, error) {
	v, err := obj.eval(id, e)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*types.RecordValue)
	if !ok {
		return nil, obj.errorf(ExprTypeMismatch, id, nil, "expected a record, got %s", v)
	}
	return r, nil
}

// combinator applies a builtin. The ones that choose what to evaluate next pass
// the tail position on.
func (obj *state) combinator(id ast.ID, name string, args []ast.ID, e *env, tail bool) (types.Value, *jump, error) {
	b, exists := funcs.Lookup(name)
	if !exists {
		return nil, nil, obj.errorf(ExprMissingSymbol, id, nil, "unknown combinator `%s`", name)
	}
	if b.Arity >= 0 && len(args) != b.Arity {
		return nil, nil, obj.errorf(ExprTypeMismatch, id, nil, "combinator `%s` expects %d args, got %d", name, b.Arity, len(args))
	}

	switch name {
	case funcs.If:
		c, err := obj.boolean(args[0], e)
		if err != nil {
			return nil, nil, err
		}
		if c {
			return obj.expr(args[1], e, tail)
		}
		return obj.expr(args[2], e, tail)

	case funcs.And, funcs.Or:
		a, err := obj.boolean(args[0], e)
		if err != nil {
			return nil, nil, err
		}
		if a == (name == funcs.Or) { // decided by the first operand
			return &types.BoolValue{V: a}, nil, nil
		}
		v, j, err := obj.expr(args[1], e, tail)
		if err != nil || j != nil {
			return v, j, err
		}
		if _, ok := v.(*types.BoolValue); !ok {
			return nil, nil, obj.errorf(ExprTypeMismatch, args[1], nil, "expected a bool, got %s", v)
		}
		return v, nil, nil

	case funcs.LetUnit:
		u, err := obj.eval(args[0], e)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := u.(*types.UnitValue); !ok {
			return nil, nil, obj.errorf(ExprTypeMismatch, args[0], nil, "expected unit, got %s", u)
		}
		return obj.expr(args[1], e, tail)

	case funcs.LetTensor:
		v, err := obj.eval(args[0], e)
		if err != nil {
			return nil, nil, err
		}
		p, ok := v.(*types.ProductValue)
		if !ok {
			return nil, nil, obj.errorf(ExprTypeMismatch, args[0], nil, "expected a tensor, got %s", v)
		}
		return obj.bind(args[1], []types.Value{p.L, p.R}, e, tail)

	case funcs.Case:
		v, err := obj.eval(args[0], e)
		if err != nil {
			return nil, nil, err
		}
		s, ok := v.(*types.SumValue)
		if !ok {
			return nil, nil, obj.errorf(ExprTypeMismatch, args[0], nil, "expected a sum, got %s", v)
		}
		if s.Right {
			return obj.bind(args[2], []types.Value{s.V}, e, tail)
		}
		return obj.bind(args[1], []types.Value{s.V}, e, tail)

	case funcs.Pure:
		return obj.expr(args[0], e, tail)
	}

	v, err := obj.builtin(id, b, args, e)
	return v, nil, err
}

// builtin applies a combinator that evaluates all of its operands itself.
func (obj *state) builtin(id ast.ID, b *funcs.Builtin, args []ast.ID, e *env) (types.Value, error) {
	name := b.Name
	if b.Operator() {
		values, err := obj.list(args, e)
		if err != nil {
			return nil, err
		}
		v, err := b.Call(values)
		if err != nil {
			return nil, obj.errorf(ExprExecution, id, err, "operator `%s` failed", name)
		}
		return v, nil
	}

	switch name {
	case funcs.Tensor:
		values, err := obj.list(args, e)
		if err != nil {
			return nil, err
		}
		return &types.ProductValue{L: values[0], R: values[1]}, nil

	case funcs.Inl, funcs.Inr:
		v, err := obj.eval(args[0], e)
		if err != nil {
			return nil, err
		}
		return &types.SumValue{Right: name == funcs.Inr, V: v}, nil

	case funcs.Alloc:
		v, err := obj.eval(args[0], e)
		if err != nil {
			return nil, err
		}
		r := &types.ResourceValue{ID: types.ResourceID(obj.Seed, obj.seq, v), V: v}
		obj.seq++
		if obj.Debug {
			obj.Logf("interpret: alloc: %s = %s", r.ID, v)
		}
		return r, nil

	case funcs.Consume:
		r, err := obj.resource(args[0], e)
		if err != nil {
			return nil, err
		}
		return r.V, nil

	case funcs.Free:
		if _, err := obj.resource(args[0], e); err != nil {
			return nil, err
		}
		return &types.UnitValue{}, nil

	case funcs.Record:
		if len(args)%2 != 0 {
			return nil, obj.errorf(ExprTypeMismatch, id, nil, "record expects field and value pairs")
		}
		fields := make(map[string]types.Value)
		for i := 0; i < len(args); i += 2 {
			key, err := obj.symbol(args[i])
			if err != nil {
				return nil, err
			}
			v, err := obj.eval(args[i+1], e)
			if err != nil {
				return nil, err
			}
			fields[key] = v
		}
		return &types.RecordValue{V: fields}, nil

	case funcs.Get:
		r, err := obj.record(args[0], e)
		if err != nil {
			return nil, err
		}
		key, err := obj.symbol(args[1])
		if err != nil {
			return nil, err
		}
		v, exists := r.V[key]
		if !exists {
			return nil, obj.errorf(ExprTypeMismatch, id, nil, "record has no field `%s`", key)
		}
		return v, nil

	case funcs.Set:
		r, err := obj.record(args[0], e)
		if err != nil {
			return nil, err
		}
		key, err := obj.symbol(args[1])
		if err != nil {
			return nil, err
		}
		v, err := obj.eval(args[2], e)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]types.Value)
		for k, x := range r.V {
			fields[k] = x
		}
		fields[key] = v
		return &types.RecordValue{V: fields}, nil

	case funcs.Fix:
		lam, err := obj.get(args[0])
		if err != nil {
			return nil, err
		}
		if lam.Kind != ast.KindLambda || len(lam.Params) < 2 {
			return nil, obj.errorf(ExprTypeMismatch, args[0], nil, "fix expects a lambda taking itself and at least one parameter")
		}
		names := lam.ParamNames()
		return obj.closure(args[0], lam, names[0], names[1:], e)

	case funcs.Define:
		key, err := obj.symbol(args[0])
		if err != nil {
			return nil, err
		}
		v, err := obj.eval(args[1], e)
		if err != nil {
			return nil, err
		}
		if err := obj.c.DefineSymbol(key, v); err != nil {
			return nil, obj.errorf(ExprExecution, id, errwrap.Wrapf(err, "can't define `%s`", key), "define failed")
		}
		return &types.UnitValue{}, nil

	case funcs.Completed:
		v, err := obj.eval(args[0], e)
		if err != nil {
			return nil, err
		}
		s, ok := v.(*types.StrValue)
		if !ok {
			return nil, obj.errorf(ExprTypeMismatch, args[0], nil, "expected an effect id, got %s", v)
		}
		done, err := obj.c.IsEffectCompleted(s.V)
		if err != nil {
			return nil, obj.errorf(ExprExecution, id, err, "can't check effect %s", s.V)
		}
		return &types.BoolValue{V: done}, nil
	}

	return nil, obj.errorf(ExprExecution, id, nil, "unhandled combinator `%s`", name)
}
