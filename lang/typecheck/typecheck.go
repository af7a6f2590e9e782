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

// Package typecheck infers the types of a program and checks that every linear
// value is used exactly once. Types are solved by unification, with row
// polymorphism for records. The linearity check runs as a second pass once all
// of the types are known.
package typecheck

import (
	"fmt"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/lang/unification"
	"github.com/purpleidea/causality/util"
)

// Node is one occurrence of an expression in the checked program. The syntax
// tree shares identical subexpressions, but each occurrence may have its own
// type, so the checker returns a tree of occurrences instead.
type Node struct {
	ID   ast.ID
	Expr *ast.Expr
	Pos  ast.Pos

	// Type is the solved type of this occurrence. It is nil for the head
	// of a combinator application.
	Type *types.Type

	// Kids are the children in evaluation order. A lambda or a dynamic
	// has its body, and an application has the head followed by the args.
	Kids []*Node

	// Params are the parameter types of a lambda.
	Params []*types.Type
}

// Linear returns true if the lambda parameter at index i is linear.
func (obj *Node) Linear(i int) bool {
	return i < len(obj.Params) && obj.Params[i].IsLinear()
}

// TypedExpr is the result of a successful check.
type TypedExpr struct {
	Program *ast.Program
	Root    *Node
	Type    *types.Type
}

// Checker checks programs. The zero value is usable, but it knows of no host
// symbols, so any free variable is an error.
type Checker struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// Env holds the types of the symbols and host functions that a
	// program may use without binding them first.
	Env map[string]*types.Type

	// Capabilities restricts access to record fields. Each entry is one of
	// read:field, write:field, read:* or write:*. If this is nil, every
	// field may be read and written.
	Capabilities []string
}

// scope is a persistent linked list of the variables in scope.
type scope struct {
	name   string
	typ    *types.Type
	parent *scope
}

func (obj *scope) push(name string, typ *types.Type) *scope {
	return &scope{name: name, typ: typ, parent: obj}
}

func (obj *scope) lookup(name string) (*types.Type, bool) {
	for s := obj; s != nil; s = s.parent {
		if s.name == name {
			return s.typ, true
		}
	}
	return nil, false
}

// Check infers the types of the whole program, and then checks linearity.
func (obj *Checker) Check(prog *ast.Program) (*TypedExpr, error) {
	if prog == nil || prog.Arena == nil {
		return nil, fmt.Errorf("no program to check")
	}
	c := &checker{
		Checker: obj,
		prog:    prog,
	}

	root, err := c.infer(prog.Root, nil)
	if err != nil {
		return nil, err
	}
	resolve(root)
	if obj.Debug {
		obj.Logf("typecheck: root type: %s", root.Type)
	}

	l := &linear{prog: prog}
	if _, err := l.walk(root, nil); err != nil {
		return nil, err
	}

	return &TypedExpr{
		Program: prog,
		Root:    root,
		Type:    root.Type,
	}, nil
}

// resolve substitutes the solutions into every type in the tree.
func resolve(n *Node) {
	if n.Type != nil {
		n.Type = n.Type.Resolve()
	}
	for i := range n.Params {
		n.Params[i] = n.Params[i].Resolve()
	}
	for _, k := range n.Kids {
		resolve(k)
	}
}

type checker struct {
	*Checker
	prog *ast.Program
}

func (obj *checker) errorf(id ast.ID, format string, v ...interface{}) error {
	return &TypeError{
		Msg:  fmt.Sprintf(format, v...),
		Expr: id,
		Pos:  obj.prog.Position(id),
	}
}

func (obj *checker) node(id ast.ID) (*Node, error) {
	expr, ok := obj.prog.Arena.Get(id)
	if !ok {
		return nil, fmt.Errorf("expression %s not found", id.Short())
	}
	return &Node{
		ID:   id,
		Expr: expr,
		Pos:  obj.prog.Position(id),
	}, nil
}

// unify attributes a failure to the node whose type was being checked.
func (obj *checker) unify(n *Node, have, want *types.Type) error {
	if err := unification.Unify(have, want); err != nil {
		return obj.errorf(n.ID, "%v", err)
	}
	return nil
}

// check infers the node, and then requires it to have the wanted type.
func (obj *checker) check(id ast.ID, sc *scope, want *types.Type) (*Node, error) {
	n, err := obj.infer(id, sc)
	if err != nil {
		return nil, err
	}
	if err := obj.unify(n, n.Type, want); err != nil {
		return nil, err
	}
	return n, nil
}

// TypeOfValue returns the type of a constant value.
func TypeOfValue(v types.Value) (*types.Type, error) {
	switch x := v.(type) {
	case *types.UnitValue:
		return types.TypeUnit, nil
	case *types.BoolValue:
		return types.TypeBool, nil
	case *types.IntValue:
		return types.TypeInt, nil
	case *types.StrValue:
		return types.TypeStr, nil
	case *types.SymbolValue:
		return types.TypeSymbol, nil
	case *types.ListValue:
		elem := types.NewUni()
		for _, e := range x.V {
			t, err := TypeOfValue(e)
			if err != nil {
				return nil, err
			}
			if err := unification.Unify(elem, t); err != nil {
				return nil, err
			}
		}
		return types.NewList(elem), nil
	}
	return nil, fmt.Errorf("constant `%s` has no static type", v)
}

func (obj *checker) infer(id ast.ID, sc *scope) (*Node, error) {
	n, err := obj.node(id)
	if err != nil {
		return nil, err
	}
	expr := n.Expr

	switch expr.Kind {
	case ast.KindAtom, ast.KindConst:
		typ, err := TypeOfValue(expr.Value)
		if err != nil {
			return nil, obj.errorf(id, "%v", err)
		}
		n.Type = typ

	case ast.KindVar:
		typ, ok := sc.lookup(expr.Name)
		if !ok {
			env, exists := obj.Env[expr.Name]
			if !exists {
				return nil, obj.errorf(id, "unbound variable `%s`", expr.Name)
			}
			typ = env.Instantiate()
		}
		n.Type = typ

	case ast.KindCombinator:
		return nil, obj.errorf(id, "combinator `%s` must be applied", expr.Name)

	case ast.KindLambda:
		if err := obj.lambda(n, sc); err != nil {
			return nil, err
		}

	case ast.KindDynamic:
		body, err := obj.infer(expr.Body, sc)
		if err != nil {
			return nil, err
		}
		n.Kids = []*Node{body}
		n.Type = body.Type

	case ast.KindApply:
		if err := obj.apply(n, sc); err != nil {
			return nil, err
		}

	default:
		return nil, obj.errorf(id, "unknown expression kind: %s", expr.Kind)
	}

	return n, nil
}

// lambda fills in a lambda node. Annotated parameters start with a fresh copy
// of their annotation.
func (obj *checker) lambda(n *Node, sc *scope) error {
	params := []*types.Type{}
	for _, p := range n.Expr.Params {
		typ := types.NewUni()
		if p.Type != nil {
			typ = p.Type.Instantiate()
		}
		params = append(params, typ)
		sc = sc.push(p.Name, typ)
	}
	body, err := obj.infer(n.Expr.Body, sc)
	if err != nil {
		return err
	}
	n.Params = params
	n.Kids = []*Node{body}
	n.Type = types.NewFunc(body.Type, params...)
	return nil
}

// lambdaArg infers an argument of a combinator that must be a lambda with n
// parameters.
func (obj *checker) lambdaArg(id ast.ID, sc *scope, params int) (*Node, error) {
	n, err := obj.node(id)
	if err != nil {
		return nil, err
	}
	if n.Expr.Kind != ast.KindLambda || len(n.Expr.Params) != params {
		return nil, obj.errorf(id, "expected a lambda with %d parameters", params)
	}
	if err := obj.lambda(n, sc); err != nil {
		return nil, err
	}
	return n, nil
}

func (obj *checker) allowed(mode, field string) bool {
	if obj.Capabilities == nil {
		return true
	}
	return util.StrInList(mode+":"+field, obj.Capabilities) || util.StrInList(mode+":*", obj.Capabilities)
}

// field returns the name held by a quoted symbol argument.
func (obj *checker) field(id ast.ID) (*Node, string, error) {
	n, err := obj.node(id)
	if err != nil {
		return nil, "", err
	}
	sym, ok := n.Expr.Value.(*types.SymbolValue)
	if n.Expr.Kind != ast.KindConst || !ok {
		return nil, "", obj.errorf(id, "expected a quoted symbol")
	}
	n.Type = types.TypeSymbol
	return n, sym.V, nil
}

func (obj *checker) apply(n *Node, sc *scope) error {
	expr := n.Expr
	head, err := obj.node(expr.Fn)
	if err != nil {
		return err
	}
	if head.Expr.Kind == ast.KindCombinator {
		b, exists := funcs.Lookup(head.Expr.Name)
		if !exists {
			return obj.errorf(head.ID, "unknown combinator `%s`", head.Expr.Name)
		}
		if b.Arity >= 0 && len(expr.Args) != b.Arity {
			return obj.errorf(n.ID, "combinator `%s` expects %d args, got %d", b.Name, b.Arity, len(expr.Args))
		}
		kids, typ, err := obj.combinator(n, b, sc)
		if err != nil {
			return err
		}
		n.Kids = append([]*Node{head}, kids...)
		n.Type = typ
		return nil
	}

	fn, err := obj.infer(expr.Fn, sc)
	if err != nil {
		return err
	}
	kids := []*Node{fn}
	args := []*types.Type{}
	for _, id := range expr.Args {
		arg, err := obj.infer(id, sc)
		if err != nil {
			return err
		}
		kids = append(kids, arg)
		args = append(args, arg.Type)
	}

	out := types.NewUni()
	if err := obj.unify(fn, fn.Type, types.NewFunc(out, args...)); err != nil {
		return err
	}
	n.Kids = kids
	n.Type = out
	return nil
}

// combinator infers the arguments of a combinator application, and returns the
// argument nodes and the result type.
func (obj *checker) combinator(n *Node, b *funcs.Builtin, sc *scope) ([]*Node, *types.Type, error) {
	args := n.Expr.Args

	if b.Operator() {
		ins, out := b.Sig()
		kids := []*Node{}
		for i, id := range args {
			want := ins[0] // variadic
			if b.Arity >= 0 {
				want = ins[i]
			}
			arg, err := obj.check(id, sc, want)
			if err != nil {
				return nil, nil, err
			}
			kids = append(kids, arg)
		}
		return kids, out, nil
	}

	switch b.Name {
	case funcs.If:
		c, err := obj.check(args[0], sc, types.TypeBool)
		if err != nil {
			return nil, nil, err
		}
		t, err := obj.infer(args[1], sc)
		if err != nil {
			return nil, nil, err
		}
		e, err := obj.check(args[2], sc, t.Type)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{c, t, e}, t.Type, nil

	case funcs.And, funcs.Or:
		a, err := obj.check(args[0], sc, types.TypeBool)
		if err != nil {
			return nil, nil, err
		}
		c, err := obj.check(args[1], sc, types.TypeBool)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{a, c}, types.TypeBool, nil

	case funcs.LetUnit:
		u, err := obj.check(args[0], sc, types.TypeUnit)
		if err != nil {
			return nil, nil, err
		}
		body, err := obj.infer(args[1], sc)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{u, body}, body.Type, nil

	case funcs.Tensor:
		l, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		r, err := obj.infer(args[1], sc)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{l, r}, types.NewProduct(l.Type, r.Type), nil

	case funcs.LetTensor:
		e, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		lam, err := obj.lambdaArg(args[1], sc, 2)
		if err != nil {
			return nil, nil, err
		}
		if err := obj.unify(e, e.Type, types.NewProduct(lam.Params[0], lam.Params[1])); err != nil {
			return nil, nil, err
		}
		return []*Node{e, lam}, lam.Kids[0].Type, nil

	case funcs.Inl, funcs.Inr:
		v, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		if b.Name == funcs.Inl {
			return []*Node{v}, types.NewSum(v.Type, types.NewUni()), nil
		}
		return []*Node{v}, types.NewSum(types.NewUni(), v.Type), nil

	case funcs.Case:
		e, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		l, err := obj.lambdaArg(args[1], sc, 1)
		if err != nil {
			return nil, nil, err
		}
		r, err := obj.lambdaArg(args[2], sc, 1)
		if err != nil {
			return nil, nil, err
		}
		if err := obj.unify(e, e.Type, types.NewSum(l.Params[0], r.Params[0])); err != nil {
			return nil, nil, err
		}
		lb, rb := l.Kids[0], r.Kids[0]
		if err := obj.unify(rb, rb.Type, lb.Type); err != nil {
			return nil, nil, err
		}
		return []*Node{e, l, r}, lb.Type, nil

	case funcs.Alloc:
		v, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{v}, types.NewResource(v.Type), nil

	case funcs.Consume:
		val := types.NewUni()
		r, err := obj.check(args[0], sc, types.NewResource(val))
		if err != nil {
			return nil, nil, err
		}
		return []*Node{r}, val, nil

	case funcs.Free:
		r, err := obj.check(args[0], sc, types.NewResource(types.NewUni()))
		if err != nil {
			return nil, nil, err
		}
		return []*Node{r}, types.TypeUnit, nil

	case funcs.Pure:
		v, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{v}, v.Type, nil

	case funcs.Record:
		if len(args)%2 != 0 {
			return nil, nil, obj.errorf(n.ID, "record expects field and value pairs")
		}
		kids := []*Node{}
		fields := make(map[string]*types.Type)
		for i := 0; i < len(args); i += 2 {
			key, name, err := obj.field(args[i])
			if err != nil {
				return nil, nil, err
			}
			if _, exists := fields[name]; exists {
				return nil, nil, obj.errorf(key.ID, "duplicate field `%s`", name)
			}
			val, err := obj.infer(args[i+1], sc)
			if err != nil {
				return nil, nil, err
			}
			fields[name] = val.Type
			kids = append(kids, key, val)
		}
		return kids, types.NewRecord(fields, nil), nil

	case funcs.Get:
		r, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		key, name, err := obj.field(args[1])
		if err != nil {
			return nil, nil, err
		}
		if !obj.allowed("read", name) {
			return nil, nil, obj.errorf(n.ID, "missing capability read:%s", name)
		}
		val := types.NewUni()
		want := types.NewRecord(map[string]*types.Type{name: val}, types.NewUni())
		if err := obj.unify(r, r.Type, want); err != nil {
			return nil, nil, err
		}
		return []*Node{r, key}, val, nil

	case funcs.Set:
		r, err := obj.infer(args[0], sc)
		if err != nil {
			return nil, nil, err
		}
		key, name, err := obj.field(args[1])
		if err != nil {
			return nil, nil, err
		}
		if !obj.allowed("write", name) {
			return nil, nil, obj.errorf(n.ID, "missing capability write:%s", name)
		}
		val, err := obj.infer(args[2], sc)
		if err != nil {
			return nil, nil, err
		}
		want := types.NewRecord(map[string]*types.Type{name: val.Type}, types.NewUni())
		if err := obj.unify(r, r.Type, want); err != nil {
			return nil, nil, err
		}
		return []*Node{r, key, val}, r.Type, nil

	case funcs.Fix:
		lam, err := obj.node(args[0])
		if err != nil {
			return nil, nil, err
		}
		if lam.Expr.Kind != ast.KindLambda || len(lam.Expr.Params) < 2 {
			return nil, nil, obj.errorf(args[0], "fix expects a lambda taking itself and at least one parameter")
		}
		if err := obj.lambda(lam, sc); err != nil {
			return nil, nil, err
		}
		self := types.NewFunc(lam.Kids[0].Type, lam.Params[1:]...)
		if err := obj.unify(lam, lam.Params[0], self); err != nil {
			return nil, nil, err
		}
		return []*Node{lam}, self, nil

	case funcs.Define:
		key, _, err := obj.field(args[0])
		if err != nil {
			return nil, nil, err
		}
		v, err := obj.infer(args[1], sc)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{key, v}, types.TypeUnit, nil

	case funcs.Completed:
		id, err := obj.check(args[0], sc, types.TypeStr)
		if err != nil {
			return nil, nil, err
		}
		return []*Node{id}, types.TypeBool, nil
	}

	return nil, nil, obj.errorf(n.ID, "unhandled combinator `%s`", b.Name)
}
