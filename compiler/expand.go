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
	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
)

type termKind int

const (
	termConst termKind = iota
	termVar
	termLambda
	termApply   // a call of a function value or of a host function
	termPrim    // an applied combinator
	termDynamic // a step budget
)

// term is the expanded form of a checked node, which is what lowering works on.
// The derived forms are gone, and only the information that lowering needs is
// kept.
type term struct {
	kind termKind
	id   ast.ID // empty for the terms that expansion creates
	pos  ast.Pos

	value types.Value // const
	name  string      // var, or the combinator of a prim

	params []string // lambda
	linear []bool   // lambda, for each param

	kids  []*term // lambda: body, apply: fn and args, prim and dynamic: args
	steps int64   // dynamic

	// cost is the number of source steps that evaluating this term takes,
	// not counting its kids. It is one for every term from the source, and
	// zero for the terms that expansion creates.
	cost int64

	tail bool // a call here replaces the frame of the caller
}

// expand turns the checked tree into terms. It removes and, or, and pure, which
// have simpler equivalents.
func expand(n *typecheck.Node) (*term, error) {
	t := &term{
		id:   n.ID,
		pos:  n.Pos,
		cost: 1,
	}
	expr := n.Expr

	switch expr.Kind {
	case ast.KindAtom, ast.KindConst:
		t.kind = termConst
		t.value = expr.Value
		return t, nil

	case ast.KindVar:
		t.kind = termVar
		t.name = expr.Name
		return t, nil

	case ast.KindLambda:
		t.kind = termLambda
		t.params = expr.ParamNames()
		for i := range expr.Params {
			t.linear = append(t.linear, n.Linear(i))
		}
		body, err := expand(n.Kids[0])
		if err != nil {
			return nil, err
		}
		t.kids = []*term{body}
		return t, nil

	case ast.KindDynamic:
		t.kind = termDynamic
		t.steps = expr.Steps
		body, err := expand(n.Kids[0])
		if err != nil {
			return nil, err
		}
		t.kids = []*term{body}
		return t, nil

	case ast.KindApply:
		// handled below

	default:
		return nil, &CompilationError{Stage: "expand", Msg: "unexpected expression kind " + expr.Kind.String(), Expr: n.ID, Pos: n.Pos, Internal: true}
	}

	kids := []*term{}
	for _, k := range n.Kids {
		if k.Expr.Kind == ast.KindCombinator {
			kids = append(kids, nil) // the head, which is replaced below
			continue
		}
		x, err := expand(k)
		if err != nil {
			return nil, err
		}
		kids = append(kids, x)
	}

	head := n.Kids[0]
	if head.Expr.Kind != ast.KindCombinator {
		t.kind = termApply
		t.kids = kids
		return t, nil
	}

	args := kids[1:]
	switch name := head.Expr.Name; name {
	case funcs.And: // (and a b) is (if a b false)
		t.kind = termPrim
		t.name = funcs.If
		t.kids = []*term{args[0], args[1], constant(&types.BoolValue{V: false}, n.Pos)}

	case funcs.Or: // (or a b) is (if a true b)
		t.kind = termPrim
		t.name = funcs.If
		t.kids = []*term{args[0], constant(&types.BoolValue{V: true}, n.Pos), args[1]}

	case funcs.Pure: // the step of the pure itself stays
		args[0].cost += t.cost
		return args[0], nil

	default:
		t.kind = termPrim
		t.name = name
		t.kids = args
	}
	return t, nil
}

func constant(v types.Value, pos ast.Pos) *term {
	return &term{kind: termConst, value: v, pos: pos}
}

// inline returns true if the lambda at index i of the term binds names in
// place, instead of being a closure value.
func (obj *term) inline(i int) bool {
	switch obj.kind {
	case termApply:
		return i == 0 && obj.kids[0].kind == termLambda
	case termPrim:
		switch obj.name {
		case funcs.LetTensor:
			return i == 1
		case funcs.Case:
			return i == 1 || i == 2
		}
	}
	return false
}

// total returns the source steps of the whole term. Only the pure operator
// terms that sharing skips are ever counted this way.
func (obj *term) total() int64 {
	n := obj.cost
	for _, k := range obj.kids {
		n += k.total()
	}
	return n
}

// markTail finds the calls in tail position. These are the same positions in
// which the interpreter calls in place of its caller.
func markTail(t *term, tail bool) {
	t.tail = tail
	switch t.kind {
	case termLambda:
		markTail(t.kids[0], true) // the body of a new function
		return

	case termApply:
		if head := t.kids[0]; head.kind == termLambda { // a let
			head.tail = false
			markTail(head.kids[0], tail)
			for _, k := range t.kids[1:] {
				markTail(k, false)
			}
			return
		}

	case termPrim:
		switch t.name {
		case funcs.If:
			markTail(t.kids[0], false)
			markTail(t.kids[1], tail)
			markTail(t.kids[2], tail)
			return

		case funcs.LetUnit:
			markTail(t.kids[0], false)
			markTail(t.kids[1], tail)
			return

		case funcs.LetTensor, funcs.Case:
			markTail(t.kids[0], false)
			for _, lam := range t.kids[1:] {
				lam.tail = false
				markTail(lam.kids[0], tail)
			}
			return
		}
	}
	for _, k := range t.kids {
		markTail(k, false)
	}
}
