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

package typecheck

import (
	"fmt"
	"sort"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util"
)

// binding is a single linear variable introduced by a lambda parameter.
type binding struct {
	name   string
	lambda *Node
}

// usage counts how many times each linear binding was used.
type usage map[*binding]int

func (obj usage) add(other usage) usage {
	for b, n := range other {
		obj[b] += n
	}
	return obj
}

// sorted returns the bindings in a stable order for reporting.
func (obj usage) sorted() []*binding {
	out := []*binding{}
	for b := range obj {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].lambda.Pos.String() < out[j].lambda.Pos.String()
	})
	return out
}

// lscope maps names to their linear binding, or to nil for a name that shadows
// with a non-linear value.
type lscope struct {
	name   string
	b      *binding
	parent *lscope
}

func (obj *lscope) lookup(name string) *binding {
	for s := obj; s != nil; s = s.parent {
		if s.name == name {
			return s.b
		}
	}
	return nil
}

// linear checks that every linear binding is used exactly once along every
// path. It runs on the solved tree, so every type is known. Lambdas which are
// applied on the spot, and the ones that let-tensor and case use to bind names,
// are inline, and may use linear variables from the outside. Any other lambda
// is a closure value, and closures may not capture linear variables.
type linear struct {
	prog *ast.Program
}

func (obj *linear) walk(n *Node, sc *lscope) (usage, error) {
	switch n.Expr.Kind {
	case ast.KindVar:
		if b := sc.lookup(n.Expr.Name); b != nil {
			return usage{b: 1}, nil
		}
		return usage{}, nil

	case ast.KindLambda:
		u, err := obj.lambda(n, sc)
		if err != nil {
			return nil, err
		}
		if len(u) > 0 {
			b := u.sorted()[0]
			return nil, &LinearityError{Var: b.name, Kind: LinearityCapture, Expr: n.ID, Pos: n.Pos}
		}
		return u, nil

	case ast.KindApply:
		return obj.apply(n, sc)
	}

	u := usage{}
	for _, k := range n.Kids {
		x, err := obj.walk(k, sc)
		if err != nil {
			return nil, err
		}
		u.add(x)
	}
	return u, nil
}

// lambda walks the body of a lambda, checks its own linear parameters, and
// returns the uses of the outer linear bindings.
func (obj *linear) lambda(n *Node, sc *lscope) (usage, error) {
	mine := []*binding{}
	for i, p := range n.Expr.Params {
		var b *binding
		if n.Linear(i) {
			b = &binding{name: p.Name, lambda: n}
			mine = append(mine, b)
		}
		sc = &lscope{name: p.Name, b: b, parent: sc}
	}

	u, err := obj.walk(n.Kids[0], sc)
	if err != nil {
		return nil, err
	}

	for _, b := range mine {
		switch count := u[b]; {
		case count == 0:
			return nil, &LinearityError{Var: b.name, Kind: LinearityUnused, Expr: n.ID, Pos: n.Pos}
		case count > 1:
			return nil, &LinearityError{Var: b.name, Kind: LinearityDuplicate, Count: count, Expr: n.ID, Pos: n.Pos}
		}
		delete(u, b)
	}
	return u, nil
}

// join merges the uses of two alternative branches, which must agree.
func (obj *linear) join(n *Node, u1, u2 usage, name1, name2 string) (usage, error) {
	all := usage{}
	all.add(u1)
	all.add(u2)
	for _, b := range all.sorted() {
		if u1[b] == u2[b] {
			continue
		}
		branch := name2 // the branch that disagrees with the first
		if u1[b] < u2[b] {
			branch = name1
		}
		return nil, &LinearityError{Var: b.name, Kind: LinearityBranch, Branch: branch, Expr: n.ID, Pos: n.Pos}
	}
	return u1, nil
}

func (obj *linear) apply(n *Node, sc *lscope) (usage, error) {
	head := n.Kids[0]
	args := n.Kids[1:]

	u := usage{}
	walkAll := func(nodes []*Node) error {
		for _, k := range nodes {
			x, err := obj.walk(k, sc)
			if err != nil {
				return err
			}
			u.add(x)
		}
		return nil
	}

	switch head.Expr.Kind {
	case ast.KindLambda: // applied on the spot, such as a let
		if err := walkAll(args); err != nil {
			return nil, err
		}
		x, err := obj.lambda(head, sc)
		if err != nil {
			return nil, err
		}
		return u.add(x), nil

	case ast.KindCombinator:
		// handled below

	default:
		if err := walkAll(n.Kids); err != nil {
			return nil, err
		}
		return u, nil
	}

	switch name := head.Expr.Name; name {
	case funcs.If:
		if err := walkAll(args[:1]); err != nil {
			return nil, err
		}
		t, err := obj.walk(args[1], sc)
		if err != nil {
			return nil, err
		}
		e, err := obj.walk(args[2], sc)
		if err != nil {
			return nil, err
		}
		j, err := obj.join(n, t, e, "then", "else")
		if err != nil {
			return nil, err
		}
		return u.add(j), nil

	case funcs.Case:
		if err := walkAll(args[:1]); err != nil {
			return nil, err
		}
		l, err := obj.lambda(args[1], sc)
		if err != nil {
			return nil, err
		}
		r, err := obj.lambda(args[2], sc)
		if err != nil {
			return nil, err
		}
		j, err := obj.join(n, l, r, "left", "right")
		if err != nil {
			return nil, err
		}
		return u.add(j), nil

	case funcs.LetTensor:
		if err := walkAll(args[:1]); err != nil {
			return nil, err
		}
		x, err := obj.lambda(args[1], sc)
		if err != nil {
			return nil, err
		}
		return u.add(x), nil

	case funcs.And, funcs.Or:
		if err := walkAll(args[:1]); err != nil {
			return nil, err
		}
		x, err := obj.walk(args[1], sc)
		if err != nil {
			return nil, err
		}
		if len(x) > 0 {
			b := x.sorted()[0]
			return nil, &LinearityError{Var: b.name, Kind: LinearityConditional, Branch: "second " + name, Expr: n.ID, Pos: n.Pos}
		}
		return u, nil

	case funcs.Fix:
		x, err := obj.lambda(args[0], sc)
		if err != nil {
			return nil, err
		}
		if len(x) > 0 {
			b := x.sorted()[0]
			return nil, &LinearityError{Var: b.name, Kind: LinearityCapture, Expr: args[0].ID, Pos: args[0].Pos}
		}
		return u, nil

	case funcs.Get:
		fields, _ := args[0].Type.Fields()
		key := symbol(args[1])
		for _, f := range util.SortedKeys(fields) {
			if f != key && fields[f].IsLinear() {
				return nil, &LinearityError{Var: f, Kind: LinearityDiscard, Expr: n.ID, Pos: n.Pos}
			}
		}

	case funcs.Set:
		fields, _ := args[0].Type.Fields()
		key := symbol(args[1])
		if t, exists := fields[key]; exists && t.IsLinear() {
			return nil, &LinearityError{Var: key, Kind: LinearityDiscard, Expr: n.ID, Pos: n.Pos}
		}

	case funcs.Define:
		if args[1].Type.IsLinear() {
			return nil, &TypeError{Msg: "can't define a linear value", Expr: args[1].ID, Pos: args[1].Pos}
		}

	case "=":
		if args[0].Type.IsLinear() {
			return nil, &TypeError{Msg: "can't compare linear values", Expr: args[0].ID, Pos: args[0].Pos}
		}

	case "list", "cons":
		if n.Type.Val.IsLinear() {
			return nil, &TypeError{Msg: fmt.Sprintf("`%s` can't hold linear values", name), Expr: n.ID, Pos: n.Pos}
		}
	}

	if err := walkAll(args); err != nil {
		return nil, err
	}
	return u, nil
}

// symbol returns the name held by a quoted symbol node.
func symbol(n *Node) string {
	if sym, ok := n.Expr.Value.(*types.SymbolValue); ok {
		return sym.V
	}
	return ""
}
