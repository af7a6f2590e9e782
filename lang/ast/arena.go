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

package ast

import (
	"fmt"
	"sort"
	"sync"

	"github.com/purpleidea/causality/lang/types"
)

// Arena is the table of interned expressions, keyed by their id. Adding a node
// which already exists returns the existing id and keeps the old node. It is
// safe for concurrent use.
type Arena struct {
	mutex *sync.Mutex
	nodes map[ID]*Expr
	free  map[ID][]string // cache of free variables
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		mutex: &sync.Mutex{},
		nodes: make(map[ID]*Expr),
		free:  make(map[ID][]string),
	}
}

// Add interns the expression and returns its id.
func (obj *Arena) Add(expr *Expr) ID {
	id := expr.ID()
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	if _, exists := obj.nodes[id]; !exists {
		obj.nodes[id] = expr
	}
	return id
}

// Get returns the expression with this id.
func (obj *Arena) Get(id ID) (*Expr, bool) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	expr, exists := obj.nodes[id]
	return expr, exists
}

// Len returns the number of distinct nodes in the arena.
func (obj *Arena) Len() int {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	return len(obj.nodes)
}

// IDs returns all the ids in the arena, sorted.
func (obj *Arena) IDs() []ID {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	ids := []ID{}
	for id := range obj.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Atom adds a literal.
func (obj *Arena) Atom(v types.Value) ID {
	return obj.Add(&Expr{Kind: KindAtom, Value: v})
}

// Int adds an integer literal.
func (obj *Arena) Int(i int64) ID {
	return obj.Atom(&types.IntValue{V: i})
}

// Const adds a pre-evaluated constant.
func (obj *Arena) Const(v types.Value) ID {
	return obj.Add(&Expr{Kind: KindConst, Value: v})
}

// Symbol adds a quoted symbol constant.
func (obj *Arena) Symbol(name string) ID {
	return obj.Const(&types.SymbolValue{V: name})
}

// Var adds a variable reference.
func (obj *Arena) Var(name string) ID {
	return obj.Add(&Expr{Kind: KindVar, Name: name})
}

// Lambda adds a function with untyped parameters.
func (obj *Arena) Lambda(params []string, body ID) ID {
	ps := []*Param{}
	for _, name := range params {
		ps = append(ps, &Param{Name: name})
	}
	return obj.Add(&Expr{Kind: KindLambda, Params: ps, Body: body})
}

// Apply adds an application.
func (obj *Arena) Apply(fn ID, args ...ID) ID {
	return obj.Add(&Expr{Kind: KindApply, Fn: fn, Args: args})
}

// Combinator adds a reference to a builtin combinator.
func (obj *Arena) Combinator(name string) ID {
	return obj.Add(&Expr{Kind: KindCombinator, Name: name})
}

// Call adds an application of the named combinator.
func (obj *Arena) Call(name string, args ...ID) ID {
	return obj.Apply(obj.Combinator(name), args...)
}

// Dynamic adds a step bounded evaluation of body.
func (obj *Arena) Dynamic(steps int64, body ID) ID {
	return obj.Add(&Expr{Kind: KindDynamic, Steps: steps, Body: body})
}

// FreeVars returns the sorted names of the variables which occur free in the
// expression. The result is cached, since nodes never change.
func (obj *Arena) FreeVars(id ID) ([]string, error) {
	obj.mutex.Lock()
	vars, exists := obj.free[id]
	obj.mutex.Unlock()
	if exists {
		return vars, nil
	}

	expr, ok := obj.Get(id)
	if !ok {
		return nil, fmt.Errorf("expression %s not found", id.Short())
	}

	set := make(map[string]struct{})
	switch expr.Kind {
	case KindVar:
		set[expr.Name] = struct{}{}

	case KindLambda:
		body, err := obj.FreeVars(expr.Body)
		if err != nil {
			return nil, err
		}
		bound := make(map[string]struct{})
		for _, p := range expr.Params {
			bound[p.Name] = struct{}{}
		}
		for _, name := range body {
			if _, exists := bound[name]; !exists {
				set[name] = struct{}{}
			}
		}

	case KindApply, KindDynamic:
		for _, child := range expr.Children() {
			names, err := obj.FreeVars(child)
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				set[name] = struct{}{}
			}
		}
	}

	vars = []string{}
	for name := range set {
		vars = append(vars, name)
	}
	sort.Strings(vars)

	obj.mutex.Lock()
	obj.free[id] = vars
	obj.mutex.Unlock()
	return vars, nil
}

// Uses returns the number of free occurrences of the variable in the
// expression.
func (obj *Arena) Uses(id ID, name string) (int, error) {
	expr, ok := obj.Get(id)
	if !ok {
		return 0, fmt.Errorf("expression %s not found", id.Short())
	}
	switch expr.Kind {
	case KindVar:
		if expr.Name == name {
			return 1, nil
		}
		return 0, nil

	case KindLambda:
		for _, p := range expr.Params {
			if p.Name == name {
				return 0, nil // shadowed
			}
		}
	}

	count := 0
	for _, child := range expr.Children() {
		n, err := obj.Uses(child, name)
		if err != nil {
			return 0, err
		}
		count += n
	}
	return count, nil
}
