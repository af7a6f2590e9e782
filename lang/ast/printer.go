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
	"strings"

	"github.com/purpleidea/causality/lang/types"
)

// Print returns the source form of the expression. Parsing the output gives
// back the same expression, as long as the expression came from the parser.
func Print(arena *Arena, id ID) (string, error) {
	p := &printer{arena: arena}
	return p.print(id)
}

type printer struct {
	arena *Arena
}

func (obj *printer) get(id ID) (*Expr, error) {
	expr, ok := obj.arena.Get(id)
	if !ok {
		return nil, fmt.Errorf("expression %s not found", id.Short())
	}
	return expr, nil
}

func (obj *printer) list(ids []ID) ([]string, error) {
	out := []string{}
	for _, id := range ids {
		s, err := obj.print(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (obj *printer) print(id ID) (string, error) {
	expr, err := obj.get(id)
	if err != nil {
		return "", err
	}

	switch expr.Kind {
	case KindAtom, KindConst:
		return expr.Value.String(), nil

	case KindVar, KindCombinator:
		return expr.Name, nil

	case KindLambda:
		body, err := obj.print(expr.Body)
		if err != nil {
			return "", err
		}
		params := []string{}
		for _, p := range expr.Params {
			params = append(params, p.String())
		}
		return fmt.Sprintf("(lambda (%s) %s)", strings.Join(params, " "), body), nil

	case KindDynamic:
		body, err := obj.print(expr.Body)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(dynamic %d %s)", expr.Steps, body), nil

	case KindApply:
		return obj.apply(expr)
	}

	return "", fmt.Errorf("unknown expression kind: %s", expr.Kind)
}

// plainLambda returns the lambda if id is one with n unannotated parameters.
func (obj *printer) plainLambda(id ID, n int) *Expr {
	expr, ok := obj.arena.Get(id)
	if !ok || expr.Kind != KindLambda || len(expr.Params) != n {
		return nil
	}
	for _, p := range expr.Params {
		if p.Type != nil {
			return nil
		}
	}
	return expr
}

func (obj *printer) apply(expr *Expr) (string, error) {
	fn, err := obj.get(expr.Fn)
	if err != nil {
		return "", err
	}

	if fn.Kind == KindLambda && len(fn.Params) == 1 && len(expr.Args) == 1 && obj.plainLambda(expr.Fn, 1) != nil {
		// a single let binding
		val, err := obj.print(expr.Args[0])
		if err != nil {
			return "", err
		}
		body, err := obj.print(fn.Body)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(let ((%s %s)) %s)", fn.Params[0].Name, val, body), nil
	}

	if fn.Kind == KindCombinator {
		if s, ok, err := obj.form(fn.Name, expr.Args); err != nil || ok {
			return s, err
		}
	}

	head, err := obj.print(expr.Fn)
	if err != nil {
		return "", err
	}
	args, err := obj.list(expr.Args)
	if err != nil {
		return "", err
	}
	return "(" + strings.Join(append([]string{head}, args...), " ") + ")", nil
}

// form prints the combinators whose surface syntax binds names. It returns
// false if the arguments are not in the shape the parser produces.
func (obj *printer) form(name string, args []ID) (string, bool, error) {
	switch name {
	case "let-tensor":
		if len(args) != 2 {
			return "", false, nil
		}
		lam := obj.plainLambda(args[1], 2)
		if lam == nil {
			return "", false, nil
		}
		s, err := obj.list([]ID{args[0], lam.Body})
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(let-tensor %s %s %s %s)", s[0], lam.Params[0].Name, lam.Params[1].Name, s[1]), true, nil

	case "case":
		if len(args) != 3 {
			return "", false, nil
		}
		l, r := obj.plainLambda(args[1], 1), obj.plainLambda(args[2], 1)
		if l == nil || r == nil {
			return "", false, nil
		}
		s, err := obj.list([]ID{args[0], l.Body, r.Body})
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(case %s %s %s %s %s)", s[0], l.Params[0].Name, s[1], r.Params[0].Name, s[2]), true, nil

	case "record":
		if len(args)%2 != 0 {
			return "", false, nil
		}
		fields := []string{"record"}
		for i := 0; i < len(args); i += 2 {
			key, ok := obj.arena.Get(args[i])
			if !ok || key.Kind != KindConst {
				return "", false, nil
			}
			sym, ok := key.Value.(*types.SymbolValue)
			if !ok {
				return "", false, nil
			}
			val, err := obj.print(args[i+1])
			if err != nil {
				return "", false, err
			}
			fields = append(fields, fmt.Sprintf("(%s %s)", sym.V, val))
		}
		return "(" + strings.Join(fields, " ") + ")", true, nil
	}

	return "", false, nil
}
