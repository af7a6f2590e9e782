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

// Package funcs contains the table of builtin combinators. The table is built
// once and never modified, so it can be shared by every component.
package funcs

import (
	"fmt"
	"sort"

	"github.com/purpleidea/causality/lang/types"
)

// These are the names of the combinators which need special handling by every
// pass, because they bind names, branch, or touch resources.
const (
	If        = "if"
	And       = "and"
	Or        = "or"
	LetUnit   = "let-unit"
	Tensor    = "tensor"
	LetTensor = "let-tensor"
	Inl       = "inl"
	Inr       = "inr"
	Case      = "case"
	Alloc     = "alloc"
	Consume   = "consume"
	Free      = "free"
	Pure      = "pure"
	Record    = "record"
	Get       = "get"
	Set       = "set"
	Fix       = "fix"
	Define    = "define"
	Completed = "completed?"
)

// Builtin describes a single combinator.
type Builtin struct {
	Name string

	// Arity is the number of arguments, or -1 if it is variadic.
	Arity int

	// Special is true for the structural combinators. They have no Sig
	// and no Fn, since every pass implements them directly.
	Special bool

	// Fallible is true for an operator which can fail on some inputs, such
	// as division by zero. These can't be folded or removed freely.
	Fallible bool

	// Sig returns fresh input and output types of an operator. For a
	// variadic operator, there is a single input type for every argument.
	Sig func() ([]*types.Type, *types.Type)

	// Fn computes the result of an operator.
	Fn func([]types.Value) (types.Value, error)
}

// Operator returns true if this is an ordinary function on values. These have
// no effects, and their result only depends on their arguments.
func (obj *Builtin) Operator() bool {
	return !obj.Special
}

// Call runs the operator after checking the argument count.
func (obj *Builtin) Call(args []types.Value) (types.Value, error) {
	if obj.Special {
		return nil, fmt.Errorf("combinator `%s` is not an operator", obj.Name)
	}
	if obj.Arity >= 0 && len(args) != obj.Arity {
		return nil, fmt.Errorf("operator `%s` expects %d args, got %d", obj.Name, obj.Arity, len(args))
	}
	return obj.Fn(args)
}

// Lookup returns the builtin with this name.
func Lookup(name string) (*Builtin, bool) {
	b, exists := builtins[name]
	return b, exists
}

// IsCombinator returns true if the name is reserved for a builtin.
func IsCombinator(name string) bool {
	_, exists := builtins[name]
	return exists
}

// Names returns the sorted names of every builtin.
func Names() []string {
	names := []string{}
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtins = func() map[string]*Builtin {
	m := make(map[string]*Builtin)
	special := map[string]int{
		If: 3, And: 2, Or: 2, LetUnit: 2, Tensor: 2, LetTensor: 2,
		Inl: 1, Inr: 1, Case: 3, Alloc: 1, Consume: 1, Free: 1, Pure: 1,
		Record: -1, Get: 2, Set: 3, Fix: 1, Define: 2, Completed: 1,
	}
	for name, arity := range special {
		m[name] = &Builtin{Name: name, Arity: arity, Special: true}
	}
	for _, b := range operators() {
		m[b.Name] = b
	}
	return m
}()

func sig(out *types.Type, args ...*types.Type) func() ([]*types.Type, *types.Type) {
	return func() ([]*types.Type, *types.Type) { return args, out }
}

func arith(name string, fallible bool, fn func(a, b int64) (int64, error)) *Builtin {
	return &Builtin{
		Name:     name,
		Arity:    2,
		Fallible: fallible,
		Sig:      sig(types.TypeInt, types.TypeInt, types.TypeInt),
		Fn: func(args []types.Value) (types.Value, error) {
			a, b, err := ints(name, args)
			if err != nil {
				return nil, err
			}
			i, err := fn(a, b)
			if err != nil {
				return nil, err
			}
			return &types.IntValue{V: i}, nil
		},
	}
}

func compare(name string, fn func(a, b int64) bool) *Builtin {
	return &Builtin{
		Name:  name,
		Arity: 2,
		Sig:   sig(types.TypeBool, types.TypeInt, types.TypeInt),
		Fn: func(args []types.Value) (types.Value, error) {
			a, b, err := ints(name, args)
			if err != nil {
				return nil, err
			}
			return &types.BoolValue{V: fn(a, b)}, nil
		},
	}
}

func ints(name string, args []types.Value) (int64, int64, error) {
	a, ok1 := args[0].(*types.IntValue)
	b, ok2 := args[1].(*types.IntValue)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("operator `%s` expects ints, got %s and %s", name, args[0], args[1])
	}
	return a.V, b.V, nil
}

func list(name string, arg types.Value) (*types.ListValue, error) {
	l, ok := arg.(*types.ListValue)
	if !ok {
		return nil, fmt.Errorf("operator `%s` expects a list, got %s", name, arg)
	}
	return l, nil
}

func str(name string, arg types.Value) (string, error) {
	s, ok := arg.(*types.StrValue)
	if !ok {
		return "", fmt.Errorf("operator `%s` expects a str, got %s", name, arg)
	}
	return s.V, nil
}

func operators() []*Builtin {
	return []*Builtin{
		arith("+", false, func(a, b int64) (int64, error) { return a + b, nil }),
		arith("-", false, func(a, b int64) (int64, error) { return a - b, nil }),
		arith("*", false, func(a, b int64) (int64, error) { return a * b, nil }),
		arith("/", true, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		}),
		arith("mod", true, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a % b, nil
		}),

		compare("<", func(a, b int64) bool { return a < b }),
		compare(">", func(a, b int64) bool { return a > b }),
		compare("<=", func(a, b int64) bool { return a <= b }),
		compare(">=", func(a, b int64) bool { return a >= b }),

		{
			Name:  "=",
			Arity: 2,
			Sig: func() ([]*types.Type, *types.Type) {
				a := types.NewUni()
				return []*types.Type{a, a}, types.TypeBool
			},
			Fn: func(args []types.Value) (types.Value, error) {
				if args[0].Linear() || args[1].Linear() {
					return nil, fmt.Errorf("can't compare linear values")
				}
				return &types.BoolValue{V: types.Equal(args[0], args[1])}, nil
			},
		},
		{
			Name:  "not",
			Arity: 1,
			Sig:   sig(types.TypeBool, types.TypeBool),
			Fn: func(args []types.Value) (types.Value, error) {
				b, ok := args[0].(*types.BoolValue)
				if !ok {
					return nil, fmt.Errorf("operator `not` expects a bool, got %s", args[0])
				}
				return &types.BoolValue{V: !b.V}, nil
			},
		},
		{
			Name:  "concat",
			Arity: 2,
			Sig:   sig(types.TypeStr, types.TypeStr, types.TypeStr),
			Fn: func(args []types.Value) (types.Value, error) {
				a, err := str("concat", args[0])
				if err != nil {
					return nil, err
				}
				b, err := str("concat", args[1])
				if err != nil {
					return nil, err
				}
				return &types.StrValue{V: a + b}, nil
			},
		},
		{
			Name:  "str-len",
			Arity: 1,
			Sig:   sig(types.TypeInt, types.TypeStr),
			Fn: func(args []types.Value) (types.Value, error) {
				s, err := str("str-len", args[0])
				if err != nil {
					return nil, err
				}
				return &types.IntValue{V: int64(len(s))}, nil
			},
		},
		{
			Name:  "symbol->str",
			Arity: 1,
			Sig:   sig(types.TypeStr, types.TypeSymbol),
			Fn: func(args []types.Value) (types.Value, error) {
				s, ok := args[0].(*types.SymbolValue)
				if !ok {
					return nil, fmt.Errorf("operator `symbol->str` expects a symbol, got %s", args[0])
				}
				return &types.StrValue{V: s.V}, nil
			},
		},

		{
			Name:  "list",
			Arity: -1,
			Sig: func() ([]*types.Type, *types.Type) {
				a := types.NewUni()
				return []*types.Type{a}, types.NewList(a)
			},
			Fn: func(args []types.Value) (types.Value, error) {
				return &types.ListValue{V: append([]types.Value{}, args...)}, nil
			},
		},
		{
			Name:  "len",
			Arity: 1,
			Sig: func() ([]*types.Type, *types.Type) {
				return []*types.Type{types.NewList(types.NewUni())}, types.TypeInt
			},
			Fn: func(args []types.Value) (types.Value, error) {
				l, err := list("len", args[0])
				if err != nil {
					return nil, err
				}
				return &types.IntValue{V: int64(len(l.V))}, nil
			},
		},
		{
			Name:     "head",
			Arity:    1,
			Fallible: true,
			Sig: func() ([]*types.Type, *types.Type) {
				a := types.NewUni()
				return []*types.Type{types.NewList(a)}, a
			},
			Fn: func(args []types.Value) (types.Value, error) {
				l, err := list("head", args[0])
				if err != nil {
					return nil, err
				}
				if len(l.V) == 0 {
					return nil, fmt.Errorf("head of empty list")
				}
				return l.V[0], nil
			},
		},
		{
			Name:     "tail",
			Arity:    1,
			Fallible: true,
			Sig: func() ([]*types.Type, *types.Type) {
				a := types.NewList(types.NewUni())
				return []*types.Type{a}, a
			},
			Fn: func(args []types.Value) (types.Value, error) {
				l, err := list("tail", args[0])
				if err != nil {
					return nil, err
				}
				if len(l.V) == 0 {
					return nil, fmt.Errorf("tail of empty list")
				}
				return &types.ListValue{V: append([]types.Value{}, l.V[1:]...)}, nil
			},
		},
		{
			Name:  "cons",
			Arity: 2,
			Sig: func() ([]*types.Type, *types.Type) {
				a := types.NewUni()
				return []*types.Type{a, types.NewList(a)}, types.NewList(a)
			},
			Fn: func(args []types.Value) (types.Value, error) {
				l, err := list("cons", args[1])
				if err != nil {
					return nil, err
				}
				return &types.ListValue{V: append([]types.Value{args[0]}, l.V...)}, nil
			},
		},
		{
			Name:  "empty?",
			Arity: 1,
			Sig: func() ([]*types.Type, *types.Type) {
				return []*types.Type{types.NewList(types.NewUni())}, types.TypeBool
			},
			Fn: func(args []types.Value) (types.Value, error) {
				l, err := list("empty?", args[0])
				if err != nil {
					return nil, err
				}
				return &types.BoolValue{V: len(l.V) == 0}, nil
			},
		},
	}
}
