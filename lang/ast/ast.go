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

// Package ast contains the content addressed syntax tree of the language. Each
// node is identified by the hash of its structure, and children are referenced
// by id. Structurally identical subexpressions are therefore the same node.
package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/purpleidea/causality/lang/types"
)

// ID is the content hash of an expression.
type ID string

// String returns the id as a string.
func (obj ID) String() string { return string(obj) }

// Short returns an abbreviated id for use in messages.
func (obj ID) Short() string {
	if len(obj) > 12 {
		return string(obj[:12])
	}
	return string(obj)
}

// Kind is the variant of an expression.
type Kind int

// These are all the expression variants.
const (
	KindAtom Kind = iota
	KindConst
	KindVar
	KindLambda
	KindApply
	KindCombinator
	KindDynamic
)

// String returns a name for the kind.
func (obj Kind) String() string {
	switch obj {
	case KindAtom:
		return "atom"
	case KindConst:
		return "const"
	case KindVar:
		return "var"
	case KindLambda:
		return "lambda"
	case KindApply:
		return "apply"
	case KindCombinator:
		return "combinator"
	case KindDynamic:
		return "dynamic"
	}
	return fmt.Sprintf("kind(%d)", int(obj))
}

// Param is a lambda parameter with an optional type annotation.
type Param struct {
	Name string
	Type *types.Type // nil if not annotated
}

// String returns the parameter in source form.
func (obj *Param) String() string {
	if obj.Type == nil {
		return obj.Name
	}
	return fmt.Sprintf("(%s %s)", obj.Name, obj.Type)
}

// Expr is a single node of the syntax tree. Only the fields that belong to the
// Kind are set.
type Expr struct {
	Kind Kind

	// Value is the literal for an atom (int, str, bool or nil) and the
	// pre-evaluated value for a constant.
	Value types.Value

	// Name is the variable name of a var, or the combinator name.
	Name string

	Params []*Param // lambda
	Body   ID       // lambda and dynamic

	Fn   ID   // apply
	Args []ID // apply

	Steps int64 // dynamic
}

// ID returns the content hash of this node. It only depends on the structure,
// and it covers children through their own ids.
func (obj *Expr) ID() ID {
	h := sha256.New()
	write := func(s string) {
		// length prefixed so that field boundaries can't be forged
		io.WriteString(h, strconv.Itoa(len(s)))
		io.WriteString(h, ":")
		io.WriteString(h, s)
	}
	write(obj.Kind.String())

	switch obj.Kind {
	case KindAtom, KindConst:
		write(fmt.Sprintf("%T", obj.Value))
		write(obj.Value.String())

	case KindVar, KindCombinator:
		write(obj.Name)

	case KindLambda:
		write(strconv.Itoa(len(obj.Params)))
		for _, p := range obj.Params {
			write(p.Name)
			if p.Type != nil {
				write(p.Type.String())
			} else {
				write("")
			}
		}
		write(string(obj.Body))

	case KindApply:
		write(string(obj.Fn))
		write(strconv.Itoa(len(obj.Args)))
		for _, a := range obj.Args {
			write(string(a))
		}

	case KindDynamic:
		write(strconv.FormatInt(obj.Steps, 10))
		write(string(obj.Body))
	}

	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Children returns the ids of the direct children of this node, in evaluation
// order.
func (obj *Expr) Children() []ID {
	switch obj.Kind {
	case KindLambda, KindDynamic:
		return []ID{obj.Body}
	case KindApply:
		return append([]ID{obj.Fn}, obj.Args...)
	}
	return nil
}

// ParamNames returns the names of the lambda parameters.
func (obj *Expr) ParamNames() []string {
	names := []string{}
	for _, p := range obj.Params {
		names = append(names, p.Name)
	}
	return names
}

// Pos is a location in the source.
type Pos struct {
	Filename string
	Row      int // starts at 1
	Col      int // starts at 1
}

// String returns the position in the usual file:row:col form.
func (obj Pos) String() string {
	if obj.Filename == "" {
		return fmt.Sprintf("%d:%d", obj.Row, obj.Col)
	}
	return fmt.Sprintf("%s:%d:%d", obj.Filename, obj.Row, obj.Col)
}

// Program is a parsed source file. Pos maps each node to the first place it
// occurs in the source.
type Program struct {
	Arena *Arena
	Root  ID
	Pos   map[ID]Pos
}

// Position returns the source location of the node, or the zero Pos if it is
// not known.
func (obj *Program) Position(id ID) Pos {
	if obj.Pos == nil {
		return Pos{}
	}
	return obj.Pos[id]
}

// Expr returns the root expression of the program.
func (obj *Program) Expr() *Expr {
	expr, _ := obj.Arena.Get(obj.Root)
	return expr
}
