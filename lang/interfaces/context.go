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

// Package interfaces contains the common interfaces shared by the language
// packages.
package interfaces

import (
	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/types"
)

// MaxCallDepth is the deepest that calls may nest, both in the interpreter and
// on the machine. A call in tail position replaces its caller, so it doesn't
// count.
const MaxCallDepth = 10000

// Context is everything an evaluation can reach outside of the program itself.
// Evaluators hold no state between calls, so all the persistent data lives
// behind this interface. Different implementations give different powers to the
// program, such as during validation or inside an effect handler.
type Context interface {
	// GetSymbol returns the value of a free variable that the program did
	// not bind itself.
	GetSymbol(name string) (types.Value, bool)

	// TryCallHostFunction calls out to a host provided function. It
	// returns false if no such function exists.
	TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error)

	// GetExprByID resolves an expression id, usually the body of a
	// closure. An unknown id is an error wrapping ErrNotFound.
	GetExprByID(id ast.ID) (*ast.Expr, error)

	// DefineSymbol binds a new symbol for later lookups. Contexts which
	// don't allow this return ErrReadOnly.
	DefineSymbol(name string, value types.Value) error

	// IsEffectCompleted returns true if the effect with this id has run.
	// It errors if the question can't be answered.
	IsEffectCompleted(id string) (bool, error)
}

// Host is the subset of Context that compiled programs can use. Compiled code
// has its own copy of every function body, so it never resolves expressions.
type Host interface {
	GetSymbol(name string) (types.Value, bool)
	TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error)
	DefineSymbol(name string, value types.Value) error
	IsEffectCompleted(id string) (bool, error)
}
