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

package interpret

import (
	"fmt"

	"github.com/purpleidea/causality/lang/ast"
)

// ExprErrorKind classifies the failures of an evaluation.
type ExprErrorKind string

// These are the kinds of evaluation failure.
const (
	// ExprMissingSymbol is an unknown variable or host function.
	ExprMissingSymbol ExprErrorKind = "missing symbol"

	// ExprTypeMismatch is a value of the wrong shape, or a call with the
	// wrong number of arguments.
	ExprTypeMismatch ExprErrorKind = "type mismatch"

	// ExprExecution is any other runtime failure, such as a failed host
	// function or a resource which was consumed twice.
	ExprExecution ExprErrorKind = "execution error"

	// ExprBounded is returned when a step budget runs out.
	ExprBounded ExprErrorKind = "bounded execution exceeded"

	// ExprDepth is returned when calls nest deeper than MaxCallDepth.
	ExprDepth ExprErrorKind = "call depth exceeded"
)

// ExprError is the error returned by the interpreter. It names the expression
// that was being evaluated when the failure occurred.
type ExprError struct {
	Kind ExprErrorKind
	Msg  string
	Expr ast.ID
	Pos  ast.Pos
	Err  error // the cause, if any
}

// Error returns the printable error message.
func (obj *ExprError) Error() string {
	s := fmt.Sprintf("%s: %s", obj.Kind, obj.Msg)
	if obj.Pos != (ast.Pos{}) {
		s += fmt.Sprintf(" @%s", obj.Pos)
	} else if obj.Expr != "" {
		s += fmt.Sprintf(" @%s", obj.Expr.Short())
	}
	if obj.Err != nil {
		s += ": " + obj.Err.Error()
	}
	return s
}

// Unwrap returns the cause.
func (obj *ExprError) Unwrap() error {
	return obj.Err
}
