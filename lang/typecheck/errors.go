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

	"github.com/purpleidea/causality/lang/ast"
)

// TypeError is returned when the program is not well typed. The Expr is the
// smallest node that was found to be responsible.
type TypeError struct {
	Msg  string
	Expr ast.ID
	Pos  ast.Pos
}

// Error returns the printable error message.
func (obj *TypeError) Error() string {
	return fmt.Sprintf("type error: %s @%s", obj.Msg, obj.Pos)
}

// LinearityKind is the way in which a linear variable was misused.
type LinearityKind string

// These are the ways in which a linear variable can be misused.
const (
	LinearityUnused      LinearityKind = "unused"
	LinearityDuplicate   LinearityKind = "duplicate"
	LinearityBranch      LinearityKind = "branch"
	LinearityCapture     LinearityKind = "capture"
	LinearityConditional LinearityKind = "conditional"
	LinearityDiscard     LinearityKind = "discard"
)

// LinearityError is returned when a linear variable isn't used exactly once on
// every path through the program.
type LinearityError struct {
	Var    string
	Kind   LinearityKind
	Count  int    // number of uses, for duplicates
	Branch string // the branch that disagrees, for branch errors
	Expr   ast.ID // the node which binds the variable, or which misuses it
	Pos    ast.Pos
}

// Error returns the printable error message.
func (obj *LinearityError) Error() string {
	var msg string
	switch obj.Kind {
	case LinearityUnused:
		msg = fmt.Sprintf("linear variable `%s` is never used", obj.Var)
	case LinearityDuplicate:
		msg = fmt.Sprintf("linear variable `%s` is used %d times", obj.Var, obj.Count)
	case LinearityBranch:
		msg = fmt.Sprintf("linear variable `%s` is not used the same way in the %s branch", obj.Var, obj.Branch)
	case LinearityCapture:
		msg = fmt.Sprintf("linear variable `%s` is captured by a closure", obj.Var)
	case LinearityConditional:
		msg = fmt.Sprintf("linear variable `%s` is only used when the %s branch runs", obj.Var, obj.Branch)
	case LinearityDiscard:
		msg = fmt.Sprintf("linear field `%s` would be discarded", obj.Var)
	default:
		msg = fmt.Sprintf("linear variable `%s` is misused", obj.Var)
	}
	return fmt.Sprintf("linearity error: %s @%s", msg, obj.Pos)
}
