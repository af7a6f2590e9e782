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
	"fmt"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/util"
)

const (
	// ErrNoConfig is returned when an artifact has no config.
	ErrNoConfig = util.Error("artifact has no config")
)

// CompilationError is returned when a program can't be compiled. If Internal is
// set, the program had already passed the type checker, so the failure is a
// defect in the compiler and not in the program.
type CompilationError struct {
	Stage    string
	Msg      string
	Expr     ast.ID
	Pos      ast.Pos
	Internal bool
}

// Error returns the printable error message.
func (obj *CompilationError) Error() string {
	prefix := "compile error"
	if obj.Internal {
		prefix = "internal compiler error"
	}
	s := fmt.Sprintf("%s (%s): %s", prefix, obj.Stage, obj.Msg)
	if obj.Pos != (ast.Pos{}) {
		s += fmt.Sprintf(" @%s", obj.Pos)
	} else if obj.Expr != "" {
		s += fmt.Sprintf(" @%s", obj.Expr.Short())
	}
	return s
}
