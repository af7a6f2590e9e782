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

package machine

import (
	"fmt"

	"github.com/purpleidea/causality/util"
)

// These are the kinds of failure that an execution can end with. Use errors.Is
// to test for them.
const (
	// ErrMachine is a malformed program, such as a bad register index or
	// a read of a register that was never written.
	ErrMachine = util.Error("machine error")

	// ErrExecutionFailed is a program that ran but could not finish, such
	// as when it runs out of gas or an operator fails.
	ErrExecutionFailed = util.Error("execution failed")

	// ErrExecutionTimeout is returned when the context was cancelled.
	ErrExecutionTimeout = util.Error("execution timeout")

	// ErrResourceNotFound is returned when a resource is not in the
	// resource table.
	ErrResourceNotFound = util.Error("resource not found")

	// ErrPermissionDenied is returned when the host refuses an action.
	ErrPermissionDenied = util.Error("permission denied")

	// ErrLinearityViolation is returned when a linear value is read twice,
	// copied, overwritten, or left unconsumed at the end.
	ErrLinearityViolation = util.Error("linearity violation")
)

// Error is the error returned by the executor. It says where in the program
// the failure happened.
type Error struct {
	Kind util.Error
	Msg  string

	Func int // index of the function
	PC   int // -1 if not at an instruction
	Reg  *Reg
	Expr string // source expression id, if there is debug info

	Err error // the cause, if any
}

// Error returns the printable error message.
func (obj *Error) Error() string {
	s := fmt.Sprintf("%s: %s", obj.Kind, obj.Msg)
	if obj.PC >= 0 {
		s += fmt.Sprintf(" (#%d@%d", obj.Func, obj.PC)
		if obj.Reg != nil {
			s += fmt.Sprintf(" %s", *obj.Reg)
		}
		s += ")"
	}
	if obj.Expr != "" {
		s += fmt.Sprintf(" in expression %.12s", obj.Expr)
	}
	if obj.Err != nil {
		s += ": " + obj.Err.Error()
	}
	return s
}

// Is matches the kind of the error.
func (obj *Error) Is(target error) bool {
	return target == obj.Kind
}

// Unwrap returns the cause.
func (obj *Error) Unwrap() error {
	return obj.Err
}
