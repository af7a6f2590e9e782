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

package interfaces

import (
	"github.com/purpleidea/causality/util"
)

const (
	// ErrReadOnly is returned by a context which does not allow symbols to
	// be defined, such as the ones used for validation or inside handlers.
	ErrReadOnly = util.Error("context is read only")

	// ErrHostDisabled is returned when a host function call is attempted
	// in a context that forbids calling out of the program.
	ErrHostDisabled = util.Error("host functions are disabled")

	// ErrNotFound is returned when an expression id can't be resolved.
	ErrNotFound = util.Error("expression not found")
)
