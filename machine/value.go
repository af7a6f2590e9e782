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

	"github.com/purpleidea/causality/lang/types"
)

// Closure is a function value built by the machine. It refers to its function
// by index, and holds a copy of the values it captured.
type Closure struct {
	Func int
	Env  []types.Value
}

// String returns a printable form of this closure.
func (obj *Closure) String() string {
	return fmt.Sprintf("(closure #%d)", obj.Func)
}

// Linear is always false. A closure may never capture a linear value.
func (obj *Closure) Linear() bool { return false }
