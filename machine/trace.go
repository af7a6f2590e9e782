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
)

// TraceStep records what one instruction did. A full trace is enough to replay
// the execution, which is what a witness generator needs.
type TraceStep struct {
	Step int64 `json:"step"`
	Func int   `json:"func"`
	PC   int   `json:"pc"`
	Op   Op    `json:"op"`

	Read    []Reg `json:"read,omitempty"`
	Written []Reg `json:"written,omitempty"`

	Allocated []string `json:"allocated,omitempty"` // resource ids
	Consumed  []string `json:"consumed,omitempty"`  // resource ids
}

// String returns a single line summary of the step.
func (obj *TraceStep) String() string {
	s := fmt.Sprintf("%d #%d@%d %s", obj.Step, obj.Func, obj.PC, obj.Op)
	if len(obj.Read) > 0 {
		s += fmt.Sprintf(" read=%v", obj.Read)
	}
	if len(obj.Written) > 0 {
		s += fmt.Sprintf(" written=%v", obj.Written)
	}
	if len(obj.Allocated) > 0 {
		s += fmt.Sprintf(" allocated=%d", len(obj.Allocated))
	}
	if len(obj.Consumed) > 0 {
		s += fmt.Sprintf(" consumed=%d", len(obj.Consumed))
	}
	return s
}
