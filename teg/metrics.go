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

package teg

import (
	"time"
)

// Metrics receives the scheduler events. The prometheus package implements it.
type Metrics interface {
	// UpdateNodeTotal is called when a node finishes in a final state.
	UpdateNodeTotal(state string, d time.Duration)

	// UpdateWorkerTotal is called when a worker finishes a node.
	UpdateWorkerTotal(worker string)

	// IncSteals is called when a worker takes a node from another queue.
	IncSteals()

	// SetQueued is called with the number of nodes waiting in the queues.
	SetQueued(n int)

	// UpdateGraphTotal is called once per graph with its outcome.
	UpdateGraphTotal(result string)
}
