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
	"github.com/purpleidea/causality/util"
)

const (
	// ErrDuplicateNode is returned when two nodes have the same name.
	ErrDuplicateNode = util.Error("duplicate node")

	// ErrUnknownNode is returned when an edge refers to a missing node.
	ErrUnknownNode = util.Error("unknown node")

	// ErrCycle is returned when the graph is not acyclic.
	ErrCycle = util.Error("graph has a cycle")

	// ErrNotProduced is returned when a node consumes a resource that no
	// node produces.
	ErrNotProduced = util.Error("resource is consumed but never produced")

	// ErrProducedTwice is returned when two nodes produce the same
	// resource.
	ErrProducedTwice = util.Error("resource is produced twice")

	// ErrConsumedTwice is returned when two nodes consume the same
	// resource.
	ErrConsumedTwice = util.Error("resource is consumed twice")

	// ErrNoProgram is returned when a node has no body.
	ErrNoProgram = util.Error("node has no program")

	// ErrNodeFailed is returned when a node which is not best effort fails.
	ErrNodeFailed = util.Error("node failed")

	// ErrGraphTimeout is returned when the whole graph ran out of time.
	ErrGraphTimeout = util.Error("graph timed out")

	// ErrUnusedInput is returned when a node never loads a resource that
	// was handed to it.
	ErrUnusedInput = util.Error("input was never taken")

	// ErrBadOutput is returned when a node result doesn't have the shape
	// that its produced resources need.
	ErrBadOutput = util.Error("bad node output")
)
