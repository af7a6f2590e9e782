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
	"fmt"

	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/types"
)

// nodeHost is what a node program sees of the world. It hands out the consumed
// resources, the symbols that ancestor nodes defined, and then whatever the
// parent host has. A node runs on a single goroutine, so this has no lock.
type nodeHost struct {
	parent interfaces.Host

	inputs  map[string]types.Value // consumed resources, by name
	taken   map[string]bool
	symbols map[string]types.Value // defined by ancestors
	done    map[string]struct{}    // names of the ancestors

	defines map[string]types.Value // defined by this node
}

func newNodeHost(parent interfaces.Host, inputs, symbols map[string]types.Value, done map[string]struct{}) *nodeHost {
	return &nodeHost{
		parent:  parent,
		inputs:  inputs,
		taken:   make(map[string]bool),
		symbols: symbols,
		done:    done,
		defines: make(map[string]types.Value),
	}
}

// GetSymbol returns an input, an inherited symbol, or a parent symbol, in that
// order. An input can only be taken once.
func (obj *nodeHost) GetSymbol(name string) (types.Value, bool) {
	if v, exists := obj.inputs[name]; exists {
		if obj.taken[name] {
			return nil, false
		}
		obj.taken[name] = true
		return v, true
	}
	if v, exists := obj.defines[name]; exists {
		return v, true
	}
	if v, exists := obj.symbols[name]; exists {
		return v, true
	}
	if obj.parent == nil {
		return nil, false
	}
	return obj.parent.GetSymbol(name)
}

// TryCallHostFunction passes the call to the parent host.
func (obj *nodeHost) TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error) {
	if obj.parent == nil {
		return nil, false, interfaces.ErrHostDisabled
	}
	return obj.parent.TryCallHostFunction(name, args)
}

// DefineSymbol records a symbol for the nodes that come after this one. The
// symbols are only published if the node completes. Resources can't be
// defined, since they only move along produce and consume edges.
func (obj *nodeHost) DefineSymbol(name string, value types.Value) error {
	if value.Linear() {
		return fmt.Errorf("symbol `%s` can't hold a resource", name)
	}
	if _, exists := obj.inputs[name]; exists {
		return fmt.Errorf("symbol `%s` is an input of this node", name)
	}
	obj.defines[name] = value
	return nil
}

// IsEffectCompleted returns true if the named node is an ancestor of this one,
// since those are the only nodes which are known to have finished.
func (obj *nodeHost) IsEffectCompleted(id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("empty effect id")
	}
	_, exists := obj.done[id]
	return exists, nil
}

// unused returns the sorted names of the inputs that were never taken.
func (obj *nodeHost) unused(consumes []string) []string {
	out := []string{}
	for _, name := range consumes {
		if !obj.taken[name] {
			out = append(out, name)
		}
	}
	return out
}
