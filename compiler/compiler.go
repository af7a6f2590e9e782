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

// Package compiler turns checked programs into code for the register machine.
// The stages run in order: expansion of the derived forms, lowering to virtual
// registers, instruction selection, optimization, and assembly. The output is
// an artifact, which is cached by its id if a store is given.
package compiler

import (
	"fmt"

	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/util/errwrap"
)

// Compiler compiles checked programs. It is safe to use from many goroutines if
// the store is.
type Compiler struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// Config is used for every compile. If it is nil, DefaultConfig is
	// used.
	Config *Config

	// Store caches the artifacts. It can be nil.
	Store Store
}

func (obj *Compiler) config() *Config {
	if obj.Config == nil {
		return DefaultConfig()
	}
	return obj.Config
}

func (obj *Compiler) logf(format string, v ...interface{}) {
	if obj.Debug && obj.Logf != nil {
		obj.Logf("compiler: "+format, v...)
	}
}

// Compile returns the artifact for the checked program.
func (obj *Compiler) Compile(te *typecheck.TypedExpr) (*Artifact, error) {
	config := obj.config()
	if err := config.Validate(); err != nil {
		return nil, errwrap.Wrapf(err, "invalid compiler config")
	}
	if te == nil || te.Root == nil || te.Program == nil {
		return nil, &CompilationError{Stage: "input", Msg: "nothing to compile"}
	}

	id := ArtifactID(te.Root.ID, config)
	if obj.Store != nil {
		if a, exists := obj.Store.Get(id); exists {
			obj.logf("cache hit for %s", id)
			return a, nil
		}
	}

	t, err := expand(te.Root)
	if err != nil {
		return nil, err
	}
	markTail(t, true)
	fns, err := lower(te.Program, t, config)
	if err != nil {
		return nil, err
	}
	if err := selectOps(te.Program, fns, config.Target); err != nil {
		return nil, err
	}
	optimize(fns, config.OptLevel)
	prog := assemble(fns, config.DebugInfo)
	if err := prog.Validate(); err != nil {
		return nil, &CompilationError{Stage: "assemble", Msg: err.Error(), Expr: te.Root.ID, Internal: true}
	}
	if obj.Debug {
		obj.logf("compiled %s:\n%s", te.Root.ID.Short(), prog)
	}

	typ := ""
	if te.Type != nil {
		typ = te.Type.String()
	}
	a := newArtifact(te.Root.ID, config, prog, typ)
	if obj.Store != nil {
		if err := obj.Store.Store(id, a); err != nil {
			return nil, errwrap.Wrapf(err, "can't store artifact %s", id)
		}
	}
	obj.logf("%s: %d instructions in %d functions", fmt.Sprintf("%.8s", id), a.Instructions, len(prog.Funcs))
	return a, nil
}
