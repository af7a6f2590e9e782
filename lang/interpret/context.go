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

package interpret

import (
	"fmt"
	"sync"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util/errwrap"
)

// resolve looks up the id in the arena.
func resolve(arena *ast.Arena, id ast.ID) (*ast.Expr, error) {
	if arena == nil {
		return nil, errwrap.Wrapf(interfaces.ErrNotFound, "no arena to resolve %s", id.Short())
	}
	expr, exists := arena.Get(id)
	if !exists {
		return nil, errwrap.Wrapf(interfaces.ErrNotFound, "expression %s", id.Short())
	}
	return expr, nil
}

// HostFunc is a function that the host makes available to programs.
type HostFunc func(args []types.Value) (types.Value, error)

// TestContext is a fully capable context which keeps everything in memory. It
// is used by tests and by the command line driver.
type TestContext struct {
	Arena *ast.Arena

	mutex     *sync.Mutex
	symbols   map[string]types.Value
	functions map[string]HostFunc
	completed map[string]bool
}

// NewTestContext returns an empty test context that resolves expressions from
// the arena.
func NewTestContext(arena *ast.Arena) *TestContext {
	return &TestContext{
		Arena:     arena,
		mutex:     &sync.Mutex{},
		symbols:   make(map[string]types.Value),
		functions: make(map[string]HostFunc),
		completed: make(map[string]bool),
	}
}

// AddFunction registers a host function.
func (obj *TestContext) AddFunction(name string, fn HostFunc) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.functions[name] = fn
}

// Complete marks the effect as having run.
func (obj *TestContext) Complete(id string) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.completed[id] = true
}

// GetSymbol returns a previously defined symbol.
func (obj *TestContext) GetSymbol(name string) (types.Value, bool) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	v, exists := obj.symbols[name]
	return v, exists
}

// TryCallHostFunction calls a registered host function.
func (obj *TestContext) TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error) {
	obj.mutex.Lock()
	fn, exists := obj.functions[name]
	obj.mutex.Unlock() // don't hold the lock while the function runs
	if !exists {
		return nil, false, nil
	}
	v, err := fn(args)
	return v, true, err
}

// GetExprByID resolves the id from the arena.
func (obj *TestContext) GetExprByID(id ast.ID) (*ast.Expr, error) {
	return resolve(obj.Arena, id)
}

// DefineSymbol binds a symbol. Redefining a symbol replaces it.
func (obj *TestContext) DefineSymbol(name string, value types.Value) error {
	if name == "" {
		return fmt.Errorf("empty symbol name")
	}
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.symbols[name] = value
	return nil
}

// IsEffectCompleted returns true if Complete was called with this id. An empty
// id names no effect at all.
func (obj *TestContext) IsEffectCompleted(id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("empty effect id")
	}
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	return obj.completed[id], nil
}

// ValidationContext is used to dry run a program. It can see the symbols it is
// given, but it can't call the host or change anything.
type ValidationContext struct {
	Arena   *ast.Arena
	Symbols map[string]types.Value
}

// GetSymbol returns one of the fixed symbols.
func (obj *ValidationContext) GetSymbol(name string) (types.Value, bool) {
	v, exists := obj.Symbols[name]
	return v, exists
}

// TryCallHostFunction always fails, since validation must not have effects.
func (obj *ValidationContext) TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error) {
	return nil, true, interfaces.ErrHostDisabled
}

// GetExprByID resolves the id from the arena.
func (obj *ValidationContext) GetExprByID(id ast.ID) (*ast.Expr, error) {
	return resolve(obj.Arena, id)
}

// DefineSymbol always fails.
func (obj *ValidationContext) DefineSymbol(name string, value types.Value) error {
	return interfaces.ErrReadOnly
}

// IsEffectCompleted is false for every effect during validation.
func (obj *ValidationContext) IsEffectCompleted(id string) (bool, error) {
	return false, nil
}

// HandlerContext is given to an effect handler. The handler sees its own
// bindings first and everything else from the parent, but it may not define new
// symbols.
type HandlerContext struct {
	Parent   interfaces.Context
	Bindings map[string]types.Value
}

// GetSymbol looks in the bindings and then in the parent.
func (obj *HandlerContext) GetSymbol(name string) (types.Value, bool) {
	if v, exists := obj.Bindings[name]; exists {
		return v, true
	}
	return obj.Parent.GetSymbol(name)
}

// TryCallHostFunction passes the call to the parent.
func (obj *HandlerContext) TryCallHostFunction(name string, args []types.Value) (types.Value, bool, error) {
	return obj.Parent.TryCallHostFunction(name, args)
}

// GetExprByID passes the lookup to the parent.
func (obj *HandlerContext) GetExprByID(id ast.ID) (*ast.Expr, error) {
	if obj.Parent == nil {
		return nil, errwrap.Wrapf(interfaces.ErrNotFound, "no parent to resolve %s", id.Short())
	}
	return obj.Parent.GetExprByID(id)
}

// DefineSymbol always fails inside a handler.
func (obj *HandlerContext) DefineSymbol(name string, value types.Value) error {
	return interfaces.ErrReadOnly
}

// IsEffectCompleted asks the parent.
func (obj *HandlerContext) IsEffectCompleted(id string) (bool, error) {
	if obj.Parent == nil {
		return false, fmt.Errorf("no parent to ask about effect %s", id)
	}
	return obj.Parent.IsEffectCompleted(id)
}
