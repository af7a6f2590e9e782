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

package types

import (
	"fmt"
)

// Literal is the serialized form of a scalar constant. It is what compiled
// programs embed, so its encoding must be stable.
type Literal struct {
	Kind string `json:"kind" yaml:"kind"`
	Int  int64  `json:"int,omitempty" yaml:"int,omitempty"`
	Str  string `json:"str,omitempty" yaml:"str,omitempty"`
	Bool bool   `json:"bool,omitempty" yaml:"bool,omitempty"`
}

// LiteralOf returns the literal for a scalar value. It errors on composites.
func LiteralOf(v Value) (*Literal, error) {
	switch x := v.(type) {
	case *UnitValue:
		return &Literal{Kind: "unit"}, nil
	case *BoolValue:
		return &Literal{Kind: "bool", Bool: x.V}, nil
	case *IntValue:
		return &Literal{Kind: "int", Int: x.V}, nil
	case *StrValue:
		return &Literal{Kind: "str", Str: x.V}, nil
	case *SymbolValue:
		return &Literal{Kind: "symbol", Str: x.V}, nil
	}
	return nil, fmt.Errorf("value `%s` is not a scalar", v)
}

// Value returns the value this literal encodes.
func (obj *Literal) Value() (Value, error) {
	switch obj.Kind {
	case "unit":
		return &UnitValue{}, nil
	case "bool":
		return &BoolValue{V: obj.Bool}, nil
	case "int":
		return &IntValue{V: obj.Int}, nil
	case "str":
		return &StrValue{V: obj.Str}, nil
	case "symbol":
		return &SymbolValue{V: obj.Str}, nil
	}
	return nil, fmt.Errorf("unknown literal kind: %s", obj.Kind)
}

// String returns the source form of this literal.
func (obj *Literal) String() string {
	v, err := obj.Value()
	if err != nil {
		return "<invalid>"
	}
	return v.String()
}
