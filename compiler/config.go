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

package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// OptLevel says how hard the compiler tries to improve the code.
type OptLevel string

const (
	// OptNone emits the code exactly as it was lowered. Calls in tail
	// position are tail calls at every level.
	OptNone OptLevel = "none"

	// OptBasic folds constants, folds constant branches, and removes dead
	// code.
	OptBasic OptLevel = "basic"

	// OptAggressive adds common subexpression sharing.
	OptAggressive OptLevel = "aggressive"
)

// Target is the kind of machine that will run the code.
type Target string

const (
	// TargetRuntime is the ordinary executor, with a host.
	TargetRuntime Target = "runtime"

	// TargetCircuit is for code that must later be proven. It may not
	// reach the host, and recursion must be step bounded.
	TargetCircuit Target = "circuit"
)

// Config is the set of options that change the compiled output. It is part of
// the artifact key, so two configs that differ in any field never share an
// artifact.
type Config struct {
	OptLevel  OptLevel `yaml:"opt-level" json:"opt_level"`
	Target    Target   `yaml:"target" json:"target"`
	DebugInfo bool     `yaml:"debug-info" json:"debug_info"`
}

// DefaultConfig returns the config used when none is given.
func DefaultConfig() *Config {
	return &Config{
		OptLevel: OptBasic,
		Target:   TargetRuntime,
	}
}

// Validate checks that every field has a known value.
func (obj *Config) Validate() error {
	switch obj.OptLevel {
	case OptNone, OptBasic, OptAggressive:
	default:
		return fmt.Errorf("unknown optimization level: %s", obj.OptLevel)
	}
	switch obj.Target {
	case TargetRuntime, TargetCircuit:
	default:
		return fmt.Errorf("unknown target: %s", obj.Target)
	}
	return nil
}

// Hash returns the content hash of the config.
func (obj *Config) Hash() string {
	b, err := json.Marshal(obj)
	if err != nil {
		panic(err) // a struct of strings and bools always encodes
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
