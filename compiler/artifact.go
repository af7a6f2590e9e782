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
	"sort"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/util/errwrap"
)

// Artifact is a compiled program with everything needed to run it again later.
// Compiling the same expression with the same config always gives an artifact
// with the same encoding.
type Artifact struct {
	// ID is derived from the source and the config.
	ID string `json:"id"`

	// Source is the id of the root expression.
	Source ast.ID `json:"source"`

	Config  *Config          `json:"config"`
	Program *machine.Program `json:"program"`

	// Instructions is the total instruction count.
	Instructions int `json:"instructions"`

	// Symbols are the sorted names of the host symbols and host functions
	// that the program needs.
	Symbols []string `json:"symbols,omitempty"`

	// Type is the type of the result.
	Type string `json:"type"`
}

// ArtifactID returns the id of the artifact of this expression and config.
func ArtifactID(source ast.ID, config *Config) string {
	sum := sha256.Sum256([]byte(string(source) + "\x00" + config.Hash()))
	return hex.EncodeToString(sum[:])
}

func newArtifact(source ast.ID, config *Config, prog *machine.Program, typ string) *Artifact {
	set := make(map[string]struct{})
	for _, fn := range prog.Funcs {
		for _, ins := range fn.Code {
			if ins.Op == machine.OpHost || ins.Op == machine.OpLoadSym {
				set[ins.Name] = struct{}{}
			}
		}
	}
	symbols := []string{}
	for name := range set {
		symbols = append(symbols, name)
	}
	sort.Strings(symbols)

	return &Artifact{
		ID:           ArtifactID(source, config),
		Source:       source,
		Config:       config,
		Program:      prog,
		Instructions: prog.Len(),
		Symbols:      symbols,
		Type:         typ,
	}
}

// Encode returns the canonical encoding of the artifact.
func (obj *Artifact) Encode() ([]byte, error) {
	return json.Marshal(obj)
}

// Decode reads an encoded artifact, and validates its program.
func Decode(b []byte) (*Artifact, error) {
	a := &Artifact{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, errwrap.Wrapf(err, "can't decode artifact")
	}
	if a.Config == nil {
		return nil, ErrNoConfig
	}
	if err := a.Program.Validate(); err != nil {
		return nil, errwrap.Wrapf(err, "artifact %s is invalid", a.ID)
	}
	return a, nil
}
