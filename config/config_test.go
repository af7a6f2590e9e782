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

//go:build !root

package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/purpleidea/causality/compiler"

	"github.com/kylelemons/godebug/pretty"
	"github.com/spf13/afero"
)

func TestParse0(t *testing.T) {
	type test struct { // an individual test
		name string
		data string
		fail bool
		exp  func(*Config)
	}
	testCases := []test{
		{
			name: "empty",
			data: "",
			exp:  func(c *Config) {},
		},
		{
			name: "compiler",
			data: "compiler:\n  opt-level: aggressive\n  target: circuit\n  debug-info: true\n",
			exp: func(c *Config) {
				c.Compiler = &compiler.Config{
					OptLevel:  compiler.OptAggressive,
					Target:    compiler.TargetCircuit,
					DebugInfo: true,
				}
			},
		},
		{
			name: "teg timeouts",
			data: "teg:\n  workers: 2\n  node-timeout: 500ms\n  graph-timeout: 1m\n",
			exp: func(c *Config) {
				c.Teg.Workers = 2
				c.Teg.NodeTimeout = 500 * time.Millisecond
				c.Teg.GraphTimeout = time.Minute
			},
		},
		{
			name: "partial machine",
			data: "machine:\n  gas: 1000\n",
			exp: func(c *Config) {
				c.Machine.Gas = 1000
			},
		},
		{
			name: "capabilities",
			data: "lang:\n  capabilities: [\"read:*\", \"write:balance\"]\n",
			exp: func(c *Config) {
				c.Lang.Capabilities = []string{"read:*", "write:balance"}
			},
		},
		{
			name: "unknown field",
			data: "machine:\n  fuel: 1\n",
			fail: true,
		},
		{
			name: "bad level",
			data: "compiler:\n  opt-level: ludicrous\n",
			fail: true,
		},
		{
			name: "no workers",
			data: "teg:\n  workers: 0\n",
			fail: true,
		},
		{
			name: "negative gas",
			data: "machine:\n  gas: -1\n",
			fail: true,
		},
	}

	for index, tc := range testCases { // run all the tests
		name, data, fail, exp := tc.name, tc.data, tc.fail, tc.exp
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			config, err := Parse([]byte(data))
			if !fail && err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: parse failed with: %+v", index, err)
				return
			}
			if fail && err == nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: parse passed, expected fail", index)
				return
			}
			if fail {
				return
			}
			expected := Default()
			exp(expected)
			if diff := pretty.Compare(config, expected); diff != "" {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: diff: (-got +exp)\n%s", index, diff)
			}
		})
	}
}

func TestLoad0(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/causality.yaml", []byte("teg:\n  workers: 8\n"), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}
	config, err := Load(fs, "/etc/causality.yaml")
	if err != nil {
		t.Errorf("load failed with: %+v", err)
		return
	}
	if config.Teg.Workers != 8 {
		t.Errorf("expected 8 workers, got: %d", config.Teg.Workers)
	}
	if _, err := Load(fs, "/missing.yaml"); err == nil {
		t.Errorf("expected an error for a missing file")
	}

	// what we print, we can read back
	again, err := Parse([]byte(config.String()))
	if err != nil {
		t.Errorf("parse of printed config failed with: %+v", err)
		return
	}
	if diff := pretty.Compare(config, again); diff != "" {
		t.Errorf("printed config differs: (-got +exp)\n%s", diff)
	}
}
