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

package yamlgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/purpleidea/causality/lang"
	"github.com/purpleidea/causality/teg"
	"github.com/purpleidea/causality/util"

	"github.com/kylelemons/godebug/pretty"
	"github.com/spf13/afero"
)

const fanout = `
graph: fanout
comment: a splits a balance, b and c each take a part
nodes:
  - name: a
    file: a.lisp
    produces: [x, y]
  - name: b
    source: "(let ((v (consume x))) (alloc (+ v 1)))"
    consumes: [x]
  - name: c
    source: "(let ((v (consume y))) (alloc (* v 2)))"
    consumes: [y]
    timeout: 1s
  - name: d
    source: "(+ 1 2)"
    best-effort: true
edges:
  - from: b
    to: d
  - from: c
    to: d
    kind: depends-on
`

func TestNewGraphFromConfig0(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/graphs/fanout.yaml", []byte(fanout), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}
	if err := afero.WriteFile(fs, "/graphs/a.lisp", []byte("(record (x (alloc 10)) (y (alloc 20)))"), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}

	config, err := ParseConfigFromFile(fs, "/graphs/fanout.yaml")
	if err != nil {
		t.Errorf("parse failed with: %+v", err)
		return
	}
	l := &lang.Lang{
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
	}
	graph, err := config.NewGraphFromConfig(l.CompileSource)
	if err != nil {
		t.Errorf("build failed with: %+v", err)
		return
	}
	if diff := pretty.Compare(graph.Names(), []string{"a", "b", "c", "d"}); diff != "" {
		t.Errorf("nodes differ: (-got +exp)\n%s", diff)
	}
	if node, _ := graph.Node("c"); node.Timeout.String() != "1s" {
		t.Errorf("unexpected timeout: %s", node.Timeout)
	}

	executor := &teg.Executor{
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
		Workers: 2,
		Seed:    "yaml",
	}
	result, err := executor.Run(context.Background(), graph)
	if err != nil {
		t.Errorf("run failed with: %+v", err)
		return
	}
	if diff := pretty.Compare(result.Names(teg.StateCompleted), []string{"a", "b", "c", "d"}); diff != "" {
		t.Errorf("completed nodes differ: (-got +exp)\n%s", diff)
	}
	if n := len(result.Resources); n != 2 {
		t.Errorf("expected 2 resources, got: %d", n)
	}
	if d := result.Order[len(result.Order)-1]; d != "d" {
		t.Errorf("expected d to run last, got: %s", d)
	}
	if err := util.SortedStrSliceCompare(result.Order[1:3], []string{"c", "b"}); err != nil {
		t.Errorf("expected b and c in the middle: %+v", err)
	}
}

func TestParse0(t *testing.T) {
	for _, data := range []string{
		"nodes: []",
		"graph: g\nnodes:\n  - source: \"1\"\n",
		"graph: g\nnodes:\n  - name: a\n",
		"graph: [",
	} {
		config := &GraphConfig{}
		if err := config.Parse([]byte(data)); err == nil {
			t.Errorf("expected an error for: %s", data)
		}
	}
}

func TestBadGraph0(t *testing.T) {
	config := &GraphConfig{}
	data := "graph: g\nnodes:\n  - name: a\n    source: \"1\"\n    consumes: [r]\n"
	if err := config.Parse([]byte(data)); err != nil {
		t.Errorf("parse failed with: %+v", err)
		return
	}
	l := &lang.Lang{}
	if _, err := config.NewGraphFromConfig(l.CompileSource); !errors.Is(err, teg.ErrNotProduced) {
		t.Errorf("expected a missing producer, got: %v", err)
	}

	data = "graph: g\nnodes:\n  - name: a\n    source: \"(+ 1\"\n"
	config = &GraphConfig{}
	if err := config.Parse([]byte(data)); err != nil {
		t.Errorf("parse failed with: %+v", err)
		return
	}
	if _, err := config.NewGraphFromConfig(l.CompileSource); err == nil {
		t.Errorf("expected a compile error")
	}
}
