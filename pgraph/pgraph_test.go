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

package pgraph

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCount1(t *testing.T) {
	G := &Graph{}

	if i := G.NumVertices(); i != 0 {
		t.Errorf("should have 0 vertices instead of: %d", i)
	}

	if i := G.NumEdges(); i != 0 {
		t.Errorf("should have 0 edges instead of: %d", i)
	}

	v1 := NV("v1")
	v2 := NV("v2")
	e1 := NE("e1")
	G.AddEdge(v1, v2, e1)

	if i := G.NumVertices(); i != 2 {
		t.Errorf("should have 2 vertices instead of: %d", i)
	}

	if i := G.NumEdges(); i != 1 {
		t.Errorf("should have 1 edges instead of: %d", i)
	}
}

func TestTopoSort1(t *testing.T) {
	G, _ := NewGraph("g")
	v1 := NV("v1")
	v2 := NV("v2")
	v3 := NV("v3")
	v4 := NV("v4")
	v5 := NV("v5")
	v6 := NV("v6")

	G.AddEdge(v1, v2, NE("e1"))
	G.AddEdge(v2, v3, NE("e2"))
	G.AddEdge(v4, v5, NE("e3"))
	G.AddEdge(v5, v6, NE("e4"))
	G.AddEdge(v4, v2, NE("e5"))

	s, err := G.TopologicalSort()
	if err != nil {
		t.Errorf("topological sort failed with: %+v", err)
		return
	}
	exp := []string{"v1", "v4", "v2", "v3", "v5", "v6"}
	if out := names(s); !reflect.DeepEqual(out, exp) {
		t.Errorf("got: %v", out)
		t.Errorf("exp: %v", exp)
	}
}

func TestTopoSort2(t *testing.T) {
	G, _ := NewGraph("g")
	v1 := NV("v1")
	v2 := NV("v2")
	v3 := NV("v3")
	v4 := NV("v4")

	G.AddEdge(v1, v2, NE("e1"))
	G.AddEdge(v2, v3, NE("e2"))
	G.AddEdge(v3, v2, NE("e3")) // cycle
	G.AddEdge(v3, v4, NE("e4"))

	_, err := G.TopologicalSort()
	if err == nil {
		t.Errorf("topological sort passed, but graph is cyclic")
		return
	}
	if !errors.Is(err, ErrNotAcyclic) {
		t.Errorf("unexpected error: %+v", err)
	}
	if s := err.Error(); !strings.Contains(s, "v2, v3") {
		t.Errorf("error should name the cycle: %s", s)
	}
}

func TestDegree0(t *testing.T) {
	G, _ := NewGraph("g")
	v1 := NV("v1")
	v2 := NV("v2")
	v3 := NV("v3")
	G.AddEdge(v1, v2, NE("e1"))
	G.AddEdge(v1, v3, NE("e2"))
	G.AddEdge(v2, v3, NE("e3"))

	in := G.InDegree()
	if in[v1] != 0 || in[v2] != 1 || in[v3] != 2 {
		t.Errorf("unexpected in degrees: %d, %d, %d", in[v1], in[v2], in[v3])
	}
	if s := names(G.IncomingGraphVertices(v3)); !reflect.DeepEqual(s, []string{"v1", "v2"}) {
		t.Errorf("unexpected incoming vertices: %v", s)
	}
	if s := names(G.OutgoingGraphVertices(v1)); !reflect.DeepEqual(s, []string{"v2", "v3"}) {
		t.Errorf("unexpected outgoing vertices: %v", s)
	}
	if G.FindEdge(v1, v2) == nil || G.FindEdge(v2, v1) != nil {
		t.Errorf("edges are directed")
	}
}

func TestCopy1(t *testing.T) {
	G, _ := NewGraph("g")
	v1 := NV("v1")
	v2 := NV("v2")
	G.AddEdge(v1, v2, NE("e1"))

	c := G.Copy()
	c.AddEdge(v2, NV("v3"), NE("e2"))
	if G.NumVertices() != 2 || G.NumEdges() != 1 {
		t.Errorf("changing the copy changed the original: %s", G)
	}
	if c.NumVertices() != 3 || c.NumEdges() != 2 {
		t.Errorf("unexpected copy: %s", c)
	}
}

func TestGraphviz1(t *testing.T) {
	G, _ := NewGraph("g")
	v1 := NV("v1")
	v2 := NV("v2")
	G.AddEdge(v1, v2, NE("e1"))

	dot := G.Graphviz()
	if !strings.Contains(dot, "\"v1\" -> \"v2\" [label=\"e1\"];") {
		t.Errorf("unexpected graphviz output:\n%s", dot)
	}
}
