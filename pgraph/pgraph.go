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

// Package pgraph represents the internal "pointer graph" that we use. The TEG
// is stored in one, and its validation and scheduling order are computed here.
package pgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/purpleidea/causality/util/errwrap"
)

// Graph is the graph structure in this library. The graph abstract data type
// (ADT) is defined as follows:
// * the directed graph arrows point from left to right ( -> )
// * the arrows point away from their dependencies (eg: arrows mean "before")
// * IOW, you might see alloc -> transfer -> settle (where alloc runs first)
type Graph struct {
	Name string

	adjacency map[Vertex]map[Vertex]Edge // Vertex -> Vertex (edge)
}

// Vertex is the primary vertex struct in this library. It can be anything that
// implements Stringer. The string output must be stable and unique in the
// graph.
type Vertex interface {
	fmt.Stringer // String() string
}

// Edge is the primary edge struct in this library. It can be anything that
// implements Stringer.
type Edge interface {
	fmt.Stringer // String() string
}

// NewGraph builds a new graph.
func NewGraph(name string) (*Graph, error) {
	g := &Graph{
		Name: name,
	}
	g.Init()
	return g, nil
}

// Init initializes the graph which populates all the internal structures.
func (g *Graph) Init() {
	if g.adjacency == nil {
		g.adjacency = make(map[Vertex]map[Vertex]Edge)
	}
}

// Copy makes a copy of the graph struct. The vertices and edges are shared.
func (g *Graph) Copy() *Graph {
	newGraph := &Graph{
		Name:      g.Name,
		adjacency: make(map[Vertex]map[Vertex]Edge, len(g.adjacency)),
	}
	for k, v := range g.adjacency {
		m := make(map[Vertex]Edge, len(v))
		for w, e := range v {
			m[w] = e
		}
		newGraph.adjacency[k] = m
	}
	return newGraph
}

// GetName returns the name of the graph.
func (g *Graph) GetName() string {
	return g.Name
}

// AddVertex uses variadic input to add all listed vertices to the graph.
func (g *Graph) AddVertex(xv ...Vertex) {
	g.Init()
	for _, v := range xv {
		if _, exists := g.adjacency[v]; !exists {
			g.adjacency[v] = make(map[Vertex]Edge)
		}
	}
}

// AddEdge adds a directed edge to the graph from v1 to v2. Adding a second edge
// between the same pair replaces the first.
func (g *Graph) AddEdge(v1, v2 Vertex, e Edge) {
	g.AddVertex(v1, v2) // ensure they exist
	g.adjacency[v1][v2] = e
}

// NumVertices returns the number of vertices in the graph.
func (g *Graph) NumVertices() int {
	return len(g.adjacency)
}

// NumEdges returns the number of edges in the graph.
func (g *Graph) NumEdges() int {
	count := 0
	for k := range g.adjacency {
		count += len(g.adjacency[k])
	}
	return count
}

// Vertices returns a randomly sorted slice of all vertices in the graph.
func (g *Graph) Vertices() []Vertex {
	var vertices []Vertex
	for k := range g.adjacency {
		vertices = append(vertices, k)
	}
	return vertices
}

// VertexSlice is a linear list of vertices. It can be sorted.
type VertexSlice []Vertex

func (vs VertexSlice) Len() int           { return len(vs) }
func (vs VertexSlice) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }
func (vs VertexSlice) Less(i, j int) bool { return vs[i].String() < vs[j].String() }

// VerticesSorted returns a sorted slice of all vertices in the graph. The order
// is sorted by String() to avoid the non-determinism in the map type.
func (g *Graph) VerticesSorted() []Vertex {
	vertices := g.Vertices()
	sort.Sort(VertexSlice(vertices))
	return vertices
}

// String makes the graph pretty print.
func (g *Graph) String() string {
	return fmt.Sprintf("%s: Vertices(%d), Edges(%d)", g.Name, g.NumVertices(), g.NumEdges())
}

// IncomingGraphVertices returns an array (slice) of all directed vertices to
// vertex v (??? -> v). The output is sorted.
func (g *Graph) IncomingGraphVertices(v Vertex) []Vertex {
	var s []Vertex
	for k := range g.adjacency { // reverse paths
		if _, exists := g.adjacency[k][v]; exists {
			s = append(s, k)
		}
	}
	sort.Sort(VertexSlice(s))
	return s
}

// OutgoingGraphVertices returns an array (slice) of all vertices that vertex v
// points to (v -> ???). The output is sorted.
func (g *Graph) OutgoingGraphVertices(v Vertex) []Vertex {
	var s []Vertex
	for k := range g.adjacency[v] { // forward paths
		s = append(s, k)
	}
	sort.Sort(VertexSlice(s))
	return s
}

// FindEdge returns the edge from v1 -> v2 if it exists. Otherwise nil.
func (g *Graph) FindEdge(v1, v2 Vertex) Edge {
	x, exists := g.adjacency[v1]
	if !exists {
		return nil // not found
	}
	edge, exists := x[v2]
	if !exists {
		return nil
	}
	return edge
}

// InDegree returns the count of vertices that point to me in one big lookup map.
func (g *Graph) InDegree() map[Vertex]int {
	result := make(map[Vertex]int)
	for k := range g.adjacency {
		result[k] = 0 // initialize
	}

	for k := range g.adjacency {
		for z := range g.adjacency[k] {
			result[z]++
		}
	}
	return result
}

// TopologicalSort returns the sort of graph vertices in that order. Ties are
// broken by the vertex name, so the output is stable. It errors with the
// vertices that are left over if the graph has a cycle.
func (g *Graph) TopologicalSort() ([]Vertex, error) { // kahn's algorithm
	var L []Vertex                    // empty list that will contain the sorted elements
	var S []Vertex                    // set of all nodes with no incoming edges
	remaining := make(map[Vertex]int) // amount of edges remaining

	for v, d := range g.InDegree() {
		if d == 0 {
			// accumulate set of all nodes with no incoming edges
			S = append(S, v)
		} else {
			// initialize remaining edge count from indegree
			remaining[v] = d
		}
	}

	for len(S) > 0 {
		sort.Sort(sort.Reverse(VertexSlice(S))) // pop the smallest
		last := len(S) - 1                      // remove a node v from S
		v := S[last]
		S = S[:last]
		L = append(L, v) // add v to tail of L
		for n := range g.adjacency[v] {
			// for each node n remaining in the graph, consume from
			// remaining, so for remaining[n] > 0
			if remaining[n] > 0 {
				remaining[n]--         // remove edge from the graph
				if remaining[n] == 0 { // if n has no other incoming edges
					S = append(S, n) // insert n into S
				}
			}
		}
	}

	// if graph has edges, eg if any value in rem is > 0
	cycle := []string{}
	for c, in := range remaining {
		if in > 0 {
			cycle = append(cycle, c.String())
		}
	}
	if len(cycle) > 0 {
		sort.Strings(cycle)
		return nil, errwrap.Wrapf(ErrNotAcyclic, "vertices in or after a cycle: %s", strings.Join(cycle, ", "))
	}

	return L, nil
}
