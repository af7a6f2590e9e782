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

// Package teg runs temporal effect graphs. A graph is a set of nodes, each with
// a compiled program as its body, and edges which order them. Resources move
// between nodes by name: a node produces them in its result, and the consumers
// load them as symbols. The nodes run on a fixed pool of workers which steal
// work from each other.
package teg

import (
	"fmt"
	"sort"
	"time"

	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/pgraph"
	"github.com/purpleidea/causality/util/errwrap"
)

// EdgeKind is the reason for an edge. Every kind orders the nodes in the same
// way, but they are kept apart for validation and display.
type EdgeKind string

const (
	// EdgeNext is control flow.
	EdgeNext EdgeKind = "next"

	// EdgeDependsOn is a data dependency.
	EdgeDependsOn EdgeKind = "depends-on"

	// EdgeResource carries a resource from its producer to its consumer.
	// These edges are implied by the resource names, but they may also be
	// written out.
	EdgeResource EdgeKind = "resource"

	// EdgeHandler scopes a node under a handler, which must run first.
	EdgeHandler EdgeKind = "handler"
)

// Edge is an edge of the graph.
type Edge struct {
	Kind EdgeKind

	// Label is the resource name of a resource edge.
	Label string
}

// String returns the display form of the edge.
func (obj *Edge) String() string {
	if obj.Label != "" {
		return fmt.Sprintf("%s:%s", obj.Kind, obj.Label)
	}
	return string(obj.Kind)
}

// Node is a single effect.
type Node struct {
	Name    string
	Program *machine.Program

	// Consumes are the resources this node takes. Each one is available to
	// the program as a symbol of the same name, and must be loaded.
	Consumes []string

	// Produces are the resources this node hands on. With a single name
	// the whole result is produced. With more, the result must be a record
	// with a field for each.
	Produces []string

	// BestEffort nodes may fail without failing the graph.
	BestEffort bool

	// Timeout overrides the executor node timeout if it is set.
	Timeout time.Duration
}

// String returns the name of the node.
func (obj *Node) String() string {
	return obj.Name
}

// Graph is a temporal effect graph. It is built once and then executed, and it
// must not be changed while it runs.
type Graph struct {
	Name string

	graph *pgraph.Graph
	nodes map[string]*Node
}

// NewGraph returns an empty graph.
func NewGraph(name string) *Graph {
	g, _ := pgraph.NewGraph(name) // never errors
	return &Graph{
		Name:  name,
		graph: g,
		nodes: make(map[string]*Node),
	}
}

// AddNode adds the node. Names must be unique.
func (obj *Graph) AddNode(node *Node) error {
	if node == nil || node.Name == "" {
		return fmt.Errorf("node must have a name")
	}
	if _, exists := obj.nodes[node.Name]; exists {
		return errwrap.Wrapf(ErrDuplicateNode, "node `%s`", node.Name)
	}
	obj.nodes[node.Name] = node
	obj.graph.AddVertex(node)
	return nil
}

// AddEdge adds an edge from one named node to another. The node at the end of
// the edge only runs after the node at the start has completed.
func (obj *Graph) AddEdge(from, to string, kind EdgeKind, label string) error {
	a, exists := obj.nodes[from]
	if !exists {
		return errwrap.Wrapf(ErrUnknownNode, "edge from `%s`", from)
	}
	b, exists := obj.nodes[to]
	if !exists {
		return errwrap.Wrapf(ErrUnknownNode, "edge to `%s`", to)
	}
	switch kind {
	case EdgeNext, EdgeDependsOn, EdgeResource, EdgeHandler:
	default:
		return fmt.Errorf("unknown edge kind: %s", kind)
	}
	obj.graph.AddEdge(a, b, &Edge{Kind: kind, Label: label})
	return nil
}

// Node returns the named node.
func (obj *Graph) Node(name string) (*Node, bool) {
	node, exists := obj.nodes[name]
	return node, exists
}

// Names returns the sorted node names.
func (obj *Graph) Names() []string {
	names := []string{}
	for name := range obj.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of nodes.
func (obj *Graph) Len() int {
	return obj.graph.NumVertices()
}

// Graphviz returns the graph in dot format.
func (obj *Graph) Graphviz() string {
	g, err := obj.full()
	if err != nil {
		return obj.graph.Graphviz()
	}
	return g.Graphviz()
}

// full returns a copy of the graph with the implied resource edges added.
func (obj *Graph) full() (*pgraph.Graph, error) {
	g := obj.graph.Copy()
	producers := make(map[string]*Node)
	for _, name := range obj.Names() {
		node := obj.nodes[name]
		for _, label := range node.Produces {
			if other, exists := producers[label]; exists {
				return nil, errwrap.Wrapf(ErrProducedTwice, "`%s` by `%s` and `%s`", label, other.Name, node.Name)
			}
			producers[label] = node
		}
	}
	consumers := make(map[string]*Node)
	for _, name := range obj.Names() {
		node := obj.nodes[name]
		for _, label := range node.Consumes {
			if other, exists := consumers[label]; exists {
				return nil, errwrap.Wrapf(ErrConsumedTwice, "`%s` by `%s` and `%s`", label, other.Name, node.Name)
			}
			consumers[label] = node
			producer, exists := producers[label]
			if !exists {
				return nil, errwrap.Wrapf(ErrNotProduced, "`%s` is consumed by `%s`", label, node.Name)
			}
			if g.FindEdge(producer, node) == nil {
				g.AddEdge(producer, node, &Edge{Kind: EdgeResource, Label: label})
			}
		}
	}
	return g, nil
}

// Validate checks the graph. Every node needs a program, every consumed
// resource needs exactly one producer, and the graph with the implied resource
// edges must be acyclic. All of the problems are returned together.
func (obj *Graph) Validate() error {
	var reterr error
	for _, name := range obj.Names() {
		if obj.nodes[name].Program == nil {
			reterr = errwrap.Append(reterr, errwrap.Wrapf(ErrNoProgram, "node `%s`", name))
		}
	}
	g, err := obj.full()
	if err != nil {
		return errwrap.Append(reterr, err)
	}
	if _, err := g.TopologicalSort(); err != nil {
		reterr = errwrap.Append(reterr, errwrap.Wrapf(ErrCycle, "%s", err.Error()))
	}
	return reterr
}

// plan is the scheduling view of a valid graph.
type plan struct {
	order     []*Node             // topological, stable
	nodes     map[string]*Node
	preds     map[string][]string // sorted names of the nodes that must run first
	succs     map[string][]string
	ancestors map[string]map[string]struct{}
	edges     int // including the implied ones
}

func (obj *Graph) plan() (*plan, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	g, err := obj.full()
	if err != nil {
		return nil, err
	}
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	p := &plan{
		nodes:     obj.nodes,
		preds:     make(map[string][]string),
		succs:     make(map[string][]string),
		ancestors: make(map[string]map[string]struct{}),
		edges:     g.NumEdges(),
	}
	for _, v := range sorted {
		node := v.(*Node)
		p.order = append(p.order, node)
		p.preds[node.Name] = names(g.IncomingGraphVertices(v))
		p.succs[node.Name] = names(g.OutgoingGraphVertices(v))

		// predecessors come first in the order, so theirs are done
		set := make(map[string]struct{})
		for _, pred := range p.preds[node.Name] {
			set[pred] = struct{}{}
			for a := range p.ancestors[pred] {
				set[a] = struct{}{}
			}
		}
		p.ancestors[node.Name] = set
	}
	return p, nil
}

func names(vs []pgraph.Vertex) []string {
	out := []string{}
	for _, v := range vs {
		out = append(out, v.String())
	}
	sort.Strings(out)
	return out
}

// Order returns the nodes in a stable topological order, which includes the
// implied resource edges. It doesn't need the programs to be set, so a graph
// can be built first and compiled in this order.
func (obj *Graph) Order() ([]*Node, error) {
	g, err := obj.full()
	if err != nil {
		return nil, err
	}
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, errwrap.Wrapf(ErrCycle, "%s", err.Error())
	}
	out := []*Node{}
	for _, v := range sorted {
		out = append(out, v.(*Node))
	}
	return out, nil
}
