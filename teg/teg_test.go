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

package teg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/purpleidea/causality/compiler"
	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/typecheck"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/prometheus"

	"github.com/kylelemons/godebug/pretty"
)

func compile(t *testing.T, code string, env map[string]*types.Type) *machine.Program {
	prog, err := parser.Parse(code)
	if err != nil {
		t.Fatalf("parse failed with: %+v", err)
	}
	checker := &typecheck.Checker{Env: env}
	te, err := checker.Check(prog)
	if err != nil {
		t.Fatalf("check failed with: %+v", err)
	}
	c := &compiler.Compiler{
		Logf:   func(format string, v ...interface{}) {},
		Config: &compiler.Config{OptLevel: compiler.OptAggressive, Target: compiler.TargetRuntime},
	}
	a, err := c.Compile(te)
	if err != nil {
		t.Fatalf("compile failed with: %+v", err)
	}
	return a.Program
}

func resource(t *testing.T) *types.Type {
	typ, err := parser.ParseType("(resource int)")
	if err != nil {
		t.Fatalf("type failed with: %+v", err)
	}
	return typ
}

func newExecutor(t *testing.T, workers int) *Executor {
	return &Executor{
		Debug: false, // the machine logs every instruction
		Logf: func(format string, v ...interface{}) {
			t.Logf(format, v...)
		},
		Workers: workers,
		Seed:    "test",
	}
}

// fanout is A->B, A->C where A hands a resource to each of B and C.
func fanout(t *testing.T) *Graph {
	g := NewGraph("fanout")
	nodes := []*Node{
		{
			Name:     "a",
			Program:  compile(t, "(record (x (alloc 10)) (y (alloc 20)))", nil),
			Produces: []string{"x", "y"},
		},
		{
			Name:     "b",
			Program:  compile(t, "(let ((v (consume x))) (alloc (+ v 1)))", map[string]*types.Type{"x": resource(t)}),
			Consumes: []string{"x"},
		},
		{
			Name:     "c",
			Program:  compile(t, "(let ((v (consume y))) (alloc (* v 2)))", map[string]*types.Type{"y": resource(t)}),
			Consumes: []string{"y"},
		},
	}
	for _, node := range nodes {
		if err := g.AddNode(node); err != nil {
			t.Fatalf("add failed with: %+v", err)
		}
	}
	return g
}

func TestRunWorkers0(t *testing.T) {
	var first *Result
	for _, workers := range []int{1, 2, 4} {
		result, err := newExecutor(t, workers).Run(context.Background(), fanout(t))
		if err != nil {
			t.Errorf("workers(%d): run failed with: %+v", workers, err)
			continue
		}
		if diff := pretty.Compare(result.Names(StateCompleted), []string{"a", "b", "c"}); diff != "" {
			t.Errorf("workers(%d): completed nodes differ: (-got +exp)\n%s", workers, diff)
		}
		if len(result.Skipped) != 0 {
			t.Errorf("workers(%d): skipped: %v", workers, result.Skipped)
		}
		if len(result.Order) != 3 || result.Order[0] != "a" {
			t.Errorf("workers(%d): bad order: %v", workers, result.Order)
		}
		if len(result.Workers) != workers {
			t.Errorf("workers(%d): got %d worker stats", workers, len(result.Workers))
		}
		if len(result.Resources) != 2 {
			t.Errorf("workers(%d): got %d resources", workers, len(result.Resources))
			continue
		}
		if first == nil {
			first = result
			continue
		}
		for i := range first.Resources {
			if !types.Equal(first.Resources[i], result.Resources[i]) {
				t.Errorf("workers(%d): resource %d differs", workers, i)
				t.Logf("got: %s (%s)", result.Resources[i], result.Resources[i].ID)
				t.Logf("exp: %s (%s)", first.Resources[i], first.Resources[i].ID)
			}
		}
	}
	if first == nil {
		return
	}
	values := []string{}
	for _, res := range first.Resources {
		values = append(values, res.V.String())
	}
	if s := strings.Join(values, " "); s != "11 40" && s != "40 11" {
		t.Errorf("unexpected resources: %s", s)
	}
}

func TestValidate0(t *testing.T) {
	type test struct { // an individual test
		name  string
		graph func() *Graph
		exp   []error
	}
	prog := compile(t, "1", nil)
	testCases := []test{}
	{
		testCases = append(testCases, test{
			name:  "valid",
			graph: func() *Graph { return fanout(t) },
			exp:   nil,
		})
	}
	{
		testCases = append(testCases, test{
			name: "cycle",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a", Program: prog})
				g.AddNode(&Node{Name: "b", Program: prog})
				g.AddEdge("a", "b", EdgeNext, "")
				g.AddEdge("b", "a", EdgeDependsOn, "")
				return g
			},
			exp: []error{ErrCycle},
		})
	}
	{
		testCases = append(testCases, test{
			name: "cycle through a resource",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a", Program: prog, Produces: []string{"r"}})
				g.AddNode(&Node{Name: "b", Program: prog, Consumes: []string{"r"}})
				g.AddEdge("b", "a", EdgeHandler, "")
				return g
			},
			exp: []error{ErrCycle},
		})
	}
	{
		testCases = append(testCases, test{
			name: "never produced",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a", Program: prog, Consumes: []string{"r"}})
				return g
			},
			exp: []error{ErrNotProduced},
		})
	}
	{
		testCases = append(testCases, test{
			name: "produced twice",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a", Program: prog, Produces: []string{"r"}})
				g.AddNode(&Node{Name: "b", Program: prog, Produces: []string{"r"}})
				return g
			},
			exp: []error{ErrProducedTwice},
		})
	}
	{
		testCases = append(testCases, test{
			name: "consumed twice",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a", Program: prog, Produces: []string{"r"}})
				g.AddNode(&Node{Name: "b", Program: prog, Consumes: []string{"r"}})
				g.AddNode(&Node{Name: "c", Program: prog, Consumes: []string{"r"}})
				return g
			},
			exp: []error{ErrConsumedTwice},
		})
	}
	{
		testCases = append(testCases, test{
			name: "no program and a cycle",
			graph: func() *Graph {
				g := NewGraph("g")
				g.AddNode(&Node{Name: "a"})
				g.AddNode(&Node{Name: "b", Program: prog})
				g.AddEdge("a", "b", EdgeNext, "")
				g.AddEdge("b", "a", EdgeNext, "")
				return g
			},
			exp: []error{ErrNoProgram, ErrCycle},
		})
	}

	for index, tc := range testCases { // run all the tests
		name, graph, exp := tc.name, tc.graph, tc.exp
		t.Run(fmt.Sprintf("test #%d (%s)", index, name), func(t *testing.T) {
			err := graph().Validate()
			if exp == nil && err != nil {
				t.Errorf("test #%d: FAIL", index)
				t.Errorf("test #%d: validate failed with: %+v", index, err)
				return
			}
			for _, e := range exp {
				if !errors.Is(err, e) {
					t.Errorf("test #%d: FAIL", index)
					t.Errorf("test #%d: got: %v", index, err)
					t.Errorf("test #%d: exp: %v", index, e)
				}
			}
		})
	}
}

func TestGraphEdit0(t *testing.T) {
	g := NewGraph("g")
	prog := compile(t, "1", nil)
	if err := g.AddNode(&Node{Name: "a", Program: prog}); err != nil {
		t.Errorf("add failed with: %+v", err)
	}
	if err := g.AddNode(&Node{Name: "a", Program: prog}); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("expected a duplicate node error, got: %v", err)
	}
	if err := g.AddEdge("a", "b", EdgeNext, ""); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected an unknown node error, got: %v", err)
	}
	if err := g.AddEdge("a", "a", EdgeKind("sideways"), ""); err == nil {
		t.Errorf("expected an error for a bad edge kind")
	}
	if g.Len() != 1 {
		t.Errorf("expected one node, got: %d", g.Len())
	}
	if _, err := newExecutor(t, 1).Run(context.Background(), NewGraph("empty")); err != nil {
		t.Errorf("empty graph failed with: %+v", err)
	}
}

// failing is a graph where a fails, b comes after a, and c is on its own.
func failing(t *testing.T, bestEffort bool) *Graph {
	g := NewGraph("failing")
	g.AddNode(&Node{Name: "a", Program: compile(t, "(/ 1 0)", nil), BestEffort: bestEffort})
	g.AddNode(&Node{Name: "b", Program: compile(t, "(+ 1 2)", nil)})
	g.AddNode(&Node{Name: "c", Program: compile(t, "(+ 3 4)", nil)})
	g.AddNode(&Node{Name: "d", Program: compile(t, "5", nil)})
	g.AddEdge("a", "b", EdgeNext, "")
	g.AddEdge("b", "d", EdgeDependsOn, "")
	return g
}

func TestRunFailure0(t *testing.T) {
	result, err := newExecutor(t, 2).Run(context.Background(), failing(t, false))
	if !errors.Is(err, ErrNodeFailed) {
		t.Errorf("expected a node failure, got: %v", err)
	}
	if result == nil {
		t.Errorf("expected a result")
		return
	}
	if err != nil && !strings.Contains(err.Error(), "node `a`") {
		t.Errorf("error doesn't name the node: %v", err)
	}
	if diff := pretty.Compare(result.Skipped, []string{"b", "d"}); diff != "" {
		t.Errorf("skipped nodes differ: (-got +exp)\n%s", diff)
	}
	if s := result.Nodes["a"].State; s != StateFailed {
		t.Errorf("expected a to fail, got: %s", s)
	}
	if !errors.Is(result.Nodes["a"].Err, machine.ErrExecutionFailed) {
		t.Errorf("unexpected node error: %v", result.Nodes["a"].Err)
	}
	if s := result.Nodes["c"].State; s != StateCompleted {
		t.Errorf("expected c to complete, got: %s", s)
	}
	if v := result.Nodes["c"].Value.String(); v != "7" {
		t.Errorf("expected c to be 7, got: %s", v)
	}
}

func TestRunBestEffort0(t *testing.T) {
	result, err := newExecutor(t, 2).Run(context.Background(), failing(t, true))
	if err != nil {
		t.Errorf("run failed with: %+v", err)
		return
	}
	if s := result.Nodes["a"].State; s != StateFailed {
		t.Errorf("expected a to fail, got: %s", s)
	}
	if diff := pretty.Compare(result.Skipped, []string{"b", "d"}); diff != "" {
		t.Errorf("skipped nodes differ: (-got +exp)\n%s", diff)
	}
}

func TestRunTimeout0(t *testing.T) {
	loop := "(letrec ((loop (lambda (n) (loop (+ n 1))))) (loop 0))"
	g := NewGraph("timeout")
	g.AddNode(&Node{Name: "slow", Program: compile(t, loop, nil), Timeout: 20 * time.Millisecond})
	g.AddNode(&Node{Name: "fast", Program: compile(t, "1", nil)})
	g.AddNode(&Node{Name: "after", Program: compile(t, "2", nil)})
	g.AddEdge("slow", "after", EdgeNext, "")

	result, err := newExecutor(t, 2).Run(context.Background(), g)
	if !errors.Is(err, ErrNodeFailed) {
		t.Errorf("expected a node failure, got: %v", err)
	}
	if result == nil {
		return
	}
	if !errors.Is(result.Nodes["slow"].Err, machine.ErrExecutionTimeout) {
		t.Errorf("expected a timeout, got: %v", result.Nodes["slow"].Err)
	}
	if s := result.Nodes["fast"].State; s != StateCompleted {
		t.Errorf("expected fast to complete, got: %s", s)
	}
	if diff := pretty.Compare(result.Skipped, []string{"after"}); diff != "" {
		t.Errorf("skipped nodes differ: (-got +exp)\n%s", diff)
	}
}

func TestRunGraphTimeout0(t *testing.T) {
	loop := "(letrec ((loop (lambda (n) (loop (+ n 1))))) (loop 0))"
	g := NewGraph("timeout")
	g.AddNode(&Node{Name: "slow", Program: compile(t, loop, nil)})
	g.AddNode(&Node{Name: "after", Program: compile(t, "2", nil)})
	g.AddEdge("slow", "after", EdgeNext, "")

	executor := newExecutor(t, 1)
	executor.GraphTimeout = 20 * time.Millisecond
	result, err := executor.Run(context.Background(), g)
	if !errors.Is(err, ErrGraphTimeout) {
		t.Errorf("expected a graph timeout, got: %v", err)
	}
	if result == nil {
		return
	}
	if s := result.Nodes["slow"].State; s != StateFailed {
		t.Errorf("expected slow to fail, got: %s", s)
	}
	if diff := pretty.Compare(result.Skipped, []string{"after"}); diff != "" {
		t.Errorf("skipped nodes differ: (-got +exp)\n%s", diff)
	}
}

func TestRunSymbols0(t *testing.T) {
	g := NewGraph("symbols")
	env := map[string]*types.Type{"rate": types.TypeInt}
	g.AddNode(&Node{Name: "a", Program: compile(t, "(define 'rate 3)", nil)})
	g.AddNode(&Node{Name: "b", Program: compile(t, `(if (completed? "a") (+ rate 1) 0)`, env)})
	g.AddNode(&Node{Name: "c", Program: compile(t, `(completed? "b")`, nil)})
	g.AddEdge("a", "b", EdgeNext, "")

	result, err := newExecutor(t, 2).Run(context.Background(), g)
	if err != nil {
		t.Errorf("run failed with: %+v", err)
		return
	}
	if v := result.Nodes["b"].Value.String(); v != "4" {
		t.Errorf("expected b to be 4, got: %s", v)
	}
	if v := result.Nodes["c"].Value.String(); v != "false" {
		t.Errorf("expected c to be false, got: %s", v)
	}
}

func TestRunDepthFirst0(t *testing.T) {
	g := NewGraph("depth")
	g.AddNode(&Node{Name: "a", Program: compile(t, "1", nil)})
	g.AddNode(&Node{Name: "b", Program: compile(t, "2", nil)})
	g.AddNode(&Node{Name: "c", Program: compile(t, "3", nil)})
	g.AddNode(&Node{Name: "d", Program: compile(t, "4", nil)})
	g.AddEdge("a", "b", EdgeNext, "")
	g.AddEdge("a", "d", EdgeNext, "")

	result, err := newExecutor(t, 1).Run(context.Background(), g)
	if err != nil {
		t.Errorf("run failed with: %+v", err)
		return
	}
	// what a unblocks runs before the ready node c
	if diff := pretty.Compare(result.Order, []string{"a", "b", "d", "c"}); diff != "" {
		t.Errorf("order differs: (-got +exp)\n%s", diff)
	}
}

func TestRunShared0(t *testing.T) {
	obj := &Executor{Workers: 2, Seed: "test"} // no Logf
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	graphs := []*Graph{fanout(t), fanout(t), fanout(t), fanout(t)}
	for i, g := range graphs {
		wg.Add(1)
		go func(i int, g *Graph) {
			defer wg.Done()
			result, err := obj.Run(context.Background(), g)
			if err != nil {
				t.Errorf("run(%d) failed with: %+v", i, err)
				return
			}
			if n := len(result.Names(StateCompleted)); n != 3 {
				t.Errorf("run(%d): expected 3 completed nodes, got: %d", i, n)
			}
		}(i, g)
	}
}

func TestRunUnusedInput0(t *testing.T) {
	g := NewGraph("unused")
	g.AddNode(&Node{Name: "a", Program: compile(t, "(alloc 1)", nil), Produces: []string{"r"}})
	g.AddNode(&Node{Name: "b", Program: compile(t, "2", nil), Consumes: []string{"r"}})

	result, err := newExecutor(t, 1).Run(context.Background(), g)
	if !errors.Is(err, ErrNodeFailed) {
		t.Errorf("expected a node failure, got: %v", err)
	}
	if result != nil && !errors.Is(result.Nodes["b"].Err, ErrUnusedInput) {
		t.Errorf("expected an unused input, got: %v", result.Nodes["b"].Err)
	}
}

func TestRunBadOutput0(t *testing.T) {
	g := NewGraph("output")
	g.AddNode(&Node{Name: "a", Program: compile(t, "(record (x 1))", nil), Produces: []string{"x", "y"}})

	result, err := newExecutor(t, 1).Run(context.Background(), g)
	if !errors.Is(err, ErrNodeFailed) {
		t.Errorf("expected a node failure, got: %v", err)
	}
	if result != nil && !errors.Is(result.Nodes["a"].Err, ErrBadOutput) {
		t.Errorf("expected a bad output, got: %v", result.Nodes["a"].Err)
	}
}

func TestRunStats0(t *testing.T) {
	g := NewGraph("wide")
	g.AddNode(&Node{Name: "root", Program: compile(t, "0", nil)})
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("n%d", i)
		g.AddNode(&Node{Name: name, Program: compile(t, fmt.Sprintf("(* %d %d)", i, i), nil)})
		g.AddEdge("root", name, EdgeNext, "")
	}

	prom := &prometheus.Prometheus{}
	if err := prom.Init(); err != nil {
		t.Errorf("init failed with: %+v", err)
		return
	}
	executor := newExecutor(t, 3)
	executor.Metrics = prom
	result, err := executor.Run(context.Background(), g)
	if err != nil {
		t.Errorf("run failed with: %+v", err)
		return
	}

	completed, stolen := 0, 0
	for _, ws := range result.Workers {
		completed += ws.Completed
		stolen += ws.Stolen
	}
	if completed != 9 {
		t.Errorf("expected 9 completed nodes, got: %d", completed)
	}
	n := 0
	for _, nr := range result.Nodes {
		if nr.Stolen {
			n++
		}
	}
	if n != stolen {
		t.Errorf("stolen nodes don't match: %d != %d", n, stolen)
	}
	if result.ID == "" {
		t.Errorf("expected an execution id")
	}

	buf := &bytes.Buffer{}
	if err := prom.Dump(buf); err != nil {
		t.Errorf("dump failed with: %+v", err)
		return
	}
	for _, exp := range []string{
		`causality_teg_graphs_total{result="ok"} 1`,
		`causality_teg_nodes_total{state="completed"} 9`,
		fmt.Sprintf("causality_teg_steals_total %d", stolen),
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("metrics are missing: %s", exp)
		}
	}
}

func TestDeque0(t *testing.T) {
	d := &deque{}
	a, b, c := &Node{Name: "a"}, &Node{Name: "b"}, &Node{Name: "c"}
	d.PushBack(b)
	d.PushBack(c)
	d.PushFront(a)
	if d.Len() != 3 {
		t.Errorf("expected 3 items, got: %d", d.Len())
	}
	if n, ok := d.PopFront(); !ok || n != a {
		t.Errorf("expected a from the front")
	}
	if n, ok := d.PopBack(); !ok || n != c {
		t.Errorf("expected c from the back")
	}
	if n, ok := d.PopBack(); !ok || n != b {
		t.Errorf("expected b from the back")
	}
	if _, ok := d.PopFront(); ok {
		t.Errorf("expected an empty deque")
	}
}

func TestGraphviz0(t *testing.T) {
	s := fanout(t).Graphviz()
	if !strings.Contains(s, `"a" -> "b" [label="resource:x"];`) {
		t.Errorf("missing resource edge in:\n%s", s)
	}
}
