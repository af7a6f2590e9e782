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

package teg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/purpleidea/causality/lang/interfaces"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/google/uuid"
)

// State is the state of a node.
type State string

const (
	// StatePending is a node that is waiting on another one. Nodes that
	// are still pending when the graph ends are reported as skipped.
	StatePending State = "pending"

	// StateReady is a node that is waiting in a queue for a worker.
	StateReady State = "ready"

	// StateRunning is a node that a worker is running.
	StateRunning State = "running"

	// StateCompleted is a node whose program returned.
	StateCompleted State = "completed"

	// StateFailed is a node whose program failed or timed out.
	StateFailed State = "failed"
)

// DefaultWorkers is the size of the worker pool if none is given.
const DefaultWorkers = 4

// Executor runs graphs on a fixed pool of workers. Each worker owns a queue of
// ready nodes, and the nodes a completion unblocks go to the front of the
// queue of that worker. When a worker runs out of work it steals from the back
// of the longest queue of another worker. The queues belong to a single scheduler
// goroutine, and the workers only talk to it over channels.
type Executor struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	// Workers is the size of the pool. Zero means DefaultWorkers.
	Workers int

	// NodeTimeout bounds each node, unless the node has its own timeout.
	// Zero means no limit.
	NodeTimeout time.Duration

	// GraphTimeout bounds the whole graph. Zero means no limit.
	GraphTimeout time.Duration

	// Gas is the instruction limit for each node. Zero means no limit.
	Gas int64

	// Seed is combined with the node name to seed each node, so that the
	// resource ids don't depend on the schedule.
	Seed string

	// Host is the optional parent of every node host.
	Host interfaces.Host

	// Metrics receives the scheduler events if it is set.
	Metrics Metrics
}

// NodeResult is what happened to a single node.
type NodeResult struct {
	Name  string
	State State
	Value types.Value
	Err   error

	// Worker is the index of the worker that ran the node, or -1.
	Worker int

	// Stolen is true if the worker took this node from another queue.
	Stolen bool

	Start    time.Time
	Duration time.Duration

	Steps      int64
	Nullifiers []string
}

// WorkerStats counts what a single worker did.
type WorkerStats struct {
	Worker    int
	Completed int
	Failed    int
	Stolen    int
}

// Result is the outcome of a graph. The node states and the resources don't
// depend on the number of workers, but the order does.
type Result struct {
	// ID is unique for each execution.
	ID string

	Nodes map[string]*NodeResult

	// Order is the order in which the nodes started.
	Order []string

	// Skipped are the nodes that never ran, sorted.
	Skipped []string

	// Resources are the resources left at the end, sorted by id. These are
	// held by the results of the nodes that produce nothing, and by any
	// produced resource that no node took.
	Resources []*types.ResourceValue

	Workers  []*WorkerStats
	Duration time.Duration
}

// Names returns the sorted names of the nodes in this state.
func (obj *Result) Names(state State) []string {
	names := []string{}
	for name, nr := range obj.Nodes {
		if nr.State == state {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// task is a node handed to a worker.
type task struct {
	node   *Node
	stolen bool
	host   *nodeHost
}

// outcome is a finished task.
type outcome struct {
	task    *task
	result  *NodeResult
	outputs map[string]types.Value // produced resources
}

// request is sent by a worker when it wants work. It carries the previous
// outcome, if any.
type request struct {
	worker int
	done   *outcome
}

// scheduler is the state of a single graph execution. It is only touched by
// the goroutine that runs the scheduler loop.
type scheduler struct {
	*Executor
	ctx  context.Context
	plan *plan
	logf func(format string, v ...interface{})

	deques  []*deque
	parked  map[int]bool
	tasks   []chan *task
	running int

	waiting   map[string]int // number of unfinished predecessors
	available map[string]types.Value
	defined   map[string]map[string]types.Value // node name to its symbols

	result *Result
	stats  []*WorkerStats
	err    error
}

// Run executes the graph. It returns the result as long as the graph is valid,
// even if it also returns an error. The error aggregates every failure of a
// node which is not best effort, and a graph timeout.
func (obj *Executor) Run(ctx context.Context, g *Graph) (*Result, error) {
	p, err := g.plan()
	if err != nil {
		return nil, errwrap.Wrapf(err, "invalid graph `%s`", g.Name)
	}
	workers := obj.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logf := obj.Logf // the executor is shared, so it is never written
	if logf == nil {
		logf = func(format string, v ...interface{}) {}
	}

	if obj.GraphTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, obj.GraphTimeout)
		defer cancel()
	}

	start := time.Now()
	s := &scheduler{
		Executor:  obj,
		ctx:       ctx,
		plan:      p,
		logf:      logf,
		parked:    make(map[int]bool),
		waiting:   make(map[string]int),
		available: make(map[string]types.Value),
		defined:   make(map[string]map[string]types.Value),
		result: &Result{
			ID:    uuid.New().String(),
			Nodes: make(map[string]*NodeResult),
			Order: []string{},
		},
	}
	for i := 0; i < workers; i++ {
		s.deques = append(s.deques, &deque{})
		s.tasks = append(s.tasks, make(chan *task, 1))
		s.stats = append(s.stats, &WorkerStats{Worker: i})
	}
	ready := []*Node{}
	for _, node := range p.order {
		s.result.Nodes[node.Name] = &NodeResult{
			Name:   node.Name,
			State:  StatePending,
			Worker: -1,
		}
		s.waiting[node.Name] = len(p.preds[node.Name])
		if s.waiting[node.Name] == 0 {
			ready = append(ready, node)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name < ready[j].Name })
	for i, node := range ready {
		s.queue(i%workers, node, false)
	}
	if obj.Debug {
		logf("teg: graph(%s): %d nodes, %d edges on %d workers, %d ready", g.Name, len(p.order), p.edges, workers, len(ready))
	}

	// each worker has at most one request in flight
	requests := make(chan *request, workers)
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			obj.worker(ctx, worker, logf, s.tasks[worker], requests)
		}(i)
	}

	s.loop(requests)
	for _, ch := range s.tasks {
		close(ch)
	}
	wg.Wait()

	s.finish()
	s.result.Duration = time.Since(start)
	if obj.Metrics != nil {
		for range s.result.Skipped {
			obj.Metrics.UpdateNodeTotal("skipped", 0)
		}
		outcome := "ok"
		if errors.Is(s.err, ErrGraphTimeout) {
			outcome = "timeout"
		} else if s.err != nil {
			outcome = "failed"
		}
		obj.Metrics.UpdateGraphTotal(outcome)
	}
	if obj.Debug {
		logf("teg: graph(%s): done in %s, %d skipped", g.Name, s.result.Duration, len(s.result.Skipped))
	}
	return s.result, s.err
}

// worker runs the tasks it is given until its channel is closed.
func (obj *Executor) worker(ctx context.Context, worker int, logf func(format string, v ...interface{}), tasks <-chan *task, requests chan<- *request) {
	var done *outcome
	for {
		requests <- &request{worker: worker, done: done}
		t, ok := <-tasks
		if !ok {
			return
		}
		done = obj.execute(ctx, worker, logf, t)
	}
}

// execute runs the program of one node.
func (obj *Executor) execute(ctx context.Context, worker int, parent func(format string, v ...interface{}), t *task) *outcome {
	node := t.node
	nr := &NodeResult{
		Name:   node.Name,
		Worker: worker,
		Stolen: t.stolen,
		Start:  time.Now(),
	}
	out := &outcome{task: t, result: nr}

	timeout := obj.NodeTimeout
	if node.Timeout > 0 {
		timeout = node.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	prefix := fmt.Sprintf("teg: worker(%d): node(%s): ", worker, node.Name)
	logf := func(format string, v ...interface{}) {
		parent(prefix+format, v...)
	}
	if obj.Debug {
		logf("start (stolen: %t)", t.stolen)
	}
	exec := &machine.Executor{
		Debug: obj.Debug,
		Logf:  logf,
		Gas:   obj.Gas,
		Seed:  obj.Seed + "/" + node.Name,
		Host:  t.host,
	}
	res, err := exec.Run(ctx, node.Program)
	nr.Duration = time.Since(nr.Start)
	if err == nil {
		if unused := t.host.unused(node.Consumes); len(unused) > 0 {
			err = errwrap.Wrapf(ErrUnusedInput, "%s", strings.Join(unused, ", "))
		}
	}
	if err == nil {
		out.outputs, err = outputs(node, res.Value)
	}
	if err != nil {
		nr.State = StateFailed
		nr.Err = errwrap.Wrapf(err, "node `%s`", node.Name)
		out.outputs = nil
		if obj.Debug {
			logf("failed: %v", err)
		}
		return out
	}
	nr.State = StateCompleted
	nr.Value = res.Value
	nr.Steps = res.Steps
	nr.Nullifiers = res.Nullifiers
	if obj.Debug {
		logf("completed in %s (%d steps)", nr.Duration, nr.Steps)
	}
	return out
}

// outputs maps the result of a node onto the resources it produces.
func outputs(node *Node, v types.Value) (map[string]types.Value, error) {
	out := make(map[string]types.Value)
	switch len(node.Produces) {
	case 0:
		return out, nil
	case 1:
		out[node.Produces[0]] = v
		return out, nil
	}
	rec, ok := v.(*types.RecordValue)
	if !ok {
		return nil, errwrap.Wrapf(ErrBadOutput, "expected a record with fields %s, got %s", strings.Join(node.Produces, ", "), v)
	}
	if len(rec.V) != len(node.Produces) {
		return nil, errwrap.Wrapf(ErrBadOutput, "expected fields %s, got %s", strings.Join(node.Produces, ", "), strings.Join(rec.Keys(), ", "))
	}
	for _, label := range node.Produces {
		x, exists := rec.V[label]
		if !exists {
			return nil, errwrap.Wrapf(ErrBadOutput, "missing field `%s`", label)
		}
		out[label] = x
	}
	return out, nil
}

// queue puts a ready node on the queue of a worker. A node at the front runs
// next, and one at the back is the first to be stolen.
func (obj *scheduler) queue(worker int, node *Node, front bool) {
	obj.result.Nodes[node.Name].State = StateReady
	if front {
		obj.deques[worker].PushFront(node)
		return
	}
	obj.deques[worker].PushBack(node)
}

func (obj *scheduler) queued() int {
	n := 0
	for _, d := range obj.deques {
		n += d.Len()
	}
	return n
}

// take finds work for a worker. It pops from the front of its own queue, or
// else from the back of the longest other queue.
func (obj *scheduler) take(worker int) (*Node, bool, bool) {
	if node, ok := obj.deques[worker].PopFront(); ok {
		return node, false, true
	}
	victim := -1
	for i, d := range obj.deques {
		if i == worker || d.Len() == 0 {
			continue
		}
		if victim < 0 || d.Len() > obj.deques[victim].Len() {
			victim = i
		}
	}
	if victim < 0 {
		return nil, false, false
	}
	node, _ := obj.deques[victim].PopBack()
	return node, true, true
}

// loop hands out work until nothing is running and nothing is queued.
func (obj *scheduler) loop(requests <-chan *request) {
	timeout := obj.ctx.Done()
	for obj.running > 0 || obj.queued() > 0 || len(obj.parked) < len(obj.deques) {
		select {
		case req := <-requests:
			if req.done != nil {
				obj.running--
				obj.complete(req.worker, req.done)
			}
			obj.parked[req.worker] = true

		case <-timeout:
			timeout = nil // the running nodes see this too
			obj.err = errwrap.Append(obj.err, errwrap.Wrapf(ErrGraphTimeout, "%s", obj.ctx.Err().Error()))
			for _, d := range obj.deques {
				for _, node := range d.items {
					obj.result.Nodes[node.Name].State = StatePending
				}
				d.Clear()
			}
		}
		obj.dispatch()
		if obj.Metrics != nil {
			obj.Metrics.SetQueued(obj.queued())
		}
		if obj.running == 0 && obj.queued() == 0 && len(obj.parked) == len(obj.deques) {
			return
		}
	}
}

// dispatch gives work to the parked workers, lowest index first.
func (obj *scheduler) dispatch() {
	for worker := range obj.deques {
		if !obj.parked[worker] {
			continue
		}
		node, stolen, ok := obj.take(worker)
		if !ok {
			continue
		}
		delete(obj.parked, worker)
		obj.running++
		obj.result.Nodes[node.Name].State = StateRunning
		obj.result.Order = append(obj.result.Order, node.Name)
		if stolen {
			obj.stats[worker].Stolen++
			if obj.Metrics != nil {
				obj.Metrics.IncSteals()
			}
			if obj.Debug {
				obj.logf("teg: worker(%d): stole node(%s)", worker, node.Name)
			}
		}
		obj.tasks[worker] <- &task{
			node:   node,
			stolen: stolen,
			host:   obj.host(node),
		}
	}
}

// host builds the view of the world for a node that is about to run. The
// consumed resources leave the pool here.
func (obj *scheduler) host(node *Node) *nodeHost {
	inputs := make(map[string]types.Value)
	for _, label := range node.Consumes {
		inputs[label] = obj.available[label]
		delete(obj.available, label)
	}
	ancestors := obj.plan.ancestors[node.Name]
	symbols := make(map[string]types.Value)
	for _, n := range obj.plan.order { // later definitions win
		if _, exists := ancestors[n.Name]; !exists {
			continue
		}
		for name, v := range obj.defined[n.Name] {
			symbols[name] = v
		}
	}
	return newNodeHost(obj.Host, inputs, symbols, ancestors)
}

// complete records a finished node, and queues the nodes it was blocking.
func (obj *scheduler) complete(worker int, out *outcome) {
	node := out.task.node
	nr := out.result
	obj.result.Nodes[node.Name] = nr
	if obj.Metrics != nil {
		obj.Metrics.UpdateNodeTotal(string(nr.State), nr.Duration)
		obj.Metrics.UpdateWorkerTotal(strconv.Itoa(worker))
	}

	if nr.State != StateCompleted {
		obj.stats[worker].Failed++
		if !node.BestEffort {
			obj.err = errwrap.Append(obj.err, errwrap.Wrapf(ErrNodeFailed, "%s", nr.Err.Error()))
		} else if obj.Debug {
			obj.logf("teg: node(%s): best effort node failed: %v", node.Name, nr.Err)
		}
		return // the dependents stay pending
	}
	obj.stats[worker].Completed++
	for label, v := range out.outputs {
		obj.available[label] = v
	}
	obj.defined[node.Name] = out.task.host.defines

	if obj.ctx.Err() != nil {
		return // timed out, so nothing new starts
	}
	// the unblocked nodes run next on the same worker, in name order
	succs := obj.plan.succs[node.Name]
	for i := len(succs) - 1; i >= 0; i-- {
		next := succs[i]
		obj.waiting[next]--
		if obj.waiting[next] == 0 {
			obj.queue(worker, obj.plan.nodes[next], true)
		}
	}
}

// finish fills in the parts of the result that are known at the end.
func (obj *scheduler) finish() {
	res := obj.result
	res.Workers = obj.stats
	res.Skipped = []string{}
	for _, node := range obj.plan.order {
		if res.Nodes[node.Name].State == StatePending {
			res.Skipped = append(res.Skipped, node.Name)
		}
	}
	sort.Strings(res.Skipped)

	resources := []*types.ResourceValue{}
	for _, node := range obj.plan.order {
		nr := res.Nodes[node.Name]
		if nr.State == StateCompleted && len(node.Produces) == 0 {
			resources = append(resources, types.Resources(nr.Value)...)
		}
	}
	for _, v := range obj.available {
		resources = append(resources, types.Resources(v)...)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	res.Resources = resources
}
