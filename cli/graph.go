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

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	cliUtil "github.com/purpleidea/causality/cli/util"
	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/interpret"
	"github.com/purpleidea/causality/prometheus"
	"github.com/purpleidea/causality/teg"
	"github.com/purpleidea/causality/yamlgraph"
)

// GraphArgs is the graph CLI parsing structure and type of the parsed result.
type GraphArgs struct {
	Input string `arg:"positional,required" help:"yaml graph description"`

	Workers int    `arg:"--workers" help:"number of workers, zero uses the config"`
	Dot     bool   `arg:"--dot" help:"print the graph in graphviz format and exit"`
	Metrics bool   `arg:"--metrics" help:"print the metrics after the run"`
	Listen  string `arg:"--listen" help:"serve the metrics on this address during the run"`
}

// Run builds the graph from the description and runs it.
func (obj *GraphArgs) Run(ctx context.Context, env *env) error {
	l := env.lang()
	gc, err := yamlgraph.ParseConfigFromFile(env.fs, obj.Input)
	if err != nil {
		return err
	}
	graph, err := gc.NewGraphFromConfig(l.CompileSource)
	if err != nil {
		return err
	}
	if obj.Dot {
		fmt.Print(graph.Graphviz())
		return nil
	}

	var prom *prometheus.Prometheus
	if obj.Metrics || obj.Listen != "" {
		prom = &prometheus.Prometheus{
			Listen: obj.Listen,
		}
		if err := prom.Init(); err != nil {
			return err
		}
		if obj.Listen != "" {
			if err := prom.Start(); err != nil {
				return err
			}
			defer prom.Stop()
		}
	}

	cfg := env.config.Teg
	executor := &teg.Executor{
		Debug:        env.data.Flags.Debug,
		Logf:         cliUtil.Logf("teg"),
		Workers:      cfg.Workers,
		NodeTimeout:  cfg.NodeTimeout,
		GraphTimeout: cfg.GraphTimeout,
		Gas:          env.config.Machine.Gas,
		Seed:         env.config.Machine.Seed,
		Host:         env.host(interpret.NewTestContext(ast.NewArena())),
	}
	if obj.Workers > 0 {
		executor.Workers = obj.Workers
	}
	if prom != nil {
		executor.Metrics = prom
	}

	result, err := executor.Run(ctx, graph)
	if result != nil {
		printGraphResult(result)
	}
	if prom != nil && obj.Metrics {
		if err := prom.Dump(os.Stdout); err != nil {
			return err
		}
	}
	return err
}

func printGraphResult(result *teg.Result) {
	fmt.Printf("run: %s (%s)\n", result.ID, result.Duration)
	fmt.Printf("order: %s\n", strings.Join(result.Order, " "))
	for _, name := range result.Order {
		n := result.Nodes[name]
		switch n.State {
		case teg.StateCompleted:
			fmt.Printf("node(%s): %s on worker %d: %s\n", name, n.State, n.Worker, n.Value)
		default:
			fmt.Printf("node(%s): %s: %v\n", name, n.State, n.Err)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("skipped: %s\n", strings.Join(result.Skipped, " "))
	}
	for _, res := range result.Resources {
		fmt.Printf("resource: %s\n", res.V)
	}
	for _, w := range result.Workers {
		fmt.Printf("worker(%d): completed: %d, failed: %d, stolen: %d\n", w.Worker, w.Completed, w.Failed, w.Stolen)
	}
}
