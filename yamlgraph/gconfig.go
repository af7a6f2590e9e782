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

// Package yamlgraph is the yaml description of an effect graph. Each node has
// its program inline or in a file next to the description, and the graph is
// compiled one node at a time in dependency order, so that a node which
// consumes a resource knows the type of it.
package yamlgraph

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/machine"
	"github.com/purpleidea/causality/teg"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Node is a single node of the description.
type Node struct {
	Name string `yaml:"name"`

	// Source is the program of the node. If it is empty, File is read.
	Source string `yaml:"source"`

	// File is the path of the program, relative to the description.
	File string `yaml:"file"`

	Consumes   []string `yaml:"consumes"`
	Produces   []string `yaml:"produces"`
	BestEffort bool     `yaml:"best-effort"`

	// Timeout is a duration such as 500ms. It is optional.
	Timeout string `yaml:"timeout"`
}

// Edge is an ordering edge between two nodes.
type Edge struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Kind  string `yaml:"kind"` // next if empty
	Label string `yaml:"label"`
}

// GraphConfig is the top level of the description.
type GraphConfig struct {
	Graph   string  `yaml:"graph"`
	Nodes   []*Node `yaml:"nodes"`
	Edges   []*Edge `yaml:"edges"`
	Comment string  `yaml:"comment"`
}

// CompileFunc compiles the program of a node. The env holds the types of the
// resources that the node consumes. It returns the program and its type.
type CompileFunc func(name, source string, env map[string]*types.Type) (*machine.Program, *types.Type, error)

// Parse parses a data stream into the graph structure.
func (c *GraphConfig) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return errwrap.Wrapf(err, "could not parse graph config")
	}
	if c.Graph == "" {
		return fmt.Errorf("graph config: invalid graph name")
	}
	for i, n := range c.Nodes {
		if n == nil || n.Name == "" {
			return fmt.Errorf("graph config: node #%d has no name", i)
		}
		if n.Source == "" && n.File == "" {
			return fmt.Errorf("graph config: node `%s` has no source", n.Name)
		}
	}
	return nil
}

// ParseConfigFromFile reads the description at path, and any node programs that
// it refers to.
func ParseConfigFromFile(fs afero.Fs, path string) (*GraphConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not read graph config")
	}
	var config GraphConfig
	if err := config.Parse(data); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for _, n := range config.Nodes {
		if n.Source != "" {
			continue
		}
		name := n.File
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		b, err := afero.ReadFile(fs, name)
		if err != nil {
			return nil, errwrap.Wrapf(err, "could not read program of node `%s`", n.Name)
		}
		n.Source = string(b)
	}
	return &config, nil
}

// NewGraphFromConfig builds and compiles the graph. The result is validated.
func (c *GraphConfig) NewGraphFromConfig(compile CompileFunc) (*teg.Graph, error) {
	graph := teg.NewGraph(c.Graph)
	sources := make(map[string]string)
	for _, n := range c.Nodes {
		node := &teg.Node{
			Name:       n.Name,
			Consumes:   n.Consumes,
			Produces:   n.Produces,
			BestEffort: n.BestEffort,
		}
		if n.Timeout != "" {
			d, err := time.ParseDuration(n.Timeout)
			if err != nil {
				return nil, errwrap.Wrapf(err, "bad timeout on node `%s`", n.Name)
			}
			node.Timeout = d
		}
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
		sources[n.Name] = n.Source
	}
	for _, e := range c.Edges {
		kind := teg.EdgeKind(e.Kind)
		if kind == "" {
			kind = teg.EdgeNext
		}
		if err := graph.AddEdge(e.From, e.To, kind, e.Label); err != nil {
			return nil, err
		}
	}

	order, err := graph.Order()
	if err != nil {
		return nil, err
	}
	produced := make(map[string]*types.Type) // resource name to type
	for _, node := range order {
		env := make(map[string]*types.Type)
		for _, label := range node.Consumes {
			if typ, exists := produced[label]; exists {
				env[label] = typ
			}
		}
		prog, typ, err := compile(node.Name, sources[node.Name], env)
		if err != nil {
			return nil, errwrap.Wrapf(err, "could not compile node `%s`", node.Name)
		}
		node.Program = prog

		switch len(node.Produces) {
		case 0:
		case 1:
			if typ == nil {
				break
			}
			produced[node.Produces[0]] = typ
		default:
			if typ == nil || typ.Prune().Kind != types.KindRecord {
				break
			}
			fields, _ := typ.Fields()
			for _, label := range node.Produces {
				if t, exists := fields[label]; exists {
					produced[label] = t
				}
			}
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}
