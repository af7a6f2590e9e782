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

// Package cli handles all of the core command line parsing. It's the first
// entry point after the real main function, and it builds the language and the
// executors from the parsed flags and the config file.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	cliUtil "github.com/purpleidea/causality/cli/util"
	"github.com/purpleidea/causality/config"
	"github.com/purpleidea/causality/lang"
	"github.com/purpleidea/causality/lang/interpret"
	"github.com/purpleidea/causality/lang/parser"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/alexflint/go-arg"
	"github.com/spf13/afero"
)

// CLI is the entry point for using causality normally from the CLI.
func CLI(ctx context.Context, data *cliUtil.Data) error {
	// test for sanity
	if data == nil {
		return fmt.Errorf("this CLI was not run correctly")
	}
	if data.Program == "" || data.Version == "" {
		return fmt.Errorf("program was not compiled correctly")
	}

	args := Args{}
	args.version = data.Version // copy this in
	args.description = data.Tagline

	parser, err := arg.NewParser(arg.Config{Program: data.Program}, &args)
	if err != nil {
		// programming error
		return errwrap.Wrapf(err, "cli config error")
	}
	err = parser.Parse(data.Args[1:])
	if err == arg.ErrHelp {
		parser.WriteHelp(os.Stdout)
		return nil
	}
	if err == arg.ErrVersion {
		fmt.Printf("%s\n", data.Version) // byon: bring your own newline
		return nil
	}
	if err != nil {
		return cliUtil.CliParseError(err) // consistent errors
	}

	if args.Debug {
		data.Flags.Debug = true
	}
	cliUtil.Hello(data)

	if ok, err := args.Run(ctx, data); err != nil {
		return err
	} else if ok { // did we activate one of the commands?
		return nil
	}

	// print help if no subcommands are set
	parser.WriteHelp(os.Stdout)
	return nil
}

// Args is the CLI parsing structure and type of the parsed result. This
// particular struct is the top-most one.
type Args struct {
	Config string `arg:"--config,env:CAUSALITY_CONFIG" help:"yaml config file"`
	Debug  bool   `arg:"--debug" help:"add additional log messages"`

	ParseCmd   *ParseArgs   `arg:"subcommand:parse" help:"parse code and print it back"`
	CheckCmd   *CheckArgs   `arg:"subcommand:check" help:"type check code"`
	EvalCmd    *EvalArgs    `arg:"subcommand:eval" help:"evaluate code with the interpreter"`
	CompileCmd *CompileArgs `arg:"subcommand:compile" help:"compile code for the machine"`
	RunCmd     *RunArgs     `arg:"subcommand:run" help:"compile and run code on the machine"`
	GraphCmd   *GraphArgs   `arg:"subcommand:graph" help:"run an effect graph"`

	// version is a private handle for our version string.
	version string `arg:"-"` // ignored from parsing

	// description is a private handle for our description string.
	description string `arg:"-"` // ignored from parsing
}

// Version returns the version string. Implementing this signature is part of
// the API for the cli library.
func (obj *Args) Version() string {
	return obj.version
}

// Description returns a description string. Implementing this signature is part
// of the API for the cli library.
func (obj *Args) Description() string {
	return obj.description
}

// Run executes the correct subcommand. It errors if there's ever an error. It
// returns true if we did activate one of the subcommands. It returns false if
// we did not. This information is used so that the top-level parser can return
// usage or help information if no subcommand activates.
func (obj *Args) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	var cmd command
	switch {
	case obj.ParseCmd != nil:
		cmd = obj.ParseCmd
	case obj.CheckCmd != nil:
		cmd = obj.CheckCmd
	case obj.EvalCmd != nil:
		cmd = obj.EvalCmd
	case obj.CompileCmd != nil:
		cmd = obj.CompileCmd
	case obj.RunCmd != nil:
		cmd = obj.RunCmd
	case obj.GraphCmd != nil:
		cmd = obj.GraphCmd
	default:
		return false, nil // nobody activated
	}
	name := cliUtil.LookupSubcommand(obj, cmd)

	cfg := config.Default()
	if obj.Config != "" {
		var err error
		if cfg, err = config.Load(afero.NewOsFs(), obj.Config); err != nil {
			return false, err
		}
	}
	if data.Flags.Debug {
		log.Printf("cli: %s: config:\n%s", name, cfg)
	}
	env := &env{
		data:   data,
		config: cfg,
		fs:     afero.NewOsFs(),
	}
	if err := cmd.Run(ctx, env); err != nil {
		return false, errwrap.Wrapf(err, "%s failed", name)
	}
	return true, nil
}

// command is a subcommand.
type command interface {
	Run(ctx context.Context, env *env) error
}

// env is what every subcommand gets to work with.
type env struct {
	data   *cliUtil.Data
	config *config.Config
	fs     afero.Fs
}

// lang builds the language object from the config.
func (obj *env) lang() *lang.Lang {
	return &lang.Lang{
		Fs:           obj.fs,
		Debug:        obj.data.Flags.Debug,
		Logf:         cliUtil.Logf("lang"),
		Env:          hostTypes(),
		Capabilities: obj.config.Lang.Capabilities,
		Config:       obj.config.Compiler,
		Seed:         obj.config.Machine.Seed,
		MaxSteps:     obj.config.Lang.MaxSteps,
		Gas:          obj.config.Machine.Gas,
		Trace:        obj.config.Machine.Trace,
	}
}

// hostTypes are the types of the host functions that the command line offers.
func hostTypes() map[string]*types.Type {
	m := make(map[string]*types.Type)
	for name, sig := range map[string]string{
		"print": "(-o str unit)",
	} {
		typ, err := parser.ParseType(sig)
		if err != nil {
			panic(fmt.Sprintf("bad type for host function `%s`: %v", name, err))
		}
		m[name] = typ
	}
	return m
}

// host returns the context that programs run against from the command line.
func (obj *env) host(c *interpret.TestContext) *interpret.TestContext {
	c.AddFunction("print", func(args []types.Value) (types.Value, error) {
		s, ok := args[0].(*types.StrValue)
		if !ok {
			return nil, fmt.Errorf("print expects a str, got %s", args[0])
		}
		fmt.Println(s.V)
		return &types.UnitValue{}, nil
	})
	return c
}
