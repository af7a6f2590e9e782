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
	"log"

	cliUtil "github.com/purpleidea/causality/cli/util"
	"github.com/purpleidea/causality/compiler"
	"github.com/purpleidea/causality/util/errwrap"
	"github.com/purpleidea/causality/util/recwatch"

	"github.com/spf13/afero"
)

// CompileArgs is the compile CLI parsing structure and type of the parsed
// result.
type CompileArgs struct {
	cliUtil.InputArgs

	Opt       string `arg:"--opt" help:"optimization level: none, basic, or aggressive"`
	Target    string `arg:"--target" help:"target: runtime or circuit"`
	DebugInfo bool   `arg:"--debug-info" help:"keep source positions in the output"`

	Cache string `arg:"--cache" help:"directory to cache artifacts in"`
	Out   string `arg:"--out" help:"write the artifact to this file"`
	Print bool   `arg:"--print" help:"print the compiled program"`

	Watch bool `arg:"--watch" help:"recompile every time the input file changes"`
}

// config returns the compiler config with the flags applied over the one from
// the config file.
func (obj *CompileArgs) config(base *compiler.Config) *compiler.Config {
	c := *base
	if obj.Opt != "" {
		c.OptLevel = compiler.OptLevel(obj.Opt)
	}
	if obj.Target != "" {
		c.Target = compiler.Target(obj.Target)
	}
	if obj.DebugInfo {
		c.DebugInfo = true
	}
	return &c
}

// Run compiles the input. With --watch, it keeps going until it is cancelled.
func (obj *CompileArgs) Run(ctx context.Context, env *env) error {
	l := env.lang()
	l.Config = obj.config(env.config.Compiler)
	if err := l.Config.Validate(); err != nil {
		return err
	}
	if obj.Cache != "" {
		if err := env.fs.MkdirAll(obj.Cache, 0700); err != nil {
			return errwrap.Wrapf(err, "can't make cache dir")
		}
		l.Store = &compiler.FsStore{
			Fs:  env.fs,
			Dir: obj.Cache,
		}
	}

	build := func() error {
		te, err := l.Load(obj.Input)
		if err != nil {
			return err
		}
		a, err := l.Compile(te)
		if err != nil {
			return err
		}
		fmt.Printf("artifact: %s\n", a.ID)
		fmt.Printf("type: %s\n", a.Type)
		fmt.Printf("instructions: %d\n", a.Instructions)
		if obj.Print {
			fmt.Printf("%s", a.Program)
		}
		if obj.Out == "" {
			return nil
		}
		b, err := a.Encode()
		if err != nil {
			return err
		}
		return afero.WriteFile(env.fs, obj.Out, b, 0600)
	}

	if !obj.Watch {
		return build()
	}
	if obj.Input == "-" {
		return fmt.Errorf("can't watch stdin")
	}
	if exists, err := afero.Exists(env.fs, obj.Input); err != nil || !exists {
		return fmt.Errorf("can only watch a file: %s", obj.Input)
	}

	watcher := &recwatch.Watcher{
		Path:  obj.Input,
		Debug: env.data.Flags.Debug,
		Logf:  cliUtil.Logf("recwatch"),
	}
	if err := watcher.Init(); err != nil {
		return err
	}
	defer watcher.Close()

	if err := build(); err != nil {
		log.Printf("compile: %+v", err) // keep watching
	}
	for {
		select {
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if event.Error != nil {
				return event.Error
			}
			log.Printf("compile: %s changed", obj.Input)
			if err := build(); err != nil {
				log.Printf("compile: %+v", err)
			}

		case <-ctx.Done():
			return nil
		}
	}
}
