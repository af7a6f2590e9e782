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

// Package config loads the settings of every component from a single yaml
// file. Every field has a default, so an empty file is a valid config.
package config

import (
	"fmt"
	"time"

	"github.com/purpleidea/causality/compiler"
	"github.com/purpleidea/causality/teg"
	"github.com/purpleidea/causality/util"
	"github.com/purpleidea/causality/util/errwrap"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Config is the top level of the config file.
type Config struct {
	Lang     *LangConfig      `yaml:"lang"`
	Compiler *compiler.Config `yaml:"compiler"`
	Machine  *MachineConfig   `yaml:"machine"`
	Teg      *TegConfig       `yaml:"teg"`
}

// LangConfig is for the type checker and the interpreter.
type LangConfig struct {
	// Capabilities restricts record access. Empty allows everything.
	Capabilities []string `yaml:"capabilities,omitempty"`

	// MaxSteps bounds the interpreter. Zero means no bound.
	MaxSteps int64 `yaml:"max-steps"`
}

// MachineConfig is for the basic executor.
type MachineConfig struct {
	// Gas bounds each run. Zero means no bound.
	Gas int64 `yaml:"gas"`

	// Seed is mixed into every resource id.
	Seed string `yaml:"seed"`

	Trace bool `yaml:"trace"`
}

// TegConfig is for the graph executor.
type TegConfig struct {
	Workers      int           `yaml:"workers"`
	NodeTimeout  time.Duration `yaml:"node-timeout"`
	GraphTimeout time.Duration `yaml:"graph-timeout"`
}

// Default returns the config used when there is no file.
func Default() *Config {
	return &Config{
		Lang:     &LangConfig{},
		Compiler: compiler.DefaultConfig(),
		Machine: &MachineConfig{
			Seed: "causality",
		},
		Teg: &TegConfig{
			Workers: teg.DefaultWorkers,
		},
	}
}

// Parse reads a config from yaml. Missing sections and fields keep their
// defaults, and unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, errwrap.Wrapf(err, "could not parse config")
	}
	// an explicit null section would leave us with nothing
	def := Default()
	if config.Lang == nil {
		config.Lang = def.Lang
	}
	if config.Compiler == nil {
		config.Compiler = def.Compiler
	}
	if config.Machine == nil {
		config.Machine = def.Machine
	}
	if config.Teg == nil {
		config.Teg = def.Teg
	}
	if len(config.Lang.Capabilities) > 0 {
		config.Lang.Capabilities = util.StrRemoveDuplicatesInList(config.Lang.Capabilities)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads the config file at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not read config")
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errwrap.Wrapf(err, "bad config in `%s`", path)
	}
	return config, nil
}

// Validate checks every section.
func (obj *Config) Validate() error {
	var reterr error
	if err := obj.Compiler.Validate(); err != nil {
		reterr = errwrap.Append(reterr, errwrap.Wrapf(err, "compiler"))
	}
	if obj.Lang.MaxSteps < 0 {
		reterr = errwrap.Append(reterr, fmt.Errorf("lang: max-steps can't be negative"))
	}
	if obj.Machine.Gas < 0 {
		reterr = errwrap.Append(reterr, fmt.Errorf("machine: gas can't be negative"))
	}
	if obj.Teg.Workers < 1 {
		reterr = errwrap.Append(reterr, fmt.Errorf("teg: need at least one worker"))
	}
	if obj.Teg.NodeTimeout < 0 || obj.Teg.GraphTimeout < 0 {
		reterr = errwrap.Append(reterr, fmt.Errorf("teg: timeouts can't be negative"))
	}
	return reterr
}

// String returns the config as yaml.
func (obj *Config) String() string {
	b, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("<invalid config: %v>", err)
	}
	return string(b)
}
