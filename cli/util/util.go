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

// Package util has some CLI related utility code.
package util

import (
	"log"
	"os"

	"github.com/purpleidea/causality/util/errwrap"
)

// Error is a constant error type that implements error.
type Error string

// Error fulfills the error interface of this type.
func (e Error) Error() string { return string(e) }

const (
	// MissingInput is returned when a subcommand needs code to work on.
	MissingInput = Error("missing input")
)

// CliParseError returns a consistent error if we have a CLI parsing issue.
func CliParseError(err error) error {
	return errwrap.Wrapf(err, "cli parse error")
}

// Flags are some constant flags which are used throughout the program.
type Flags struct {
	Debug   bool // add additional log messages
	Verbose bool // add extra log message output
}

// Data is a struct of values that we usually pass to the main CLI function.
type Data struct {
	Program string
	Version string
	Tagline string
	Flags   Flags
	Args    []string // os.Args usually
}

// Logf returns the logger that the commands pass to the library code, which
// has no logger of its own.
func Logf(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		log.Printf(prefix+": "+format, v...)
	}
}

// Hello sets up the logger and says hello if we are being verbose.
func Hello(data *Data) {
	logFlags := log.LstdFlags
	if data.Flags.Debug {
		logFlags = logFlags + log.Lshortfile
	}
	logFlags = logFlags - log.Ldate // remove the date for now
	log.SetFlags(logFlags)
	log.SetOutput(os.Stderr)

	if data.Flags.Verbose {
		program := data.Program
		if program == "" {
			program = "<unknown>"
		}
		log.Printf("this is: %s, version: %s", program, data.Version)
	}
}
