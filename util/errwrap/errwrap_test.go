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

package errwrap

import (
	"fmt"
	"testing"
)

func TestWrapfErr1(t *testing.T) {
	if err := Wrapf(nil, "whatever: %d", 42); err != nil {
		t.Errorf("expected nil result")
	}
}

func TestAppendErr1(t *testing.T) {
	if err := Append(nil, nil); err != nil {
		t.Errorf("expected nil result")
	}
	reterr := fmt.Errorf("reterr")
	if err := Append(reterr, nil); err != reterr {
		t.Errorf("expected reterr")
	}
	if err := Append(nil, reterr); err != reterr {
		t.Errorf("expected reterr")
	}
}

func TestErrors1(t *testing.T) {
	if l := len(Errors(nil)); l != 0 {
		t.Errorf("expected no errors, got: %d", l)
	}

	var reterr error
	for i := 0; i < 3; i++ {
		reterr = Append(reterr, fmt.Errorf("error %d", i))
	}
	// appending an aggregate onto an aggregate should still be flat
	reterr = Append(reterr, Append(fmt.Errorf("a"), fmt.Errorf("b")))

	errs := Errors(reterr)
	if l := len(errs); l != 5 {
		t.Errorf("expected 5 errors, got: %d", l)
		return
	}
	if s := errs[4].Error(); s != "b" {
		t.Errorf("unexpected last error: %s", s)
	}
}

func TestString1(t *testing.T) {
	var err error
	if String(err) != "" {
		t.Errorf("expected empty result")
	}

	msg := "this is an error"
	if err := fmt.Errorf("%s", msg); String(err) != msg {
		t.Errorf("expected different result")
	}
}
