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

package util

import (
	"errors"
	"reflect"
	"testing"
)

func TestStrInList0(t *testing.T) {
	if !StrInList("read:balance", []string{"write:*", "read:balance"}) {
		t.Errorf("expected to find the string")
	}
	if StrInList("read", nil) {
		t.Errorf("found a string in an empty list")
	}
}

func TestStrRemoveDuplicatesInList0(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a"}
	exp := []string{"b", "a", "c"}
	if out := StrRemoveDuplicatesInList(in); !reflect.DeepEqual(out, exp) {
		t.Errorf("got: %v, exp: %v", out, exp)
	}
}

func TestSortedKeys0(t *testing.T) {
	m := map[string]int{"z": 1, "a": 2, "m": 3}
	exp := []string{"a", "m", "z"}
	if out := SortedKeys(m); !reflect.DeepEqual(out, exp) {
		t.Errorf("got: %v, exp: %v", out, exp)
	}
	if out := SortedKeys(map[string]bool{}); len(out) != 0 {
		t.Errorf("expected no keys, got: %v", out)
	}
}

func TestSortedStrSliceCompare0(t *testing.T) {
	if err := SortedStrSliceCompare([]string{"b", "a"}, []string{"a", "b"}); err != nil {
		t.Errorf("expected equal slices: %+v", err)
	}
	if err := SortedStrSliceCompare([]string{"a"}, []string{"a", "b"}); err == nil {
		t.Errorf("expected a length error")
	}
	if err := SortedStrSliceCompare([]string{"a", "c"}, []string{"a", "b"}); err == nil {
		t.Errorf("expected an element error")
	}
}

func TestError0(t *testing.T) {
	const errFoo = Error("foo")
	err := errors.Join(errFoo)
	if !errors.Is(err, errFoo) {
		t.Errorf("expected the constant error to match")
	}
	if errFoo.Error() != "foo" {
		t.Errorf("unexpected message: %s", errFoo)
	}
}
