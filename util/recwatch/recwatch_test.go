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

package recwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher0(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "main.lisp")
	if err := os.WriteFile(name, []byte("1"), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}
	obj := &Watcher{
		Path:  name,
		Debug: testing.Verbose(),
		Logf: func(format string, v ...interface{}) {
			t.Logf("recwatch: "+format, v...)
		},
	}
	if err := obj.Init(); err != nil {
		t.Errorf("init failed with: %+v", err)
		return
	}
	defer obj.Close()

	// this one must be ignored
	if err := os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}
	if err := os.WriteFile(name, []byte("2"), 0600); err != nil {
		t.Errorf("could not write: %+v", err)
		return
	}

	select {
	case event, ok := <-obj.Events():
		if !ok {
			t.Errorf("events closed early")
			return
		}
		if event.Error != nil {
			t.Errorf("watch failed with: %+v", event.Error)
			return
		}
		if filepath.Base(event.Body.Name) != "main.lisp" {
			t.Errorf("unexpected event: %s", event.Body)
		}
	case <-time.After(10 * time.Second):
		t.Errorf("timed out waiting for an event")
	}
}
