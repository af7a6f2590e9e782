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

// Package recwatch watches a single file for changes. It watches the directory
// that holds the file, so that it keeps working when an editor replaces the
// file instead of writing to it.
package recwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/purpleidea/causality/util/errwrap"

	"github.com/fsnotify/fsnotify"
)

// Event is a change to the watched file, or an error.
type Event struct {
	Error error
	Body  *fsnotify.Event
}

// Watcher watches one file. Run Init on it, read from Events, and then Close.
type Watcher struct {
	Path string

	Debug bool
	Logf  func(format string, v ...interface{})

	safename string
	watcher  *fsnotify.Watcher
	events   chan Event
	exit     chan struct{}
	wg       *sync.WaitGroup
}

// NewWatcher creates and initializes a watcher.
func NewWatcher(path string) (*Watcher, error) {
	obj := &Watcher{Path: path}
	return obj, obj.Init()
}

// Init starts watching.
func (obj *Watcher) Init() error {
	if obj.Logf == nil {
		obj.Logf = func(format string, v ...interface{}) {}
	}
	abs, err := filepath.Abs(obj.Path)
	if err != nil {
		return errwrap.Wrapf(err, "bad path")
	}
	obj.safename = filepath.Clean(abs)
	obj.events = make(chan Event)
	obj.exit = make(chan struct{})
	obj.wg = &sync.WaitGroup{}

	if obj.watcher, err = fsnotify.NewWatcher(); err != nil {
		return errwrap.Wrapf(err, "can't create watcher")
	}
	dir := filepath.Dir(obj.safename)
	if err := obj.watcher.Add(dir); err != nil {
		obj.watcher.Close()
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied adding a watch: %v", err)
		}
		return errwrap.Wrapf(err, "can't watch `%s`", dir)
	}
	if obj.Debug {
		obj.Logf("watching: %s", dir)
	}

	obj.wg.Add(1)
	go func() {
		defer obj.wg.Done()
		defer close(obj.events)
		obj.watch()
	}()
	return nil
}

func (obj *Watcher) watch() {
	send := func(e Event) bool {
		select {
		case obj.events <- e:
			return true
		case <-obj.exit:
			return false
		}
	}
	for {
		select {
		case event, ok := <-obj.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != obj.safename {
				continue // something else in the same dir
			}
			if obj.Debug {
				obj.Logf("event(%s): %v", event.Name, event.Op)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue // chmod
			}
			if !send(Event{Body: &event}) {
				return
			}

		case err, ok := <-obj.watcher.Errors:
			if !ok {
				return
			}
			if !send(Event{Error: errwrap.Wrapf(err, "unknown watcher error")}) {
				return
			}

		case <-obj.exit:
			return
		}
	}
}

// Events returns the channel of changes. It closes after Close is called.
func (obj *Watcher) Events() <-chan Event {
	return obj.events
}

// Close stops watching. It waits for the event loop to exit.
func (obj *Watcher) Close() error {
	close(obj.exit)
	err := obj.watcher.Close()
	obj.wg.Wait()
	return err
}
