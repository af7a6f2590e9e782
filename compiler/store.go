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

package compiler

import (
	"os"
	"path"
	"sync"

	"github.com/purpleidea/causality/util/errwrap"

	"github.com/spf13/afero"
)

// Store is a cache of artifacts, keyed by their id.
type Store interface {
	// Store adds the artifact, replacing any with the same id.
	Store(id string, a *Artifact) error

	// Get returns the artifact if it is present.
	Get(id string) (*Artifact, bool)

	// Evict removes the artifact. It is not an error if it is missing.
	Evict(id string) error
}

// MemStore keeps artifacts in memory. It is safe for concurrent use.
type MemStore struct {
	mutex     *sync.Mutex
	artifacts map[string]*Artifact
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		mutex:     &sync.Mutex{},
		artifacts: make(map[string]*Artifact),
	}
}

// Store adds the artifact.
func (obj *MemStore) Store(id string, a *Artifact) error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.artifacts[id] = a
	return nil
}

// Get returns the artifact if it is present.
func (obj *MemStore) Get(id string) (*Artifact, bool) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	a, exists := obj.artifacts[id]
	return a, exists
}

// Evict removes the artifact.
func (obj *MemStore) Evict(id string) error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	delete(obj.artifacts, id)
	return nil
}

// FsStore keeps each artifact as a file named by its id, in a directory of an
// afero filesystem.
type FsStore struct {
	Fs  afero.Fs
	Dir string
}

func (obj *FsStore) path(id string) string {
	return path.Join(obj.Dir, id+".json")
}

// Store writes the artifact.
func (obj *FsStore) Store(id string, a *Artifact) error {
	b, err := a.Encode()
	if err != nil {
		return errwrap.Wrapf(err, "can't encode artifact")
	}
	if err := obj.Fs.MkdirAll(obj.Dir, 0755); err != nil {
		return errwrap.Wrapf(err, "can't make store dir")
	}
	return afero.WriteFile(obj.Fs, obj.path(id), b, 0644)
}

// Get reads the artifact. A file that can't be decoded counts as missing.
func (obj *FsStore) Get(id string) (*Artifact, bool) {
	b, err := afero.ReadFile(obj.Fs, obj.path(id))
	if err != nil {
		return nil, false
	}
	a, err := Decode(b)
	if err != nil || a.ID != id {
		return nil, false
	}
	return a, true
}

// Evict removes the artifact file.
func (obj *FsStore) Evict(id string) error {
	err := obj.Fs.Remove(obj.path(id))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}
