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

// Package disjoint implements a disjoint-set (union-find) structure. It is used
// by the type checker to track which unification variables have been joined,
// and which concrete type (if any) each of those sets has been solved to.
//
// Elements are created with NewElem. Union joins two sets, and Find returns the
// representative element of a set. The representative is stable as long as the
// set is not joined with another one. Data stored on the representative is the
// data for the whole set, which is what Merge maintains.
//
// Nothing in here is thread-safe. Callers that share elements between
// goroutines must synchronize access themselves.
package disjoint

// NewElem creates a new set containing a single element and returns it.
func NewElem[T any]() *Elem[T] {
	obj := &Elem[T]{
		size: 1,
	}
	obj.parent = obj // a root points at itself
	return obj
}

// Elem is a member of a set. Only the Data of the representative element is
// meaningful for the set as a whole.
type Elem[T any] struct {
	// Data is some user data stored with this element.
	Data T

	parent *Elem[T]

	// size is the number of elements in the tree rooted here. It is only
	// kept up to date on roots, and is used for union by size.
	size int
}

// Find returns the representative element of the set that this element is in.
func (obj *Elem[T]) Find() *Elem[T] {
	root := obj
	for root != root.parent {
		root = root.parent
	}
	// full path compression on a second pass
	for obj != root {
		next := obj.parent
		obj.parent = root
		obj = next
	}
	return root
}

// Union joins the sets of the two elements. The larger tree keeps its root. If
// the elements are already in the same set, then nothing changes.
func (obj *Elem[T]) Union(elem *Elem[T]) {
	a, b := obj.Find(), elem.Find()
	if a == b {
		return
	}
	if a.size < b.size {
		a, b = b, a
	}
	b.parent = a
	a.size += b.size
}

// Size returns the number of elements in the set that this element is in.
func (obj *Elem[T]) Size() int {
	return obj.Find().size
}

// IsConnected returns true if the two elements are part of the same set.
func IsConnected[T any](elem1, elem2 *Elem[T]) bool {
	return elem1.Find() == elem2.Find()
}

// Merge joins the sets of the two elements after running the merge function on
// the data of both representatives. The result is stored on the new
// representative. If the merge function errors, the sets are left untouched.
func Merge[T any](elem1, elem2 *Elem[T], merge func(T, T) (T, error)) error {
	a, b := elem1.Find(), elem2.Find()
	data, err := merge(a.Data, b.Data)
	if err != nil {
		return err
	}
	a.Union(b)
	a.Find().Data = data
	return nil
}
