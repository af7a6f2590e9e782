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

package teg

// deque is a double ended queue of ready nodes. Each worker has one. The owner
// takes from the front and thieves take from the back. It is only touched by
// the scheduler goroutine, so it has no lock.
type deque struct {
	items []*Node
}

// PushFront adds a node that the owner will run next.
func (obj *deque) PushFront(node *Node) {
	obj.items = append([]*Node{node}, obj.items...)
}

// PushBack adds a node that the owner will run last.
func (obj *deque) PushBack(node *Node) {
	obj.items = append(obj.items, node)
}

// PopFront takes the next node for the owner.
func (obj *deque) PopFront() (*Node, bool) {
	if len(obj.items) == 0 {
		return nil, false
	}
	node := obj.items[0]
	obj.items[0] = nil
	obj.items = obj.items[1:]
	return node, true
}

// PopBack takes a node from the far end, for a thief.
func (obj *deque) PopBack() (*Node, bool) {
	n := len(obj.items)
	if n == 0 {
		return nil, false
	}
	node := obj.items[n-1]
	obj.items[n-1] = nil
	obj.items = obj.items[:n-1]
	return node, true
}

// Len returns the number of queued nodes.
func (obj *deque) Len() int {
	return len(obj.items)
}

// Clear drops every queued node.
func (obj *deque) Clear() {
	obj.items = nil
}
