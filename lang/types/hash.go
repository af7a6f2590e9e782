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

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// ResourceID returns the deterministic id of the resource created as the seq'th
// allocation of an execution that was started with seed.
func ResourceID(seed string, seq uint64, v Value) string {
	h := sha256.New()
	h.Write([]byte("resource\x00"))
	h.Write([]byte(seed))
	h.Write([]byte{0})
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	h.Write(b[:])
	h.Write([]byte(v.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Nullifier returns the nullifier recorded when the resource with this id is
// consumed. A nullifier can be published without revealing the resource.
func Nullifier(id string) string {
	sum := sha256.Sum256([]byte("nullifier\x00" + id))
	return hex.EncodeToString(sum[:])
}
