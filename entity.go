// Copyright 2013 Richard Lehane. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfb

import (
	"strings"
	"time"
)

// Entity is a single node in a compound document's directory tree: a
// storage (folder-like container of other entities) or a stream
// (byte-addressable leaf). The root storage is itself an Entity,
// returned by Reader.Root.
type Entity struct {
	index int
	name  string
	kind  Kind
	clsid [16]byte

	stateBits uint32
	created   time.Time
	modified  time.Time

	startSector uint32
	size        uint64

	leftSibID, rightSibID, childID uint32

	parent   *Entity
	children []*Entity
	childIdx map[string]*Entity
}

// Name is the entity's directory name, decoded from UTF-16LE. The root
// storage's conventional name is "Root Entry".
func (e *Entity) Name() string { return e.name }

// Kind reports whether this entity is a storage, stream, or the root.
func (e *Entity) Kind() Kind { return e.kind }

// IsDir reports whether the entity is a storage (including the root).
func (e *Entity) IsDir() bool { return e.kind == KindStorage || e.kind == KindRoot }

// IsFile reports whether the entity is a stream.
func (e *Entity) IsFile() bool { return e.kind == KindStream }

// Size is the stream's declared byte length. Zero for storages other
// than the root, whose size is that of the mini-stream container.
func (e *Entity) Size() uint64 { return e.size }

// CLSID is the entity's associated class identifier, or the zero value
// if none was set.
func (e *Entity) CLSID() [16]byte { return e.clsid }

// StateBits is the storage-defined user flags field.
func (e *Entity) StateBits() uint32 { return e.stateBits }

// Created is the entity's creation time, or the zero Time if the
// container didn't record one.
func (e *Entity) Created() time.Time { return e.created }

// Modified is the entity's last-modified time, or the zero Time if the
// container didn't record one.
func (e *Entity) Modified() time.Time { return e.modified }

// Parent is the containing storage, or nil for the root.
func (e *Entity) Parent() *Entity { return e.parent }

// Children returns the entity's direct children in directory order
// (in-order traversal of the on-disk red-black tree, which sorts by
// name length then ordinal). Empty for streams.
func (e *Entity) Children() []*Entity { return e.children }

// Child looks up an immediate child by name, case-insensitively, as the
// format's own collation requires.
func (e *Entity) Child(name string) (*Entity, bool) {
	c, ok := e.childIdx[foldName(name)]
	return c, ok
}

// ChildAt returns the i'th child in directory order, or nil if i is out
// of range.
func (e *Entity) ChildAt(i int) *Entity {
	if i < 0 || i >= len(e.children) {
		return nil
	}
	return e.children[i]
}

// Path returns the entity's `/`-delimited path from the root, exclusive
// of the root's own name.
func (e *Entity) Path() string {
	var parts []string
	for cur := e; cur != nil && cur.parent != nil; cur = cur.parent {
		parts = append([]string{cur.name}, parts...)
	}
	return strings.Join(parts, "/")
}

func foldName(s string) string { return strings.ToUpper(s) }
