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
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/boljen/go-bitmap"
)

// Kind identifies what a directory entry represents.
type Kind byte

const (
	KindInvalid   Kind = 0
	KindStorage   Kind = 1
	KindStream    Kind = 2
	KindLockBytes Kind = 3
	KindProperty  Kind = 4
	KindRoot      Kind = 5
)

const noChild = 0xFFFFFFFF

// filetimeUnixDelta is the seconds between the FILETIME epoch
// (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeUnixDelta = 11644473600

// filetimeToTime converts a count of 100-nanosecond ticks since
// 1601-01-01 UTC into a time.Time. Zero means "not recorded" and maps to
// the zero Time. The split into seconds and remainder ticks matters: the
// whole tick count expressed in nanoseconds overflows int64 for any date
// after 1893, so it can't go through a time.Duration.
func filetimeToTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	secs := int64(v/10000000) - filetimeUnixDelta
	nsecs := int64(v%10000000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// loadDirectory walks the directory chain, decodes every 128-byte entry,
// and links them into a tree rooted at entry 0 (the root storage, by
// format convention). Sibling/child pointers are validated against a
// single bitmap sized to the whole entry count, so a loop anywhere in
// the tree — not just within one storage's immediate children — is
// caught, rather than only within whichever storage happens to be
// walked first.
func (r *Reader) loadDirectory() error {
	sectors, err := r.chainSectors(r.h.dirFirstSector)
	if err != nil {
		return err
	}
	var raw []byte
	for _, s := range sectors {
		buf, err := r.readSectorBytes(s)
		if err != nil {
			return err
		}
		raw = append(raw, buf...)
	}

	// entities is indexed by raw record position — sibling/child pointers
	// in the on-disk format are record indices, not positions in some
	// compacted list, so an Invalid (unused) slot leaves a nil hole here
	// rather than shifting every later entry's index down.
	count := len(raw) / int(dirEntrySize)
	entities := make([]*Entity, count)
	for i := 0; i < count; i++ {
		rec := raw[i*int(dirEntrySize) : (i+1)*int(dirEntrySize)]
		e, err := decodeEntry(rec, i, r.h.normalSectorSize == 512, r.sink)
		if err != nil {
			return err
		}
		entities[i] = e // nil for an unused slot
	}
	if len(entities) == 0 || entities[0] == nil {
		return fmt.Errorf("cfb: empty directory")
	}

	visited := bitmap.New(len(entities) + 1)
	// Entry 0 is the tree's root, never anyone's sibling or child: mark it
	// visited up front so a sibling pointer back to 0 is caught as a loop
	// instead of silently adopting the root into its own subtree.
	visited.Set(0, true)
	root := entities[0]
	if err := r.linkChildren(root, entities, visited); err != nil {
		return err
	}

	live := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		if e != nil {
			live = append(live, e)
		}
	}
	r.entities = live
	r.root = root
	return nil
}

// linkChildren resolves a storage's childID (the root of that storage's
// red-black sibling tree) into an ordered Children slice, recursing into
// sub-storages. The bitmap is shared across the whole recursion so a
// directory entry reachable from two different parents — a cross-level
// loop — is flagged exactly like an in-storage loop would be.
func (r *Reader) linkChildren(parent *Entity, entities []*Entity, visited bitmap.Bitmap) error {
	var walk func(idx uint32) ([]*Entity, error)
	walk = func(idx uint32) ([]*Entity, error) {
		if idx == noChild {
			return nil, nil
		}
		if int(idx) >= len(entities) || entities[idx] == nil {
			r.sink.Warn(Warning{CatDirIndex, fmt.Sprintf("sibling pointer %d out of range or unused", idx), -1})
			return nil, nil
		}
		if visited.Get(int(idx)) {
			return nil, fmt.Errorf("%w: entry %d reached twice", ErrDirectoryLoop, idx)
		}
		visited.Set(int(idx), true)

		e := entities[idx]
		left, err := walk(e.leftSibID)
		if err != nil {
			return nil, err
		}
		right, err := walk(e.rightSibID)
		if err != nil {
			return nil, err
		}
		out := make([]*Entity, 0, len(left)+len(right)+1)
		out = append(out, left...)
		out = append(out, e)
		out = append(out, right...)
		return out, nil
	}

	kids, err := walk(parent.childID)
	if err != nil {
		return err
	}
	parent.children = kids
	parent.childIdx = make(map[string]*Entity, len(kids))
	for _, c := range kids {
		c.parent = parent
		parent.childIdx[foldName(c.name)] = c
		if c.kind == KindStorage {
			if err := r.linkChildren(c, entities, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeEntry decodes and validates a single 128-byte directory record
// per spec.md 4.6. Validation runs even for entries that end up Invalid
// (and therefore dropped, returning a nil *Entity) since the format
// requires the warnings to be raised regardless of whether the entry
// survives into the tree.
func decodeEntry(rec []byte, idx int, shortSectors bool, sink WarningSink) (*Entity, error) {
	nameLen := binary.LittleEndian.Uint16(rec[64:66])
	rawKind := Kind(rec[66])

	// Entry 0 is always the root, even if its on-disk kind byte says
	// otherwise — loadDirectory needs a non-nil entry 0 to hang the tree
	// from, so it is never dropped here the way other Invalid-kind slots
	// are.
	kind := rawKind
	if idx == 0 {
		if rawKind != KindRoot {
			sink.Warn(Warning{CatDirType, fmt.Sprintf("entry 0 has kind %d, not Root, forcing Root", rawKind), idx})
		}
		kind = KindRoot
	} else {
		switch rawKind {
		case KindStorage, KindStream, KindInvalid:
			kind = rawKind
		default:
			// Kinds 3 ("LockBytes") and 4 ("Property"), and anything
			// outside the format's defined set, are legal byte values
			// but spec.md 3's data model treats all of them as Invalid:
			// an unused slot, not a disguised stream or storage.
			sink.Warn(Warning{CatDirType, fmt.Sprintf("entry kind %d is not Stream/Storage/Invalid, forcing Invalid", rawKind), idx})
			kind = KindInvalid
		}
	}

	leftSib := binary.LittleEndian.Uint32(rec[68:72])
	rightSib := binary.LittleEndian.Uint32(rec[72:76])
	childID := binary.LittleEndian.Uint32(rec[76:80])
	var clsid [16]byte
	copy(clsid[:], rec[80:96])
	stateBits := binary.LittleEndian.Uint32(rec[96:100])
	createdRaw := binary.LittleEndian.Uint64(rec[100:108])
	modifiedRaw := binary.LittleEndian.Uint64(rec[108:116])
	startSector := binary.LittleEndian.Uint32(rec[116:120])
	sizeLow := binary.LittleEndian.Uint32(rec[120:124])
	sizeHigh := binary.LittleEndian.Uint32(rec[124:128])

	// Name: UTF-16LE, truncated to the 64-byte field if name_len lies
	// about its own length, with a NUL-terminator search within the
	// declared length and the universal name_len == (utf16_chars+1)*2
	// check that applies to every kind, not just the ones that keep a
	// name.
	var name string
	limit := int(nameLen)
	if limit > 64 {
		sink.Warn(Warning{CatDirName, fmt.Sprintf("name length %d exceeds the 64-byte field", nameLen), idx})
		limit = 64
	}
	if limit > 0 {
		nulAt := -1
		for i := 0; i+1 < limit; i += 2 {
			if rec[i] == 0 && rec[i+1] == 0 {
				nulAt = i
				break
			}
		}
		decodeLimit := limit
		if nulAt == -1 {
			sink.Warn(Warning{CatDirName, fmt.Sprintf("name has no NUL terminator within its declared %d-byte length, truncating", nameLen), idx})
		} else {
			decodeLimit = nulAt
		}
		u16 := make([]uint16, decodeLimit/2)
		for i := range u16 {
			u16[i] = binary.LittleEndian.Uint16(rec[i*2 : i*2+2])
		}
		name = string(utf16.Decode(u16))

		if expected := uint16((len(u16) + 1) * 2); nameLen != expected {
			sink.Warn(Warning{CatDirName, fmt.Sprintf("name length field %d does not equal (utf16 length + 1) * 2 = %d", nameLen, expected), idx})
		}
	}

	if kind == KindInvalid {
		if nameLen != 0 {
			sink.Warn(Warning{CatDirName, "unused entry has a non-zero name length", idx})
		}
		if name != "" {
			sink.Warn(Warning{CatDirName, "unused entry has a non-empty name", idx})
		}
		if stateBits != 0 {
			sink.Warn(Warning{CatDirEntry, "unused entry has non-zero user flags", idx})
		}
	}

	if kind == KindInvalid || kind == KindRoot {
		if leftSib != noStream {
			sink.Warn(Warning{CatDirIndex, "entry has a non-sentinel left sibling index", idx})
			leftSib = noStream
		}
		if rightSib != noStream {
			sink.Warn(Warning{CatDirIndex, "entry has a non-sentinel right sibling index", idx})
			rightSib = noStream
		}
	}

	if kind == KindInvalid || kind == KindStream {
		if childID != noStream {
			sink.Warn(Warning{CatDirIndex, "entry has a non-sentinel child index", idx})
			childID = noStream
		}
		if !allZero(clsid[:]) {
			sink.Warn(Warning{CatDirEntry, "entry has a non-zero CLSID", idx})
			clsid = [16]byte{}
		}
		if createdRaw != 0 || modifiedRaw != 0 {
			sink.Warn(Warning{CatDirTime, "entry has a non-zero timestamp", idx})
			createdRaw, modifiedRaw = 0, 0
		}
	}

	if kind == KindInvalid || kind == KindStorage {
		if startSector != 0 {
			sink.Warn(Warning{CatDirIndex, "entry has a non-zero start sector", idx})
			startSector = 0
		}
		if sizeLow != 0 || sizeHigh != 0 {
			sink.Warn(Warning{CatDirSize, "entry has a non-zero size field", idx})
			sizeLow, sizeHigh = 0, 0
		}
	}

	if shortSectors {
		if sizeHigh != 0 {
			sink.Warn(Warning{CatDirSize, "size high word is non-zero in a 512-byte-sector container", idx})
			sizeHigh = 0
		}
		if sizeLow >= 1<<31 {
			sink.Warn(Warning{CatDirSize, "size low word is >= 2^31 in a 512-byte-sector container", idx})
		}
	}

	if kind == KindInvalid {
		return nil, nil
	}

	e := &Entity{
		index:       idx,
		name:        name,
		kind:        kind,
		clsid:       clsid,
		stateBits:   stateBits,
		leftSibID:   leftSib,
		rightSibID:  rightSib,
		childID:     childID,
		startSector: startSector,
		size:        uint64(sizeHigh)<<32 | uint64(sizeLow),
	}
	e.created = filetimeToTime(createdRaw)
	// The format's best-known reference decoder has a longstanding bug
	// that derives the modified timestamp from the created field; this
	// one decodes the field that is actually named "modified".
	if modifiedRaw != 0 {
		e.modified = filetimeToTime(modifiedRaw)
	}

	return e, nil
}
