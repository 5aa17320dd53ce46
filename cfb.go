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

// Package cfb implements a read-only reader for the OLE Compound Document
// / Advanced Authoring Format container (also known as OLE2, Structured
// Storage, or the Compound File Binary Format) — the "file-system in a
// file" used by legacy MS Office documents, MSI installers and similar
// artefacts.
//
// Example:
//
//	r, err := cfb.Open("test.doc")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//	for _, e := range r.Root().Children() {
//		fmt.Println(e.Name(), e.Size())
//	}
//	s, err := r.OpenPath("WordDocument")
package cfb

import (
	"fmt"
	"io"
	"strings"
)

// Reader is the lifecycle owner for an open compound document: it holds
// the three allocation tables and the entity tree, all of which are
// built once in Open/OpenReader and never mutated afterwards.
type Reader struct {
	src        io.ReaderAt
	size       int64
	closer     io.Closer
	sink       WarningSink
	owned      *multiSink
	threadSafe bool

	h               *header
	maxSector       uint32
	fatSectors      []uint32 // sector IDs holding the normal-FAT, in order
	normalFAT       []uint32
	miniFAT         []uint32
	miniStreamChain []uint32 // normal sectors backing the mini-stream container

	entities []*Entity
	root     *Entity

	closed bool
}

// Root returns the root storage entity of the container.
func (r *Reader) Root() *Entity { return r.root }

// Warnings returns every non-fatal diagnostic raised while parsing the
// container, combined into a single error via hashicorp/go-multierror, or
// nil if the caller supplied its own WarningSink (in which case nothing
// is accumulated here) or no warnings were raised.
func (r *Reader) Warnings() error {
	if r.owned == nil || r.owned.errs == nil {
		return nil
	}
	return r.owned.errs.ErrorOrNil()
}

// Close releases the backing source. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Open returns a Stream for the given entity, which must be a stream
// (Entity.IsFile true). Each call returns an independent Stream with its
// own cursor.
func (r *Reader) Open(e *Entity) (*Stream, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if e.kind != KindStream {
		return nil, fmt.Errorf("%w: %q", ErrNotStream, e.Name())
	}
	if e.size < uint64(r.h.miniSizeLimit) {
		if r.miniFAT == nil || r.miniStreamChain == nil {
			// An empty stream has no sectors anywhere; it doesn't need the
			// missing mini-FAT to be served.
			if e.size == 0 && (e.startSector == EndOfChain || e.startSector == FreeSector) {
				return newMiniStream(r, e.startSector, 0)
			}
			return nil, fmt.Errorf("%w: %q", ErrNoMiniFat, e.Name())
		}
		return newMiniStream(r, e.startSector, e.size)
	}
	return newNormalStream(r, e.startSector, e.size)
}

// OpenPath resolves a `/`-delimited, case-insensitive path from the root
// storage and opens the stream it names.
func (r *Reader) OpenPath(path string) (*Stream, error) {
	e, err := r.entityByPath(path)
	if err != nil {
		return nil, err
	}
	return r.Open(e)
}

// entityByPath performs the case-insensitive component resolution
// described in spec.md 4.6.
func (r *Reader) entityByPath(path string) (*Entity, error) {
	cur := r.root
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		child, ok := cur.Child(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		cur = child
	}
	return cur, nil
}

// readSectorBytes reads exactly one normal sector's worth of bytes. A
// sector whose start offset is already beyond the backing source's
// physical end fails fatally with ErrBadSector — there's nothing there to
// read, declared or not. A sector that starts within the source but whose
// tail runs past physical EOF (the last sector of a truncated file) is
// tolerated: the remainder is zero-filled and a Truncated warning is
// raised, per spec.md's "parser never trusts a declared count" rule of
// thumb.
func (r *Reader) readSectorBytes(sector uint32) ([]byte, error) {
	buf := make([]byte, r.h.normalSectorSize)
	off := r.h.sectorOffset(sector)
	if off >= r.size {
		return nil, fmt.Errorf("%w: sector %d starts at offset %d, at or beyond the %d-byte source", ErrBadSector, sector, off, r.size)
	}
	n, err := r.src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("cfb: reading sector %d: %w", sector, err)
	}
	if n < len(buf) {
		r.sink.Warn(Warning{CatTruncated, fmt.Sprintf("sector %d truncated by backing source (%d of %d bytes)", sector, n, len(buf)), -1})
	}
	return buf, nil
}

// readSectorUint32s reads a sector and decodes it as a slice of
// little-endian uint32s (sectorSize/4 of them) — the shape every one of
// the three allocation tables is stored in.
func (r *Reader) readSectorUint32s(sector uint32) ([]uint32, error) {
	buf, err := r.readSectorBytes(sector)
	if err != nil {
		return nil, err
	}
	return decodeUint32LE(buf), nil
}

func decodeUint32LE(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
	}
	return out
}

// build runs the full load pipeline described in spec.md section 2 over
// an already-resolved byte source, in this order: header, master-FAT,
// normal-FAT, the directory tree, then the mini-FAT, which comes last
// because the mini-stream container is located through the root entry.
func build(src io.ReaderAt, size int64, closer io.Closer, sink WarningSink, threadSafe bool) (*Reader, error) {
	r := &Reader{src: src, size: size, closer: closer, threadSafe: threadSafe}
	if sink == nil {
		owned := &multiSink{}
		r.sink = owned
		r.owned = owned
	} else {
		r.sink = sink
	}

	headerBuf := make([]byte, 512)
	n, err := src.ReadAt(headerBuf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("cfb: reading header: %w", err)
	}
	if n < 512 {
		return nil, fmt.Errorf("cfb: file shorter than the compound document header (%d bytes)", n)
	}
	h, err := parseHeader(headerBuf, r.sink)
	if err != nil {
		return nil, err
	}
	r.h = h
	if size > h.headerRegionSize() {
		r.maxSector = uint32((size - h.headerRegionSize()) / int64(h.normalSectorSize))
	}

	visited, err := r.loadMasterFAT()
	if err != nil {
		return nil, err
	}
	if err := r.loadNormalFAT(visited); err != nil {
		return nil, err
	}
	if err := r.loadDirectory(); err != nil {
		return nil, err
	}
	if err := r.loadMiniFAT(); err != nil {
		return nil, err
	}
	return r, nil
}
