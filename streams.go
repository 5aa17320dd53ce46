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
	"fmt"
	"io"
)

// Stream is a read-only, seekable view over one entity's bytes,
// addressed indirectly through the normal-FAT or mini-FAT depending on
// where the format puts data that size. Reads beyond what the container
// actually backs with allocated sectors return io.EOF rather than
// panicking or reading garbage.
type Stream struct {
	r          *Reader
	chain      []uint32
	size       int64
	sectorSize int64
	absOffset  func(sector uint32) (int64, error)
	pos        int64
	threadSafe bool
}

func newNormalStream(r *Reader, start uint32, size uint64) (*Stream, error) {
	chain, err := r.chainSectors(start)
	if err != nil {
		return nil, err
	}
	sectorSize := int64(r.h.normalSectorSize)
	return &Stream{
		r:          r,
		chain:      chain,
		size:       clampDeclaredLength(r.sink, int64(size), len(chain), sectorSize),
		sectorSize: sectorSize,
		absOffset: func(sector uint32) (int64, error) {
			return r.h.sectorOffset(sector), nil
		},
		threadSafe: r.threadSafe,
	}, nil
}

func newMiniStream(r *Reader, start uint32, size uint64) (*Stream, error) {
	chain, err := r.chainMiniSectors(start)
	if err != nil {
		return nil, err
	}
	sectorSize := int64(r.h.miniSectorSize)
	return &Stream{
		r:          r,
		chain:      chain,
		size:       clampDeclaredLength(r.sink, int64(size), len(chain), sectorSize),
		sectorSize: sectorSize,
		absOffset:  r.miniSectorOffset,
		threadSafe: r.threadSafe,
	}, nil
}

// clampDeclaredLength implements the declared-length policy from
// spec.md 4.4: a declared length within [(chainLen-1)*sectorSize,
// chainLen*sectorSize] is trusted as-is; anything else is out of the
// chain's physical bounds and is clamped to the chain's full capacity,
// with a warning, rather than trusted blindly.
func clampDeclaredLength(sink WarningSink, declared int64, chainLen int, sectorSize int64) int64 {
	max := int64(chainLen) * sectorSize
	min := max - sectorSize
	if min < 0 {
		min = 0
	}
	if declared >= min && declared <= max {
		return declared
	}
	sink.Warn(Warning{CatTruncated, fmt.Sprintf("declared stream length %d exceeds the bounds of its sector chain (%d sectors of %d bytes), clamping to %d", declared, chainLen, sectorSize, max), -1})
	return max
}

// Size is the stream's declared byte length.
func (s *Stream) Size() int64 { return s.size }

// Read implements io.Reader, advancing the stream's shared cursor. Not
// safe to call from more than one goroutine at a time; use Clone to hand
// an independent cursor to another goroutine, checking ThreadSafe first
// if the backing source itself needs external serialization.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// Read1 reads a single run of bytes from the current position, possibly
// fewer than len(p) even without reaching the end of the stream — it
// stops at the end of the current backing sector, mirroring
// the single-syscall-per-call contract the format's reference reader's
// raw stream object exposes.
func (s *Stream) Read1(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	idx := s.pos / s.sectorSize
	if int(idx) >= len(s.chain) {
		return 0, io.EOF
	}
	within := s.pos % s.sectorSize
	abs, err := s.absOffset(s.chain[idx])
	if err != nil {
		return 0, err
	}
	avail := s.sectorSize - within
	remaining := s.size - s.pos
	if avail > remaining {
		avail = remaining
	}
	if int64(len(p)) > avail {
		p = p[:avail]
	}
	n, err := s.r.src.ReadAt(p, abs+within)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadAt implements io.ReaderAt: a stateless positional read, safe for
// concurrent use from multiple goroutines since it touches no mutable
// Stream state.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("cfb: %w", ErrInvalidSeek)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		if pos >= s.size {
			break
		}
		idx := pos / s.sectorSize
		if int(idx) >= len(s.chain) {
			break
		}
		within := pos % s.sectorSize
		abs, err := s.absOffset(s.chain[idx])
		if err != nil {
			return total, err
		}
		avail := s.sectorSize - within
		remaining := s.size - pos
		if avail > remaining {
			avail = remaining
		}
		want := int64(len(p) - total)
		if want > avail {
			want = avail
		}
		n, err := s.r.src.ReadAt(p[total:int64(total)+want], abs+within)
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
		if int64(n) < want {
			break
		}
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// Seek implements io.Seeker.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.size + offset
	default:
		return 0, fmt.Errorf("cfb: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, ErrInvalidSeek
	}
	s.pos = abs
	return abs, nil
}

// Tell returns the current cursor position, equivalent to
// Seek(0, io.SeekCurrent) without the error return.
func (s *Stream) Tell() int64 { return s.pos }

// Close releases the stream. The stream holds no resources of its own
// beyond its sector list — the backing source belongs to the Reader — so
// this only exists to satisfy callers that expect an io.ReadCloser.
func (s *Stream) Close() error { return nil }

// Clone returns an independent Stream over the same entity with its own
// cursor, so it can be handed to a different goroutine: the chain and
// absOffset func are immutable and shared, only pos is per-instance. The
// clone is only safe to actually read from concurrently with other
// clones if ThreadSafe reports true.
func (s *Stream) Clone() *Stream {
	clone := *s
	clone.pos = 0
	return &clone
}

// ThreadSafe reports whether the backing source serves positioned reads
// directly with no shared cursor (the file opened by Open, or a source
// given to OpenReader that already implements io.ReaderAt) and so can
// serve concurrent reads from this
// Stream and its Clones without external locking. It reports false when
// the source is a plain io.ReadSeeker that cfb had to wrap in a
// seek-then-read adapter: that adapter serializes access internally, but
// concurrent callers will contend on its lock rather than reading in
// parallel.
func (s *Stream) ThreadSafe() bool { return s.threadSafe }
