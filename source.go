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
	"sync"

	"github.com/xaionaro-go/bytesextra"

	"github.com/oleio/cfb/internal/mmapsource"
)

// sizer is satisfied by an io.ReadSeeker that also knows its own length
// without a Seek round-trip; bytes.Reader and os.File both happen to
// implement it, but callers aren't required to.
type sizer interface {
	Size() int64
}

// Option configures how a container is opened.
type Option func(*options)

type options struct {
	sink WarningSink
}

// WithWarningSink routes every non-fatal diagnostic raised while parsing
// the container to sink instead of the reader's own accumulating sink,
// letting a caller log warnings as they're discovered rather than
// inspecting them after the fact via Reader.Warnings.
func WithWarningSink(sink WarningSink) Option {
	return func(o *options) { o.sink = sink }
}

// Open opens the compound document at path, preferring a memory-mapped
// view of the file (spec.md's "preferred; all reads are pure indexing
// and are reentrant" backing source).
func Open(path string, opts ...Option) (*Reader, error) {
	src, err := mmapsource.Open(path)
	if err != nil {
		return nil, err
	}
	o := resolveOptions(opts)
	r, err := build(src, src.Size(), src, o.sink, true)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// OpenBytes opens an in-memory compound document, useful for containers
// extracted from a larger archive or fetched over the network. The byte
// slice is wrapped in a bytesextra.ReadWriteSeeker so callers get the
// same io.ReadSeeker surface an on-disk source would.
func OpenBytes(b []byte, opts ...Option) (*Reader, error) {
	rws := bytesextra.NewReadWriteSeeker(b)
	return OpenReader(rws, opts...)
}

// OpenReader opens a compound document from an arbitrary io.ReadSeeker.
// If rs also implements io.ReaderAt its ReadAt is used directly, and the
// resulting Streams report ThreadSafe true; otherwise reads are routed
// through a mutex-serialized Seek+Read adapter, and Streams report
// ThreadSafe false since concurrent callers will contend on that lock
// rather than reading in parallel.
func OpenReader(rs io.ReadSeeker, opts ...Option) (*Reader, error) {
	size, err := sourceSize(rs)
	if err != nil {
		return nil, err
	}
	var src io.ReaderAt
	threadSafe := true
	if ra, ok := rs.(io.ReaderAt); ok {
		src = ra
	} else {
		src = &seekerReaderAt{rs: rs}
		threadSafe = false
	}
	o := resolveOptions(opts)
	closer, _ := rs.(io.Closer)
	return build(src, size, closer, o.sink, threadSafe)
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func sourceSize(rs io.ReadSeeker) (int64, error) {
	if sz, ok := rs.(sizer); ok {
		return sz.Size(), nil
	}
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("cfb: %w", err)
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("cfb: %w", err)
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("cfb: %w", err)
	}
	return end, nil
}

// seekerReaderAt adapts a plain io.ReadSeeker to io.ReaderAt by
// serialising access with a mutex; used only when the caller's source
// doesn't already support positioned reads.
type seekerReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (s *seekerReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.rs, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}
