// Package mmapsource opens a file as a read-only, random-access byte
// source, preferring a memory-mapped view (so reads are pure indexing and
// reentrant, per this module's concurrency model) and falling back to
// plain positioned reads on platforms without a mapping implementation
// here.
package mmapsource

import "io"

// Source is a read-only, random-access byte source with a known length.
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}
