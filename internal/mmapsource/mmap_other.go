//go:build !linux && !darwin && !windows
// +build !linux,!darwin,!windows

package mmapsource

import (
	"fmt"
	"os"
)

// fileSource is the portable fallback for platforms this package doesn't
// have a mapping implementation for: plain positioned reads via *os.File.
// Semantically identical to the mmap'd sources, just not reentrant-free
// of syscalls per read.
type fileSource struct {
	f    *os.File
	size int64
}

func Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmapsource: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapsource: stat %q: %w", path, err)
	}
	return &fileSource{f: f, size: fi.Size()}, nil
}

func (s *fileSource) Size() int64 { return s.size }

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

func (s *fileSource) Close() error { return s.f.Close() }
