//go:build linux || darwin
// +build linux darwin

package mmapsource

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

type mmapSource struct {
	data []byte
	f    *os.File
}

// Open memory-maps path read-only. The whole file is mapped at once: CFB
// containers are small enough (the format itself guards the three
// allocation tables at 100 MiB apiece) that partial mapping isn't worth
// the bookkeeping.
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
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("mmapsource: %q is empty", path)
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapsource: mmap %q: %w", path, err)
	}
	return &mmapSource{data: data, f: f}, nil
}

func (m *mmapSource) Size() int64 { return int64(len(m.data)) }

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("mmapsource: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *mmapSource) Close() error {
	var err error
	if m.data != nil {
		err = syscall.Munmap(m.data)
		m.data = nil
	}
	if cerr := m.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
