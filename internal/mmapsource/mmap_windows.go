//go:build windows
// +build windows

package mmapsource

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type mmapSource struct {
	data    []byte
	f       *os.File
	mapping windows.Handle
}

// Open memory-maps path read-only using CreateFileMapping/MapViewOfFile,
// mirroring the approach this pack's Windows disk-reading code takes for
// raw device access (internal/fs/windows.go in the forensic-recovery
// example), but for ordinary files rather than volumes.
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
	mapping, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, uint32(size>>32), uint32(size), nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapsource: CreateFileMapping %q: %w", path, err)
	}
	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		f.Close()
		return nil, fmt.Errorf("mmapsource: MapViewOfFile %q: %w", path, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return &mmapSource{data: data, f: f, mapping: mapping}, nil
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
		addr := uintptr(unsafe.Pointer(&m.data[0]))
		err = windows.UnmapViewOfFile(addr)
		m.data = nil
	}
	windows.CloseHandle(m.mapping)
	if cerr := m.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
