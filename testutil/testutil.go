// Package testutil assembles synthetic compound-document images byte by
// byte, for exercising cfb's loaders against known-good and
// deliberately malformed layouts without depending on any external
// fixture file.
package testutil

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	SectorSize     = 512
	MiniSectorSize = 64
	MiniSizeLimit  = 4096
	DirEntrySize   = 128

	FreeSector      uint32 = 0xFFFFFFFF
	EndOfChain      uint32 = 0xFFFFFFFE
	NormalFATSector uint32 = 0xFFFFFFFD
	MasterFATSector uint32 = 0xFFFFFFFC
)

// Container accumulates sectors and a sparse normal-FAT map, then
// renders a complete image on Finish. It always uses a single FAT
// sector, which keeps every test container well under the 128-entry
// (512-byte sector / 4) limit that implies — plenty for unit tests that
// exercise chain-walking logic rather than scale.
type Container struct {
	majorVersion uint16
	sectors      [][]byte
	fat          map[uint32]uint32
	dirFirst     uint32
	miniFatFirst uint32
	miniLimit    uint32
}

// SetMiniSizeLimit overrides the header's mini-stream cutoff (4096 by
// default). Setting it to 0 forces every stream to be read through the
// normal-FAT path regardless of size, which simplifies tests that don't
// care about mini-stream behaviour.
func (c *Container) SetMiniSizeLimit(n uint32) { c.miniLimit = n }

// NewContainer starts a new builder for the given major version (3 or
// 4). The returned Container has no sectors yet; use AllocSector and
// SetNext to build up a layout, then Finish to render it.
func NewContainer(majorVersion uint16) *Container {
	return &Container{
		majorVersion: majorVersion,
		fat:          make(map[uint32]uint32),
		dirFirst:     EndOfChain,
		miniFatFirst: EndOfChain,
		miniLimit:    MiniSizeLimit,
	}
}

// AllocSector appends a new sector, padding or truncating content to
// exactly one sector's length, and returns its index.
func (c *Container) AllocSector(content []byte) uint32 {
	buf := make([]byte, SectorSize)
	copy(buf, content)
	c.sectors = append(c.sectors, buf)
	return uint32(len(c.sectors) - 1)
}

// SetNext records that sector a's normal-FAT entry points at b (EndOfChain
// or FreeSector are valid terminators).
func (c *Container) SetNext(a, b uint32) { c.fat[a] = b }

// Chain allocates len(payloads) sectors and links them end to end,
// returning the first sector's index.
func (c *Container) Chain(payloads ...[]byte) uint32 {
	first := uint32(0)
	prev := uint32(0)
	for i, p := range payloads {
		s := c.AllocSector(p)
		if i == 0 {
			first = s
		} else {
			c.SetNext(prev, s)
		}
		prev = s
	}
	c.SetNext(prev, EndOfChain)
	return first
}

// SetDirectory installs the already-built directory entry chain's first
// sector.
func (c *Container) SetDirectory(first uint32) { c.dirFirst = first }

// SetMiniFat installs the mini-FAT chain's first sector, which the
// header advertises. The mini-stream container itself is located through
// the root directory entry's start sector, not the header.
func (c *Container) SetMiniFat(fatFirst uint32) { c.miniFatFirst = fatFirst }

// DirEntry renders a single 128-byte directory record.
func DirEntry(name string, kind byte, left, right, child, start uint32, size uint64) []byte {
	buf := make([]byte, DirEntrySize)
	if name != "" {
		u16 := utf16.Encode([]rune(name))
		for i, u := range u16 {
			binary.LittleEndian.PutUint16(buf[i*2:i*2+2], u)
		}
		binary.LittleEndian.PutUint16(buf[64:66], uint16((len(u16)+1)*2))
	}
	buf[66] = kind
	buf[67] = 1 // black; colour doesn't affect traversal correctness
	binary.LittleEndian.PutUint32(buf[68:72], left)
	binary.LittleEndian.PutUint32(buf[72:76], right)
	binary.LittleEndian.PutUint32(buf[76:80], child)
	binary.LittleEndian.PutUint32(buf[116:120], start)
	binary.LittleEndian.PutUint64(buf[120:128], size)
	return buf
}

const noChild = 0xFFFFFFFF

// NoChild is the sentinel for a directory entry's unused sibling/child
// pointers.
const NoChild = noChild

// Finish assembles the header and every sector into a complete image.
// fatSector is where the single normal-FAT sector itself lives; callers
// typically reserve sector 0 for it before allocating anything else.
func (c *Container) Finish(fatSector uint32) []byte {
	fatPayload := make([]byte, SectorSize)
	for i := range fatPayload {
		fatPayload[i] = 0xFF // default every entry to FreeSector
	}
	for a, b := range c.fat {
		binary.LittleEndian.PutUint32(fatPayload[a*4:a*4+4], b)
	}
	binary.LittleEndian.PutUint32(fatPayload[fatSector*4:fatSector*4+4], NormalFATSector)
	c.sectors[fatSector] = fatPayload

	header := make([]byte, 512)
	binary.LittleEndian.PutUint64(header[0:8], 0xE11AB1A1E011CFD0)
	binary.LittleEndian.PutUint16(header[24:26], 0x3E)
	binary.LittleEndian.PutUint16(header[26:28], c.majorVersion)
	binary.LittleEndian.PutUint16(header[28:30], 0xFFFE)
	// Sector size is kept at 512 for both versions for simplicity; this
	// triggers a harmless "unexpected sector size in v4 file" warning when
	// majorVersion is 4; the version-parity test does not check warnings.
	binary.LittleEndian.PutUint16(header[30:32], 9)
	binary.LittleEndian.PutUint16(header[32:34], 6)
	binary.LittleEndian.PutUint32(header[44:48], 1) // one normal-FAT sector
	binary.LittleEndian.PutUint32(header[48:52], c.dirFirst)
	binary.LittleEndian.PutUint32(header[56:60], c.miniLimit)
	binary.LittleEndian.PutUint32(header[60:64], c.miniFatFirst)
	if c.miniFatFirst != EndOfChain {
		binary.LittleEndian.PutUint32(header[64:68], 1)
	}
	binary.LittleEndian.PutUint32(header[68:72], EndOfChain)
	for i := 0; i < 109; i++ {
		off := 76 + i*4
		if i == 0 {
			binary.LittleEndian.PutUint32(header[off:off+4], fatSector)
		} else {
			binary.LittleEndian.PutUint32(header[off:off+4], FreeSector)
		}
	}

	out := make([]byte, 0, len(header)+len(c.sectors)*SectorSize)
	out = append(out, header...)
	for _, s := range c.sectors {
		out = append(out, s...)
	}
	return out
}

// ChunkForTest splits data into SectorSize-sized pieces for building a
// custom directory entry by hand, exported for tests that need more
// control than SimpleStream allows (e.g. a deliberately wrong declared
// size).
func ChunkForTest(data []byte) [][]byte { return chunk(data) }

// chunk splits data into SectorSize-sized pieces, the last one short if
// data doesn't divide evenly.
func chunk(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(data) > 0 {
		n := SectorSize
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// SimpleStream builds a minimal valid container with a single top-level
// stream, read entirely through the normal-FAT path (the mini-stream
// cutoff is disabled). Good for exercising the header/DIFAT/FAT/
// directory pipeline without mini-FAT machinery in the way.
func SimpleStream(majorVersion uint16, name string, data []byte) []byte {
	c := NewContainer(majorVersion)
	c.SetMiniSizeLimit(0)
	fatSector := c.AllocSector(nil)
	_ = fatSector

	streamStart := c.Chain(chunk(data)...)

	dir := make([]byte, 0, DirEntrySize*2)
	dir = append(dir, DirEntry("Root Entry", 5, NoChild, NoChild, 1, EndOfChain, 0)...)
	dir = append(dir, DirEntry(name, 2, NoChild, NoChild, NoChild, streamStart, uint64(len(data)))...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)

	return c.Finish(0)
}

// CyclicStream is identical to SimpleStream except the stream's FAT
// chain loops back on itself instead of terminating, for exercising
// cycle-detection in chainSectors.
func CyclicStream(majorVersion uint16, name string) []byte {
	c := NewContainer(majorVersion)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	a := c.AllocSector(make([]byte, SectorSize))
	b := c.AllocSector(make([]byte, SectorSize))
	c.SetNext(a, b)
	c.SetNext(b, a)

	dir := make([]byte, 0, DirEntrySize*2)
	dir = append(dir, DirEntry("Root Entry", 5, NoChild, NoChild, 1, EndOfChain, 0)...)
	dir = append(dir, DirEntry(name, 2, NoChild, NoChild, NoChild, a, SectorSize*4)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)

	return c.Finish(0)
}

// DirectoryLoop builds a container whose directory tree has a cycle:
// two storages each listing the other as their own child.
func DirectoryLoop(majorVersion uint16) []byte {
	c := NewContainer(majorVersion)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	dir := make([]byte, 0, DirEntrySize*3)
	dir = append(dir, DirEntry("Root Entry", 5, NoChild, NoChild, 1, EndOfChain, 0)...)
	dir = append(dir, DirEntry("A", 1, NoChild, NoChild, 2, NoChild, 0)...)
	dir = append(dir, DirEntry("B", 1, NoChild, NoChild, 1, NoChild, 0)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)

	return c.Finish(0)
}

// WithMiniStream builds a container with one small stream, routed
// through the mini-FAT path: a mini-stream container chain (the root
// entry's own data) and a one-sector mini-FAT.
func WithMiniStream(majorVersion uint16, name string, data []byte) []byte {
	c := NewContainer(majorVersion)
	c.AllocSector(nil) // fat sector

	miniPerNormal := SectorSize / MiniSectorSize
	miniSectorsNeeded := (len(data) + MiniSectorSize - 1) / MiniSectorSize
	if miniSectorsNeeded == 0 {
		miniSectorsNeeded = 1
	}
	normalSectorsNeeded := (miniSectorsNeeded + miniPerNormal - 1) / miniPerNormal

	containerPayload := make([]byte, normalSectorsNeeded*SectorSize)
	copy(containerPayload, data)
	var containerChunks [][]byte
	for i := 0; i < normalSectorsNeeded; i++ {
		containerChunks = append(containerChunks, containerPayload[i*SectorSize:(i+1)*SectorSize])
	}
	containerFirst := c.Chain(containerChunks...)

	miniFat := make([]byte, SectorSize)
	for i := range miniFat {
		miniFat[i] = 0xFF
	}
	for i := 0; i < miniSectorsNeeded-1; i++ {
		binary.LittleEndian.PutUint32(miniFat[i*4:i*4+4], uint32(i+1))
	}
	binary.LittleEndian.PutUint32(miniFat[(miniSectorsNeeded-1)*4:(miniSectorsNeeded-1)*4+4], EndOfChain)
	miniFatSector := c.Chain(miniFat)
	c.SetMiniFat(miniFatSector)

	dir := make([]byte, 0, DirEntrySize*2)
	dir = append(dir, DirEntry("Root Entry", 5, NoChild, NoChild, 1, containerFirst, uint64(len(containerPayload)))...)
	dir = append(dir, DirEntry(name, 2, NoChild, NoChild, NoChild, 0, uint64(len(data)))...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)

	return c.Finish(0)
}
