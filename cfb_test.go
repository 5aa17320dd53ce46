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

package cfb_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleio/cfb"
	"github.com/oleio/cfb/testutil"
)

func TestOpenReaderSimpleStream(t *testing.T) {
	data := []byte("hello, compound file world")
	img := testutil.SimpleStream(3, "Contents", data)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	root := r.Root()
	require.NotNil(t, root)
	assert.True(t, root.IsDir())

	children := root.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "Contents", children[0].Name())
	assert.True(t, children[0].IsFile())
	assert.EqualValues(t, len(data), children[0].Size())

	s, err := r.OpenPath("Contents")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOpenReaderCaseInsensitivePath(t *testing.T) {
	img := testutil.SimpleStream(3, "WordDocument", []byte("x"))
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.OpenPath("worddocument")
	assert.NoError(t, err)
}

func TestOpenReaderNotFound(t *testing.T) {
	img := testutil.SimpleStream(3, "Contents", []byte("x"))
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.OpenPath("DoesNotExist")
	assert.ErrorIs(t, err, cfb.ErrNotFound)
}

func TestOpenReaderBadHeader(t *testing.T) {
	good := testutil.SimpleStream(3, "Contents", []byte("x"))

	badMagic := append([]byte(nil), good...)
	badMagic[0] ^= 0xFF
	_, err := cfb.OpenReader(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, cfb.ErrInvalidMagic)

	badBOM := append([]byte(nil), good...)
	badBOM[28], badBOM[29] = 0xFF, 0xFE // byte-swapped mark, reads as 0xFEFF
	_, err = cfb.OpenReader(bytes.NewReader(badBOM))
	assert.ErrorIs(t, err, cfb.ErrInvalidByteOrder)

	badVersion := append([]byte(nil), good...)
	badVersion[26] = 7
	_, err = cfb.OpenReader(bytes.NewReader(badVersion))
	assert.ErrorIs(t, err, cfb.ErrUnsupportedVersion)
}

func TestOpenReaderCyclicFatChain(t *testing.T) {
	img := testutil.CyclicStream(3, "Loop")
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err, "a cycle in a stream's own chain shouldn't stop the container from opening")
	defer r.Close()

	e, ok := r.Root().Child("Loop")
	require.True(t, ok)
	_, err = r.Open(e)
	assert.ErrorIs(t, err, cfb.ErrCyclicFatChain)
}

// TestOpenReaderUnusedSlotPreservesIndices guards against a directory
// entry whose sibling/child pointer addresses a later record index
// skipping over an earlier unused (Invalid-kind) slot: the unused slot
// must leave a hole rather than shift every later entry's position, or
// the pointer resolves to the wrong entity entirely.
func TestOpenReaderUnusedSlotPreservesIndices(t *testing.T) {
	c := testutil.NewContainer(3)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	streamStart := c.Chain([]byte("payload"))

	dir := make([]byte, 0, testutil.DirEntrySize*3)
	// index 0: root, pointing at index 2 (skipping the unused index 1).
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 2, testutil.EndOfChain, 0)...)
	// index 1: unused slot (kind 0 / Invalid).
	dir = append(dir, make([]byte, testutil.DirEntrySize)...)
	// index 2: the actual stream.
	dir = append(dir, testutil.DirEntry("Payload", 2, testutil.NoChild, testutil.NoChild, testutil.NoChild, streamStart, 7)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)
	img := c.Finish(0)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	children := r.Root().Children()
	require.Len(t, children, 1)
	assert.Equal(t, "Payload", children[0].Name())

	s, err := r.OpenPath("Payload")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestOpenReaderDirectoryLoop(t *testing.T) {
	img := testutil.DirectoryLoop(3)
	_, err := cfb.OpenReader(bytes.NewReader(img))
	assert.ErrorIs(t, err, cfb.ErrDirectoryLoop)
}

// A sibling pointer back to entry 0 (the root) is a loop too, even
// though the root is never visited by the sibling walk that starts from
// a storage's child pointer.
func TestOpenReaderSiblingPointsAtRoot(t *testing.T) {
	c := testutil.NewContainer(3)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	streamStart := c.Chain([]byte("x"))

	dir := make([]byte, 0, testutil.DirEntrySize*2)
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 1, testutil.EndOfChain, 0)...)
	dir = append(dir, testutil.DirEntry("Stream 1", 2, 0, testutil.NoChild, testutil.NoChild, streamStart, 1)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)
	img := c.Finish(0)

	_, err := cfb.OpenReader(bytes.NewReader(img))
	assert.ErrorIs(t, err, cfb.ErrDirectoryLoop)
}

// TestNestedStorage is the canonical two-level layout: the root holds a
// single storage, which holds a single 544-byte stream of repeating
// "Data".
func TestNestedStorage(t *testing.T) {
	data := bytes.Repeat([]byte("Data"), 136)
	c := testutil.NewContainer(3)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	streamStart := c.Chain(testutil.ChunkForTest(data)...)

	dir := make([]byte, 0, testutil.DirEntrySize*3)
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 1, testutil.EndOfChain, 0)...)
	dir = append(dir, testutil.DirEntry("Storage 1", 1, testutil.NoChild, testutil.NoChild, 2, 0, 0)...)
	dir = append(dir, testutil.DirEntry("Stream 1", 2, testutil.NoChild, testutil.NoChild, testutil.NoChild, streamStart, uint64(len(data)))...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)
	img := c.Finish(0)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	root := r.Root()
	require.Len(t, root.Children(), 1)
	storage := root.ChildAt(0)
	assert.Equal(t, "Storage 1", storage.Name())
	assert.True(t, storage.IsDir())
	require.Len(t, storage.Children(), 1)
	stream := storage.ChildAt(0)
	assert.Equal(t, "Stream 1", stream.Name())
	assert.True(t, stream.IsFile())
	assert.EqualValues(t, 544, stream.Size())
	assert.Equal(t, root, storage.Parent())
	assert.Equal(t, "Storage 1/Stream 1", stream.Path())

	s, err := r.OpenPath("Storage 1/Stream 1")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.EqualValues(t, len(data), s.Tell())

	// A second open of the same entity is an independent cursor yielding
	// the same bytes.
	s2, err := r.Open(stream)
	require.NoError(t, err)
	got2, err := io.ReadAll(s2)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

// An empty stream is readable even when the container carries no
// mini-FAT for it to (nominally) live in.
func TestOpenEmptyStreamWithoutMiniFat(t *testing.T) {
	c := testutil.NewContainer(3)
	c.AllocSector(nil) // fat sector

	dir := make([]byte, 0, testutil.DirEntrySize*2)
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 1, testutil.EndOfChain, 0)...)
	dir = append(dir, testutil.DirEntry("Empty", 2, testutil.NoChild, testutil.NoChild, testutil.NoChild, testutil.EndOfChain, 0)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)
	img := c.Finish(0)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Empty")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenReaderMiniStream(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	img := testutil.WithMiniStream(3, "Small", data)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Small")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOpenReaderVersionParity(t *testing.T) {
	data := []byte("same content either way")
	for _, v := range []uint16{3, 4} {
		img := testutil.SimpleStream(v, "Contents", data)
		r, err := cfb.OpenReader(bytes.NewReader(img))
		require.NoError(t, err)
		s, err := r.OpenPath("Contents")
		require.NoError(t, err)
		got, err := io.ReadAll(s)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		r.Close()
	}
}

func TestStreamSeekAndReadAt(t *testing.T) {
	data := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	img := testutil.SimpleStream(3, "Contents", data)
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Contents")
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := s.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, data[10:15], buf[:n])

	pos, err := s.Seek(5, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 5, pos)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, data[5:10], buf[:n])
}

func TestStreamSeekNegative(t *testing.T) {
	img := testutil.SimpleStream(3, "Contents", []byte("abcdef"))
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Contents")
	require.NoError(t, err)
	_, err = s.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, cfb.ErrInvalidSeek)
	_, err = s.Seek(-100, io.SeekEnd)
	assert.ErrorIs(t, err, cfb.ErrInvalidSeek)
}

func TestStreamRead1StopsAtSectorBoundary(t *testing.T) {
	// Two full sectors of distinct content; a Read1 spanning the boundary
	// must stop at it.
	data := append(bytes.Repeat([]byte{0x11}, testutil.SectorSize), bytes.Repeat([]byte{0x22}, testutil.SectorSize)...)
	img := testutil.SimpleStream(3, "Contents", data)
	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Contents")
	require.NoError(t, err)
	_, err = s.Seek(int64(testutil.SectorSize)-4, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := s.Read1(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 4), buf[:n])
	assert.EqualValues(t, testutil.SectorSize, s.Tell())

	n, err = s.Read1(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 16), buf[:n])
}

func TestOpenReaderOversizedDeclaredLength(t *testing.T) {
	// One full sector's worth of content, so the chain holds exactly as
	// many bytes as it has capacity for and the clamp-to-max policy
	// reproduces the original content exactly (no sector padding to
	// account for).
	data := bytes.Repeat([]byte("Data"), testutil.SectorSize/4)
	c := testutil.NewContainer(3)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector

	streamStart := c.Chain(testutil.ChunkForTest(data)...)

	dir := make([]byte, 0, testutil.DirEntrySize*2)
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 1, testutil.EndOfChain, 0)...)
	// Declare a size far larger than the single-sector chain can hold.
	dir = append(dir, testutil.DirEntry("Stream 1", 2, testutil.NoChild, testutil.NoChild, testutil.NoChild, streamStart, 3072)...)
	dirSector := c.Chain(dir)
	c.SetDirectory(dirSector)
	img := c.Finish(0)

	r, err := cfb.OpenReader(bytes.NewReader(img))
	require.NoError(t, err)
	defer r.Close()

	e, ok := r.Root().Child("Stream 1")
	require.True(t, ok)

	s, err := r.Open(e)
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Len(t, got, len(data))
	assert.Equal(t, data, got)
}

// TestRealWorldSample exercises the spec's seed scenario 6 against an
// actual .doc fixture. No such fixture ships in this module, so the test
// skips rather than failing, the same way the teacher's own testFile
// helper behaves when its test/ directory is absent.
func TestRealWorldSample(t *testing.T) {
	const path = "testdata/sample1.doc"
	if _, err := os.Stat(path); err != nil {
		t.Skipf("no real-world fixture at %s: %v", path, err)
	}

	r, err := cfb.Open(path)
	require.NoError(t, err)
	defer r.Close()

	want := map[string]struct {
		dir  bool
		size uint64
	}{
		"1Table":                      {false, 8375},
		"\x01CompObj":                 {false, 106},
		"ObjectPool":                  {true, 0},
		"WordDocument":                {false, 9280},
		"\x05SummaryInformation":      {false, 4096},
		"\x05DocumentSummaryInformation": {false, 4096},
	}
	children := r.Root().Children()
	require.Len(t, children, len(want))
	for _, c := range children {
		exp, ok := want[c.Name()]
		require.True(t, ok, "unexpected entry %q", c.Name())
		assert.Equal(t, exp.dir, c.IsDir(), "entry %q", c.Name())
		if !exp.dir {
			assert.EqualValues(t, exp.size, c.Size(), "entry %q", c.Name())
		}
	}
}

func TestWarningSinkReceivesDiagnostics(t *testing.T) {
	// Declare a wildly oversized stream length so the clamp policy fires.
	c := testutil.NewContainer(3)
	c.SetMiniSizeLimit(0)
	c.AllocSector(nil) // fat sector
	streamStart := c.Chain([]byte("short"))
	dir := make([]byte, 0, testutil.DirEntrySize*2)
	dir = append(dir, testutil.DirEntry("Root Entry", 5, testutil.NoChild, testutil.NoChild, 1, testutil.EndOfChain, 0)...)
	dir = append(dir, testutil.DirEntry("Stream 1", 2, testutil.NoChild, testutil.NoChild, testutil.NoChild, streamStart, 99999)...)
	c.SetDirectory(c.Chain(dir))
	img := c.Finish(0)

	var got []cfb.Warning
	sink := cfb.WarningSinkFunc(func(w cfb.Warning) { got = append(got, w) })
	r, err := cfb.OpenReader(bytes.NewReader(img), cfb.WithWarningSink(sink))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.OpenPath("Stream 1")
	require.NoError(t, err)

	var clamped bool
	for _, w := range got {
		if w.Category == cfb.CatTruncated {
			clamped = true
		}
	}
	assert.True(t, clamped, "expected a Truncated warning for the oversized declared length, got %v", got)

	// With a caller-supplied sink, nothing accumulates on the reader.
	assert.NoError(t, r.Warnings())
}

func TestOpenBytes(t *testing.T) {
	data := []byte("via byte slice")
	img := testutil.SimpleStream(3, "Contents", data)

	r, err := cfb.OpenBytes(img)
	require.NoError(t, err)
	defer r.Close()

	s, err := r.OpenPath("Contents")
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
