//go:build linux
// +build linux

// Package fusefs exposes an opened compound document as a read-only
// FUSE filesystem: storages become directories, streams become
// ordinary files.
package fusefs

import (
	"context"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/oleio/cfb"
)

// FS roots a FUSE filesystem at a compound document's own root storage.
type FS struct {
	r *cfb.Reader
}

func New(r *cfb.Reader) *FS { return &FS{r: r} }

func (f *FS) Root() (fs.Node, error) {
	return &dirNode{fs: f, entity: f.r.Root()}, nil
}

type dirNode struct {
	fs     *FS
	entity *cfb.Entity
}

func (d *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	if m := d.entity.Modified(); !m.IsZero() {
		a.Mtime = m
	}
	return nil
}

func (d *dirNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	c, ok := d.entity.Child(name)
	if !ok {
		return nil, fuse.ENOENT
	}
	if c.IsDir() {
		return &dirNode{fs: d.fs, entity: c}, nil
	}
	return &fileNode{fs: d.fs, entity: c}, nil
}

func (d *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	children := d.entity.Children()
	out := make([]fuse.Dirent, len(children))
	for i, c := range children {
		typ := fuse.DT_File
		if c.IsDir() {
			typ = fuse.DT_Dir
		}
		out[i] = fuse.Dirent{Inode: uint64(i + 1), Name: c.Name(), Type: typ}
	}
	return out, nil
}

type fileNode struct {
	fs     *FS
	entity *cfb.Entity
}

func (f *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = f.entity.Size()
	if m := f.entity.Modified(); !m.IsZero() {
		a.Mtime = m
	} else {
		a.Mtime = time.Time{}
	}
	return nil
}

func (f *fileNode) ReadAll(ctx context.Context) ([]byte, error) {
	s, err := f.fs.r.Open(f.entity)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	_, err = s.ReadAt(buf, 0)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
