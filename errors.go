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
	"errors"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// Fatal errors abort the operation that produced them. Compare against
// these with errors.Is; most are wrapped with positional detail via
// fmt.Errorf("...: %w", ...).
var (
	ErrInvalidMagic       = errors.New("cfb: not a compound document (bad magic)")
	ErrInvalidByteOrder   = errors.New("cfb: unsupported byte ordering")
	ErrUnsupportedVersion = errors.New("cfb: unsupported DLL version")
	ErrLargeNormalFat     = errors.New("cfb: normal-FAT exceeds size guard")
	ErrLargeMiniFat       = errors.New("cfb: mini-FAT exceeds size guard")
	ErrMasterLoop         = errors.New("cfb: DIFAT chain loop")
	ErrCyclicFatChain     = errors.New("cfb: cyclic FAT chain")
	ErrDirectoryLoop      = errors.New("cfb: directory tree loop")
	ErrNotFound           = errors.New("cfb: entry not found")
	ErrNotStream          = errors.New("cfb: entry is not a stream")
	ErrNoMiniFat          = errors.New("cfb: stream requires a mini-FAT that doesn't exist")
	ErrBadSector          = errors.New("cfb: read beyond declared file size")
	ErrInvalidSeek        = errors.New("cfb: negative absolute seek position")
	ErrClosed             = errors.New("cfb: reader is closed")
)

// Category names a class of non-fatal diagnostic, matching the warning
// categories a reader may legitimately raise while tolerating a malformed
// container.
type Category string

const (
	CatDirName     Category = "DirName"
	CatDirType     Category = "DirType"
	CatDirIndex    Category = "DirIndex"
	CatDirEntry    Category = "DirEntry"
	CatDirTime     Category = "DirTime"
	CatDirSize     Category = "DirSize"
	CatHeader      Category = "Header"
	CatSectorSize  Category = "SectorSize"
	CatVersion     Category = "Version"
	CatMasterFat   Category = "MasterFat"
	CatNormalFat   Category = "NormalFat"
	CatMiniFat     Category = "MiniFat"
	CatMasterSect  Category = "MasterSector"
	CatNormalSect  Category = "NormalSector"
	CatTruncated   Category = "Truncated"
)

// Warning is a single non-fatal diagnostic raised while parsing a
// container. EntryIndex is -1 when the warning isn't associated with a
// particular directory entry.
type Warning struct {
	Category   Category
	Message    string
	EntryIndex int
}

func (w Warning) Error() string {
	if w.EntryIndex < 0 {
		return string(w.Category) + ": " + w.Message
	}
	return string(w.Category) + ": " + w.Message + " (entry " + strconv.Itoa(w.EntryIndex) + ")"
}

// WarningSink receives non-fatal diagnostics as they're discovered. Warn
// must not panic or block for long; the loader calls it synchronously on
// the goroutine that called Open.
type WarningSink interface {
	Warn(w Warning)
}

// WarningSinkFunc adapts a plain function to a WarningSink.
type WarningSinkFunc func(Warning)

func (f WarningSinkFunc) Warn(w Warning) { f(w) }

// multiSink is the default sink installed when the caller doesn't supply
// one: it accumulates every warning into a *multierror.Error so callers
// can inspect (or simply log) everything that was wrong with a container
// after the fact via Reader.Warnings.
type multiSink struct {
	errs *multierror.Error
}

func (m *multiSink) Warn(w Warning) {
	m.errs = multierror.Append(m.errs, w)
}
