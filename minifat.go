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

import "fmt"

// loadMiniFAT reads the mini-FAT allocation table and the normal-sector
// chain that backs the mini-stream (the root storage's data, which every
// small stream's bytes live inside). A container with no small streams
// may legitimately have neither, so an empty root is not an error.
func (r *Reader) loadMiniFAT() error {
	if r.root.size == 0 || r.h.miniFirstSector == EndOfChain {
		return nil
	}
	if r.h.miniFirstSector == FreeSector || r.h.miniFirstSector > r.maxSector {
		r.sink.Warn(Warning{CatMiniFat, fmt.Sprintf("mini-FAT first sector %#x is invalid, treating as no mini-FAT", r.h.miniFirstSector), -1})
		return nil
	}
	if int64(r.h.miniSectorCount)*int64(r.h.normalSectorSize) > largeFatGuard {
		return fmt.Errorf("%w: %d declared sectors of %d bytes", ErrLargeMiniFat, r.h.miniSectorCount, r.h.normalSectorSize)
	}

	rootChain, err := r.chainSectors(r.root.startSector)
	if err != nil {
		return fmt.Errorf("cfb: mini-stream container: %w", err)
	}
	r.miniStreamChain = rootChain

	miniSectors, err := r.chainSectors(r.h.miniFirstSector)
	if err != nil {
		return fmt.Errorf("cfb: mini-FAT chain: %w", err)
	}
	if uint32(len(miniSectors)) != r.h.miniSectorCount {
		r.sink.Warn(Warning{CatMiniFat, fmt.Sprintf("mini-FAT chain holds %d sectors, header declares %d", len(miniSectors), r.h.miniSectorCount), -1})
	}
	var fat []uint32
	for _, s := range miniSectors {
		vals, err := r.readSectorUint32s(s)
		if err != nil {
			return err
		}
		fat = append(fat, vals...)
	}
	if len(fat)*4 > largeFatGuard {
		return fmt.Errorf("%w: %d entries", ErrLargeMiniFat, len(fat))
	}
	r.miniFAT = fat
	return nil
}

// miniSectorOffset translates a mini-sector index into an absolute byte
// offset in the backing source, by locating which normal sector of the
// mini-stream container holds it.
func (r *Reader) miniSectorOffset(miniSector uint32) (int64, error) {
	perNormal := r.h.normalSectorSize / r.h.miniSectorSize
	chainIdx := miniSector / perNormal
	if int(chainIdx) >= len(r.miniStreamChain) {
		return 0, fmt.Errorf("cfb: mini-sector %d outside the mini-stream container", miniSector)
	}
	within := int64(miniSector%perNormal) * int64(r.h.miniSectorSize)
	return r.h.sectorOffset(r.miniStreamChain[chainIdx]) + within, nil
}

// chainMiniSectors walks a mini-FAT chain the same way chainSectors walks
// a normal-FAT chain, just over the mini-FAT table. Failures here abort
// only the open of the one stream whose chain is bad, never the whole
// container.
func (r *Reader) chainMiniSectors(start uint32) ([]uint32, error) {
	next := func(s uint32) (uint32, error) {
		if int(s) >= len(r.miniFAT) {
			return 0, fmt.Errorf("%w: mini-sector %d has no mini-FAT entry", ErrBadSector, s)
		}
		return r.miniFAT[s], nil
	}

	var out []uint32
	slow, fast := start, start
	for fast != EndOfChain && fast != FreeSector {
		out = append(out, fast)
		n, err := next(fast)
		if err != nil {
			return nil, err
		}
		fast = n
		if fast == EndOfChain || fast == FreeSector {
			break
		}
		out = append(out, fast)
		n, err = next(fast)
		if err != nil {
			return nil, err
		}
		fast = n

		n, err = next(slow)
		if err != nil {
			return nil, err
		}
		slow = n
		if slow == fast {
			return nil, fmt.Errorf("%w: starting at mini-sector %d", ErrCyclicFatChain, start)
		}
	}
	return out, nil
}
