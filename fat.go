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
)

// loadNormalFAT concatenates every sector named by the DIFAT into one
// flat allocation table, then cross-checks that each FAT sector marks
// itself NormalFATSector in the table it helped build — a self-
// consistency check the original Python reader performs and raises as a
// warning, never a fatal error, since a corrupt self-reference doesn't
// stop the chain walks that matter from working.
func (r *Reader) loadNormalFAT(difatExtSectors []uint32) error {
	var fat []uint32
	for _, s := range r.fatSectors {
		vals, err := r.readSectorUint32s(s)
		if err != nil {
			return err
		}
		fat = append(fat, vals...)
	}
	if len(fat)*4 > largeFatGuard {
		return fmt.Errorf("%w: %d entries", ErrLargeNormalFat, len(fat))
	}
	r.normalFAT = fat

	for _, s := range r.fatSectors {
		if int(s) >= len(fat) {
			r.sink.Warn(Warning{CatNormalSect, fmt.Sprintf("FAT sector %d lies outside the table it belongs to", s), -1})
			continue
		}
		if fat[s] != NormalFATSector {
			r.sink.Warn(Warning{CatNormalSect, fmt.Sprintf("FAT sector %d does not self-mark as NormalFATSector (found %#x)", s, fat[s]), -1})
		}
	}

	// Every DIFAT extension sector visited while building fatSectors
	// should mark itself MasterFATSector in the table it helped build
	// (spec.md 4.3's cross-check for the master-FAT side of the same
	// self-description rule).
	for _, s := range difatExtSectors {
		if int(s) >= len(fat) {
			r.sink.Warn(Warning{CatMasterSect, fmt.Sprintf("DIFAT sector %d lies outside the normal-FAT", s), -1})
			continue
		}
		if fat[s] != MasterFATSector {
			r.sink.Warn(Warning{CatMasterSect, fmt.Sprintf("DIFAT sector %d does not self-mark as MasterFATSector (found %#x)", s, fat[s]), -1})
		}
	}
	return nil
}

// chainSectors walks a normal-FAT chain starting at start, returning the
// ordered list of sector IDs. Cycle detection uses the tortoise-and-hare
// technique: the hare advances two links per step, the tortoise one; a
// chain that loops back on itself makes them collide long before the
// hare runs off the end of the table, so no per-chain visited-set is
// needed.
func (r *Reader) chainSectors(start uint32) ([]uint32, error) {
	next := func(s uint32) (uint32, error) {
		if int(s) >= len(r.normalFAT) {
			return 0, fmt.Errorf("%w: sector %d has no FAT entry", ErrBadSector, s)
		}
		return r.normalFAT[s], nil
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
			return nil, fmt.Errorf("%w: starting at sector %d", ErrCyclicFatChain, start)
		}
	}
	return out, nil
}
