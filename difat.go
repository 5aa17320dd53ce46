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

	"github.com/boljen/go-bitmap"
)

// loadMasterFAT walks the DIFAT (double-indirect FAT): the 109 inline
// entries in the header followed by the linked chain of DIFAT extension
// sectors. It stores the ordered list of sector IDs that hold the
// normal-FAT in r.fatSectors and returns the ordered list of extension
// sectors visited (for the MasterFATSector self-marking cross-check in
// loadNormalFAT).
//
// This implements spec.md 4.2's scan-for-terminator algorithm exactly: it
// never trusts masterSectorCount/normalFatCount as anything but a
// reconciliation hint, scanning the growing array itself for the first
// terminating value instead of reading a fixed number of entries blind.
func (r *Reader) loadMasterFAT() ([]uint32, error) {
	sectors := append([]uint32(nil), r.h.inlineDifats[:]...)

	capacity := int(r.maxSector) + 1
	visited := bitmap.New(capacity)
	var extSectors []uint32

	next := r.h.masterFirstSector
	remaining := int64(r.h.masterSectorCount)

	cursor := 0
	for {
		truncateAt := -1
		for i := cursor; i < len(sectors); i++ {
			v := sectors[i]
			switch {
			case v == EndOfChain:
				truncateAt = i
			case v == FreeSector:
				r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT array terminated by FREE at entry %d", i), -1})
				truncateAt = i
			case v > r.maxSector && v <= MaxRegularSector:
				r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT entry %d names sector %d, beyond file end", i, v), -1})
				truncateAt = i
			case v > MaxRegularSector:
				r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT entry %d has an invalid special value %#x", i, v), -1})
			}
			if truncateAt >= 0 {
				break
			}
		}
		if truncateAt >= 0 {
			sectors = sectors[:truncateAt]
			break
		}
		cursor = len(sectors)

		if remaining > 0 && next == EndOfChain {
			r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT chain ended with %d extension sectors still declared", remaining), -1})
			if len(sectors) == 0 {
				break
			}
			next = sectors[len(sectors)-1]
			sectors = sectors[:len(sectors)-1]
			cursor = len(sectors)
		} else if remaining == 0 {
			switch next {
			case FreeSector:
				r.sink.Warn(Warning{CatMasterFat, "DIFAT extension pointer is FREE with zero sectors declared, treating as end of chain", -1})
				next = EndOfChain
			case EndOfChain:
				// normal termination.
			default:
				r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT extension pointer to sector %d with zero sectors declared", next), -1})
			}
		}

		if next == EndOfChain {
			break
		}
		if next == FreeSector {
			break
		}

		if next > MaxRegularSector || int(next) >= capacity {
			return nil, fmt.Errorf("%w: DIFAT chain references reserved sector %#x", ErrMasterLoop, next)
		}
		if visited.Get(int(next)) {
			return nil, fmt.Errorf("%w: sector %d revisited", ErrMasterLoop, next)
		}

		projected := len(sectors) + int(r.h.normalSectorSize/4)
		if projected*int(r.h.normalSectorSize) > largeFatGuard {
			return nil, fmt.Errorf("%w: projected %d entries", ErrLargeNormalFat, projected)
		}

		visited.Set(int(next), true)
		extSectors = append(extSectors, next)

		vals, err := r.readSectorUint32s(next)
		if err != nil {
			return nil, err
		}
		sectors = append(sectors, vals...)
		next = sectors[len(sectors)-1]
		sectors = sectors[:len(sectors)-1]
		remaining--
	}

	if remaining > 0 {
		r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT declared %d more extension sectors than were found", remaining), -1})
	} else if remaining < 0 {
		r.sink.Warn(Warning{CatMasterFat, fmt.Sprintf("DIFAT chain visited %d more extension sectors than declared", -remaining), -1})
	}
	if uint32(len(sectors)) != r.h.normalFatCount {
		r.sink.Warn(Warning{CatNormalFat, fmt.Sprintf("normal-FAT sector count mismatch: header declares %d, DIFAT names %d", r.h.normalFatCount, len(sectors)), -1})
	}

	if len(sectors)*int(r.h.normalSectorSize) > largeFatGuard {
		return nil, fmt.Errorf("%w: %d sectors", ErrLargeNormalFat, len(sectors))
	}
	r.fatSectors = sectors
	return extSectors, nil
}
