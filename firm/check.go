// Copyright 2026 Google LLC. All Rights Reserved.
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

package firm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Region is a half-open physical address range.
type Region struct {
	Start, End uint64
}

func (r Region) contains(start, end uint64) bool {
	return start >= r.Start && end <= r.End
}

func (r Region) overlaps(start, end uint64) bool {
	return start < r.End && end > r.Start
}

// LoadRegions are the physical ranges a payload section may be loaded to.
var LoadRegions = []Region{
	{0x08000000, 0x08000000 + 0x00100000}, // ARM9 internal RAM
	{0x18000000, 0x18000000 + 0x00600000}, // VRAM
	{0x1FF00000, 0x1FFFFC00},              // AXI WRAM, minus the exception vectors
	{0x20000000, 0x20000000 + 0x08000000}, // FCRAM
}

// Check validates a FIRM payload loaded at physical address base.
//
// Sections must be aligned, must lie within LoadRegions without overlapping
// the payload itself, and their SHA-256 hashes must match the header. The
// ARM9 entrypoint must fall inside some section, as must the ARM11 entrypoint
// if one is given.
func Check(img []byte, base uint32) error {
	h, err := ParseHeader(img)
	if err != nil {
		return err
	}
	if h.ARM9Entry == 0 {
		return errors.New("no ARM9 entrypoint")
	}

	total := uint64(HeaderSize)
	for _, s := range h.Sections {
		total += uint64(s.Size)
	}
	if uint64(len(img)) < total {
		return fmt.Errorf("payload is %d bytes, sections need %d", len(img), total)
	}

	self := Region{uint64(base), uint64(base) + total}
	arm9Found, arm11Found := false, false
	for i, s := range h.Sections {
		if s.Size == 0 {
			continue
		}
		start, end := uint64(s.Address), uint64(s.Address)+uint64(s.Size)
		switch {
		case s.Offset < HeaderSize:
			return fmt.Errorf("section %d overlaps the header", i)
		case end > 1<<32:
			return fmt.Errorf("section %d wraps the address space", i)
		case s.Address&3 != 0, s.Offset&0x1FF != 0, s.Size&0x1FF != 0:
			return fmt.Errorf("section %d is misaligned", i)
		case self.overlaps(start, end):
			return fmt.Errorf("section %d would overwrite the payload", i)
		case !inLoadRegion(start, end):
			return fmt.Errorf("section %d loads to 0x%08x, outside the allowed regions", i, s.Address)
		}

		data, err := SectionData(img, s)
		if err != nil {
			return err
		}
		if sum := sha256.Sum256(data); !bytes.Equal(sum[:], s.Hash[:]) {
			return fmt.Errorf("section %d hash mismatch", i)
		}

		if e := uint64(h.ARM9Entry); e >= start && e < end {
			arm9Found = true
		}
		if e := uint64(h.ARM11Entry); e >= start && e < end {
			arm11Found = true
		}
	}

	if !arm9Found {
		return errors.New("ARM9 entrypoint is not inside any section")
	}
	if h.ARM11Entry != 0 && !arm11Found {
		return errors.New("ARM11 entrypoint is not inside any section")
	}
	return nil
}

func inLoadRegion(start, end uint64) bool {
	for _, r := range LoadRegions {
		if r.contains(start, end) {
			return true
		}
	}
	return false
}
