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
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	// ARM9BinOffset is the offset of the encrypted ARM9 binary from the start
	// of its header, which is also the start of the ARM9 section.
	ARM9BinOffset = 0x800

	// ARM9BinMagic is the first word of a decrypted NATIVE_FIRM ARM9 binary.
	ARM9BinMagic = 0x47704770
	// LegacyARM9BinMagic is the first word of a decrypted TWL_FIRM or
	// AGB_FIRM ARM9 binary.
	LegacyARM9BinMagic = 0xB0862B98
)

// ARM9BinHeader is the header preceding the ARM9 binary of N3DS firmwares.
type ARM9BinHeader struct {
	KeyX         [16]byte
	KeyY         [16]byte
	CTR          [16]byte
	Size         [8]byte // ASCII decimal
	Pad          [8]byte
	ControlBlock [16]byte
	Unknown      [16]byte
	// Slot0x16KeyX is used instead of KeyX by 9.6+ NATIVE_FIRMs.
	Slot0x16KeyX [16]byte
}

// ARM9BinHeaderSize is the encoded size of ARM9BinHeader.
const ARM9BinHeaderSize = 0x70

// ParseARM9BinHeader decodes the header at the start of section.
func ParseARM9BinHeader(section []byte) (*ARM9BinHeader, error) {
	if len(section) < ARM9BinOffset {
		return nil, fmt.Errorf("ARM9 section of %d bytes has no room for a binary header", len(section))
	}
	var h ARM9BinHeader
	if err := binary.Read(bytes.NewReader(section[:ARM9BinHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to decode ARM9 binary header: %w", err)
	}
	return &h, nil
}

// BinarySize parses the ASCII decimal size of the encrypted binary.
//
// Like atoi, parsing stops at the first non-digit.
func (h *ARM9BinHeader) BinarySize() (int, error) {
	end := 0
	for end < len(h.Size) && h.Size[end] >= '0' && h.Size[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(string(h.Size[:end]))
	if err != nil {
		return 0, fmt.Errorf("bad ARM9 binary size %q: %w", h.Size, err)
	}
	return n, nil
}

// ARM9BinMagicFor returns the magic a decrypted ARM9 binary of family f
// starts with.
func ARM9BinMagicFor(f Family) uint32 {
	if f.Legacy() {
		return LegacyARM9BinMagic
	}
	return ARM9BinMagic
}

// ARM9BinDecrypted reports whether the ARM9 binary in section already
// carries the plaintext magic for family f.
func ARM9BinDecrypted(section []byte, f Family) bool {
	if len(section) < ARM9BinOffset+4 {
		return false
	}
	return binary.LittleEndian.Uint32(section[ARM9BinOffset:]) == ARM9BinMagicFor(f)
}

// FindSection returns the first populated section of type t. Unused
// descriptors are zero, which would otherwise read as ARM9 sections.
func (h *Header) FindSection(t SectionType) (Section, bool) {
	for _, s := range h.Populated() {
		if s.Type == t {
			return s, true
		}
	}
	return Section{}, false
}
