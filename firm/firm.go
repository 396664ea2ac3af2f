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

// Package firm contains the on-storage formats shared by every stage of the
// boot pipeline: the FIRM image header and the memory snapshot blob.
package firm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic is the value found at the start of every decrypted FIRM image.
	Magic = "FIRM"
	// HeaderSize is the size of the FIRM header, including its signature.
	HeaderSize = 0x200
	// MaxSections is the number of section descriptors in a FIRM header.
	MaxSections = 4
	// SectionHashSize is the size of a section's SHA-256 hash.
	SectionHashSize = 0x20

	arm11EntryOffset = 0x08
	arm9EntryOffset  = 0x0C
	reservedOffset   = 0x10
	sectionsOffset   = 0x40
	sectionSize      = 0x30
)

// SectionType identifies the CPU a FIRM section is loaded for.
type SectionType uint32

const (
	SectionARM9  SectionType = 0
	SectionARM11 SectionType = 1
)

// Family names one of the three firmware images handled by the bootloader.
type Family int

const (
	Native Family = iota
	TWL
	AGB
)

func (f Family) String() string {
	switch f {
	case Native:
		return "NATIVE_FIRM"
	case TWL:
		return "TWL_FIRM"
	case AGB:
		return "AGB_FIRM"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Legacy returns true for the two backwards-compatibility families.
func (f Family) Legacy() bool {
	return f == TWL || f == AGB
}

// Section describes a single FIRM section.
//
// A zero Address marks the descriptor as unused.
type Section struct {
	Offset  uint32
	Address uint32
	Size    uint32
	Type    SectionType
	Hash    [SectionHashSize]byte
}

// Header is the decoded form of the first 0x100 bytes of a FIRM image.
type Header struct {
	Magic        [4]byte
	BootPriority uint32
	ARM11Entry   uint32
	ARM9Entry    uint32
	Reserved     [0x30]byte
	Sections     [MaxSections]Section
}

// HasMagic returns true if img starts with the FIRM magic.
func HasMagic(img []byte) bool {
	return len(img) >= len(Magic) && bytes.Equal(img[:len(Magic)], []byte(Magic))
}

// ParseHeader decodes the FIRM header at the start of img.
func ParseHeader(img []byte) (*Header, error) {
	if len(img) < HeaderSize {
		return nil, fmt.Errorf("image too short for FIRM header: %d bytes", len(img))
	}
	var h Header
	if err := binary.Read(bytes.NewReader(img[:sectionsOffset+MaxSections*sectionSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to decode FIRM header: %w", err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, errors.New("bad FIRM magic")
	}
	return &h, nil
}

// WantsScreenInit reports whether the image asks for the displays to be
// initialised before it is launched.
func (h *Header) WantsScreenInit() bool {
	return h.Reserved[0]&1 != 0
}

// Populated returns the leading in-use sections: the walk stops at the first
// descriptor with a zero address.
func (h *Header) Populated() []Section {
	for i, s := range h.Sections {
		if s.Address == 0 {
			return h.Sections[:i]
		}
	}
	return h.Sections[:]
}

// SectionHash returns the first 16 bytes of the i'th section's hash, which is
// what firmware versions are identified by.
func SectionHash(img []byte, i int) ([16]byte, error) {
	var r [16]byte
	off := sectionsOffset + i*sectionSize + 0x10
	if i < 0 || i >= MaxSections || len(img) < off+len(r) {
		return r, fmt.Errorf("no section %d in %d byte image", i, len(img))
	}
	copy(r[:], img[off:])
	return r, nil
}

// SetARM9Entry overwrites the ARM9 entrypoint of the FIRM image in place.
func SetARM9Entry(img []byte, entry uint32) {
	binary.LittleEndian.PutUint32(img[arm9EntryOffset:], entry)
}

// ARM9Entry returns the ARM9 entrypoint of the FIRM image.
func ARM9Entry(img []byte) uint32 {
	return binary.LittleEndian.Uint32(img[arm9EntryOffset:])
}

// SectionData returns the bytes of s within img.
func SectionData(img []byte, s Section) ([]byte, error) {
	end := uint64(s.Offset) + uint64(s.Size)
	if end > uint64(len(img)) {
		return nil, fmt.Errorf("section at 0x%x+0x%x lies outside the %d byte image", s.Offset, s.Size, len(img))
	}
	return img[s.Offset:end], nil
}
