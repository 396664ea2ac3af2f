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

// Package testonly builds firmware artifacts for tests: FIRM images, CETKs,
// title containers and encrypted ARM9 binaries, all keyed with made-up boot
// ROM keys.
package testonly

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
)

var (
	// CommonKeyX stands in for the boot ROM keyX of crypto.SlotCommonKey.
	CommonKeyX = bytes.Repeat([]byte{0xC0}, crypto.BlockSize)
	// ExeFSKeyX stands in for the boot ROM keyX of crypto.SlotExeFS.
	ExeFSKeyX = bytes.Repeat([]byte{0xE0}, crypto.BlockSize)

	// ARM9BinKeyX is the plaintext keyX fixtures wrap into ARM9 binary headers.
	ARM9BinKeyX = bytes.Repeat([]byte{0x9A}, crypto.BlockSize)
	// ARM9BinKeyY is the keyY written into ARM9 binary headers.
	ARM9BinKeyY = bytes.Repeat([]byte{0x9B}, crypto.BlockSize)
	// ARM9BinCTR is the counter written into ARM9 binary headers.
	ARM9BinCTR = bytes.Repeat([]byte{0x9C}, crypto.BlockSize)

	// ExeFSKeyY is the first 16 bytes of every fixture container.
	ExeFSKeyY = bytes.Repeat([]byte{0xEE}, crypto.BlockSize)
)

// NewEngine returns a software AES engine holding the fixture boot ROM keys.
func NewEngine() *crypto.SoftEngine {
	e := crypto.NewSoftEngine()
	mustSetKey(e, crypto.SlotCommonKey, CommonKeyX)
	mustSetKey(e, crypto.SlotExeFS, ExeFSKeyX)
	return e
}

func mustSetKey(e *crypto.SoftEngine, slot uint8, keyX []byte) {
	if err := e.SetKey(slot, crypto.KeyX, keyX); err != nil {
		panic(err)
	}
}

// Section is a FIRM section to be built.
type Section struct {
	Address uint32
	Type    firm.SectionType
	Data    []byte
}

// FIRM describes a FIRM image to be built.
type FIRM struct {
	ARM9Entry  uint32
	ARM11Entry uint32
	// Flags is stored in the first reserved header byte.
	Flags    byte
	Sections []Section
}

// Build returns the encoded image. Section data is padded to 0x200 bytes and
// hashed.
func (f FIRM) Build() []byte {
	if len(f.Sections) > firm.MaxSections {
		panic(fmt.Sprintf("%d sections", len(f.Sections)))
	}
	img := make([]byte, firm.HeaderSize)
	copy(img, firm.Magic)
	binary.LittleEndian.PutUint32(img[0x08:], f.ARM11Entry)
	binary.LittleEndian.PutUint32(img[0x0C:], f.ARM9Entry)
	img[0x10] = f.Flags

	for i, s := range f.Sections {
		data := pad(s.Data, 0x200)
		d := img[0x40+i*0x30:]
		binary.LittleEndian.PutUint32(d[0x00:], uint32(len(img)))
		binary.LittleEndian.PutUint32(d[0x04:], s.Address)
		binary.LittleEndian.PutUint32(d[0x08:], uint32(len(data)))
		binary.LittleEndian.PutUint32(d[0x0C:], uint32(s.Type))
		sum := sha256.Sum256(data)
		copy(d[0x10:], sum[:])
		img = append(img, data...)
	}
	return img
}

// Hash16 returns the identifying hash of section i of img.
func Hash16(img []byte, i int) [16]byte {
	h, err := firm.SectionHash(img, i)
	if err != nil {
		panic(err)
	}
	return h
}

// Ticket returns a CETK holding titleKey, encrypted as the console's common
// key index 1 would.
func Ticket(titleKey []byte, titleID [8]byte) []byte {
	cetk := make([]byte, 0x350)
	binary.BigEndian.PutUint32(cetk, 0x00010004)
	t := cetk[4+0x13C:]

	iv := make([]byte, crypto.BlockSize)
	copy(iv, titleID[:])
	normal := crypto.ScrambleKey(CommonKeyX, crypto.CommonKeyY)
	b, _ := aes.NewCipher(normal[:])
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(t[0x7F:0x8F], titleKey)

	copy(t[0x9C:], titleID[:])
	t[0xB1] = 1
	return cetk
}

// TitleContainer wraps img in an encrypted NCCH: the FIRM is the first file
// of an ExeFS encrypted with the fixture ExeFS key, and the whole container
// is then CBC encrypted with titleKey.
func TitleContainer(img []byte, titleKey []byte, partitionID [8]byte) []byte {
	exefs := make([]byte, 0x200)
	copy(exefs, ".firm")
	binary.LittleEndian.PutUint32(exefs[0x0C:], uint32(len(img)))
	exefs = pad(append(exefs, img...), 0x200)

	ncch := make([]byte, 0x200)
	copy(ncch, ExeFSKeyY)
	copy(ncch[0x100:], "NCCH")
	copy(ncch[0x108:], partitionID[:])
	binary.LittleEndian.PutUint16(ncch[0x112:], 2)
	binary.LittleEndian.PutUint32(ncch[0x1A0:], 1)
	binary.LittleEndian.PutUint32(ncch[0x1A4:], uint32(len(exefs)/0x200))

	var ctr [crypto.BlockSize]byte
	for i := 0; i < 8; i++ {
		ctr[i] = partitionID[7-i]
	}
	ctr[8] = 2
	normal := crypto.ScrambleKey(ExeFSKeyX, ExeFSKeyY)
	b, _ := aes.NewCipher(normal[:])
	cipher.NewCTR(b, ctr[:]).XORKeyStream(exefs, exefs)

	out := append(ncch, exefs...)
	b, _ = aes.NewCipher(titleKey)
	cipher.NewCBCEncrypter(b, make([]byte, crypto.BlockSize)).CryptBlocks(out, out)
	return out
}

// ARM9Section returns an ARM9 section whose binary is bin encrypted the way
// N3DS firmwares ship it. key96 selects the 9.6+ scheme.
func ARM9Section(bin []byte, key96 bool) []byte {
	hdr := make([]byte, firm.ARM9BinOffset)
	seed := crypto.KeyOld
	keyXField := hdr[0x00:0x10]
	if key96 {
		seed = crypto.Key96
		keyXField = hdr[0x60:0x70]
	}
	b, _ := aes.NewCipher(seed)
	b.Encrypt(keyXField, ARM9BinKeyX)
	copy(hdr[0x10:], ARM9BinKeyY)
	copy(hdr[0x20:], ARM9BinCTR)
	copy(hdr[0x30:0x38], fmt.Sprintf("%d", len(bin)))

	enc := append([]byte(nil), bin...)
	normal := crypto.ScrambleKey(ARM9BinKeyX, ARM9BinKeyY)
	b, _ = aes.NewCipher(normal[:])
	cipher.NewCTR(b, ARM9BinCTR).XORKeyStream(enc, enc)
	return append(hdr, enc...)
}

// ARM9Binary returns a plaintext ARM9 binary of n bytes starting with magic.
func ARM9Binary(magic uint32, n int) []byte {
	bin := bytes.Repeat([]byte{0xA9}, n)
	binary.LittleEndian.PutUint32(bin, magic)
	return bin
}

func pad(b []byte, align int) []byte {
	b = append([]byte(nil), b...)
	if r := len(b) % align; r != 0 {
		b = append(b, make([]byte, align-r)...)
	}
	return b
}
