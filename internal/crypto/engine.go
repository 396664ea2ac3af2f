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

// Package crypto describes the AES engine capability the boot pipeline
// depends on, and provides a software engine with the same key-slot
// semantics for running the pipeline off-device.
package crypto

// BlockSize is the AES block size.
const BlockSize = 16

// Key slots used by the boot pipeline.
const (
	// SlotNAND decrypts the NAND FIRM partitions; its key is set by the boot
	// ROM.
	SlotNAND uint8 = 0x06
	// SlotKey96 holds the key used to unwrap ARM9 binary keyX values.
	SlotKey96 uint8 = 0x11
	// SlotARM9BinOld decrypts ARM9 binaries of pre-9.6 firmwares.
	SlotARM9BinOld uint8 = 0x15
	// SlotARM9BinNew decrypts ARM9 binaries of 9.6+ firmwares.
	SlotARM9BinNew uint8 = 0x16
	// SlotTitleKey holds the ticket-derived title key while a container is
	// decrypted. It shares its number with SlotARM9BinNew.
	SlotTitleKey uint8 = 0x16
	// SlotFirstKeyX and SlotLastKeyX bound the keyX slots populated just
	// before a 9.6+ NATIVE_FIRM is launched (inclusive, exclusive).
	SlotFirstKeyX uint8 = 0x19
	SlotLastKeyX  uint8 = 0x20
	// SlotExeFS decrypts the ExeFS of a title container; keyX is set by the
	// boot ROM.
	SlotExeFS uint8 = 0x2C
	// SlotCommonKey decrypts ticket title keys; keyX is set by the boot ROM.
	SlotCommonKey uint8 = 0x3D

	// NumSlots is the number of hardware key slots.
	NumSlots = 0x40
)

// KeyType selects which half of a key slot a SetKey call writes.
type KeyType int

const (
	// KeyNormal is the key used directly for cipher operations.
	KeyNormal KeyType = iota
	// KeyX is the first input to the key scrambler.
	KeyX
	// KeyY is the second input to the key scrambler; writing it generates
	// the slot's normal key from the current keyX.
	KeyY
)

// Engine is the AES engine as seen by the boot pipeline: keys are addressed
// by slot number, never by value.
type Engine interface {
	// SetKey writes key into the given half of slot.
	SetKey(slot uint8, typ KeyType, key []byte) error
	// DecryptCBC decrypts buf in place with slot's normal key.
	DecryptCBC(slot uint8, iv []byte, buf []byte) error
	// CryptCTR encrypts or decrypts buf in place with slot's normal key,
	// using a big-endian 128-bit counter starting at ctr.
	CryptCTR(slot uint8, ctr []byte, buf []byte) error
	// DecryptECB decrypts the whole blocks of src into dst.
	DecryptECB(slot uint8, dst, src []byte) error
}
