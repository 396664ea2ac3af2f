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

// Package handoff copies a verified FIRM into physical memory and transfers
// control to it. Nothing here can be undone once memory has been written.
package handoff

import (
	"fmt"
	"runtime"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/decrypt"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/golang/glog"
)

// Request is everything needed to boot a NATIVE_FIRM.
type Request struct {
	// Image is the patched NATIVE_FIRM. The keyX seed in it is modified
	// while the keyX slots are derived.
	Image []byte
	// Signature identifies Image.
	Signature sigdb.Signature
	// Snapshot is the memory snapshot to restore; it may be empty.
	Snapshot []byte
	// Seeds locates the keyX seed of 9.6+ N3DS firmwares.
	Seeds Seeds
}

type section struct {
	addr uint32
	data []byte
}

// plan is a validated Request.
type plan struct {
	keyData    []byte
	blocks     []firm.MemoryBlock
	sections   []section
	arm9Entry  uint32
	arm11Entry uint32
}

// NeedsKeyXSlots reports whether booting a firmware identified as sig must
// first populate the keyX slots 0x19 to 0x1F.
func NeedsKeyXSlots(slots *keys.Slots, sig sigdb.Signature) bool {
	return slots.Key96Registered() && sig.Console == sigdb.N3DS && decrypt.UsesKey96(firm.Native, sig.Version)
}

func (r *Request) plan(slots *keys.Slots) (*plan, error) {
	h, err := firm.ParseHeader(r.Image)
	if err != nil {
		return nil, status.New(status.FormatError, "Failed to boot the FIRM", "The firmware seems to be corrupted.", err)
	}
	p := &plan{arm9Entry: h.ARM9Entry, arm11Entry: h.ARM11Entry}

	if NeedsKeyXSlots(slots, r.Signature) {
		off, err := r.Seeds.Offset(r.Signature.Version)
		if err != nil {
			return nil, err
		}
		s := h.Sections[SeedSection]
		start := uint64(s.Offset) + uint64(off)
		if start+crypto.BlockSize > uint64(len(r.Image)) {
			return nil, status.New(status.FormatError, "Failed to boot the FIRM", "The firmware seems to be corrupted.",
				fmt.Errorf("keyX seed at 0x%x lies outside the %d byte image", start, len(r.Image)))
		}
		p.keyData = r.Image[start : start+crypto.BlockSize]
	}

	if len(r.Snapshot) > 0 {
		if p.blocks, err = firm.ParseSnapshot(r.Snapshot); err != nil {
			return nil, status.New(status.FormatError, "Failed to boot the FIRM", "The memory snapshot is corrupted.", err)
		}
	}

	for i, s := range h.Populated() {
		data, err := firm.SectionData(r.Image, s)
		if err != nil {
			return nil, status.New(status.FormatError, "Failed to boot the FIRM", "The firmware seems to be corrupted.",
				fmt.Errorf("section %d: %w", i, err))
		}
		p.sections = append(p.sections, section{addr: s.Address, data: data})
	}
	return p, nil
}

// Boot boots the NATIVE_FIRM described by r on p.
//
// The request is validated in full before anything is written to memory, so
// an error means the machine is untouched. On hardware a successful Boot
// does not return.
func Boot(p hal.Platform, slots *keys.Slots, r *Request) error {
	glog.Info("Booting FIRM...")
	pl, err := r.plan(slots)
	if err != nil {
		return err
	}

	if pl.keyData != nil {
		if err := deriveKeyXSlots(slots, pl.keyData); err != nil {
			return status.New(status.CryptoError, "Failed to boot the FIRM", "The keyX slots could not be set up.", err)
		}
		glog.Info("Updated keyX keyslots")
	}

	glog.Info("Started copying")
	for _, b := range pl.blocks {
		if err := p.WriteMemory(b.Location, b.Data); err != nil {
			return fmt.Errorf("failed to restore memory at 0x%08x: %w", b.Location, err)
		}
	}
	glog.Info("Copied memory")

	for _, s := range pl.sections {
		if err := p.WriteMemory(s.addr, s.data); err != nil {
			return fmt.Errorf("failed to copy section to 0x%08x: %w", s.addr, err)
		}
	}
	glog.Info("Copied FIRM")

	RedirectSecondary(p, pl.arm11Entry)
	glog.Info("Prepared arm11 entry")

	glog.Info("Booting...")
	return p.Launch(pl.arm9Entry, 0, hal.Argv{})
}

// deriveKeyXSlots fills the keyX slots from the seed in keyData, bumping its
// last byte after each slot.
func deriveKeyXSlots(slots *keys.Slots, keyData []byte) error {
	if err := slots.RegisterKey96(); err != nil {
		return err
	}
	eng := slots.Engine()
	keyX := make([]byte, crypto.BlockSize)
	for slot := crypto.SlotFirstKeyX; slot < crypto.SlotLastKeyX; slot++ {
		if err := eng.DecryptECB(crypto.SlotKey96, keyX, keyData); err != nil {
			return fmt.Errorf("failed to derive keyX for slot 0x%02X: %w", slot, err)
		}
		if err := eng.SetKey(slot, crypto.KeyX, keyX); err != nil {
			return fmt.Errorf("failed to set keyX for slot 0x%02X: %w", slot, err)
		}
		keyData[crypto.BlockSize-1]++
	}
	return nil
}

// RedirectSecondary sends the secondary core through the display shutdown
// routine and then on to entry.
//
// Both mailboxes are pointed at the routine; once the routine has cleared
// ARM11Entry it is waiting for a new value there, which is then set to entry.
// The wait is unbounded.
func RedirectSecondary(p hal.Platform, entry uint32) {
	routine := p.SecondaryRoutine()
	p.WriteRegister(hal.ARM11Entry, routine)
	p.WriteRegister(hal.ARM11Entry2, routine)
	for p.ReadRegister(hal.ARM11Entry) != 0 {
		runtime.Gosched()
	}
	p.WriteRegister(hal.ARM11Entry, entry)
}
