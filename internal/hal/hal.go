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

// Package hal is the hardware boundary of the boot pipeline: physical
// memory, the cross-core mailboxes, the displays, the NAND and the launch
// trampoline.
package hal

import "fmt"

// Register names a hardware word the pipeline reads or writes.
type Register int

const (
	// ARM11Entry is the mailbox the secondary core polls for its next
	// entrypoint (0x1FFFFFF8 on hardware).
	ARM11Entry Register = iota
	// ARM11Entry2 is the secondary entry mailbox (0x1FFFFFFC on hardware).
	ARM11Entry2
)

func (r Register) String() string {
	switch r {
	case ARM11Entry:
		return "ARM11Entry"
	case ARM11Entry2:
		return "ARM11Entry2"
	}
	return fmt.Sprintf("Register(%d)", int(r))
}

// Argv is the argument vector passed to a launched payload.
type Argv struct {
	// Path is the absolute path the payload was loaded from.
	Path string
	// Framebuffers is the address of the framebuffer descriptor, passed
	// only when the displays were initialised for the payload.
	Framebuffers uint32
}

// Screens is the display stack.
type Screens interface {
	// Initialized reports whether the displays are already on.
	Initialized() bool
	// Init turns the displays on.
	Init() error
	// Framebuffers returns the address of the framebuffer descriptor.
	Framebuffers() uint32
}

// Platform is the set of hardware operations the pipeline depends on.
type Platform interface {
	// WriteMemory copies data to physical address addr.
	WriteMemory(addr uint32, data []byte) error
	// ReadRegister returns the current value of r.
	ReadRegister(r Register) uint32
	// WriteRegister stores v in r. The write is visible to the other core
	// before WriteRegister returns.
	WriteRegister(r Register, v uint32)
	// SecondaryRoutine returns the address of the fixed routine the
	// secondary core runs to switch off the displays before handoff.
	SecondaryRoutine() uint32
	// Screens returns the display stack.
	Screens() Screens
	// Launch jumps to entry on the primary core with the given arguments.
	// On hardware it does not return; a nil error from an emulated platform
	// means control was handed over.
	Launch(entry uint32, argc int, argv Argv) error
}

// NANDSectorSize is the unit NAND reads are made in.
const NANDSectorSize = 0x200

// NAND is the console's internal storage, read below any filesystem.
type NAND interface {
	// ReadSectors fills buf, which must be a whole number of sectors long,
	// starting at sector.
	ReadSectors(sector uint32, buf []byte) error
	// CID returns the NAND chip's card identification register.
	CID() [16]byte
}
