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

// Package sim is a host-side simulation of the boot hardware: a sparse
// physical memory, the two cross-core mailboxes and a secondary core that
// follows the handoff protocol.
package sim

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/golang/glog"
)

const (
	pageSize = 0x1000

	// DefaultSecondaryRoutine is where the display shutdown routine lives.
	DefaultSecondaryRoutine = 0x1FFF4C80
	// DefaultFramebuffers is the address of the framebuffer descriptor.
	DefaultFramebuffers = 0x23FFFE00
)

// Launch records a call to Platform.Launch.
type Launch struct {
	Entry uint32
	Argc  int
	Argv  hal.Argv
}

// Platform is a simulated hal.Platform. The zero value is not usable; use
// New.
type Platform struct {
	routine uint32

	mu       sync.Mutex
	pages    map[uint32]*[pageSize]byte
	writes   int
	launches []Launch

	mailbox [2]atomic.Uint32
	screens *Screens

	arm11Jumped chan struct{}
	arm11Entry  atomic.Uint32
}

// New returns a Platform with empty memory and displays off.
func New() *Platform {
	return &Platform{
		routine:     DefaultSecondaryRoutine,
		pages:       make(map[uint32]*[pageSize]byte),
		screens:     &Screens{fbs: DefaultFramebuffers},
		arm11Jumped: make(chan struct{}),
	}
}

// WriteMemory implements hal.Platform.
func (p *Platform) WriteMemory(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > 1<<32 {
		return fmt.Errorf("write of 0x%x bytes at 0x%08x wraps the address space", len(data), addr)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	for len(data) > 0 {
		page, off := addr&^(pageSize-1), addr&(pageSize-1)
		pg, ok := p.pages[page]
		if !ok {
			pg = new([pageSize]byte)
			p.pages[page] = pg
		}
		n := copy(pg[off:], data)
		data = data[n:]
		addr += uint32(n)
	}
	return nil
}

// ReadMemory returns n bytes of simulated memory at addr. Memory that was
// never written reads as zero.
func (p *Platform) ReadMemory(addr uint32, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, n)
	for i := 0; i < n; {
		a := addr + uint32(i)
		page, off := a&^(pageSize-1), a&(pageSize-1)
		c := pageSize - int(off)
		if c > n-i {
			c = n - i
		}
		if pg, ok := p.pages[page]; ok {
			copy(out[i:i+c], pg[off:])
		}
		i += c
	}
	return out
}

// MemoryWrites returns the number of WriteMemory calls made so far.
func (p *Platform) MemoryWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// ReadRegister implements hal.Platform.
func (p *Platform) ReadRegister(r hal.Register) uint32 {
	return p.mailbox[r].Load()
}

// WriteRegister implements hal.Platform.
func (p *Platform) WriteRegister(r hal.Register, v uint32) {
	p.mailbox[r].Store(v)
}

// SecondaryRoutine implements hal.Platform.
func (p *Platform) SecondaryRoutine() uint32 {
	return p.routine
}

// Screens implements hal.Platform.
func (p *Platform) Screens() hal.Screens {
	return p.screens
}

// Launch implements hal.Platform by recording the call.
func (p *Platform) Launch(entry uint32, argc int, argv hal.Argv) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	glog.Infof("sim: ARM9 jumping to 0x%08x (argc=%d, argv=%+v)", entry, argc, argv)
	p.launches = append(p.launches, Launch{Entry: entry, Argc: argc, Argv: argv})
	return nil
}

// Launches returns the recorded Launch calls.
func (p *Platform) Launches() []Launch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Launch(nil), p.launches...)
}

// RunSecondary plays the part of the secondary core until it has been
// handed its final entrypoint, or ctx is done.
//
// The core waits for the routine address to appear in ARM11Entry2, jumps to
// the routine, which clears ARM11Entry and switches the displays off, then
// waits for ARM11Entry to become non-zero and jumps there.
func (p *Platform) RunSecondary(ctx context.Context) error {
	v, err := p.await(ctx, hal.ARM11Entry2)
	if err != nil {
		return err
	}
	if v != p.routine {
		return fmt.Errorf("secondary core sent to 0x%08x, want routine at 0x%08x", v, p.routine)
	}
	glog.V(1).Infof("sim: ARM11 running routine at 0x%08x", v)
	p.mailbox[hal.ARM11Entry].Store(0)
	p.screens.off()

	entry, err := p.await(ctx, hal.ARM11Entry)
	if err != nil {
		return err
	}
	glog.Infof("sim: ARM11 jumping to 0x%08x", entry)
	p.arm11Entry.Store(entry)
	close(p.arm11Jumped)
	return nil
}

func (p *Platform) await(ctx context.Context, r hal.Register) (uint32, error) {
	for {
		if v := p.mailbox[r].Load(); v != 0 {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("secondary core waiting on %v: %w", r, ctx.Err())
		default:
			runtime.Gosched()
		}
	}
}

// ARM11Entry returns the address the secondary core jumped to, once
// RunSecondary has completed.
func (p *Platform) ARM11Entry() (uint32, bool) {
	select {
	case <-p.arm11Jumped:
		return p.arm11Entry.Load(), true
	default:
		return 0, false
	}
}

// Screens is the simulated display stack.
type Screens struct {
	mu    sync.Mutex
	on    bool
	inits int
	fbs   uint32
}

// Initialized implements hal.Screens.
func (s *Screens) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// Init implements hal.Screens.
func (s *Screens) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	s.inits++
	return nil
}

// Framebuffers implements hal.Screens.
func (s *Screens) Framebuffers() uint32 {
	return s.fbs
}

// Inits returns the number of times Init was called.
func (s *Screens) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

func (s *Screens) off() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = false
}

// SimScreens returns the concrete simulated display stack.
func (p *Platform) SimScreens() *Screens {
	return p.screens
}
