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

// Package chainload launches homebrew FIRM payloads in place of the system
// firmware.
package chainload

import (
	"fmt"
	"path"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/handoff"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/ui"
	"github.com/golang/glog"
)

const (
	// PayloadBase is the physical address payloads are read to.
	PayloadBase = 0x20001000
	// PayloadLimit is the first address past the payload buffer.
	PayloadLimit = 0x27FFE000
	// MaxPayloadSize is the most a payload may occupy.
	MaxPayloadSize = PayloadLimit - PayloadBase
	// MinPayloadSize is the size below which a payload can't be a FIRM: it
	// would be all header.
	MinPayloadSize = firm.HeaderSize
)

// Loader loads and launches payloads.
type Loader struct {
	Storage  storage.Storage
	Menu     ui.Menu
	Display  ui.Display
	Platform hal.Platform
	// SDMode reports whether payloads come from the SD card rather than the
	// internal storage.
	SDMode bool
}

// AbsPath returns the path a payload at p is known by to the payload itself.
func AbsPath(p string, sdMode bool) string {
	if sdMode {
		return "sdmc:/luma/" + p
	}
	return "nand:/rw/luma/" + p
}

func invalid(err error, k status.Kind) error {
	return status.New(k, "An error has occurred", "The payload is invalid or corrupted.", err)
}

// Load launches the payload bound to the pressed buttons, or the one picked
// from the menu if pressed is zero. It returns false if no payload was
// selected.
func (l *Loader) Load(pressed uint32) (bool, error) {
	p, menuShown, found := l.Menu.SelectPayload(pressed)
	if !found {
		return false, nil
	}

	payload, err := l.read(p)
	if err != nil {
		title, detail := status.Message(err)
		l.Display.Message(title, detail)
		return true, err
	}
	h, err := firm.ParseHeader(payload)
	if err != nil {
		return true, invalid(err, status.FormatError)
	}

	argv := hal.Argv{Path: AbsPath(p, l.SDMode)}
	argc := 1
	if h.WantsScreenInit() {
		screens := l.Platform.Screens()
		// The menu leaves the displays on.
		if !menuShown && !screens.Initialized() {
			if err := screens.Init(); err != nil {
				return true, fmt.Errorf("failed to initialise the displays: %w", err)
			}
		}
		argv.Framebuffers = screens.Framebuffers()
		argc = 2
	}

	glog.Infof("Launching %s", argv.Path)
	for _, s := range h.Populated() {
		if s.Size == 0 {
			continue
		}
		data, err := firm.SectionData(payload, s)
		if err != nil {
			return true, invalid(err, status.FormatError)
		}
		if err := l.Platform.WriteMemory(s.Address, data); err != nil {
			return true, fmt.Errorf("failed to copy section to 0x%08x: %w", s.Address, err)
		}
	}
	if h.ARM11Entry != 0 {
		handoff.RedirectSecondary(l.Platform, h.ARM11Entry)
	}
	return true, l.Platform.Launch(h.ARM9Entry, argc, argv)
}

// read loads and validates the payload at p.
func (l *Loader) read(p string) ([]byte, error) {
	payload, err := l.Storage.ReadFile(p, MaxPayloadSize)
	if err != nil {
		return nil, invalid(err, status.IOError)
	}
	if len(payload) <= MinPayloadSize {
		return nil, invalid(fmt.Errorf("%s is only %d bytes", path.Base(p), len(payload)), status.SizeError)
	}
	if err := firm.Check(payload, PayloadBase); err != nil {
		return nil, invalid(err, status.FormatError)
	}
	return payload, nil
}
