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

// Package loader reads a firmware family from storage and brings it into a
// bootable state: decrypted, identified and with its entrypoint fixed up.
package loader

import (
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/config"
	"github.com/cakesfw/firmboot/internal/decrypt"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/ui"
	"github.com/golang/glog"
)

const (
	// NativeARM9Entry replaces the ARM9 entrypoint of N3DS NATIVE_FIRMs,
	// skipping the ARM9 loader stage.
	NativeARM9Entry = 0x0801B01C
	// LegacyARM9Entry replaces the ARM9 entrypoint of N3DS TWL_FIRMs and
	// AGB_FIRMs.
	LegacyARM9Entry = 0x0801301C
)

// Capacity returns the size of the buffer family f is loaded into.
func Capacity(f firm.Family) int {
	if f == firm.TWL {
		return 2 << 20
	}
	return 1 << 20
}

// ARM9EntryFor returns the entrypoint an N3DS firmware of family f is
// started at.
func ARM9EntryFor(f firm.Family) uint32 {
	if f.Legacy() {
		return LegacyARM9Entry
	}
	return NativeARM9Entry
}

// Firmware is a loaded firmware family.
type Firmware struct {
	Family firm.Family
	Image  []byte
	// Sig identifies Image. It is nil when the family is absent.
	Sig *sigdb.Signature
}

// Present reports whether the family was loaded.
func (f *Firmware) Present() bool {
	return f != nil && f.Sig != nil
}

// Loader loads firmware families from storage.
type Loader struct {
	Storage  storage.Storage
	Provider *keys.Provider
	DB       sigdb.DB
	Display  ui.Display
	Config   *config.Config
}

// New returns a Loader.
func New(st storage.Storage, p *keys.Provider, db sigdb.DB, d ui.Display, c *config.Config) *Loader {
	return &Loader{Storage: st, Provider: p, DB: db, Display: d, Config: c}
}

// state is the progress of a single Load.
type state struct {
	f       firm.Family
	paths   config.Paths
	img     []byte
	sig     sigdb.Signature
	changed bool
}

// Load reads family f and prepares it for booting.
//
// For TWL_FIRM and AGB_FIRM, failures to find, decrypt or unwrap the
// firmware are wrapped with status.Skippable: the family can be left out of
// the boot. An unknown version or a broken ARM9 binary is never skippable.
func (l *Loader) Load(f firm.Family) (*Firmware, error) {
	s := &state{f: f, paths: l.Config.PathsFor(f)}
	for _, step := range []func(*state) error{
		l.read,
		l.decrypt,
		l.identify,
		l.decryptARM9Bin,
		l.fixEntrypoint,
		l.persist,
	} {
		if err := step(s); err != nil {
			return nil, err
		}
	}
	sig := s.sig
	return &Firmware{Family: f, Image: s.img, Sig: &sig}, nil
}

// skippable marks err as tolerable when loading a legacy family.
func (s *state) skippable(err error) error {
	if s.f.Legacy() {
		return status.Skippable(err)
	}
	return err
}

func (l *Loader) read(s *state) error {
	img, err := l.Storage.ReadFile(s.paths.Firmware, Capacity(s.f))
	if err != nil {
		glog.Infof("Failed to load %v: %v", s.f, err)
		// Only NATIVE_FIRM is worth complaining about.
		if s.f == firm.Native {
			l.Display.Loading("Failed to load FIRM", "Make sure the encrypted FIRM is\nlocated at "+s.paths.Firmware)
		}
		return s.skippable(status.New(status.IOError, "Failed to load FIRM",
			"Make sure the encrypted FIRM is\nlocated at "+s.paths.Firmware, err))
	}
	glog.Infof("Loaded %v", s.f)
	s.img = img
	return nil
}

func (l *Loader) decrypt(s *state) error {
	if firm.HasMagic(s.img) {
		glog.Info("FIRM seems not encrypted")
		return nil
	}

	key, err := l.Provider.ResolveTitleKey(s.paths.FirmKey, s.paths.CETK)
	if err != nil {
		if status.KindOf(err) != status.IOError || s.f == firm.Native {
			title, detail := status.Message(err)
			l.Display.Loading(title, detail)
		}
		return s.skippable(err)
	}

	glog.Info("Decrypting FIRM")
	img, err := decrypt.OuterContainer(l.Provider.Slots.Engine(), s.img, key)
	if err != nil {
		title, detail := status.Message(err)
		l.Display.Loading(title, detail)
		return s.skippable(err)
	}
	s.img = img
	s.changed = true
	return nil
}

func (l *Loader) identify(s *state) error {
	sig, ok := l.DB.Identify(s.img, s.f)
	if !ok {
		glog.Info("Couldn't determine firmware version")
		detail := "The firmware you're trying to use is\nmost probably not supported.\nDumping it to your SD card:\n" + l.Config.Unsupported
		l.Display.Loading("Couldn't determine firmware version", detail)
		if err := l.Storage.WriteFile(l.Config.Unsupported, s.img); err != nil {
			glog.Warningf("Failed to dump unsupported firmware to %s: %v", l.Config.Unsupported, err)
		} else {
			glog.Info("Dumped unsupported firmware")
		}
		return status.New(status.VersionError, "Couldn't determine firmware version", detail, nil)
	}
	glog.Infof("%v version: %v", s.f, sig)
	s.sig = sig
	return nil
}

func (l *Loader) decryptARM9Bin(s *state) error {
	if s.sig.Console != sigdb.N3DS {
		return nil
	}
	changed, err := decrypt.ARM9Section(l.Provider.Slots, s.img, s.f, s.sig.Version)
	if err != nil {
		return arm9BinError(err)
	}
	s.changed = s.changed || changed
	return nil
}

func arm9BinError(err error) error {
	return status.New(status.FormatError, "Couldn't decrypt ARM9 FIRM binary",
		"Double-check you've got the right firmware.bin.\nIt can't be decrypted on an old 3DS.", err)
}

func (l *Loader) fixEntrypoint(s *state) error {
	if s.sig.Console != sigdb.N3DS {
		return nil
	}
	glog.Info("Fixing arm9 entrypoint...")
	firm.SetARM9Entry(s.img, ARM9EntryFor(s.f))
	return nil
}

func (l *Loader) persist(s *state) error {
	if !s.changed {
		return nil
	}
	glog.Info("Saving decrypted FIRM")
	if err := l.Storage.WriteFile(s.paths.Firmware, s.img); err != nil {
		glog.Warningf("Failed to save decrypted %v to %s: %v", s.f, s.paths.Firmware, err)
	}
	return nil
}

// String describes the outcome of loading a family, for logging.
func (f *Firmware) String() string {
	if !f.Present() {
		return "absent"
	}
	return fmt.Sprintf("%v %v, %d bytes", f.Family, *f.Sig, len(f.Image))
}
