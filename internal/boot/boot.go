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

// Package boot sequences a full boot: loading the three firmware families,
// patching, saving the artifacts autoboot relies on, and the handoff.
package boot

import (
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/config"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/handoff"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/loader"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/ui"
	"github.com/golang/glog"
)

// MaxSnapshotSize bounds how much of a saved memory snapshot is read.
const MaxSnapshotSize = 0x100000

// Context is the state of one boot. There is one per process.
type Context struct {
	Native, TWL, AGB *loader.Firmware
	// Snapshot is the memory snapshot restored at handoff.
	Snapshot []byte

	ForceSave       bool
	PatchesModified bool
	Autoboot        bool

	Slots *keys.Slots
}

// NewContext returns a Context with every family absent and an empty memory
// snapshot.
func NewContext(slots *keys.Slots, c *config.Config) *Context {
	return &Context{
		Native:          &loader.Firmware{Family: firm.Native},
		TWL:             &loader.Firmware{Family: firm.TWL},
		AGB:             &loader.Firmware{Family: firm.AGB},
		Snapshot:        firm.BuildSnapshot(nil),
		ForceSave:       c.ForceSave,
		PatchesModified: c.PatchesModified,
		Autoboot:        c.Autoboot,
		Slots:           slots,
	}
}

// Firmware returns the loaded firmware of family f.
func (c *Context) Firmware(f firm.Family) *loader.Firmware {
	switch f {
	case firm.TWL:
		return c.TWL
	case firm.AGB:
		return c.AGB
	}
	return c.Native
}

func (c *Context) set(fw *loader.Firmware) {
	switch fw.Family {
	case firm.TWL:
		c.TWL = fw
	case firm.AGB:
		c.AGB = fw
	default:
		c.Native = fw
	}
}

// Patcher applies the selected patches to the loaded firmwares. It may
// replace any image and the memory snapshot in the Context.
type Patcher interface {
	Patch(ctx *Context) error
}

// NopPatcher applies no patches.
type NopPatcher struct{}

// Patch implements Patcher.
func (NopPatcher) Patch(*Context) error {
	glog.Info("No patches to apply")
	return nil
}

// Booter runs the boot sequence.
type Booter struct {
	Loader   *loader.Loader
	Patcher  Patcher
	Storage  storage.Storage
	Display  ui.Display
	Platform hal.Platform
	Config   *config.Config
	Seeds    handoff.Seeds
}

// fail shows err on the display and returns it.
func (b *Booter) fail(err error) error {
	title, detail := status.Message(err)
	b.Display.Message(title, detail)
	return err
}

// LoadAll loads NATIVE_FIRM, then TWL_FIRM and AGB_FIRM, into ctx.
//
// Any NATIVE_FIRM failure aborts the boot. A legacy family is left absent
// unless its failure is fatal. A saved memory snapshot, if present, is also
// loaded.
func (b *Booter) LoadAll(ctx *Context) error {
	const title = "Loading firm"
	for _, f := range []firm.Family{firm.Native, firm.TWL, firm.AGB} {
		glog.Infof("Loading %v...", f)
		b.Display.Loading(title, fmt.Sprintf("Loading %v...", f))
		fw, err := b.Loader.Load(f)
		if err != nil {
			if f.Legacy() && status.Classify(err) != status.Fatal {
				glog.Infof("%v left out: %v", f, err)
				continue
			}
			glog.Errorf("FIRM that failed: %v", f)
			return b.fail(err)
		}
		ctx.set(fw)
		glog.Infof("Loaded %v", fw)
	}

	if b.Storage.Exists(b.Config.Memory) {
		m, err := b.Storage.ReadFile(b.Config.Memory, MaxSnapshotSize)
		if err != nil {
			glog.Warningf("Failed to read memory snapshot %s: %v", b.Config.Memory, err)
		} else {
			ctx.Snapshot = m
		}
	}
	return nil
}

// shouldSave reports whether the artifact at path must be written: always
// when saving is forced, otherwise only for autoboot, if the patches changed
// or the artifact is missing.
func (b *Booter) shouldSave(ctx *Context, path string) bool {
	return ctx.ForceSave || (ctx.Autoboot && (ctx.PatchesModified || !b.Storage.Exists(path)))
}

func (b *Booter) save(ctx *Context, what, path string, data []byte, detail string) error {
	if !b.shouldSave(ctx, path) {
		return nil
	}
	b.Display.Loading("Booting CFW", "Saving "+what+"...")
	glog.Infof("Saving %s to %s", what, path)
	if err := b.Storage.WriteFile(path, data); err != nil {
		return b.fail(status.New(status.IOError, "Failed to save the patched FIRM", detail,
			fmt.Errorf("failed to write %s: %w", path, err)))
	}
	return nil
}

// PrepareAndBoot patches the loaded firmwares, saves the artifacts autoboot
// needs and boots NATIVE_FIRM. It only returns on failure, or when the
// platform is emulated.
func (b *Booter) PrepareAndBoot(ctx *Context) error {
	if !ctx.Native.Present() {
		return b.fail(status.New(status.IOError, "Failed to boot the FIRM", "NATIVE_FIRM has not been loaded.", nil))
	}

	b.Display.Loading("Booting CFW", "Patching...")
	if err := b.Patcher.Patch(ctx); err != nil {
		return b.fail(fmt.Errorf("failed to apply patches: %w", err))
	}

	const sdFailed = "For some reason, we haven't been able to write to the SD card."
	if err := b.save(ctx, "NATIVE_FIRM", b.Config.Native.Patched, ctx.Native.Image,
		"One or more patches you selected requires this.\nBut, for some reason, we failed to write it."); err != nil {
		return err
	}
	if err := b.save(ctx, "memory", b.Config.Memory, ctx.Snapshot, sdFailed); err != nil {
		return err
	}
	for _, fw := range []*loader.Firmware{ctx.TWL, ctx.AGB} {
		if !fw.Present() {
			continue
		}
		if err := b.save(ctx, fw.Family.String(), b.Config.PathsFor(fw.Family).Patched, fw.Image, sdFailed); err != nil {
			return err
		}
	}

	b.Display.Loading("Booting CFW", "Booting...")
	err := handoff.Boot(b.Platform, ctx.Slots, &handoff.Request{
		Image:     ctx.Native.Image,
		Signature: *ctx.Native.Sig,
		Snapshot:  ctx.Snapshot,
		Seeds:     b.Seeds,
	})
	if err != nil {
		return b.fail(err)
	}
	return nil
}
