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

// Package impl is the implementation of the firmboot emulator.
package impl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cakesfw/firmboot/internal/boot"
	"github.com/cakesfw/firmboot/internal/chainload"
	"github.com/cakesfw/firmboot/internal/config"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/hal/sim"
	"github.com/cakesfw/firmboot/internal/handoff"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/loader"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/ui"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// MaxSigDBSize bounds the signature table file.
const MaxSigDBSize = 0x100000

// EmulatorOpts encapsulates the parameters for running the emulator.
type EmulatorOpts struct {
	ConfigPath string
	StorageDir string
	Ext4Image  string
	// Buttons is the mask of buttons held at boot.
	Buttons uint32
	// Menu opens the payload menu.
	Menu bool

	// Platform, if set, is used instead of a fresh simulated console.
	Platform *sim.Platform
}

// Chain represents the next stage in the boot process.
type Chain func() error

// Main is the entry point for the emulator.
func Main(ctx context.Context, opts EmulatorOpts) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	st, closeStorage, err := openStorage(opts)
	if err != nil {
		return err
	}
	defer closeStorage()

	p := opts.Platform
	if p == nil {
		p = sim.New()
	}
	chain, err := Reset(cfg, st, p, opts)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := Run(ctx, p, chain); err != nil {
		return err
	}

	for _, l := range p.Launches() {
		glog.Infof("ARM9 launched at 0x%08x, argc %d, argv %+v", l.Entry, l.Argc, l.Argv)
	}
	if e, ok := p.ARM11Entry(); ok {
		glog.Infof("ARM11 launched at 0x%08x", e)
	}
	return nil
}

// Run executes chain while p's secondary core runs alongside it.
//
// The secondary core is stopped once chain has returned without handing it
// an entrypoint.
func Run(ctx context.Context, p *sim.Platform, chain Chain) error {
	g, gctx := errgroup.WithContext(ctx)
	secCtx, stopSecondary := context.WithCancel(gctx)
	defer stopSecondary()

	g.Go(func() error {
		err := p.RunSecondary(secCtx)
		if err != nil && errors.Is(err, context.Canceled) && gctx.Err() == nil {
			glog.Info("Secondary core left alone")
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := chain(); err != nil {
			return err
		}
		if p.ReadRegister(hal.ARM11Entry2) == 0 {
			stopSecondary()
		}
		return nil
	})
	return g.Wait()
}

func openStorage(opts EmulatorOpts) (storage.Storage, func(), error) {
	if opts.Ext4Image != "" {
		f, err := os.Open(opts.Ext4Image)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ext4 image: %w", err)
		}
		glog.Infof("Using read-only ext4 image %q", opts.Ext4Image)
		return storage.NewExt4(f), func() { f.Close() }, nil
	}
	if opts.StorageDir == "" {
		return nil, nil, errors.New("one of --storage_dir or --ext4_image is required")
	}
	st, err := storage.NewDir(opts.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {}, nil
}

// LoadSigDB reads the signature tables named by cfg from st. Tables are
// verified against cfg.SigDBKey if one is set. A missing table file yields
// empty tables, which identify nothing.
func LoadSigDB(st storage.Storage, cfg *config.Config) (sigdb.DB, error) {
	if !st.Exists(cfg.SigDB) {
		glog.Warningf("No signature tables at %s, no firmware will be identified", cfg.SigDB)
		return sigdb.Parse("")
	}
	raw, err := st.ReadFile(cfg.SigDB, MaxSigDBSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature tables: %w", err)
	}
	if cfg.SigDBKey == "" {
		return sigdb.Parse(string(raw))
	}
	v, err := sigdb.NewVerifier(cfg.SigDBKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sigdb_key: %w", err)
	}
	return sigdb.ParseSigned(raw, v)
}

// Reset emulates the boot ROM handing over to the bootloader. It sets up
// the pipeline over st and p and returns the first link in the boot chain:
// the payload chainloader when buttons are held or the menu was asked for,
// otherwise the firmware boot.
func Reset(cfg *config.Config, st storage.Storage, p hal.Platform, opts EmulatorOpts) (Chain, error) {
	glog.Info("----RESET----")
	display := ui.LogDisplay{}

	if opts.Buttons != 0 || opts.Menu {
		payloads, err := cfg.ButtonPayloads()
		if err != nil {
			return nil, err
		}
		cl := &chainload.Loader{
			Storage:  st,
			Menu:     ui.ButtonMenu{Dir: cfg.PayloadDir, Payloads: payloads, Default: cfg.DefaultPayload},
			Display:  display,
			Platform: p,
			SDMode:   cfg.SDMode,
		}
		return func() error {
			launched, err := cl.Load(opts.Buttons)
			if err != nil {
				return fmt.Errorf("chainload: %w", err)
			}
			if !launched {
				return fmt.Errorf("no payload bound to buttons 0x%03X", opts.Buttons)
			}
			return nil
		}, nil
	}

	db, err := LoadSigDB(st, cfg)
	if err != nil {
		return nil, err
	}
	eng, err := cfg.NewEngine()
	if err != nil {
		return nil, err
	}
	extra, err := cfg.Seeds()
	if err != nil {
		return nil, err
	}
	slots := keys.NewSlots(eng)
	b := &boot.Booter{
		Loader:   loader.New(st, keys.NewProvider(st, slots), db, display, cfg),
		Patcher:  boot.NopPatcher{},
		Storage:  st,
		Display:  display,
		Platform: p,
		Config:   cfg,
		Seeds:    handoff.DefaultSeeds().With(extra),
	}
	return func() error {
		ctx := boot.NewContext(slots, cfg)
		if err := b.LoadAll(ctx); err != nil {
			return fmt.Errorf("load: %w", err)
		}
		if err := b.PrepareAndBoot(ctx); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		return nil
	}, nil
}
