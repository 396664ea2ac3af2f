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

package impl_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cakesfw/firmboot/cmd/firmboot_emu/impl"
	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/config"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/hal/sim"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/testonly"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"golang.org/x/mod/sumdb/note"
)

const (
	arm9Entry  = 0x08006000
	arm11Entry = 0x1FF80000
)

var (
	titleKey = []byte("0123456789ABCDEF")
	titleID  = [8]byte{0x00, 0x04, 0x01, 0x38, 0x00, 0x00, 0x00, 0x02}
)

func write(t *testing.T, dir, p string, data []byte) {
	t.Helper()
	p = filepath.Join(dir, p)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func image(arm11 uint32) []byte {
	return testonly.FIRM{
		ARM9Entry:  arm9Entry,
		ARM11Entry: arm11,
		Sections: []testonly.Section{
			{Address: 0x08006000, Type: firm.SectionARM9, Data: bytes.Repeat([]byte{9}, 0x200)},
			{Address: 0x1FF80000, Type: firm.SectionARM11, Data: bytes.Repeat([]byte{11}, 0x200)},
		},
	}.Build()
}

// sdCard lays out a storage directory holding an encrypted NATIVE_FIRM and
// its ticket, and returns it along with a configuration file for it.
func sdCard(t *testing.T) (dir, cfgPath string, img []byte) {
	t.Helper()
	dir = t.TempDir()
	img = image(arm11Entry)
	write(t, dir, "cakes/firmware.bin", testonly.TitleContainer(img, titleKey, titleID))
	write(t, dir, "cakes/cetk", testonly.Ticket(titleKey, titleID))

	db := sigdb.DB{firm.Native: sigdb.NewTable(sigdb.Signature{
		Version: 0x2D, Console: sigdb.O3DS, Name: "9.0", Hash: testonly.Hash16(img, 0),
	})}
	write(t, dir, "cakes/signatures.txt", []byte(sigdb.Format(db)))

	cfgPath = filepath.Join(t.TempDir(), "firmboot.yaml")
	cfg := fmt.Sprintf(`autoboot: true
keyx:
  "0x3d": %q
  "0x2c": %q
payloads:
  "0x001": "x.firm"
`, hex.EncodeToString(testonly.CommonKeyX), hex.EncodeToString(testonly.ExeFSKeyX))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir, cfgPath, img
}

func run(t *testing.T, opts impl.EmulatorOpts) (*sim.Platform, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts.Platform = sim.New()
	return opts.Platform, impl.Main(ctx, opts)
}

func TestMainBootsFirmware(t *testing.T) {
	dir, cfgPath, img := sdCard(t)

	p, err := run(t, impl.EmulatorOpts{ConfigPath: cfgPath, StorageDir: dir})
	if err != nil {
		t.Fatalf("Main: %v", err)
	}

	want := []sim.Launch{{Entry: arm9Entry}}
	if diff := cmp.Diff(want, p.Launches()); diff != "" {
		t.Errorf("launches diff (-want +got):\n%s", diff)
	}
	if got, ok := p.ARM11Entry(); !ok || got != arm11Entry {
		t.Errorf("ARM11Entry() = 0x%08x, %v, want 0x%08x", got, ok, arm11Entry)
	}
	if got := p.ReadMemory(0x08006000, 0x200); !bytes.Equal(got, bytes.Repeat([]byte{9}, 0x200)) {
		t.Error("ARM9 section not written to memory")
	}

	for _, f := range []string{"cakes/firmware.bin", "cakes/patched_firmware.bin"} {
		got, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("ReadFile(%q): %v", f, err)
		}
		if !bytes.Equal(got, img) {
			t.Errorf("%s does not hold the decrypted FIRM", f)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "cakes/firmkey.bin")); err != nil {
		t.Errorf("title key not cached: %v", err)
	}
}

func TestMainChainloads(t *testing.T) {
	for _, test := range []struct {
		desc      string
		arm11     uint32
		wantARM11 bool
	}{
		{desc: "redirects secondary core", arm11: arm11Entry, wantARM11: true},
		{desc: "leaves secondary core alone"},
	} {
		t.Run(test.desc, func(t *testing.T) {
			dir, cfgPath, _ := sdCard(t)
			write(t, dir, "payloads/x.firm", image(test.arm11))

			p, err := run(t, impl.EmulatorOpts{ConfigPath: cfgPath, StorageDir: dir, Buttons: 0x001})
			if err != nil {
				t.Fatalf("Main: %v", err)
			}
			want := []sim.Launch{{Entry: arm9Entry, Argc: 1, Argv: hal.Argv{Path: "sdmc:/luma/payloads/x.firm"}}}
			if diff := cmp.Diff(want, p.Launches()); diff != "" {
				t.Errorf("launches diff (-want +got):\n%s", diff)
			}
			if _, ok := p.ARM11Entry(); ok != test.wantARM11 {
				t.Errorf("secondary core jumped = %v, want %v", ok, test.wantARM11)
			}
		})
	}
}

func TestMainErrors(t *testing.T) {
	for _, test := range []struct {
		desc  string
		setup func(t *testing.T, dir string)
		opts  func(dir, cfgPath string) impl.EmulatorOpts
	}{
		{
			desc: "no storage",
			opts: func(_, cfgPath string) impl.EmulatorOpts {
				return impl.EmulatorOpts{ConfigPath: cfgPath}
			},
		}, {
			desc: "missing config",
			opts: func(dir, _ string) impl.EmulatorOpts {
				return impl.EmulatorOpts{ConfigPath: filepath.Join(dir, "nope.yaml"), StorageDir: dir}
			},
		}, {
			desc: "missing ext4 image",
			opts: func(dir, cfgPath string) impl.EmulatorOpts {
				return impl.EmulatorOpts{ConfigPath: cfgPath, Ext4Image: filepath.Join(dir, "nope.img")}
			},
		}, {
			desc: "unknown firmware",
			setup: func(t *testing.T, dir string) {
				write(t, dir, "cakes/signatures.txt", nil)
			},
			opts: func(dir, cfgPath string) impl.EmulatorOpts {
				return impl.EmulatorOpts{ConfigPath: cfgPath, StorageDir: dir}
			},
		}, {
			desc: "no payload bound",
			opts: func(dir, cfgPath string) impl.EmulatorOpts {
				return impl.EmulatorOpts{ConfigPath: cfgPath, StorageDir: dir, Buttons: 0x800}
			},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			dir, cfgPath, _ := sdCard(t)
			if test.setup != nil {
				test.setup(t, dir)
			}
			p, err := run(t, test.opts(dir, cfgPath))
			if err == nil {
				t.Fatal("Main succeeded")
			}
			if got := p.Launches(); len(got) != 0 {
				t.Errorf("launched %v", got)
			}
		})
	}
}

func TestLoadSigDB(t *testing.T) {
	skey, vkey, err := note.GenerateKey(rand.Reader, "firmboot.test")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := note.NewSigner(skey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	const text = "native 2d o3ds 9.0 00112233445566778899aabbccddeeff\n"
	signed, err := note.Sign(&note.Note{Text: text}, signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	for _, test := range []struct {
		desc    string
		file    []byte
		key     string
		want    int
		wantErr bool
	}{
		{desc: "missing"},
		{desc: "plain", file: []byte(text), want: 1},
		{desc: "signed", file: signed, key: vkey, want: 1},
		{desc: "unsigned with key", file: []byte(text), key: vkey, wantErr: true},
		{desc: "bad key", file: signed, key: "garbage", wantErr: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			st := storage.NewFS(afero.NewMemMapFs())
			cfg := config.Default()
			cfg.SigDBKey = test.key
			if test.file != nil {
				if err := st.WriteFile(cfg.SigDB, test.file); err != nil {
					t.Fatalf("WriteFile: %v", err)
				}
			}
			db, err := impl.LoadSigDB(st, cfg)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("LoadSigDB: %v, wantErr %v", err, test.wantErr)
			}
			if err != nil {
				return
			}
			if got := db[firm.Native].Len(); got != test.want {
				t.Errorf("got %d native entries, want %d", got, test.want)
			}
		})
	}
}

func TestMainBootsFromExt4Image(t *testing.T) {
	// The image holds a plaintext copy of image(arm11Entry) and its
	// signature, so nothing needs to be written back.
	ext4Image := filepath.Join("..", "..", "..", "internal", "storage", "testdata", "sdcard.img")
	f, err := os.Open(ext4Image)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	onImage, err := storage.NewExt4(f).ReadFile("/cakes/firmware.bin", 1<<20)
	f.Close()
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(image(arm11Entry), onImage); diff != "" {
		t.Fatalf("firmware on image diff (-want +got):\n%s", diff)
	}

	cfgPath := filepath.Join(t.TempDir(), "firmboot.yaml")
	if err := os.WriteFile(cfgPath, []byte("autoboot: false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := run(t, impl.EmulatorOpts{ConfigPath: cfgPath, Ext4Image: ext4Image})
	if err != nil {
		t.Fatalf("Main: %v", err)
	}
	want := []sim.Launch{{Entry: arm9Entry}}
	if diff := cmp.Diff(want, p.Launches()); diff != "" {
		t.Errorf("launches diff (-want +got):\n%s", diff)
	}
	if got, ok := p.ARM11Entry(); !ok || got != arm11Entry {
		t.Errorf("ARM11Entry() = 0x%08x, %v, want 0x%08x", got, ok, arm11Entry)
	}
	if got := p.ReadMemory(0x1FF80000, 0x200); !bytes.Equal(got, bytes.Repeat([]byte{11}, 0x200)) {
		t.Error("ARM11 section not written to memory")
	}
}
