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

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/decrypt"
	"github.com/cakesfw/firmboot/internal/loader"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/cakesfw/firmboot/internal/testonly"
	"github.com/google/go-cmp/cmp"
)

var (
	titleKey = []byte("0123456789ABCDEF")
	titleID  = [8]byte{0x00, 0x04, 0x01, 0x38, 0x00, 0x00, 0x00, 0x02}
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func image(arm9 []byte) []byte {
	return testonly.FIRM{
		ARM9Entry:  0x08006000,
		ARM11Entry: 0x1FF80000,
		Sections: []testonly.Section{
			{Address: 0x08006000, Type: firm.SectionARM9, Data: arm9},
			{Address: 0x1FF80000, Type: firm.SectionARM11, Data: bytes.Repeat([]byte{11}, 0x200)},
		},
	}.Build()
}

func configFile(t *testing.T) string {
	t.Helper()
	return write(t, "firmboot.yaml", []byte(fmt.Sprintf("keyx:\n  \"0x3d\": %q\n  \"0x2c\": %q\n",
		hex.EncodeToString(testonly.CommonKeyX), hex.EncodeToString(testonly.ExeFSKeyX))))
}

func TestIdentify(t *testing.T) {
	img := image(bytes.Repeat([]byte{9}, 0x200))
	db := sigdb.DB{firm.Native: sigdb.NewTable(sigdb.Signature{
		Version: 0x2D, Console: sigdb.N3DS, Name: "9.0", Hash: testonly.Hash16(img, 0),
	})}
	imgPath := write(t, "firmware.bin", img)
	tables := write(t, "signatures.txt", []byte(sigdb.Format(db)))

	out, err := run(t, "identify", "--sigdb", tables, imgPath)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	for _, want := range []string{"ARM9 entry:  0x08006000", "Section 1: offset 0x000400 address 0x1ff80000", "NATIVE_FIRM version: 9.0 (0x2D, n3ds)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}

	for _, test := range []struct {
		desc string
		args []string
	}{
		{desc: "wrong family", args: []string{"identify", "--sigdb", tables, "--family", "twl", imgPath}},
		{desc: "unknown family", args: []string{"identify", "--family", "ctr", imgPath}},
		{desc: "encrypted", args: []string{"identify", write(t, "enc.bin", testonly.TitleContainer(img, titleKey, titleID))}},
		{desc: "missing", args: []string{"identify", filepath.Join(t.TempDir(), "nope")}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := run(t, test.args...); err == nil {
				t.Error("identify succeeded")
			}
		})
	}
}

func TestCheck(t *testing.T) {
	good := image(bytes.Repeat([]byte{9}, 0x200))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF

	out, err := run(t, "check", write(t, "good.firm", good))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.HasSuffix(out, "OK\n") {
		t.Errorf("output %q does not end with OK", out)
	}
	if _, err := run(t, "check", write(t, "bad.firm", bad)); err == nil {
		t.Error("check accepted a payload with a bad hash")
	}
	if _, err := run(t, "check", write(t, "short.firm", good[:firm.HeaderSize])); err == nil {
		t.Error("check accepted a header-only payload")
	}
}

func TestTitleKey(t *testing.T) {
	cfg := configFile(t)
	cetk := write(t, "cetk", testonly.Ticket(titleKey, titleID))

	out, err := run(t, "--config", cfg, "titlekey", cetk)
	if err != nil {
		t.Fatalf("titlekey: %v", err)
	}
	if got, want := strings.TrimSpace(out), hex.EncodeToString(titleKey); got != want {
		t.Errorf("got key %s, want %s", got, want)
	}

	if _, err := run(t, "--config", cfg, "titlekey", write(t, "bad", []byte("not a ticket"))); err == nil {
		t.Error("titlekey accepted garbage")
	}
}

func TestDecrypt(t *testing.T) {
	cfg := configFile(t)
	bin := testonly.ARM9Binary(firm.ARM9BinMagic, 0x1000)
	img := image(testonly.ARM9Section(bin, true))
	container := write(t, "firmware.app", testonly.TitleContainer(img, titleKey, titleID))
	cetk := write(t, "cetk", testonly.Ticket(titleKey, titleID))

	for _, test := range []struct {
		desc      string
		args      []string
		wantEntry uint32
		wantBin   bool
	}{
		{desc: "cetk", args: []string{"--cetk", cetk}, wantEntry: 0x08006000},
		{desc: "key", args: []string{"--key", hex.EncodeToString(titleKey)}, wantEntry: 0x08006000},
		{desc: "arm9 binary", args: []string{"--cetk", cetk, "--arm9-version", "0x2d"}, wantEntry: loader.NativeARM9Entry, wantBin: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "firmware.bin")
			args := append([]string{"--config", cfg, "decrypt", "-o", out}, test.args...)
			if _, err := run(t, append(args, container)...); err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if len(got) != len(img) {
				t.Fatalf("got %d bytes, want %d", len(got), len(img))
			}
			if e := firm.ARM9Entry(got); e != test.wantEntry {
				t.Errorf("ARM9 entry 0x%08x, want 0x%08x", e, test.wantEntry)
			}
			section := got[firm.HeaderSize : firm.HeaderSize+firm.ARM9BinOffset+len(bin)]
			if gotBin := bytes.Equal(section[firm.ARM9BinOffset:], bin); gotBin != test.wantBin {
				t.Errorf("ARM9 binary decrypted = %v, want %v", gotBin, test.wantBin)
			}
			if !test.wantBin {
				if diff := cmp.Diff(img, got); diff != "" {
					t.Errorf("FIRM diff (-want +got):\n%s", diff)
				}
			}
		})
	}

	for _, test := range []struct {
		desc string
		args []string
	}{
		{desc: "no key", args: []string{}},
		{desc: "both keys", args: []string{"--cetk", cetk, "--key", hex.EncodeToString(titleKey)}},
		{desc: "short key", args: []string{"--key", "0011"}},
		{desc: "wrong key", args: []string{"--key", hex.EncodeToString([]byte("fedcba9876543210"))}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			args := append([]string{"--config", cfg, "decrypt", "-o", filepath.Join(t.TempDir(), "out")}, test.args...)
			if _, err := run(t, append(args, container)...); err == nil {
				t.Error("decrypt succeeded")
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	blob := firm.BuildSnapshot([]firm.MemoryBlock{
		{Location: 0x20000000, Data: bytes.Repeat([]byte{1}, 0x10)},
		{Location: 0x1FF80000, Data: bytes.Repeat([]byte{2}, 0x8)},
	})
	out, err := run(t, "snapshot", write(t, "memory.bin", blob))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := "0x20000000 0x10 bytes\n0x1ff80000 0x8 bytes\n2 blocks\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output diff (-want +got):\n%s", diff)
	}
}

func TestSigDB(t *testing.T) {
	out, err := run(t, "sigdb", "keygen", "firmboot.test")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("keygen printed %q, want two keys", out)
	}
	skey := write(t, "skey", []byte(lines[0]+"\n"))
	vkey := lines[1]

	tables := write(t, "tables.txt", []byte("# comment\nnative 2d n3ds 9.0 00112233445566778899aabbccddeeff\n"))
	signed := filepath.Join(t.TempDir(), "signatures.txt")
	if _, err := run(t, "sigdb", "sign", "--key", skey, "-o", signed, tables); err != nil {
		t.Fatalf("sign: %v", err)
	}

	out, err = run(t, "sigdb", "verify", "--key", vkey, signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := "NATIVE_FIRM: 1 signatures\nTWL_FIRM: 0 signatures\nAGB_FIRM: 0 signatures\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("verify output diff (-want +got):\n%s", diff)
	}

	out, err = run(t, "sigdb", "keygen", "other")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	other := strings.Split(strings.TrimSpace(out), "\n")[1]
	if _, err := run(t, "sigdb", "verify", "--key", other, signed); err == nil {
		t.Error("verify accepted tables signed by another key")
	}
	if _, err := run(t, "sigdb", "sign", "--key", skey, "-o", signed, write(t, "bad.txt", []byte("native 2d"))); err == nil {
		t.Error("sign accepted unparseable tables")
	}
}

func TestDump(t *testing.T) {
	const (
		cidHex = "90010000004200000000000000001234"
		keyHex = "06060606060606060606060606060606"
	)
	cid, _ := hex.DecodeString(cidHex)
	key, _ := hex.DecodeString(keyHex)
	plain := make([]byte, decrypt.NANDFIRMSize)
	copy(plain, image(bytes.Repeat([]byte{9}, 0x200)))

	// Only FIRM1 is written; the rest of the image reads as zeroes.
	off := decrypt.NANDFIRMPartition(1)
	enc := append([]byte(nil), plain...)
	eng := crypto.NewSoftEngine()
	if err := eng.SetKey(crypto.SlotNAND, crypto.KeyNormal, key); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	ctr := decrypt.NANDCounter([16]byte(cid), off)
	if err := eng.CryptCTR(crypto.SlotNAND, ctr[:], enc); err != nil {
		t.Fatalf("CryptCTR: %v", err)
	}
	nand := filepath.Join(t.TempDir(), "nand.bin")
	f, err := os.Create(nand)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteAt(enc, int64(off)); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, test := range []struct {
		desc    string
		args    []string
		wantErr bool
	}{
		{desc: "firm1", args: []string{"--cid", cidHex, "--key", keyHex, "--firm", "1"}},
		{desc: "empty firm0", args: []string{"--cid", cidHex, "--key", keyHex, "--firm", "0"}, wantErr: true},
		{desc: "wrong key", args: []string{"--cid", cidHex, "--key", cidHex, "--firm", "1"}, wantErr: true},
		{desc: "no cid", args: []string{"--key", keyHex, "--firm", "1"}, wantErr: true},
		{desc: "short cid", args: []string{"--cid", "9001", "--key", keyHex}, wantErr: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "firm.bin")
			_, err := run(t, append([]string{"dump", nand, "-o", out}, test.args...)...)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("dump: %v, wantErr %v", err, test.wantErr)
			}
			if err != nil {
				return
			}
			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Error("dumped FIRM1 differs from what was stored")
			}
		})
	}
}
