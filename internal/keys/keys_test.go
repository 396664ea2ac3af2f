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

package keys_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/cakesfw/firmboot/internal/testonly"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

const (
	keyPath  = "/cakes/firmkey.bin"
	cetkPath = "/cakes/cetk"
)

var (
	titleKey = []byte("0123456789abcdef")
	titleID  = [8]byte{0x00, 0x04, 0x01, 0x38, 0x20, 0x00, 0x00, 0x02}
)

func newProvider(t *testing.T) (*keys.Provider, storage.Storage) {
	t.Helper()
	st := storage.NewFS(afero.NewMemMapFs())
	return keys.NewProvider(st, keys.NewSlots(testonly.NewEngine())), st
}

func TestResolveTitleKeyFromTicket(t *testing.T) {
	p, st := newProvider(t)
	if err := st.WriteFile(cetkPath, testonly.Ticket(titleKey, titleID)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := p.ResolveTitleKey(keyPath, cetkPath)
	if err != nil {
		t.Fatalf("ResolveTitleKey: %v", err)
	}
	if diff := cmp.Diff(titleKey, got); diff != "" {
		t.Errorf("key diff (-want +got):\n%s", diff)
	}

	cached, err := st.ReadFile(keyPath, 64)
	if err != nil {
		t.Fatalf("key was not cached: %v", err)
	}
	if !bytes.Equal(cached, titleKey) {
		t.Errorf("cached key %x, want %x", cached, titleKey)
	}
}

func TestResolveTitleKeyPrefersCache(t *testing.T) {
	p, st := newProvider(t)
	want := []byte("cached key 16 b!")
	if err := st.WriteFile(keyPath, want); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// A bad ticket must not be looked at.
	if err := st.WriteFile(cetkPath, []byte("garbage")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := p.ResolveTitleKey(keyPath, cetkPath)
	if err != nil {
		t.Fatalf("ResolveTitleKey: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x want %x", got, want)
	}
}

func TestResolveTitleKeyBadCacheIsMiss(t *testing.T) {
	for _, test := range []struct {
		desc   string
		cached []byte
	}{
		{desc: "short", cached: []byte("short")},
		{desc: "one byte over", cached: []byte("cached key 16 b!X")},
		{desc: "empty", cached: []byte{}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			p, st := newProvider(t)
			if err := st.WriteFile(keyPath, test.cached); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if err := st.WriteFile(cetkPath, testonly.Ticket(titleKey, titleID)); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			got, err := p.ResolveTitleKey(keyPath, cetkPath)
			if err != nil {
				t.Fatalf("ResolveTitleKey: %v", err)
			}
			if !bytes.Equal(got, titleKey) {
				t.Errorf("got %x want %x", got, titleKey)
			}
			cached, err := st.ReadFile(keyPath, 64)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !bytes.Equal(cached, titleKey) {
				t.Errorf("cache holds %x, want %x", cached, titleKey)
			}
		})
	}
}

func TestResolveTitleKeyErrors(t *testing.T) {
	badSig := testonly.Ticket(titleKey, titleID)
	binary.BigEndian.PutUint32(badSig, 0x00010003)
	badIndex := testonly.Ticket(titleKey, titleID)
	badIndex[keys.TicketOffset+0xB1] = 0

	for _, test := range []struct {
		desc     string
		cetk     []byte
		wantKind status.Kind
		wantErr  error
	}{
		{desc: "no ticket", wantKind: status.IOError},
		{desc: "bad signature type", cetk: badSig, wantKind: status.CryptoError, wantErr: keys.ErrSigType},
		{desc: "bad common key index", cetk: badIndex, wantKind: status.CryptoError, wantErr: keys.ErrCommonKeyIndex},
		{desc: "truncated", cetk: badIndex[:0x100], wantKind: status.FormatError, wantErr: keys.ErrTicketTooShort},
		{desc: "only a signature type", cetk: badIndex[:4], wantKind: status.FormatError, wantErr: keys.ErrTicketTooShort},
		{desc: "empty", cetk: []byte{}, wantKind: status.FormatError, wantErr: keys.ErrTicketTooShort},
	} {
		t.Run(test.desc, func(t *testing.T) {
			p, st := newProvider(t)
			if test.cetk != nil {
				if err := st.WriteFile(cetkPath, test.cetk); err != nil {
					t.Fatalf("WriteFile: %v", err)
				}
			}
			_, err := p.ResolveTitleKey(keyPath, cetkPath)
			if got := status.KindOf(err); got != test.wantKind {
				t.Errorf("got kind %v (%v), want %v", got, err, test.wantKind)
			}
			if test.wantErr != nil && !errors.Is(err, test.wantErr) {
				t.Errorf("got %v, want %v", err, test.wantErr)
			}
			if st.Exists(keyPath) {
				t.Error("key cached after failure")
			}
		})
	}
}

func TestDecryptTitleKeyDeterministic(t *testing.T) {
	p, _ := newProvider(t)
	cetk := testonly.Ticket(titleKey, titleID)

	a, err := p.DecryptTitleKey(cetk)
	if err != nil {
		t.Fatalf("DecryptTitleKey: %v", err)
	}
	b, err := p.DecryptTitleKey(cetk)
	if err != nil {
		t.Fatalf("DecryptTitleKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("same ticket gave %x then %x", a, b)
	}

	// The title ID is the IV, so changing it changes the derived key.
	other := append([]byte(nil), cetk...)
	other[keys.TicketOffset+0x9C] ^= 0xFF
	c, err := p.DecryptTitleKey(other)
	if err != nil {
		t.Fatalf("DecryptTitleKey: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Error("changing the title ID did not change the key")
	}
}

type countingEngine struct {
	crypto.Engine
	keyY int
}

func (c *countingEngine) SetKey(slot uint8, typ crypto.KeyType, key []byte) error {
	if slot == crypto.SlotCommonKey && typ == crypto.KeyY {
		c.keyY++
	}
	return c.Engine.SetKey(slot, typ, key)
}

func TestCommonKeyYRegisteredOnce(t *testing.T) {
	eng := &countingEngine{Engine: testonly.NewEngine()}
	p := keys.NewProvider(storage.NewFS(afero.NewMemMapFs()), keys.NewSlots(eng))
	cetk := testonly.Ticket(titleKey, titleID)
	for i := 0; i < 3; i++ {
		if _, err := p.DecryptTitleKey(cetk); err != nil {
			t.Fatalf("DecryptTitleKey: %v", err)
		}
	}
	if eng.keyY != 1 {
		t.Errorf("common keyY set %d times, want 1", eng.keyY)
	}
}

func TestKey96(t *testing.T) {
	s := keys.NewSlots(testonly.NewEngine())
	if s.Key96Registered() {
		t.Fatal("Key96Registered() on new Slots = true")
	}
	if err := s.RegisterKeyOld(); err != nil {
		t.Fatalf("RegisterKeyOld: %v", err)
	}
	if s.Key96Registered() {
		t.Error("RegisterKeyOld marked key96 registered")
	}
	if err := s.RegisterKey96(); err != nil {
		t.Fatalf("RegisterKey96: %v", err)
	}
	if !s.Key96Registered() {
		t.Error("Key96Registered() after RegisterKey96 = false")
	}
}
