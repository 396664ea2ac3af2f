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

package keys

import (
	"errors"
	"fmt"

	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/cakesfw/firmboot/internal/storage"
	"github.com/golang/glog"
)

// MaxTicketSize bounds how much of a CETK file is read.
const MaxTicketSize = 0x100000

// Provider resolves title keys, caching derived keys on storage.
type Provider struct {
	Storage storage.Storage
	Slots   *Slots
}

// NewProvider returns a Provider reading from st and registering keys
// through slots.
func NewProvider(st storage.Storage, slots *Slots) *Provider {
	return &Provider{Storage: st, Slots: slots}
}

// ResolveTitleKey returns the title key for a firmware container.
//
// A 16 byte key file at cachedPath is used as-is. Otherwise the ticket at
// ticketPath is validated and its title key decrypted with the common key,
// then written to cachedPath for future boots; failing to write the cache
// only logs a warning.
func (p *Provider) ResolveTitleKey(cachedPath, ticketPath string) ([]byte, error) {
	// One byte over, so that longer files are not taken as keys.
	key, err := p.Storage.ReadFile(cachedPath, crypto.BlockSize+1)
	if err == nil && len(key) == crypto.BlockSize {
		glog.Info("Loaded FIRM key")
		return key, nil
	}
	glog.Infof("Failed to load FIRM key from %s, will try to create it...", cachedPath)

	cetk, err := p.Storage.ReadFile(ticketPath, MaxTicketSize)
	if err != nil {
		glog.Info("Failed to load CETK")
		return nil, status.New(status.IOError,
			"Failed to load FIRM key or CETK",
			fmt.Sprintf("Make sure you have a firmkey.bin or cetk\nlocated at %s\nor %s, respectively.", cachedPath, ticketPath),
			err)
	}
	glog.Info("Loaded CETK")

	key, err = p.DecryptTitleKey(cetk)
	if err != nil {
		return nil, err
	}

	glog.Info("Saving FIRM key for future use")
	if err := p.Storage.WriteFile(cachedPath, key); err != nil {
		glog.Warningf("Failed to save FIRM key to %s: %v", cachedPath, err)
	}
	return key, nil
}

// DecryptTitleKey validates cetk and decrypts its title key.
func (p *Provider) DecryptTitleKey(cetk []byte) ([]byte, error) {
	t, err := ParseTicket(cetk)
	if err != nil {
		kind := status.CryptoError
		if errors.Is(err, ErrTicketTooShort) {
			kind = status.FormatError
		}
		return nil, status.New(kind,
			"Failed to decrypt the CETK", "Please make sure the CETK is right.", err)
	}

	if err := p.Slots.RegisterCommonKeyY(); err != nil {
		return nil, status.New(status.CryptoError,
			"Failed to decrypt the CETK", "The common key slot could not be set up.", err)
	}

	glog.Info("Decrypting key")
	key := make([]byte, crypto.BlockSize)
	copy(key, t.EncTitleKey[:])
	if err := p.Slots.Engine().DecryptCBC(crypto.SlotCommonKey, t.IV(), key); err != nil {
		return nil, status.New(status.CryptoError,
			"Failed to decrypt the CETK", "Please make sure the CETK is right.", err)
	}
	return key, nil
}
