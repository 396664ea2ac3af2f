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

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/golang/glog"
)

type keySlot struct {
	x, y, normal    [BlockSize]byte
	hasX, hasNormal bool
}

// SoftEngine is an Engine implemented with crypto/aes.
//
// It models the hardware key slots, including normal key generation through
// the key scrambler when a keyY is written. Slots whose keys are set by the
// boot ROM on hardware must be preloaded with SetKey.
type SoftEngine struct {
	slots [NumSlots]keySlot
}

var _ Engine = &SoftEngine{}

// NewSoftEngine returns a SoftEngine with every slot empty.
func NewSoftEngine() *SoftEngine {
	return &SoftEngine{}
}

func (e *SoftEngine) slot(n uint8) (*keySlot, error) {
	if int(n) >= NumSlots {
		return nil, fmt.Errorf("key slot 0x%02x out of range", n)
	}
	return &e.slots[n], nil
}

// SetKey implements Engine.
func (e *SoftEngine) SetKey(n uint8, typ KeyType, key []byte) error {
	if len(key) != BlockSize {
		return fmt.Errorf("key for slot 0x%02x is %d bytes", n, len(key))
	}
	s, err := e.slot(n)
	if err != nil {
		return err
	}
	switch typ {
	case KeyNormal:
		copy(s.normal[:], key)
		s.hasNormal = true
	case KeyX:
		copy(s.x[:], key)
		s.hasX = true
	case KeyY:
		copy(s.y[:], key)
		if !s.hasX {
			return fmt.Errorf("keyY written to slot 0x%02x with no keyX", n)
		}
		s.normal = ScrambleKey(s.x[:], s.y[:])
		s.hasNormal = true
	default:
		return fmt.Errorf("unknown key type %d", typ)
	}
	glog.V(2).Infof("aes: slot 0x%02x key type %d set", n, typ)
	return nil
}

func (e *SoftEngine) block(n uint8) (cipher.Block, error) {
	s, err := e.slot(n)
	if err != nil {
		return nil, err
	}
	if !s.hasNormal {
		return nil, fmt.Errorf("key slot 0x%02x has no key", n)
	}
	return aes.NewCipher(s.normal[:])
}

// DecryptCBC implements Engine.
func (e *SoftEngine) DecryptCBC(n uint8, iv []byte, buf []byte) error {
	if len(buf)%BlockSize != 0 {
		return fmt.Errorf("CBC input of %d bytes is not block aligned", len(buf))
	}
	b, err := e.block(n)
	if err != nil {
		return err
	}
	cipher.NewCBCDecrypter(b, iv).CryptBlocks(buf, buf)
	return nil
}

// CryptCTR implements Engine.
func (e *SoftEngine) CryptCTR(n uint8, ctr []byte, buf []byte) error {
	b, err := e.block(n)
	if err != nil {
		return err
	}
	cipher.NewCTR(b, ctr).XORKeyStream(buf, buf)
	return nil
}

// DecryptECB implements Engine.
func (e *SoftEngine) DecryptECB(n uint8, dst, src []byte) error {
	if len(src)%BlockSize != 0 || len(dst) < len(src) {
		return fmt.Errorf("bad ECB buffers: dst %d bytes, src %d bytes", len(dst), len(src))
	}
	b, err := e.block(n)
	if err != nil {
		return err
	}
	for i := 0; i < len(src); i += BlockSize {
		b.Decrypt(dst[i:i+BlockSize], src[i:i+BlockSize])
	}
	return nil
}

// KeyXOf returns the keyX currently held by slot n, for inspection.
func (e *SoftEngine) KeyXOf(n uint8) ([BlockSize]byte, bool) {
	s, err := e.slot(n)
	if err != nil {
		return [BlockSize]byte{}, false
	}
	return s.x, s.hasX
}

// Preload sets the keyX of every slot in keyX, standing in for the keys the
// boot ROM leaves behind on hardware.
func (e *SoftEngine) Preload(keyX map[uint8][]byte) error {
	for n, key := range keyX {
		if err := e.SetKey(n, KeyX, key); err != nil {
			return fmt.Errorf("failed to preload keyX of slot 0x%02x: %w", n, err)
		}
	}
	return nil
}
