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

package decrypt

import (
	"encoding/binary"
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/golang/glog"
)

// Key96Version is the highest NATIVE_FIRM version whose ARM9 binary is
// wrapped with the pre-9.6 key.
const Key96Version = 0x0F

// UsesKey96 reports whether a firmware of family f and version needs the
// 9.6 key in slot 0x11.
func UsesKey96(f firm.Family, version uint8) bool {
	return f == firm.Native && version > Key96Version
}

func arm9Error(err error) error {
	return status.New(status.FormatError, "Failed to decrypt the ARM9 binary",
		"The firmware seems to be corrupted.", err)
}

// InnerBinary decrypts, in place, the ARM9 binary following the header at
// the start of section.
//
// The binary keyX is unwrapped with the key in slot 0x11, which is loaded
// here: the 9.6 key for 9.6+ NATIVE_FIRMs, the older key otherwise. The
// decrypted binary must start with the ARM9 magic of family f.
func InnerBinary(slots *keys.Slots, section []byte, f firm.Family, version uint8) error {
	h, err := firm.ParseARM9BinHeader(section)
	if err != nil {
		return arm9Error(err)
	}
	size, err := h.BinarySize()
	if err != nil {
		return arm9Error(err)
	}
	if size < 4 || size > len(section)-firm.ARM9BinOffset {
		return arm9Error(fmt.Errorf("ARM9 binary of %d bytes does not fit its %d byte section", size, len(section)))
	}

	slot, wrapped := crypto.SlotARM9BinOld, h.KeyX[:]
	if UsesKey96(f, version) {
		if err := slots.RegisterKey96(); err != nil {
			return arm9Error(err)
		}
		slot, wrapped = crypto.SlotARM9BinNew, h.Slot0x16KeyX[:]
	} else if err := slots.RegisterKeyOld(); err != nil {
		return arm9Error(err)
	}
	glog.V(1).Infof("Decrypting %d byte ARM9 binary with slot 0x%02X", size, slot)

	eng := slots.Engine()
	keyX := make([]byte, crypto.BlockSize)
	if err := eng.DecryptECB(crypto.SlotKey96, keyX, wrapped); err != nil {
		return arm9Error(err)
	}
	if err := eng.SetKey(slot, crypto.KeyX, keyX); err != nil {
		return arm9Error(err)
	}
	if err := eng.SetKey(slot, crypto.KeyY, h.KeyY[:]); err != nil {
		return arm9Error(err)
	}
	bin := section[firm.ARM9BinOffset : firm.ARM9BinOffset+size]
	if err := eng.CryptCTR(slot, h.CTR[:], bin); err != nil {
		return arm9Error(err)
	}

	if got, want := binary.LittleEndian.Uint32(bin), firm.ARM9BinMagicFor(f); got != want {
		return arm9Error(fmt.Errorf("ARM9 binary magic 0x%08X, want 0x%08X", got, want))
	}
	return nil
}

// ARM9Section decrypts the ARM9 binary of img in place, unless it is
// already decrypted, and reports whether img changed. An image with no ARM9
// section is left alone.
//
// Booting a 9.6+ NATIVE_FIRM needs the 9.6 key in slot 0x11 either way, so
// it is registered for an already decrypted binary too.
func ARM9Section(slots *keys.Slots, img []byte, f firm.Family, version uint8) (bool, error) {
	h, err := firm.ParseHeader(img)
	if err != nil {
		return false, arm9Error(err)
	}
	// Only one ARM9 section is expected.
	sec, ok := h.FindSection(firm.SectionARM9)
	if !ok {
		glog.Infof("%v has no ARM9 section", f)
		return false, nil
	}
	data, err := firm.SectionData(img, sec)
	if err != nil {
		return false, arm9Error(err)
	}

	if firm.ARM9BinDecrypted(data, f) {
		glog.Info("ARM9 FIRM binary seems not encrypted")
		if UsesKey96(f, version) {
			if err := slots.RegisterKey96(); err != nil {
				return false, arm9Error(err)
			}
		}
		return false, nil
	}

	if err := InnerBinary(slots, data, f, version); err != nil {
		return false, err
	}
	return true, nil
}
