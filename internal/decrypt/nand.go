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
	"crypto/sha256"
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/hal"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/golang/glog"
)

const (
	// NANDFIRMOffset is the NAND byte offset of the FIRM0 partition.
	NANDFIRMOffset = 0x0B130000
	// NANDFIRMPartitionSize is the size of each FIRM partition. FIRM1
	// follows FIRM0.
	NANDFIRMPartitionSize = 0x400000
	// NANDFIRMSize is how much of a FIRM partition is read.
	NANDFIRMSize = 0x100000
)

// NANDFIRMPartition returns the NAND byte offset of FIRM partition id.
// Only FIRM0 and FIRM1 exist, so id is taken modulo 2.
func NANDFIRMPartition(id uint8) uint32 {
	return NANDFIRMOffset + uint32(id%2)*NANDFIRMPartitionSize
}

// NANDCounter returns the CTR counter for the NAND block at byte offset off
// on a console whose NAND has the given CID.
func NANDCounter(cid [16]byte, off uint32) [crypto.BlockSize]byte {
	sum := sha256.Sum256(cid[:])
	return crypto.AdvanceCTR(sum[:crypto.BlockSize], uint64(off/crypto.BlockSize))
}

// NANDFIRM reads FIRM partition id from n and decrypts it with the key in
// crypto.SlotNAND, which the boot ROM sets up on hardware.
func NANDFIRM(n hal.NAND, eng crypto.Engine, id uint8) ([]byte, error) {
	off := NANDFIRMPartition(id)
	glog.Infof("Dumping FIRM%d from NAND offset 0x%08X", id%2, off)

	buf := make([]byte, NANDFIRMSize)
	if err := n.ReadSectors(off/hal.NANDSectorSize, buf); err != nil {
		return nil, status.New(status.IOError, "Failed to dump the FIRM", "The NAND could not be read.", err)
	}
	ctr := NANDCounter(n.CID(), off)
	if err := eng.CryptCTR(crypto.SlotNAND, ctr[:], buf); err != nil {
		return nil, status.New(status.CryptoError, "Failed to dump the FIRM", "The NAND key slot is not set up.", err)
	}
	if !firm.HasMagic(buf) {
		return nil, status.New(status.FormatError, "Failed to dump the FIRM",
			"The FIRM partition did not decrypt.\nCheck the NAND CID and key.", fmt.Errorf("no FIRM magic in FIRM%d", id%2))
	}
	return buf, nil
}
