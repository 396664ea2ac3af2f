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

// Package decrypt unwraps encrypted firmware: the title container a FIRM is
// distributed in, and the extra layer over N3DS ARM9 binaries.
package decrypt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/status"
	"github.com/golang/glog"
	"golang.org/x/crypto/cryptobyte"
)

const (
	// NCCHMagic sits at NCCHMagicOffset in a decrypted container.
	NCCHMagic       = "NCCH"
	NCCHMagicOffset = 0x100
	// MediaUnit is the unit container offsets and sizes are stored in.
	MediaUnit = 0x200

	partitionIDOffset = 0x108
	versionOffset     = 0x112
	exeFSOffset       = 0x1A0
	ncchHeaderSize    = 0x200
	exeFSHeaderSize   = 0x200
	exeFSCounterType  = 2
)

var errContainer = errors.New("failed to decrypt the firmware")

func containerError(err error) error {
	return status.New(status.FormatError, "Failed to decrypt the firmware",
		"Please double check your firmware and\nfirmkey/cetk are right.", err)
}

// ncchHeader holds the fields of a decrypted NCCH header needed to find and
// decrypt its ExeFS.
type ncchHeader struct {
	keyY        [16]byte
	partitionID [8]byte
	version     uint16
	exeFSOffset uint32 // bytes
	exeFSSize   uint32 // bytes
}

func parseNCCH(buf []byte) (*ncchHeader, error) {
	if len(buf) < ncchHeaderSize {
		return nil, fmt.Errorf("container of %d bytes is too short", len(buf))
	}
	if string(buf[NCCHMagicOffset:NCCHMagicOffset+4]) != NCCHMagic {
		return nil, fmt.Errorf("%w: bad NCCH magic", errContainer)
	}
	var h ncchHeader
	copy(h.keyY[:], buf)
	copy(h.partitionID[:], buf[partitionIDOffset:])
	h.version = binary.LittleEndian.Uint16(buf[versionOffset:])
	h.exeFSOffset = binary.LittleEndian.Uint32(buf[exeFSOffset:]) * MediaUnit
	h.exeFSSize = binary.LittleEndian.Uint32(buf[exeFSOffset+4:]) * MediaUnit
	return &h, nil
}

// exeFSCounter returns the initial CTR for a container's ExeFS.
func (h *ncchHeader) exeFSCounter() []byte {
	ctr := make([]byte, crypto.BlockSize)
	switch h.version {
	case 1:
		copy(ctr, h.partitionID[:])
		binary.BigEndian.PutUint32(ctr[12:], h.exeFSOffset)
	default:
		for i := range h.partitionID {
			ctr[i] = h.partitionID[len(h.partitionID)-1-i]
		}
		ctr[8] = exeFSCounterType
	}
	return ctr
}

// firstFileSize returns the size of the first file in an ExeFS header.
func firstFileSize(exefs []byte) (uint32, error) {
	s := cryptobyte.String(exefs)
	var size []byte
	if !s.Skip(8+4) || !s.ReadBytes(&size, 4) {
		return 0, errors.New("truncated ExeFS header")
	}
	return binary.LittleEndian.Uint32(size), nil
}

// OuterContainer decrypts the title container in buf in place and returns
// the FIRM image it holds, moved to the start of buf.
//
// The container is CBC decrypted with key (loaded into SlotTitleKey) and a
// zero IV. Its ExeFS is then CTR decrypted with keyY taken from the first 16
// bytes of the decrypted container; the FIRM is the first ExeFS file.
func OuterContainer(eng crypto.Engine, buf []byte, key []byte) ([]byte, error) {
	glog.Info("Decrypting the NCCH")
	if err := eng.SetKey(crypto.SlotTitleKey, crypto.KeyNormal, key); err != nil {
		return nil, containerError(err)
	}
	n := len(buf) &^ (crypto.BlockSize - 1)
	if err := eng.DecryptCBC(crypto.SlotTitleKey, make([]byte, crypto.BlockSize), buf[:n]); err != nil {
		return nil, containerError(err)
	}

	h, err := parseNCCH(buf[:n])
	if err != nil {
		return nil, containerError(err)
	}
	end := uint64(h.exeFSOffset) + uint64(h.exeFSSize)
	if h.exeFSOffset < ncchHeaderSize || h.exeFSSize < exeFSHeaderSize || end > uint64(n) {
		return nil, containerError(fmt.Errorf("ExeFS at 0x%x+0x%x outside the %d byte container", h.exeFSOffset, h.exeFSSize, n))
	}
	exefs := buf[h.exeFSOffset:end]

	glog.Info("Decrypting the exefs")
	if err := eng.SetKey(crypto.SlotExeFS, crypto.KeyY, h.keyY[:]); err != nil {
		return nil, containerError(err)
	}
	if err := eng.CryptCTR(crypto.SlotExeFS, h.exeFSCounter(), exefs); err != nil {
		return nil, containerError(err)
	}

	size, err := firstFileSize(exefs)
	if err != nil {
		return nil, containerError(err)
	}
	if uint64(size) > uint64(len(exefs)-exeFSHeaderSize) {
		return nil, containerError(fmt.Errorf("first ExeFS file of 0x%x bytes overruns the ExeFS", size))
	}
	img := exefs[exeFSHeaderSize : exeFSHeaderSize+size]
	if !firm.HasMagic(img) {
		return nil, containerError(fmt.Errorf("%w: bad FIRM magic", errContainer))
	}

	copy(buf, img)
	return buf[:size], nil
}
