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

package sim

import (
	"fmt"
	"io"

	"github.com/cakesfw/firmboot/internal/hal"
)

// NAND is a hal.NAND backed by a raw NAND image.
type NAND struct {
	r   io.ReaderAt
	cid [16]byte
}

var _ hal.NAND = &NAND{}

// NewNAND returns a NAND reading the image in r and identifying itself
// with cid.
func NewNAND(r io.ReaderAt, cid [16]byte) *NAND {
	return &NAND{r: r, cid: cid}
}

// ReadSectors implements hal.NAND.
func (n *NAND) ReadSectors(sector uint32, buf []byte) error {
	if len(buf)%hal.NANDSectorSize != 0 {
		return fmt.Errorf("read of 0x%x bytes is not sector aligned", len(buf))
	}
	off := int64(sector) * hal.NANDSectorSize
	got, err := n.r.ReadAt(buf, off)
	if got == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("failed to read %d sectors at sector 0x%x: %w", len(buf)/hal.NANDSectorSize, sector, err)
}

// CID implements hal.NAND.
func (n *NAND) CID() [16]byte {
	return n.cid
}
