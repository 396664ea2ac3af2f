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

package firm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// MemoryBlock is one region of a memory snapshot: Data is restored to the
// physical address Location at boot.
type MemoryBlock struct {
	Location uint32
	Data     []byte
}

// SnapshotLength returns the total length recorded at the start of a memory
// snapshot. The length includes the 4 length bytes themselves.
func SnapshotLength(blob []byte) (uint32, error) {
	if len(blob) < 4 {
		return 0, errors.New("memory snapshot too short")
	}
	return binary.LittleEndian.Uint32(blob), nil
}

// ParseSnapshot walks the block descriptors of a memory snapshot.
//
// The walk consumes exactly the number of bytes recorded in the snapshot's
// length prefix and never looks past them; a block which would cross that
// boundary is an error. The returned blocks alias blob.
func ParseSnapshot(blob []byte) ([]MemoryBlock, error) {
	total, err := SnapshotLength(blob)
	if err != nil {
		return nil, err
	}
	if total < 4 || uint64(total) > uint64(len(blob)) {
		return nil, fmt.Errorf("memory snapshot claims %d bytes, have %d", total, len(blob))
	}

	s := cryptobyte.String(blob[4:total])
	var blocks []MemoryBlock
	for !s.Empty() {
		var b MemoryBlock
		var size uint32
		if !readUint32LE(&s, &b.Location) || !readUint32LE(&s, &size) {
			return nil, fmt.Errorf("truncated block descriptor after %d blocks", len(blocks))
		}
		if !s.ReadBytes(&b.Data, int(size)) {
			return nil, fmt.Errorf("block %d at 0x%08x: 0x%x bytes run past the snapshot end", len(blocks), b.Location, size)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// BuildSnapshot serialises blocks into the snapshot format read by
// ParseSnapshot.
func BuildSnapshot(blocks []MemoryBlock) []byte {
	n := 4
	for _, b := range blocks {
		n += 8 + len(b.Data)
	}
	out := make([]byte, 4, n)
	binary.LittleEndian.PutUint32(out, uint32(n))
	for _, b := range blocks {
		out = binary.LittleEndian.AppendUint32(out, b.Location)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b.Data)))
		out = append(out, b.Data...)
	}
	return out
}

// readUint32LE is the little-endian counterpart of cryptobyte's ReadUint32.
func readUint32LE(s *cryptobyte.String, out *uint32) bool {
	var b []byte
	if !s.ReadBytes(&b, 4) {
		return false
	}
	*out = binary.LittleEndian.Uint32(b)
	return true
}
