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

package handoff

import (
	"fmt"

	"github.com/cakesfw/firmboot/internal/status"
)

// SeedSection is the NATIVE_FIRM section holding the keyX seeds.
const SeedSection = 2

// Seeds maps a NATIVE_FIRM version to the offset of its keyX seed within
// SeedSection.
type Seeds map[uint8]uint32

// DefaultSeeds holds the seed offsets of every known 9.6+ NATIVE_FIRM.
func DefaultSeeds() Seeds {
	s := make(Seeds)
	for off, versions := range map[uint32][]uint8{
		0x89814: {0x1B, 0x1F},
		0x89A14: {0x21},
		0x89C14: {0x2D, 0x2F},
		0x8A214: {0x35, 0x37, 0x3A, 0x3D},
	} {
		for _, v := range versions {
			s[v] = off
		}
	}
	return s
}

// With returns a copy of s extended with extra, which wins on conflict.
func (s Seeds) With(extra Seeds) Seeds {
	out := make(Seeds, len(s)+len(extra))
	for v, off := range s {
		out[v] = off
	}
	for v, off := range extra {
		out[v] = off
	}
	return out
}

// Offset returns the seed offset for version. An unknown version is a
// ConfigError: the table needs a new entry.
func (s Seeds) Offset(version uint8) (uint32, error) {
	off, ok := s[version]
	if !ok {
		return 0, status.New(status.ConfigError, "Welp.",
			"someone forgot to update the keydata again. Please yell at them.",
			fmt.Errorf("no keyX seed offset for NATIVE_FIRM version 0x%02X", version))
	}
	return off, nil
}
