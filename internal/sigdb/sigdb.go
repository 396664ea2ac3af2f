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

// Package sigdb identifies firmware versions by matching section hashes
// against per-family signature tables.
package sigdb

import (
	"fmt"

	"github.com/cakesfw/firmboot/firm"
)

// SentinelVersion terminates every Table. No real firmware carries it.
const SentinelVersion = 0xFF

// Console is the console generation a firmware version was built for.
type Console int

const (
	O3DS Console = iota
	// N3DS firmwares carry an extra encryption layer over their ARM9 binary.
	N3DS
)

func (c Console) String() string {
	switch c {
	case O3DS:
		return "o3ds"
	case N3DS:
		return "n3ds"
	}
	return fmt.Sprintf("Console(%d)", int(c))
}

// Signature identifies one firmware version.
type Signature struct {
	Version uint8
	Console Console
	// Name is the human readable system version, e.g. "9.0".
	Name string
	// Hash is the first 16 bytes of the identifying section's hash.
	Hash [16]byte
}

func (s Signature) String() string {
	return fmt.Sprintf("%s (0x%02X, %s)", s.Name, s.Version, s.Console)
}

// Table is an ordered list of signatures for one family, terminated by an
// entry whose Version is SentinelVersion. Entries after the sentinel are
// never consulted.
type Table []Signature

// NewTable returns a Table holding sigs followed by the sentinel.
func NewTable(sigs ...Signature) Table {
	t := make(Table, 0, len(sigs)+1)
	t = append(t, sigs...)
	return append(t, Signature{Version: SentinelVersion})
}

// Lookup returns the first signature in t with the given hash.
func (t Table) Lookup(hash [16]byte) (Signature, bool) {
	for _, s := range t {
		if s.Version == SentinelVersion {
			break
		}
		if s.Hash == hash {
			return s, true
		}
	}
	return Signature{}, false
}

// Len returns the number of entries before the sentinel.
func (t Table) Len() int {
	for i, s := range t {
		if s.Version == SentinelVersion {
			return i
		}
	}
	return len(t)
}

// DB holds one Table per firmware family.
type DB map[firm.Family]Table

// HashSection returns the index of the section whose hash identifies
// firmwares of family f.
func HashSection(f firm.Family) int {
	if f == firm.TWL {
		return 3
	}
	return 0
}

// Identify returns the signature matching img, a FIRM image of family f.
//
// Not finding a match is not an error; callers decide what an unknown
// firmware means.
func (db DB) Identify(img []byte, f firm.Family) (Signature, bool) {
	hash, err := firm.SectionHash(img, HashSection(f))
	if err != nil {
		return Signature{}, false
	}
	return db[f].Lookup(hash)
}
