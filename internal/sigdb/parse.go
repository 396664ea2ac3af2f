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

package sigdb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cakesfw/firmboot/firm"
	"golang.org/x/mod/sumdb/note"
)

var families = map[string]firm.Family{
	"native": firm.Native,
	"twl":    firm.TWL,
	"agb":    firm.AGB,
}

var consoles = map[string]Console{
	"o3ds": O3DS,
	"n3ds": N3DS,
}

// Parse reads signature tables from their text form.
//
// Each non-blank line not starting with '#' holds one signature:
//
//	<family> <version-hex> <console> <name> <hash-hex>
//
// e.g. "native 2d n3ds 9.0 00112233445566778899aabbccddeeff". Entries keep
// their order within each family.
func Parse(text string) (DB, error) {
	sigs := make(map[firm.Family][]Signature)
	sc := bufio.NewScanner(strings.NewReader(text))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, s, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		sigs[f] = append(sigs[f], s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	db := make(DB)
	for _, f := range []firm.Family{firm.Native, firm.TWL, firm.AGB} {
		db[f] = NewTable(sigs[f]...)
	}
	return db, nil
}

func parseLine(line string) (firm.Family, Signature, error) {
	var s Signature
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return 0, s, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	f, ok := families[fields[0]]
	if !ok {
		return 0, s, fmt.Errorf("unknown family %q", fields[0])
	}
	v, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return 0, s, fmt.Errorf("bad version %q: %w", fields[1], err)
	}
	if v == SentinelVersion {
		return 0, s, fmt.Errorf("version 0x%02X is reserved for the sentinel", v)
	}
	s.Version = uint8(v)
	if s.Console, ok = consoles[fields[2]]; !ok {
		return 0, s, fmt.Errorf("unknown console %q", fields[2])
	}
	s.Name = fields[3]
	h, err := hex.DecodeString(fields[4])
	if err != nil || len(h) != len(s.Hash) {
		return 0, s, fmt.Errorf("bad hash %q", fields[4])
	}
	copy(s.Hash[:], h)
	return f, s, nil
}

// ParseSigned opens a signed note holding signature tables and parses its
// text. The note must carry a valid signature from one of verifiers.
func ParseSigned(msg []byte, verifiers ...note.Verifier) (DB, error) {
	n, err := note.Open(msg, note.VerifierList(verifiers...))
	if err != nil {
		return nil, fmt.Errorf("failed to verify signature table: %w", err)
	}
	return Parse(n.Text)
}

// Format renders db in the form read by Parse.
func Format(db DB) string {
	var b strings.Builder
	for _, name := range []string{"native", "twl", "agb"} {
		t := db[families[name]]
		for _, s := range t[:t.Len()] {
			fmt.Fprintf(&b, "%s %02x %s %s %x\n", name, s.Version, s.Console, s.Name, s.Hash)
		}
	}
	return b.String()
}
