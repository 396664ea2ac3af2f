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
	"encoding/binary"
	"math/bits"
)

type uint128 struct {
	hi, lo uint64
}

func load128(b []byte) uint128 {
	return uint128{binary.BigEndian.Uint64(b), binary.BigEndian.Uint64(b[8:])}
}

func (u uint128) bytes() [BlockSize]byte {
	var b [BlockSize]byte
	binary.BigEndian.PutUint64(b[:], u.hi)
	binary.BigEndian.PutUint64(b[8:], u.lo)
	return b
}

func (u uint128) rotl(n uint) uint128 {
	n %= 128
	if n >= 64 {
		u = uint128{u.lo, u.hi}
		n -= 64
	}
	if n == 0 {
		return u
	}
	return uint128{u.hi<<n | u.lo>>(64-n), u.lo<<n | u.hi>>(64-n)}
}

func (u uint128) xor(v uint128) uint128 {
	return uint128{u.hi ^ v.hi, u.lo ^ v.lo}
}

func (u uint128) add(v uint128) uint128 {
	lo, carry := bits.Add64(u.lo, v.lo, 0)
	hi, _ := bits.Add64(u.hi, v.hi, carry)
	return uint128{hi, lo}
}

var scramblerConstant = uint128{0x1FF9E9AAC5FE0408, 0x024591DC5D52768A}

// ScrambleKey derives the normal key the hardware generates from a keyX/keyY
// pair: ROL((ROL(keyX, 2) ^ keyY) + C, 87).
func ScrambleKey(keyX, keyY []byte) [BlockSize]byte {
	x, y := load128(keyX), load128(keyY)
	return x.rotl(2).xor(y).add(scramblerConstant).rotl(87).bytes()
}
