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

var (
	// CommonKeyY is the retail keyY for common key index 1, loaded into
	// SlotCommonKey before decrypting ticket title keys.
	CommonKeyY = []byte{
		0x0C, 0x76, 0x72, 0x30, 0xF0, 0x99, 0x8F, 0x1C, 0x46, 0x82, 0x82, 0x02, 0xFA, 0xAC, 0xBE, 0x4C,
	}

	// Key96 is the normal key for SlotKey96 used by 9.6+ firmwares. Consoles
	// booted through the stock loader may already have it; everyone else
	// must load it.
	Key96 = []byte{
		0x42, 0x3F, 0x81, 0x7A, 0x23, 0x52, 0x58, 0x31, 0x6E, 0x75, 0x8E, 0x3A, 0x39, 0x43, 0x2E, 0xD0,
	}

	// KeyOld is the normal key for SlotKey96 used by pre-9.6 ARM9 binaries.
	KeyOld = []byte{
		0x07, 0x29, 0x44, 0x38, 0xF8, 0xC9, 0x75, 0x93, 0xAA, 0x0E, 0x4A, 0xB4, 0xAE, 0x84, 0xC1, 0xD8,
	}
)
