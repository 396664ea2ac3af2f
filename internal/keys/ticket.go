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

// Package keys resolves the title keys needed to decrypt firmware
// containers and tracks the key slots the pipeline registers.
package keys

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	// SigTypeRSA2048SHA256 is the only ticket signature type accepted.
	SigTypeRSA2048SHA256 = 0x00010004
	// CommonKeyIndex is the only common keyY index accepted.
	CommonKeyIndex = 1

	// TicketOffset is where the ticket body starts in a CETK: after the
	// signature type, the RSA-2048 signature and its padding.
	TicketOffset = 4 + 0x13C

	titleKeyOffset       = 0x7F
	titleIDOffset        = 0x9C
	commonKeyIndexOffset = 0xB1
)

var (
	// ErrSigType is returned for tickets not signed with RSA-2048/SHA-256.
	ErrSigType = errors.New("unsupported ticket signature type")
	// ErrCommonKeyIndex is returned for tickets using a common key other
	// than index 1.
	ErrCommonKeyIndex = errors.New("unsupported ticket common key index")
	// ErrTicketTooShort is returned for CETKs that end before the common
	// key index.
	ErrTicketTooShort = errors.New("ticket too short")
)

// Ticket holds the fields of a CETK needed to derive a title key.
type Ticket struct {
	SigType        uint32
	EncTitleKey    [16]byte
	TitleID        [8]byte
	CommonKeyIndex uint8
}

// ParseTicket decodes and validates a CETK.
func ParseTicket(cetk []byte) (*Ticket, error) {
	var t Ticket
	s := cryptobyte.String(cetk)
	if !s.ReadUint32(&t.SigType) {
		return nil, ErrTicketTooShort
	}
	if t.SigType != SigTypeRSA2048SHA256 {
		return nil, fmt.Errorf("%w 0x%08x", ErrSigType, t.SigType)
	}

	if !s.Skip(TicketOffset-4+titleKeyOffset) ||
		!s.CopyBytes(t.EncTitleKey[:]) ||
		!s.Skip(titleIDOffset-titleKeyOffset-len(t.EncTitleKey)) ||
		!s.CopyBytes(t.TitleID[:]) ||
		!s.Skip(commonKeyIndexOffset-titleIDOffset-len(t.TitleID)) ||
		!s.ReadUint8(&t.CommonKeyIndex) {
		return nil, ErrTicketTooShort
	}
	if t.CommonKeyIndex != CommonKeyIndex {
		return nil, fmt.Errorf("%w %d", ErrCommonKeyIndex, t.CommonKeyIndex)
	}
	return &t, nil
}

// IV returns the title key IV: the title ID, zero-padded to a block.
func (t *Ticket) IV() []byte {
	iv := make([]byte, 16)
	copy(iv, t.TitleID[:])
	return iv
}
