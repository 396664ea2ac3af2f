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

package keys

import (
	"fmt"
	"sync"

	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/golang/glog"
)

// Slots tracks the process-wide key registrations the pipeline makes on top
// of the AES engine.
type Slots struct {
	eng crypto.Engine

	commonOnce sync.Once
	commonErr  error

	key96 bool
}

// NewSlots returns a Slots for eng.
func NewSlots(eng crypto.Engine) *Slots {
	return &Slots{eng: eng}
}

// Engine returns the underlying AES engine.
func (s *Slots) Engine() crypto.Engine {
	return s.eng
}

// RegisterCommonKeyY loads the retail common keyY into SlotCommonKey. Only
// the first call touches the engine.
func (s *Slots) RegisterCommonKeyY() error {
	s.commonOnce.Do(func() {
		s.commonErr = s.eng.SetKey(crypto.SlotCommonKey, crypto.KeyY, crypto.CommonKeyY)
	})
	return s.commonErr
}

// RegisterKey96 loads the 9.6 key into SlotKey96 and records that the keyX
// slots must be regenerated before a 9.6+ NATIVE_FIRM is launched.
func (s *Slots) RegisterKey96() error {
	if err := s.eng.SetKey(crypto.SlotKey96, crypto.KeyNormal, crypto.Key96); err != nil {
		return fmt.Errorf("failed to set 9.6 key: %w", err)
	}
	s.key96 = true
	glog.V(1).Info("Loaded 9.6 key into slot 0x11")
	return nil
}

// RegisterKeyOld loads the pre-9.6 key into SlotKey96.
func (s *Slots) RegisterKeyOld() error {
	return s.eng.SetKey(crypto.SlotKey96, crypto.KeyNormal, crypto.KeyOld)
}

// Key96Registered reports whether RegisterKey96 has been called.
func (s *Slots) Key96Registered() bool {
	return s.key96
}
