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

package ui

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestButtonMenu(t *testing.T) {
	m := ButtonMenu{
		Dir: "payloads",
		Payloads: map[uint32]string{
			0x001:         "a.firm",
			0x002:         "b.firm",
			0x001 | 0x200: "a_l.firm",
		},
	}
	for _, test := range []struct {
		desc      string
		menu      ButtonMenu
		pressed   uint32
		wantPath  string
		wantShown bool
		wantFound bool
	}{
		{desc: "exact", menu: m, pressed: 0x201, wantPath: "payloads/a_l.firm", wantFound: true},
		{desc: "subset", menu: m, pressed: 0x402, wantPath: "payloads/b.firm", wantFound: true},
		{desc: "unbound", menu: m, pressed: 0x800},
		{desc: "menu picks first", menu: m, wantPath: "payloads/a.firm", wantShown: true, wantFound: true},
		{desc: "menu default", menu: ButtonMenu{Default: "x.firm"}, wantPath: "x.firm", wantShown: true, wantFound: true},
		{desc: "empty menu", menu: ButtonMenu{}, wantShown: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			p, shown, found := test.menu.SelectPayload(test.pressed)
			if p != test.wantPath || shown != test.wantShown || found != test.wantFound {
				t.Errorf("SelectPayload(0x%x) = %q, %v, %v, want %q, %v, %v", test.pressed, p, shown, found, test.wantPath, test.wantShown, test.wantFound)
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Loading("Loading firm", "Loading NATIVE_FIRM...")
	r.Message("Failed", "details")

	want := []Screen{
		{Title: "Loading firm", Text: "Loading NATIVE_FIRM..."},
		{Title: "Failed", Text: "details", Message: true},
	}
	if diff := cmp.Diff(want, r.Screens()); diff != "" {
		t.Errorf("screens diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[1:], r.Messages()); diff != "" {
		t.Errorf("messages diff (-want +got):\n%s", diff)
	}
}
