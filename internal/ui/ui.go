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

// Package ui is the bootloader's status screen and payload menu, as seen by
// the boot pipeline.
package ui

import (
	"path"
	"sort"
	"sync"

	"github.com/golang/glog"
)

// Display shows progress and failures to the user.
type Display interface {
	// Loading shows that the step msg of the task title is running.
	Loading(title, msg string)
	// Message shows a failure: a short title and a longer detail.
	Message(title, detail string)
}

// Menu finds the homebrew payload to launch.
type Menu interface {
	// SelectPayload returns the path of the payload bound to the pressed
	// buttons or, if pressed is zero, the payload picked from an interactive
	// menu. menuShown reports whether the menu was drawn, which leaves the
	// displays initialised.
	SelectPayload(pressed uint32) (p string, menuShown bool, found bool)
}

// LogDisplay is a Display which writes to the log.
type LogDisplay struct{}

// Loading implements Display.
func (LogDisplay) Loading(title, msg string) {
	glog.Infof("[%s] %s", title, msg)
}

// Message implements Display.
func (LogDisplay) Message(title, detail string) {
	glog.Errorf("%s: %s", title, detail)
}

// Screen is a line the Recorder was asked to show.
type Screen struct {
	Title, Text string
	Message     bool
}

// Recorder is a Display which keeps what it was asked to show, and logs it.
type Recorder struct {
	mu      sync.Mutex
	screens []Screen
}

// Loading implements Display.
func (r *Recorder) Loading(title, msg string) {
	LogDisplay{}.Loading(title, msg)
	r.add(Screen{Title: title, Text: msg})
}

// Message implements Display.
func (r *Recorder) Message(title, detail string) {
	LogDisplay{}.Message(title, detail)
	r.add(Screen{Title: title, Text: detail, Message: true})
}

func (r *Recorder) add(s Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screens = append(r.screens, s)
}

// Screens returns everything shown so far.
func (r *Recorder) Screens() []Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Screen(nil), r.screens...)
}

// Messages returns the failure messages shown so far.
func (r *Recorder) Messages() []Screen {
	var m []Screen
	for _, s := range r.Screens() {
		if s.Message {
			m = append(m, s)
		}
	}
	return m
}

// ButtonMenu is a non-interactive Menu. Payloads binds button masks to
// payload names; the interactive menu picks Default, or the first bound
// payload by name if there is none.
type ButtonMenu struct {
	// Dir is prefixed to every returned path.
	Dir      string
	Payloads map[uint32]string
	Default  string
}

// SelectPayload implements Menu.
func (m ButtonMenu) SelectPayload(pressed uint32) (string, bool, bool) {
	if pressed != 0 {
		if name, ok := m.Payloads[pressed]; ok {
			return path.Join(m.Dir, name), false, true
		}
		masks := make([]uint32, 0, len(m.Payloads))
		for mask := range m.Payloads {
			masks = append(masks, mask)
		}
		sort.Slice(masks, func(i, j int) bool { return masks[i] < masks[j] })
		for _, mask := range masks {
			if mask != 0 && pressed&mask == mask {
				return path.Join(m.Dir, m.Payloads[mask]), false, true
			}
		}
		glog.Infof("No payload bound to buttons 0x%03X", pressed)
		return "", false, false
	}

	name := m.Default
	if name == "" {
		var names []string
		for _, n := range m.Payloads {
			names = append(names, n)
		}
		if len(names) == 0 {
			return "", true, false
		}
		sort.Strings(names)
		name = names[0]
	}
	return path.Join(m.Dir, name), true, true
}
