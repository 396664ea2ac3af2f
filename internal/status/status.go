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

// Package status holds the error taxonomy of the boot pipeline and the
// success/skip/fatal outcome each stage reports to the orchestrator.
package status

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind int

const (
	// IOError: an artifact is missing, unreadable or unwritable.
	IOError Kind = iota + 1
	// FormatError: bad magic or layout in a container, sub-container or FIRM,
	// or a ticket cut short.
	FormatError
	// CryptoError: the ticket was rejected, or a key slot could not be used.
	CryptoError
	// VersionError: no signature matched the image.
	VersionError
	// ConfigError: a lookup table is missing an entry for this firmware.
	ConfigError
	// SizeError: a payload is too small to be plausible.
	SizeError
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IOError"
	case FormatError:
		return "FormatError"
	case CryptoError:
		return "CryptoError"
	case VersionError:
		return "VersionError"
	case ConfigError:
		return "ConfigError"
	case SizeError:
		return "SizeError"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a pipeline failure carrying the two-line message shown on screen.
type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Title, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Title)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind.
func New(k Kind, title, detail string, err error) *Error {
	return &Error{Kind: k, Title: title, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the title/detail pair to display for err.
func Message(err error) (string, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Title, e.Detail
	}
	return "Error", err.Error()
}

// Status is the outcome of a pipeline stage.
type Status int

const (
	OK Status = iota
	// Skip means the stage failed in a way the caller may tolerate by leaving
	// the firmware family absent.
	Skip
	// Fatal means the boot must be abandoned.
	Fatal
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Skip:
		return "skip"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type skipError struct {
	err error
}

func (s skipError) Error() string { return s.err.Error() }
func (s skipError) Unwrap() error { return s.err }

// Skippable marks err as tolerable for an optional firmware family.
func Skippable(err error) error {
	if err == nil {
		return nil
	}
	return skipError{err}
}

// Classify maps an error returned by a pipeline stage to its Status.
func Classify(err error) Status {
	if err == nil {
		return OK
	}
	var s skipError
	if errors.As(err, &s) {
		return Skip
	}
	return Fatal
}
