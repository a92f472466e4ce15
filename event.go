// Copyright 2026 The KeyWarp Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keywarp

import (
	"time"
)

// EventType distinguishes the direction of a key event.  The values
// match the Linux input layer (0 release, 1 press, 2 auto-repeat), so a
// provider can convert a raw report with a single cast.
type EventType int

const (
	// Release reports a key going up.
	Release EventType = iota

	// Press reports a key going down.
	Press

	// AutoRepeat reports a kernel-synthesized repeat of a held key.
	// The engine treats it as Press for rule matching; providers are
	// expected to suppress redundant injections.
	AutoRepeat
)

// String returns the conventional name for the event type.
func (t EventType) String() string {
	switch t {
	case Release:
		return "RELEASE"
	case Press:
		return "PRESS"
	case AutoRepeat:
		return "REPEAT"
	}
	return "UNKNOWN"
}

// InputEvent is a raw keyboard event as delivered by an input provider.
// Code is the OS-level (evdev) key code; the provider must have grabbed
// the device exclusively before submitting events for it.
type InputEvent struct {
	Device uint32
	Code   uint16
	Type   EventType
	Time   time.Time
}

// InjectEvent is a finished event handed to the injector.  FromTap marks
// the synthetic output of a trigger tap: the injector must expand it to
// a press immediately followed by a release, because the physical press
// that started the tap was consumed by the engine.
type InjectEvent struct {
	Code    uint16
	Type    EventType
	FromTap bool
}

// ProcessedEvent is the result of running one input event through the
// three-layer pipeline.  If Valid is false the event produced no output
// (unmapped code, or a trigger key that was consumed).  Type always
// equals the input type; suppression is the only alternative to type
// preservation.
type ProcessedEvent struct {
	OutputEvdev uint16
	OutputCode  Code
	Type        EventType
	Valid       bool
	Tap         bool
}
