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

// Journey traces one event through the three-layer pipeline.  Records
// are produced only while journey logging is enabled, so the hot path
// pays a single atomic load when it is off.
type Journey struct {
	Device      uint32 `json:"device"`
	InputEvdev  uint16 `json:"input_evdev"`
	InternalIn  Code   `json:"internal_in"`
	InternalOut Code   `json:"internal_out"`
	OutputEvdev uint16 `json:"output_evdev"`
	Press       bool   `json:"press"`
	Valid       bool   `json:"valid"`
	Substituted bool   `json:"substituted"`
	Trigger     bool   `json:"trigger"`
	Tap         bool   `json:"tap"`
	LatencyNs   uint64 `json:"latency_ns"`
}

// InputName returns the printable name of the input key.
func (j *Journey) InputName() string { return j.InternalIn.Name() }

// OutputName returns the printable name of the output key.
func (j *Journey) OutputName() string { return j.InternalOut.Name() }

// JourneyObserver receives one record per processed event while
// journey logging is enabled.  The observer is called on the hot path
// and must not block; buffer and ship elsewhere.
type JourneyObserver interface {
	Observe(Journey)
}

// JourneyFunc adapts a function to the JourneyObserver interface.
type JourneyFunc func(Journey)

// Observe implements JourneyObserver.
func (f JourneyFunc) Observe(j Journey) { f(j) }
