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
	"sync"
)

// SimInjector is an in-memory injector for tests and the simulation
// harness.  It records every injected event, performing the same tap
// expansion a real OS adapter does: a FromTap event becomes a press
// immediately followed by a release.
type SimInjector struct {
	mu     sync.Mutex
	events []InjectEvent

	// FailNext makes the next N Inject calls fail, for exercising
	// the bounded-retry path.
	FailNext int
}

// NewSimInjector returns an empty recorder.
func NewSimInjector() *SimInjector {
	return &SimInjector{}
}

// Inject implements Injector.
func (s *SimInjector) Inject(ev InjectEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext > 0 {
		s.FailNext--
		return ErrInjectFailed
	}
	if ev.FromTap {
		s.events = append(s.events,
			InjectEvent{Code: ev.Code, Type: Press, FromTap: true},
			InjectEvent{Code: ev.Code, Type: Release, FromTap: true})
		return nil
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything injected so far.
func (s *SimInjector) Events() []InjectEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InjectEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Reset forgets all recorded events.
func (s *SimInjector) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
