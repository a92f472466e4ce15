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
	"log/slog"
	"time"
)

// DefaultHoldThreshold is the hold time after which a trigger key
// becomes a modifier instead of a tap.
const DefaultHoldThreshold = 200 * time.Millisecond

// maxHold guards against clock jumps across suspend/resume: a press
// older than this is treated as stale and the key reverts to a normal
// key.
const maxHold = 5 * time.Second

type triggerState int

const (
	triggerIdle triggerState = iota
	triggerWaiting
	triggerActive
	triggerTapDetected
)

// TriggerAction tells the event processor what to do with the event
// that was just fed to the trigger handler.
type TriggerAction int

const (
	// TriggerPassthrough: the key is not a registered trigger, or the
	// press went stale; process it as a normal key.
	TriggerPassthrough TriggerAction = iota

	// TriggerSuppress: the event is consumed with no output.  Used
	// while waiting for the hold threshold, for auto-repeat of a held
	// trigger, and for the hold-expired release edge case.
	TriggerSuppress

	// TriggerActivate: the hold threshold was reached; activate the
	// trigger's virtual modifier.  The trigger key itself emits
	// nothing.
	TriggerActivate

	// TriggerDeactivate: the held trigger was released; clear its
	// virtual modifier.  No output.
	TriggerDeactivate

	// TriggerTap: the key was released before the threshold; emit its
	// tap output as a synthetic press+release pair.
	TriggerTap
)

// Trigger is the hold/tap state machine for one registered trigger key.
type Trigger struct {
	Code      Code
	Mod       uint8
	TapOutput Code
	Threshold time.Duration

	state     triggerState
	pressTime time.Time
}

// Held reports whether the trigger currently holds its modifier active.
func (tr *Trigger) Held() bool { return tr.state == triggerActive }

// Waiting reports whether the trigger is pressed but below threshold.
func (tr *Trigger) Waiting() bool { return tr.state == triggerWaiting }

// TriggerSet owns the state machines for every registered trigger key.
// It is strictly owned by the hot path; no internal locking.
type TriggerSet struct {
	triggers map[Code]*Trigger
	now      func() time.Time
	log      *slog.Logger
}

// NewTriggerSet returns an empty trigger set.  The logger may be nil.
func NewTriggerSet(log *slog.Logger) *TriggerSet {
	if log == nil {
		log = slog.Default()
	}
	return &TriggerSet{
		triggers: make(map[Code]*Trigger),
		now:      time.Now,
		log:      log,
	}
}

// Register adds a trigger for the given physical key.  A zero tap
// output means the tap is suppressed; a zero threshold selects the
// default.  Re-registering a code replaces the previous registration.
func (s *TriggerSet) Register(code Code, mod uint8, tapOutput Code, threshold time.Duration) {
	if threshold <= 0 {
		threshold = DefaultHoldThreshold
	}
	s.triggers[code] = &Trigger{
		Code:      code,
		Mod:       mod,
		TapOutput: tapOutput,
		Threshold: threshold,
	}
}

// Lookup returns the trigger registered for code, or nil.
func (s *TriggerSet) Lookup(code Code) *Trigger {
	return s.triggers[code]
}

// Process feeds one event for a registered trigger key through its
// state machine and returns the resulting action.  Code must be a
// registered trigger; for anything else Process returns
// TriggerPassthrough with a nil trigger.
func (s *TriggerSet) Process(code Code, typ EventType) (TriggerAction, *Trigger) {
	tr, ok := s.triggers[code]
	if !ok {
		return TriggerPassthrough, nil
	}
	if typ == AutoRepeat {
		typ = Press
	}

	now := s.now()
	switch typ {
	case Press:
		switch tr.state {
		case triggerIdle:
			tr.state = triggerWaiting
			tr.pressTime = now
			return TriggerSuppress, tr

		case triggerWaiting:
			elapsed := now.Sub(tr.pressTime)
			if elapsed > maxHold {
				// Stale press, likely suspend/resume.
				s.log.Warn("trigger press stale, reverting to normal key",
					"key", code.Name(), "elapsed", elapsed)
				tr.state = triggerIdle
				return TriggerPassthrough, tr
			}
			if elapsed >= tr.Threshold {
				tr.state = triggerActive
				return TriggerActivate, tr
			}
			return TriggerSuppress, tr

		case triggerActive:
			// Auto-repeat of the held trigger.
			return TriggerSuppress, tr

		case triggerTapDetected:
			// Should not happen; treat as a fresh press.
			tr.state = triggerWaiting
			tr.pressTime = now
			return TriggerSuppress, tr
		}

	case Release:
		switch tr.state {
		case triggerIdle:
			s.log.Warn("trigger release without press",
				"key", code.Name())
			return TriggerSuppress, tr

		case triggerWaiting:
			tr.state = triggerIdle
			if now.Sub(tr.pressTime) >= tr.Threshold {
				// The hold expired but nothing promoted it (no
				// intervening event).  Suppress the key.
				return TriggerSuppress, tr
			}
			if tr.TapOutput == CodeNone {
				return TriggerSuppress, tr
			}
			return TriggerTap, tr

		case triggerActive:
			tr.state = triggerIdle
			return TriggerDeactivate, tr

		case triggerTapDetected:
			tr.state = triggerIdle
			return TriggerTap, tr
		}
	}
	return TriggerSuppress, tr
}

// PollWaiting promotes every trigger whose hold threshold has elapsed
// to the active state and returns the promoted triggers.  The event
// processor calls this at the top of every event so a long-held trigger
// activates before the current event is classified.
func (s *TriggerSet) PollWaiting() []*Trigger {
	var promoted []*Trigger
	now := s.now()
	for _, tr := range s.triggers {
		if tr.state != triggerWaiting {
			continue
		}
		elapsed := now.Sub(tr.pressTime)
		if elapsed >= tr.Threshold && elapsed <= maxHold {
			tr.state = triggerActive
			promoted = append(promoted, tr)
		}
	}
	return promoted
}

// Reset forces every trigger back to idle.  Configuration reload does
// not use it: InstallConfig builds a fresh TriggerSet.
func (s *TriggerSet) Reset() {
	for _, tr := range s.triggers {
		tr.state = triggerIdle
	}
}

// Len returns the number of registered triggers.
func (s *TriggerSet) Len() int { return len(s.triggers) }
