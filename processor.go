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

// process runs the three-layer pipeline for one event.  Caller holds
// the engine critical section.  The order is load-bearing: waiting
// triggers are promoted before the current event is classified, so a
// long-held trigger's modifier is visible to the rule lookup for the
// key that follows it.
func (e *Engine) process(device uint32, inputEvdev uint16, typ EventType, start time.Time) ProcessedEvent {
	journeyOn := e.journeyOn.Load()
	var j Journey
	if journeyOn {
		j.Device = device
		j.InputEvdev = inputEvdev
		j.Press = typ == Press
	}

	// Pre-tick: promote every trigger whose hold threshold elapsed.
	for _, tr := range e.triggers.PollWaiting() {
		e.mods.Activate(tr.Mod)
		e.log.Debug("trigger hold activated",
			"key", tr.Code.Name(), "mod", VirtualCode(tr.Mod).Name())
	}

	// Layer 1: OS code to internal code.
	code := Decode(inputEvdev)
	if code == CodeNone {
		e.decodeMiss.Inc()
		e.log.Debug("unmapped input code", "evdev", inputEvdev)
		return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
	}
	if journeyOn {
		j.InternalIn = code
	}

	// Layer 2: classify and substitute.
	output := code
	isTap := false
	if e.triggers.Lookup(code) != nil {
		act, tr := e.triggers.Process(code, typ)
		if journeyOn {
			j.Trigger = act != TriggerPassthrough
		}
		switch act {
		case TriggerSuppress:
			return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
		case TriggerActivate:
			e.mods.Activate(tr.Mod)
			return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
		case TriggerDeactivate:
			e.mods.Deactivate(tr.Mod)
			return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
		case TriggerTap:
			// The press was consumed while waiting; the caller
			// expands this into a press+release of the tap output.
			isTap = true
			output = tr.TapOutput
		case TriggerPassthrough:
			// Stale press or unregistered; fall through.
		}
	}

	if !isTap {
		// Hardware modifiers update the state and still reach the
		// OS through layer 3.
		if IsHardwareModifier(code) {
			e.mods.UpdateFromEvent(code, typ != Release)
		}

		state := e.mods.FullState()
		rule := e.res.findRule(code, &state)

		// A prefix is one-shot: any non-modifier press that is not
		// itself a prefix push resolves against the child and then
		// clears the prefix stack.
		if typ == Press && !IsHardwareModifier(code) &&
			(rule == nil || rule.Action == nil || rule.Action.Kind != ActionPrefix) {
			e.res.cancelPrefix()
		}

		if rule != nil {
			if rule.Action != nil && typ == Press {
				if rule.Action.immediate() {
					e.applyImmediate(rule.Action)
				} else {
					e.exec.enqueue(rule.Action)
				}
			}
			if rule.Output == CodeNone {
				// Command binding with no output key: the event
				// is consumed.
				if journeyOn {
					j.InternalOut = CodeNone
					j.Substituted = true
				}
				return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
			}
			output = rule.Output
		}
	}
	if journeyOn {
		j.InternalOut = output
		j.Substituted = output != code
		j.Tap = isTap
	}

	// Layer 3: internal code back to OS code.  Virtual pseudo-codes
	// encode to zero and are suppressed here.
	outEvdev := Encode(output)
	if outEvdev == 0 {
		e.decodeMiss.Inc()
		e.log.Debug("unmapped output code", "code", output.Name())
		return e.finish(ProcessedEvent{Type: typ}, &j, journeyOn, start)
	}

	return e.finish(ProcessedEvent{
		OutputEvdev: outEvdev,
		OutputCode:  output,
		Type:        typ,
		Valid:       true,
		Tap:         isTap,
	}, &j, journeyOn, start)
}

// finish stamps the journey record and ships it to the observer.
func (e *Engine) finish(pe ProcessedEvent, j *Journey, journeyOn bool, start time.Time) ProcessedEvent {
	if journeyOn {
		j.OutputEvdev = pe.OutputEvdev
		j.Valid = pe.Valid
		j.LatencyNs = uint64(e.now().Sub(start))
		if obs := e.observer.Load(); obs != nil {
			(*obs).Observe(*j)
		}
	}
	return pe
}
