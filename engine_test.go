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
	"regexp"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// testHarness bundles an engine with a fake clock and a recording
// injector.
type testHarness struct {
	eng   *Engine
	sim   *SimInjector
	clock *fakeClock
}

func newHarness() *testHarness {
	clock := newFakeClock()
	sim := NewSimInjector()
	eng := NewEngine(
		WithInjector(sim),
		WithClock(clock.now),
	)
	return &testHarness{eng: eng, sim: sim, clock: clock}
}

// emptyConfig is a single global keymap with no rules and no triggers.
func emptyConfig() *Config {
	tbl := NewTable()
	tbl.Freeze()
	return &Config{
		Name: "test",
		Keymaps: []*Keymap{
			{ID: 0, Name: "Global", Parent: NoKeymap, Table: tbl},
		},
	}
}

// capsConfig registers CapsLock as M00 (tap Esc, 200 ms) and maps
// M00-H to Left.
func capsConfig() *Config {
	tbl := NewTable()
	tbl.Add(CodeH, Rule{On: onBits(VirtualBit(0)), Output: CodeLeft})
	tbl.Freeze()
	return &Config{
		Name: "caps",
		Keymaps: []*Keymap{
			{ID: 0, Name: "Global", Parent: NoKeymap, Table: tbl},
		},
		Triggers: []TriggerReg{
			{Trigger: CodeCapsLock, Mod: 0x00, TapOutput: CodeEsc, Threshold: 200 * time.Millisecond},
		},
	}
}

func (h *testHarness) press(evdev uint16)   { h.eng.Submit(InputEvent{Code: evdev, Type: Press}) }
func (h *testHarness) release(evdev uint16) { h.eng.Submit(InputEvent{Code: evdev, Type: Release}) }

func TestEngineScenarios(t *testing.T) {
	evA := Encode(CodeA)
	evW := Encode(CodeW)
	evH := Encode(CodeH)
	evC := Encode(CodeC)
	evX := Encode(CodeX)
	evEsc := Encode(CodeEsc)
	evLeft := Encode(CodeLeft)
	evCaps := Encode(CodeCapsLock)

	Convey("Trivial passthrough", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(emptyConfig()), ShouldBeNil)

		h.press(evA)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evA, Type: Press}})
		So(h.eng.ModifierSnapshot(), ShouldResemble, Bits{})
	})

	Convey("Simple remap", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeW, Rule{Output: CodeA})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		h.press(evW)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evA, Type: Press}})
	})

	Convey("Hold turns CapsLock into M00", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(capsConfig()), ShouldBeNil)

		h.press(evCaps)
		So(h.sim.Events(), ShouldBeEmpty) // suppressed while waiting

		h.clock.advance(250 * time.Millisecond)
		h.press(evH)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evLeft, Type: Press}})

		Convey("and releasing the trigger deactivates it", func() {
			h.release(evCaps)
			So(h.sim.Events(), ShouldHaveLength, 1) // release suppressed

			h.release(evH) // balance the held key; maps while M00 off
			h.sim.Reset()
			h.press(evH)
			So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evH, Type: Press}})
		})
	})

	Convey("Tap emits the tap output as press+release", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(capsConfig()), ShouldBeNil)

		h.press(evCaps)
		h.clock.advance(50 * time.Millisecond)
		h.release(evCaps)

		So(h.sim.Events(), ShouldResemble, []InjectEvent{
			{Code: evEsc, Type: Press, FromTap: true},
			{Code: evEsc, Type: Release, FromTap: true},
		})
		So(h.eng.ModifierSnapshot(), ShouldResemble, Bits{}) // M00 never activated
	})

	Convey("Focus switch selects the window keymap", t, func() {
		h := newHarness()
		defer h.eng.Close()

		global := NewTable()
		global.Freeze()
		emacs := NewTable()
		emacs.Add(CodeC, Rule{Output: CodeX})
		emacs.Freeze()
		cfg := &Config{
			Name: "focus",
			Keymaps: []*Keymap{
				{ID: 0, Name: "Global", Parent: NoKeymap, Table: global},
				{ID: 1, Name: "Emacs", Parent: NoKeymap,
					ClassRe: regexp.MustCompile("^Emacs$"), Table: emacs},
			},
		}
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		h.eng.NotifyFocus(FocusSnapshot{Thread: 1, Class: "Emacs", Title: "scratch"})
		h.press(evC)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evX, Type: Press}})

		h.sim.Reset()
		h.eng.NotifyFocus(FocusSnapshot{Thread: 1, Class: "xterm", Title: "shell"})
		h.press(evC)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evC, Type: Press}})
	})
}

func TestEngineBehavior(t *testing.T) {
	evA := Encode(CodeA)
	evW := Encode(CodeW)
	evShift := Encode(CodeLShift)

	Convey("Release of a remapped key maps the same way", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeW, Rule{Output: CodeA})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		h.press(evW)
		h.release(evW)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{
			{Code: evA, Type: Press},
			{Code: evA, Type: Release},
		})
	})

	Convey("Auto-repeat is treated as press", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(emptyConfig()), ShouldBeNil)

		h.eng.Submit(InputEvent{Code: evA, Type: AutoRepeat})
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evA, Type: Press}})
	})

	Convey("Hardware modifiers update state and pass through", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeA, Rule{On: onBits(StdBit(ModLShift)), Output: CodeB})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		h.press(evShift)
		h.press(evA)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{
			{Code: evShift, Type: Press},
			{Code: Encode(CodeB), Type: Press},
		})

		h.sim.Reset()
		h.release(evShift)
		h.press(evA)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{
			{Code: evShift, Type: Release},
			{Code: evA, Type: Press},
		})
	})

	Convey("Disabled engine is transparent", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeW, Rule{Output: CodeA})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		h.eng.SetEnabled(false)
		h.press(evW)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evW, Type: Press}})

		h.eng.SetEnabled(true)
		h.sim.Reset()
		h.press(evW)
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: evA, Type: Press}})
	})

	Convey("Unmapped input is dropped and counted", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(emptyConfig()), ShouldBeNil)

		h.eng.Submit(InputEvent{Code: 700, Type: Press})
		So(h.sim.Events(), ShouldBeEmpty)
		So(h.eng.DecodeMisses(), ShouldEqual, 1)
	})

	Convey("Injection retries then drops", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(emptyConfig()), ShouldBeNil)

		h.sim.FailNext = 3 // fewer than the retry bound
		h.press(evA)
		So(h.sim.Events(), ShouldHaveLength, 1)
		So(h.eng.InjectFailures(), ShouldEqual, 0)

		h.sim.Reset()
		h.sim.FailNext = 100 // exhausts the bound
		h.press(evA)
		So(h.sim.Events(), ShouldBeEmpty)
		So(h.eng.InjectFailures(), ShouldEqual, 1)
	})
}

func TestEngineConfigLifecycle(t *testing.T) {
	evH := Encode(CodeH)
	evCaps := Encode(CodeCapsLock)

	Convey("A rejected config leaves the previous one live", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeW, Rule{Output: CodeA})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		bad := &Config{Name: "bad"}
		So(h.eng.InstallConfig(bad), ShouldNotBeNil)
		So(h.eng.Status().LastError, ShouldNotBeBlank)
		So(h.eng.Config().Name, ShouldEqual, "test")

		h.press(Encode(CodeW))
		So(h.sim.Events(), ShouldResemble, []InjectEvent{{Code: Encode(CodeA), Type: Press}})
	})

	Convey("Reload clears held modifiers but keeps locks", t, func() {
		h := newHarness()
		defer h.eng.Close()
		So(h.eng.InstallConfig(capsConfig()), ShouldBeNil)

		// Hold CapsLock until M00 is active.
		h.press(evCaps)
		h.clock.advance(250 * time.Millisecond)
		h.press(evH)
		So(h.sim.Events(), ShouldHaveLength, 1)

		st := h.eng.ModifierSnapshot()
		So(st.Test(VirtualBit(0)), ShouldBeTrue)

		So(h.eng.InstallConfig(capsConfig()), ShouldBeNil)
		st = h.eng.ModifierSnapshot()
		So(st.Test(VirtualBit(0)), ShouldBeFalse)
	})

	Convey("Initial locks apply at install", t, func() {
		h := newHarness()
		defer h.eng.Close()
		cfg := emptyConfig()
		cfg.InitialLocks = []uint8{0x02}
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		st := h.eng.ModifierSnapshot()
		So(st.Test(LockBit(0x02)), ShouldBeTrue)
	})
}

func TestEngineJourney(t *testing.T) {
	Convey("Journey records flow while enabled", t, func() {
		h := newHarness()
		defer h.eng.Close()
		tbl := NewTable()
		tbl.Add(CodeW, Rule{Output: CodeA})
		tbl.Freeze()
		cfg := emptyConfig()
		cfg.Keymaps[0].Table = tbl
		So(h.eng.InstallConfig(cfg), ShouldBeNil)

		var got []Journey
		h.eng.SetJourneyObserver(JourneyFunc(func(j Journey) { got = append(got, j) }))

		h.press(Encode(CodeW))
		So(got, ShouldHaveLength, 1)
		So(got[0].InternalIn, ShouldEqual, CodeW)
		So(got[0].InternalOut, ShouldEqual, CodeA)
		So(got[0].Substituted, ShouldBeTrue)
		So(got[0].Valid, ShouldBeTrue)

		h.eng.SetJourneyObserver(nil)
		h.press(Encode(CodeW))
		So(got, ShouldHaveLength, 1)
	})
}
