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

	. "github.com/smartystreets/goconvey/convey"
)

// prefixConfig builds Global -> (child) EmacsCtlX reachable by a
// prefix action on X, with parent fallback for unbound keys.
func prefixConfig() *Config {
	child := NewTable()
	child.Add(CodeS, Rule{Output: CodeF1})
	child.Add(CodeG, Rule{Action: &Action{Kind: ActionCancelPrefix}})
	child.Freeze()

	global := NewTable()
	global.Add(CodeX, Rule{Action: &Action{Kind: ActionPrefix, Keymap: 1}})
	global.Add(CodeW, Rule{Output: CodeA})
	global.Freeze()

	return &Config{
		Name: "prefix",
		Keymaps: []*Keymap{
			{ID: 0, Name: "Global", Parent: NoKeymap, Table: global},
			{ID: 1, Name: "CtlX", Parent: 0, Table: child},
		},
	}
}

func TestKeymapMatching(t *testing.T) {
	Convey("Window predicates", t, func() {
		k := &Keymap{
			ClassRe: regexp.MustCompile("^Emacs$"),
			TitleRe: regexp.MustCompile("scratch"),
		}
		So(k.MatchesWindow("Emacs", "*scratch*"), ShouldBeTrue)
		So(k.MatchesWindow("Emacs", "init.el"), ShouldBeFalse)
		So(k.MatchesWindow("xterm", "*scratch*"), ShouldBeFalse)

		all := &Keymap{}
		So(all.MatchesWindow("anything", "at all"), ShouldBeTrue)
	})
}

func TestResolverCandidates(t *testing.T) {
	Convey("Candidate ordering and fallback", t, func() {
		emacsAll := &Keymap{ID: 1, Name: "EmacsAll", Parent: NoKeymap,
			ClassRe: regexp.MustCompile("^Emacs"), Table: NewTable()}
		emacsMail := &Keymap{ID: 2, Name: "EmacsMail", Parent: NoKeymap,
			ClassRe: regexp.MustCompile("^Emacs"),
			TitleRe: regexp.MustCompile("mail"), Table: NewTable()}
		global := &Keymap{ID: 0, Name: "Global", Parent: NoKeymap, Table: NewTable()}
		for _, k := range []*Keymap{global, emacsAll, emacsMail} {
			k.Table.Freeze()
		}
		cfg := &Config{Name: "c", Keymaps: []*Keymap{global, emacsAll, emacsMail}}

		r := newResolver()
		r.install(cfg)
		So(r.active().Name, ShouldEqual, "Global")

		Convey("configuration order breaks ties", func() {
			r.notifyFocus(FocusSnapshot{Thread: 1, Class: "Emacs", Title: "mail inbox"})
			// Both Emacs maps match; Global has no predicate and is
			// only the fallback.
			So(r.active().Name, ShouldEqual, "EmacsAll")
			So(len(r.candidates), ShouldEqual, 2)

			Convey("other-window-class rotates in order", func() {
				r.otherWindowClass()
				So(r.active().Name, ShouldEqual, "EmacsMail")
				r.otherWindowClass()
				So(r.active().Name, ShouldEqual, "EmacsAll")
				r.otherWindowClass()
				So(r.active().Name, ShouldEqual, "EmacsMail")
			})
		})

		Convey("focus notifications are idempotent", func() {
			r.notifyFocus(FocusSnapshot{Thread: 1, Class: "Emacs", Title: "mail"})
			r.otherWindowClass()
			So(r.active().Name, ShouldEqual, "EmacsMail")
			// The same tuple again must not reset the rotation.
			r.notifyFocus(FocusSnapshot{Thread: 1, Class: "Emacs", Title: "mail"})
			So(r.active().Name, ShouldEqual, "EmacsMail")
		})
	})
}

func TestResolverParentChainLookup(t *testing.T) {
	Convey("Unbound keys fall through to the parent keymap", t, func() {
		cfg := prefixConfig()
		r := newResolver()
		r.install(cfg)
		r.pushPrefix(1)

		var empty Bits
		rule := r.findRule(CodeS, &empty)
		So(rule, ShouldNotBeNil)
		So(rule.Output, ShouldEqual, CodeF1)

		// W is bound only in the parent.
		rule = r.findRule(CodeW, &empty)
		So(rule, ShouldNotBeNil)
		So(rule.Output, ShouldEqual, CodeA)
	})
}

func TestPrefixStack(t *testing.T) {
	Convey("Prefix push, cancel, and history", t, func() {
		cfg := prefixConfig()
		r := newResolver()
		r.install(cfg)

		So(r.active().Name, ShouldEqual, "Global")
		r.pushPrefix(1)
		So(r.active().Name, ShouldEqual, "CtlX")
		r.cancelPrefix()
		So(r.active().Name, ShouldEqual, "Global")

		r.prevPrefix()
		So(r.active().Name, ShouldEqual, "CtlX")
		r.popPrefix()
		So(r.active().Name, ShouldEqual, "Global")

		Convey("history is bounded", func() {
			for i := 0; i < maxPrefixHistory*2; i++ {
				r.pushPrefix(1)
				r.cancelPrefix()
			}
			So(len(r.prefixHistory), ShouldEqual, maxPrefixHistory)
		})

		Convey("a focus change clears the stack", func() {
			r.pushPrefix(1)
			r.notifyFocus(FocusSnapshot{Thread: 1, Class: "anything"})
			So(r.active().Name, ShouldEqual, "Global")
		})
	})
}

func TestPrefixThroughEngine(t *testing.T) {
	evW := Encode(CodeW)
	evX := Encode(CodeX)
	evS := Encode(CodeS)
	evG := Encode(CodeG)
	evF1 := Encode(CodeF1)

	Convey("A prefix key re-routes the next event", t, func() {
		clock := newFakeClock()
		sim := NewSimInjector()
		eng := NewEngine(WithInjector(sim), WithClock(clock.now))
		defer eng.Close()
		So(eng.InstallConfig(prefixConfig()), ShouldBeNil)

		eng.Submit(InputEvent{Code: evX, Type: Press}) // consumed by &Prefix
		So(sim.Events(), ShouldBeEmpty)

		eng.Submit(InputEvent{Code: evS, Type: Press})
		So(sim.Events(), ShouldResemble, []InjectEvent{{Code: evF1, Type: Press}})

		Convey("the prefix is one-shot", func() {
			sim.Reset()
			eng.Submit(InputEvent{Code: evW, Type: Press})
			So(sim.Events(), ShouldResemble, []InjectEvent{{Code: Encode(CodeA), Type: Press}})
		})
	})

	Convey("An explicit cancel rule restores the outer keymap", t, func() {
		clock := newFakeClock()
		sim := NewSimInjector()
		eng := NewEngine(WithInjector(sim), WithClock(clock.now))
		defer eng.Close()
		So(eng.InstallConfig(prefixConfig()), ShouldBeNil)

		eng.Submit(InputEvent{Code: evX, Type: Press})
		eng.Submit(InputEvent{Code: evG, Type: Press}) // &CancelPrefix, consumed
		So(sim.Events(), ShouldBeEmpty)

		eng.Submit(InputEvent{Code: evW, Type: Press})
		So(sim.Events(), ShouldResemble, []InjectEvent{{Code: Encode(CodeA), Type: Press}})
	})
}
