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
)

// KeymapID identifies a keymap inside its configuration's arena.
// Parent links are IDs, not pointers, so a reload can rebuild the whole
// arena without chasing cycles.
type KeymapID int

// NoKeymap is the null keymap ID.
const NoKeymap KeymapID = -1

// maxPrefixHistory bounds the prefix history; the oldest entry is
// evicted when it overflows.
const maxPrefixHistory = 64

// Keymap is a named rule set with an optional parent and a window
// predicate.  Keymaps are immutable once their configuration is
// installed.
type Keymap struct {
	ID     KeymapID
	Name   string
	Parent KeymapID

	// ClassRe and TitleRe select the windows this keymap applies to.
	// A nil regexp matches everything.  A keymap with neither regexp
	// (such as the default global keymap) is not a focus candidate; it
	// is reached as the default, as a parent, or through a prefix.
	ClassRe *regexp.Regexp
	TitleRe *regexp.Regexp

	Table *Table
}

// MatchesWindow reports whether the keymap's predicates accept the
// focus snapshot.
func (k *Keymap) MatchesWindow(class, title string) bool {
	if k.ClassRe != nil && !k.ClassRe.MatchString(class) {
		return false
	}
	if k.TitleRe != nil && !k.TitleRe.MatchString(title) {
		return false
	}
	return true
}

// FocusSnapshot describes the foreground window of one input-provider
// thread.
type FocusSnapshot struct {
	Thread  uint32
	Window  uintptr
	Class   string
	Title   string
	Console bool
}

// resolver tracks the focused window, selects the current keymap, and
// owns the prefix stack.  It is guarded by the engine's critical
// section.
type resolver struct {
	cfg *Config

	focus      map[uint32]FocusSnapshot
	lastThread uint32

	// candidates are the keymaps matching the current focus, in
	// configuration order.  idx rotates through them for the
	// other-window-class action.
	candidates []*Keymap
	idx        int
	current    *Keymap

	prefixStack   []*Keymap
	prefixHistory []*Keymap
}

func newResolver() resolver {
	return resolver{focus: make(map[uint32]FocusSnapshot)}
}

// install replaces the configuration.  The prefix stack and history
// die with the old keymap arena; the candidate list is recomputed from
// the last known focus.
func (r *resolver) install(cfg *Config) {
	r.cfg = cfg
	r.prefixStack = nil
	r.prefixHistory = nil
	if snap, ok := r.focus[r.lastThread]; ok {
		r.resolve(snap)
	} else {
		r.candidates = nil
		r.idx = 0
		r.current = cfg.DefaultKeymap()
	}
}

// notifyFocus records the focus snapshot and re-resolves the current
// keymap.  Idempotent per identity tuple.
func (r *resolver) notifyFocus(snap FocusSnapshot) {
	if prev, ok := r.focus[snap.Thread]; ok && prev == snap {
		return
	}
	r.focus[snap.Thread] = snap
	r.lastThread = snap.Thread
	if r.cfg == nil {
		return
	}
	r.resolve(snap)
}

// focusOut destroys the snapshot for a thread.
func (r *resolver) focusOut(thread uint32) {
	delete(r.focus, thread)
}

func (r *resolver) resolve(snap FocusSnapshot) {
	r.candidates = r.candidates[:0]
	for _, k := range r.cfg.Keymaps {
		if k.ClassRe == nil && k.TitleRe == nil {
			continue
		}
		if k.MatchesWindow(snap.Class, snap.Title) {
			r.candidates = append(r.candidates, k)
		}
	}
	r.idx = 0
	r.prefixStack = nil
	if len(r.candidates) > 0 {
		r.current = r.candidates[0]
	} else {
		// No keymap predicate matched; never fatal.
		r.current = r.cfg.DefaultKeymap()
	}
}

// active returns the keymap events resolve against: the innermost
// prefix if one is pushed, else the current keymap.
func (r *resolver) active() *Keymap {
	if n := len(r.prefixStack); n > 0 {
		return r.prefixStack[n-1]
	}
	return r.current
}

// findRule looks the input code up in the active keymap, walking the
// parent chain until a rule matches.
func (r *resolver) findRule(input Code, state *Bits) *Rule {
	if r.cfg == nil {
		return nil
	}
	for k := r.active(); k != nil; k = r.cfg.Keymap(k.Parent) {
		if rule := k.Table.Find(input, state); rule != nil {
			return rule
		}
	}
	return nil
}

// pushPrefix makes the identified keymap the active rule set until a
// cancel or a non-prefix key fires.
func (r *resolver) pushPrefix(id KeymapID) {
	k := r.cfg.Keymap(id)
	if k == nil {
		return
	}
	r.prefixStack = append(r.prefixStack, k)
	r.prefixHistory = append(r.prefixHistory, k)
	if len(r.prefixHistory) > maxPrefixHistory {
		r.prefixHistory = r.prefixHistory[1:]
	}
}

// cancelPrefix drops the whole prefix stack.
func (r *resolver) cancelPrefix() {
	r.prefixStack = nil
}

// popPrefix drops the innermost prefix, if any.
func (r *resolver) popPrefix() {
	if n := len(r.prefixStack); n > 0 {
		r.prefixStack = r.prefixStack[:n-1]
	}
}

// prevPrefix re-enters the most recent prefix from the history.
func (r *resolver) prevPrefix() {
	if n := len(r.prefixHistory); n > 0 {
		r.prefixStack = append(r.prefixStack, r.prefixHistory[n-1])
	}
}

// toParent switches the current keymap to its parent, if it has one.
func (r *resolver) toParent() {
	if r.current == nil {
		return
	}
	if p := r.cfg.Keymap(r.current.Parent); p != nil {
		r.current = p
	}
}

// otherWindowClass rotates to the next keymap whose predicates also
// matched the focused window.
func (r *resolver) otherWindowClass() {
	if len(r.candidates) == 0 {
		return
	}
	r.idx = (r.idx + 1) % len(r.candidates)
	r.current = r.candidates[r.idx]
}
