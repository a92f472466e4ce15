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
	"sort"
)

// Rule is a compiled remapping rule.  It matches when every bit of On
// is set in the modifier state and no bit of Off is.  Output is the
// internal code to emit; Action, if non-nil, runs when the rule fires on
// a press: lock, prefix and variable actions are applied inline, the
// others are queued for the executor.
type Rule struct {
	On     Bits
	Off    Bits
	Output Code
	Action *Action
}

// Matches reports whether the rule applies under the given state.
func (r *Rule) Matches(state *Bits) bool {
	return state.ContainsAll(&r.On) && state.DisjointFrom(&r.Off)
}

// Specificity counts the constrained bits of the rule.  A rule with a
// strictly larger constraint set is more specific and must be tried
// first.
func (r *Rule) Specificity() int {
	u := r.On.Union(r.Off)
	return u.OnesCount()
}

// Table maps an input code to its priority-ordered rules.  A table is
// built once by the configuration loader, frozen, and then shared
// read-only across threads; it is never mutated in place.  The current
// table pointer is swapped atomically on reload and focus change.
type Table struct {
	buckets map[Code][]Rule
	frozen  bool
}

// NewTable returns an empty rule table.
func NewTable() *Table {
	return &Table{buckets: make(map[Code][]Rule)}
}

// Add appends a rule for the given input code.  Add may only be used
// during construction, before Freeze.
func (t *Table) Add(input Code, r Rule) {
	if t.frozen {
		panic("keywarp: Add on frozen rule table")
	}
	t.buckets[input] = append(t.buckets[input], r)
}

// Freeze orders every bucket by descending specificity (stable, so
// rules of equal specificity keep their source order) and marks the
// table read-only.
func (t *Table) Freeze() {
	for _, rules := range t.buckets {
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Specificity() > rules[j].Specificity()
		})
	}
	t.frozen = true
}

// Find returns the first rule for input that matches state, or nil.
// A nil result means passthrough.
func (t *Table) Find(input Code, state *Bits) *Rule {
	rules, ok := t.buckets[input]
	if !ok {
		return nil
	}
	for i := range rules {
		if rules[i].Matches(state) {
			return &rules[i]
		}
	}
	return nil
}

// Len returns the total number of rules in the table.
func (t *Table) Len() int { return t.size() }

func (t *Table) size() int {
	n := 0
	for _, rules := range t.buckets {
		n += len(rules)
	}
	return n
}

// Inputs returns the input codes that have at least one rule, in
// unspecified order.
func (t *Table) Inputs() []Code {
	codes := make([]Code, 0, len(t.buckets))
	for c := range t.buckets {
		codes = append(codes, c)
	}
	return codes
}

// Rules returns the priority-ordered rules for input.  The slice is
// shared; callers must not modify it.
func (t *Table) Rules(input Code) []Rule {
	return t.buckets[input]
}
