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
	"fmt"
	"time"
)

// TriggerReg registers one physical key as a virtual-modifier trigger.
type TriggerReg struct {
	Trigger   Code
	Mod       uint8
	TapOutput Code
	Threshold time.Duration
}

// Config bundles everything the engine needs for one installed
// configuration: the keymap arena, the trigger registrations, and the
// initial lock state.  A Config is immutable after InstallConfig; a
// reload builds a fresh one.
type Config struct {
	Name string

	// Keymaps is the arena; a keymap's ID is its index here.  The
	// slice order is the candidate order for focus resolution.
	Keymaps []*Keymap

	// Default is the keymap used when no window predicate matches.
	Default KeymapID

	Triggers []TriggerReg

	// InitialLocks lists lock numbers that start toggled on.
	InitialLocks []uint8
}

// Keymap returns the keymap for id, or nil for NoKeymap or an
// out-of-range id.
func (c *Config) Keymap(id KeymapID) *Keymap {
	if c == nil || id < 0 || int(id) >= len(c.Keymaps) {
		return nil
	}
	return c.Keymaps[id]
}

// DefaultKeymap returns the default keymap, or nil for an empty
// configuration.
func (c *Config) DefaultKeymap() *Keymap {
	return c.Keymap(c.Default)
}

// Validate checks the internal consistency of the configuration.
// InstallConfig rejects a configuration that fails validation, leaving
// the previous one live.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	if len(c.Keymaps) == 0 {
		return fmt.Errorf("config %q has no keymaps", c.Name)
	}
	if c.DefaultKeymap() == nil {
		return fmt.Errorf("config %q: default keymap id %d out of range", c.Name, c.Default)
	}
	seen := make(map[string]bool, len(c.Keymaps))
	for i, k := range c.Keymaps {
		if k == nil {
			return fmt.Errorf("config %q: nil keymap at %d", c.Name, i)
		}
		if k.ID != KeymapID(i) {
			return fmt.Errorf("config %q: keymap %q has id %d, want %d", c.Name, k.Name, k.ID, i)
		}
		if k.Table == nil {
			return fmt.Errorf("config %q: keymap %q has no rule table", c.Name, k.Name)
		}
		if k.Parent != NoKeymap && c.Keymap(k.Parent) == nil {
			return fmt.Errorf("config %q: keymap %q parent %d out of range", c.Name, k.Name, k.Parent)
		}
		if seen[k.Name] {
			return fmt.Errorf("config %q: duplicate keymap name %q", c.Name, k.Name)
		}
		seen[k.Name] = true
	}
	// Parent chains must be acyclic.
	for _, k := range c.Keymaps {
		slow, fast := k, k
		for {
			fast = c.Keymap(fast.Parent)
			if fast == nil {
				break
			}
			fast = c.Keymap(fast.Parent)
			slow = c.Keymap(slow.Parent)
			if fast == nil {
				break
			}
			if fast == slow {
				return fmt.Errorf("config %q: keymap parent cycle through %q", c.Name, k.Name)
			}
		}
	}
	for _, t := range c.Triggers {
		if t.Trigger == CodeNone {
			return fmt.Errorf("config %q: trigger with no key", c.Name)
		}
		if t.Threshold < 0 {
			return fmt.Errorf("config %q: trigger %s has negative threshold", c.Name, t.Trigger.Name())
		}
	}
	return nil
}
