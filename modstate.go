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

// The modifier bitset is partitioned into three contiguous segments:
// 16 standard modifiers, 256 virtual modifiers (M00-MFF), and 256 lock
// modifiers (L00-LFF).
const (
	StdModCount     = 16
	VirtualModCount = 256
	LockModCount    = 256

	stdOffset     = 0
	virtualOffset = stdOffset + StdModCount
	lockOffset    = virtualOffset + VirtualModCount

	// TotalModBits is the width of the modifier bitset.
	TotalModBits = lockOffset + LockModCount
)

// StdMod indexes the standard (hardware) modifier segment of the bitset.
type StdMod int

const (
	ModLShift StdMod = iota
	ModRShift
	ModLCtrl
	ModRCtrl
	ModLAlt
	ModRAlt
	ModLWin
	ModRWin
	ModCapsLock
	ModNumLock
	ModScrollLock
	ModUp
	ModDown
	ModRepeat
	ModIMELock
	ModIMEComp

	modNone StdMod = -1
)

// Bits is a fixed-width bitset wide enough for the full modifier state.
// The zero value is the empty set.  Bits is a value type; snapshots are
// plain copies.
type Bits [(TotalModBits + 63) / 64]uint64

// Set turns bit i on.
func (b *Bits) Set(i int) {
	b[i>>6] |= 1 << uint(i&63)
}

// Clear turns bit i off.
func (b *Bits) Clear(i int) {
	b[i>>6] &^= 1 << uint(i&63)
}

// Test reports whether bit i is on.
func (b *Bits) Test(i int) bool {
	return b[i>>6]&(1<<uint(i&63)) != 0
}

// ContainsAll reports whether every bit of on is set in b.
func (b *Bits) ContainsAll(on *Bits) bool {
	for i := range b {
		if b[i]&on[i] != on[i] {
			return false
		}
	}
	return true
}

// DisjointFrom reports whether no bit of off is set in b.
func (b *Bits) DisjointFrom(off *Bits) bool {
	for i := range b {
		if b[i]&off[i] != 0 {
			return false
		}
	}
	return true
}

// OnesCount returns the number of set bits.
func (b *Bits) OnesCount() int {
	n := 0
	for _, w := range b {
		n += popcount(w)
	}
	return n
}

// Union returns the bitwise or of b and o.
func (b Bits) Union(o Bits) Bits {
	for i := range b {
		b[i] |= o[i]
	}
	return b
}

func popcount(w uint64) int {
	n := 0
	for ; w != 0; w &= w - 1 {
		n++
	}
	return n
}

// LockVector is the packed lock segment handed to the lock-change
// callback: 256 lock bits in eight 32-bit words, L00 in the low bit of
// the first word.
type LockVector [8]uint32

// LockChangeFunc receives the packed lock vector after any change to a
// lock bit, including Reset.
type LockChangeFunc func(LockVector)

// ModifierState tracks the standard, virtual, and lock modifier flags
// for one engine instance.  Mutations are serialized by the engine's
// critical section; ModifierState itself does no locking.  External
// readers take a snapshot with FullState.
type ModifierState struct {
	state  Bits
	notify LockChangeFunc
}

// NewModifierState returns an empty modifier state.
func NewModifierState() *ModifierState {
	return &ModifierState{}
}

// SetLockChangeFunc installs the callback fired after every lock-bit
// change.  Pass nil to remove it.
func (m *ModifierState) SetLockChangeFunc(fn LockChangeFunc) {
	m.notify = fn
}

// UpdateFromEvent updates the standard-modifier segment if code is a
// hardware modifier key, and reports whether it was one.  Press of an
// already-pressed modifier and release of an unpressed one are
// idempotent.
func (m *ModifierState) UpdateFromEvent(code Code, press bool) bool {
	mod := stdModForCode(code)
	if mod == modNone {
		return false
	}
	if press {
		m.state.Set(stdOffset + int(mod))
	} else {
		m.state.Clear(stdOffset + int(mod))
	}
	return true
}

// IsStdPressed reports whether the given standard modifier flag is set.
func (m *ModifierState) IsStdPressed(mod StdMod) bool {
	return m.state.Test(stdOffset + int(mod))
}

// ShiftPressed reports whether either shift flag is set.
func (m *ModifierState) ShiftPressed() bool {
	return m.IsStdPressed(ModLShift) || m.IsStdPressed(ModRShift)
}

// CtrlPressed reports whether either control flag is set.
func (m *ModifierState) CtrlPressed() bool {
	return m.IsStdPressed(ModLCtrl) || m.IsStdPressed(ModRCtrl)
}

// AltPressed reports whether either alt flag is set.
func (m *ModifierState) AltPressed() bool {
	return m.IsStdPressed(ModLAlt) || m.IsStdPressed(ModRAlt)
}

// WinPressed reports whether either win flag is set.
func (m *ModifierState) WinPressed() bool {
	return m.IsStdPressed(ModLWin) || m.IsStdPressed(ModRWin)
}

// Activate sets virtual modifier bit mod.
func (m *ModifierState) Activate(mod uint8) {
	m.state.Set(virtualOffset + int(mod))
}

// Deactivate clears virtual modifier bit mod.
func (m *ModifierState) Deactivate(mod uint8) {
	m.state.Clear(virtualOffset + int(mod))
}

// IsActive reports whether virtual modifier bit mod is set.
func (m *ModifierState) IsActive(mod uint8) bool {
	return m.state.Test(virtualOffset + int(mod))
}

// ToggleLock flips lock bit lock and fires the lock-change callback.
func (m *ModifierState) ToggleLock(lock uint8) {
	i := lockOffset + int(lock)
	if m.state.Test(i) {
		m.state.Clear(i)
	} else {
		m.state.Set(i)
	}
	m.notifyLocks()
}

// SetLock forces lock bit lock to the given value, firing the callback
// only if the bit changed.  Used when restoring persisted locks.
func (m *ModifierState) SetLock(lock uint8, on bool) {
	i := lockOffset + int(lock)
	if m.state.Test(i) == on {
		return
	}
	if on {
		m.state.Set(i)
	} else {
		m.state.Clear(i)
	}
	m.notifyLocks()
}

// IsLocked reports whether lock bit lock is set.
func (m *ModifierState) IsLocked(lock uint8) bool {
	return m.state.Test(lockOffset + int(lock))
}

// Locks returns the packed lock segment.
func (m *ModifierState) Locks() LockVector {
	var v LockVector
	for i := 0; i < LockModCount; i++ {
		if m.state.Test(lockOffset + i) {
			v[i/32] |= 1 << uint(i%32)
		}
	}
	return v
}

// FullState returns a snapshot of the whole bitset.
func (m *ModifierState) FullState() Bits {
	return m.state
}

// ClearHeld clears the standard and virtual segments, leaving lock
// bits alone.  Used at configuration reload so no modifier is left
// down while toggles survive.
func (m *ModifierState) ClearHeld() {
	for i := 0; i < lockOffset; i++ {
		m.state.Clear(i)
	}
}

// Reset clears every bit and fires the lock-change callback with the
// all-zero vector.
func (m *ModifierState) Reset() {
	m.state = Bits{}
	m.notifyLocks()
}

func (m *ModifierState) notifyLocks() {
	if m.notify != nil {
		m.notify(m.Locks())
	}
}

// StdBit returns the bitset index of a standard modifier, for use when
// compiling rule masks.
func StdBit(mod StdMod) int { return stdOffset + int(mod) }

// VirtualBit returns the bitset index of virtual modifier mod.
func VirtualBit(mod uint8) int { return virtualOffset + int(mod) }

// LockBit returns the bitset index of lock modifier lock.
func LockBit(lock uint8) int { return lockOffset + int(lock) }

// IsHardwareModifier reports whether code is a physical modifier key.
func IsHardwareModifier(code Code) bool {
	return stdModForCode(code) != modNone
}

func stdModForCode(code Code) StdMod {
	switch code {
	case CodeLShift:
		return ModLShift
	case CodeRShift:
		return ModRShift
	case CodeLCtrl:
		return ModLCtrl
	case CodeRCtrl:
		return ModRCtrl
	case CodeLAlt:
		return ModLAlt
	case CodeRAlt:
		return ModRAlt
	case CodeLWin:
		return ModLWin
	case CodeRWin:
		return ModRWin
	case CodeCapsLock:
		return ModCapsLock
	case CodeNumLock:
		return ModNumLock
	case CodeScrollLock:
		return ModScrollLock
	}
	return modNone
}
