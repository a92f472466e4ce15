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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the trigger thresholds deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTriggerSet(clock *fakeClock) *TriggerSet {
	s := NewTriggerSet(nil)
	s.now = clock.now
	return s
}

func TestTriggerTapBeforeThreshold(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)

	act, tr := s.Process(CodeCapsLock, Press)
	assert.Equal(t, TriggerSuppress, act)
	require.NotNil(t, tr)
	assert.True(t, tr.Waiting())

	clock.advance(50 * time.Millisecond)
	act, tr = s.Process(CodeCapsLock, Release)
	assert.Equal(t, TriggerTap, act)
	assert.Equal(t, CodeEsc, tr.TapOutput)
	assert.False(t, tr.Held())
}

func TestTriggerHoldActivatesOnRepeat(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)

	act, _ := s.Process(CodeCapsLock, Press)
	assert.Equal(t, TriggerSuppress, act)

	clock.advance(100 * time.Millisecond)
	act, _ = s.Process(CodeCapsLock, Press) // auto-repeat below threshold
	assert.Equal(t, TriggerSuppress, act)

	clock.advance(150 * time.Millisecond)
	act, tr := s.Process(CodeCapsLock, Press) // auto-repeat past threshold
	assert.Equal(t, TriggerActivate, act)
	assert.True(t, tr.Held())

	act, _ = s.Process(CodeCapsLock, Press) // repeat while active
	assert.Equal(t, TriggerSuppress, act)

	act, _ = s.Process(CodeCapsLock, Release)
	assert.Equal(t, TriggerDeactivate, act)
	assert.False(t, tr.Held())
}

func TestTriggerPollWaitingPromotes(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)
	s.Register(CodeSpace, 0x01, CodeNone, 300*time.Millisecond)

	s.Process(CodeCapsLock, Press)
	s.Process(CodeSpace, Press)

	clock.advance(250 * time.Millisecond)
	promoted := s.PollWaiting()
	require.Len(t, promoted, 1)
	assert.Equal(t, uint8(0x00), promoted[0].Mod)

	clock.advance(100 * time.Millisecond)
	promoted = s.PollWaiting()
	require.Len(t, promoted, 1)
	assert.Equal(t, uint8(0x01), promoted[0].Mod)

	// Nothing left waiting.
	assert.Empty(t, s.PollWaiting())
}

func TestTriggerStalePressRevertsToNormalKey(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)

	s.Process(CodeCapsLock, Press)
	clock.advance(6 * time.Second)

	// The poll skips stale presses rather than promoting them.
	assert.Empty(t, s.PollWaiting())

	act, _ := s.Process(CodeCapsLock, Press)
	assert.Equal(t, TriggerPassthrough, act)
}

func TestTriggerHoldExpiredReleaseSuppressed(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)

	s.Process(CodeCapsLock, Press)
	clock.advance(250 * time.Millisecond)

	// No intervening event promoted the trigger; the release past
	// the threshold is suppressed, not a tap.
	act, _ := s.Process(CodeCapsLock, Release)
	assert.Equal(t, TriggerSuppress, act)
}

func TestTriggerSpuriousRelease(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 0)

	act, _ := s.Process(CodeCapsLock, Release)
	assert.Equal(t, TriggerSuppress, act)
}

func TestTriggerNoTapOutputSuppressesTap(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeSpace, 0x02, CodeNone, 200*time.Millisecond)

	s.Process(CodeSpace, Press)
	clock.advance(50 * time.Millisecond)
	act, _ := s.Process(CodeSpace, Release)
	assert.Equal(t, TriggerSuppress, act)
}

func TestTriggerUnregisteredKey(t *testing.T) {
	s := newTestTriggerSet(newFakeClock())
	act, tr := s.Process(CodeA, Press)
	assert.Equal(t, TriggerPassthrough, act)
	assert.Nil(t, tr)
}

func TestTriggerReset(t *testing.T) {
	clock := newFakeClock()
	s := newTestTriggerSet(clock)
	s.Register(CodeCapsLock, 0x00, CodeEsc, 200*time.Millisecond)

	s.Process(CodeCapsLock, Press)
	clock.advance(time.Second)
	s.Reset()
	assert.Empty(t, s.PollWaiting())

	// After reset a fresh press starts a new waiting period.
	act, _ := s.Process(CodeCapsLock, Press)
	assert.Equal(t, TriggerSuppress, act)
}

// TestTriggerDefaultThreshold checks the zero-threshold registration
// picks up the default.
func TestTriggerDefaultThreshold(t *testing.T) {
	s := newTestTriggerSet(newFakeClock())
	s.Register(CodeCapsLock, 0x00, CodeEsc, 0)
	assert.Equal(t, DefaultHoldThreshold, s.Lookup(CodeCapsLock).Threshold)
}
