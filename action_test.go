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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls until the condition holds or the deadline passes; the
// executor worker is asynchronous.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(title, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, title+"|"+text)
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func TestImmediateClassification(t *testing.T) {
	immediate := []ActionKind{
		ActionToggleLock, ActionPrefix, ActionKeymapParent,
		ActionPrevPrefix, ActionCancelPrefix, ActionOtherWindowClass,
		ActionSetVariable, ActionAddVariable,
	}
	deferred := []ActionKind{
		ActionKeySeq, ActionRepeat, ActionHelp, ActionNotify,
		ActionDescribeBindings, ActionShell, ActionPlugin,
	}
	for _, k := range immediate {
		assert.True(t, (&Action{Kind: k}).immediate(), "kind %d", k)
	}
	for _, k := range deferred {
		assert.False(t, (&Action{Kind: k}).immediate(), "kind %d", k)
	}
}

func TestKeySeqAction(t *testing.T) {
	sim := NewSimInjector()
	eng := NewEngine(WithInjector(sim))
	defer eng.Close()
	require.NoError(t, eng.InstallConfig(emptyConfig()))

	eng.Executor().enqueue(&Action{
		Kind: ActionKeySeq,
		Keys: []KeyStroke{
			{Code: CodeA, Type: Press},
			{Code: CodeA, Type: Release},
			{Code: CodeB, Type: Press},
			{Code: CodeB, Type: Release},
		},
	})
	waitFor(t, func() bool { return len(sim.Events()) == 4 })
	evs := sim.Events()
	assert.Equal(t, Encode(CodeA), evs[0].Code)
	assert.Equal(t, Press, evs[0].Type)
	assert.Equal(t, Encode(CodeB), evs[3].Code)
	assert.Equal(t, Release, evs[3].Type)
}

func TestKeySeqUpdatesModifierState(t *testing.T) {
	sim := NewSimInjector()
	eng := NewEngine(WithInjector(sim))
	defer eng.Close()
	require.NoError(t, eng.InstallConfig(emptyConfig()))

	eng.Executor().enqueue(&Action{
		Kind: ActionKeySeq,
		Keys: []KeyStroke{{Code: CodeLShift, Type: Press}},
	})
	waitFor(t, func() bool { return len(sim.Events()) == 1 })
	st := eng.ModifierSnapshot()
	assert.True(t, st.Test(StdBit(ModLShift)))
}

func TestRepeatActionUsesVariable(t *testing.T) {
	sim := NewSimInjector()
	eng := NewEngine(WithInjector(sim))
	defer eng.Close()
	require.NoError(t, eng.InstallConfig(emptyConfig()))

	eng.mu.Lock()
	eng.applyImmediate(&Action{Kind: ActionSetVariable, N: 3})
	eng.mu.Unlock()
	eng.Executor().enqueue(&Action{
		Kind: ActionRepeat,
		Keys: []KeyStroke{{Code: CodeA, Type: Press}, {Code: CodeA, Type: Release}},
	})
	waitFor(t, func() bool { return len(sim.Events()) == 6 })
}

func TestNotifyActions(t *testing.T) {
	eng := NewEngine()
	defer eng.Close()
	require.NoError(t, eng.InstallConfig(emptyConfig()))

	n := &recordingNotifier{}
	eng.Executor().SetNotifier(n)

	eng.Executor().enqueue(&Action{Kind: ActionHelp, Title: "help", Text: "body"})
	eng.Executor().enqueue(&Action{Kind: ActionNotify, Text: "hello"})
	waitFor(t, func() bool { return len(n.snapshot()) == 2 })
	calls := n.snapshot()
	assert.Equal(t, "help|body", calls[0])
	assert.Equal(t, "|hello", calls[1])
}

type recordingRunner struct {
	mu       sync.Mutex
	commands []string
	plugins  []string
}

func (r *recordingRunner) RunShell(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recordingRunner) RunPlugin(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, name)
	return nil
}

func (r *recordingRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands), len(r.plugins)
}

func TestExternalActions(t *testing.T) {
	eng := NewEngine()
	defer eng.Close()
	require.NoError(t, eng.InstallConfig(emptyConfig()))

	r := &recordingRunner{}
	eng.Executor().SetExternalRunner(r)

	eng.Executor().enqueue(&Action{Kind: ActionShell, Text: "xdotool key a"})
	eng.Executor().enqueue(&Action{Kind: ActionPlugin, Text: "thumbsense"})
	waitFor(t, func() bool {
		c, p := r.counts()
		return c == 1 && p == 1
	})
}

func TestToggleLockThroughRule(t *testing.T) {
	sim := NewSimInjector()
	eng := NewEngine(WithInjector(sim))
	defer eng.Close()

	tbl := NewTable()
	tbl.Add(CodeF12, Rule{Action: &Action{Kind: ActionToggleLock, Lock: 0x01}})
	tbl.Freeze()
	cfg := emptyConfig()
	cfg.Keymaps[0].Table = tbl
	require.NoError(t, eng.InstallConfig(cfg))

	eng.Submit(InputEvent{Code: Encode(CodeF12), Type: Press})
	assert.Empty(t, sim.Events()) // consumed by the command binding
	st := eng.ModifierSnapshot()
	assert.True(t, st.Test(LockBit(0x01)))

	eng.Submit(InputEvent{Code: Encode(CodeF12), Type: Release})
	eng.Submit(InputEvent{Code: Encode(CodeF12), Type: Press})
	st = eng.ModifierSnapshot()
	assert.False(t, st.Test(LockBit(0x01)))
}
