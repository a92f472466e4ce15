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
)

// ActionKind tags the variant of a rule action.  The executor matches
// on the tag; there is no dispatch hierarchy.
type ActionKind int

const (
	// ActionKeySeq emits a scripted press/release sequence through
	// the injector, updating modifier state along the way.
	ActionKeySeq ActionKind = iota

	// ActionToggleLock flips a lock bit (L00-LFF).
	ActionToggleLock

	// ActionPrefix pushes a child keymap onto the prefix stack.
	ActionPrefix

	// ActionKeymapParent switches the current keymap to its parent.
	ActionKeymapParent

	// ActionPrevPrefix re-enters the most recent prefix.
	ActionPrevPrefix

	// ActionCancelPrefix drops the prefix stack.
	ActionCancelPrefix

	// ActionOtherWindowClass rotates to the next keymap that matched
	// the focused window.
	ActionOtherWindowClass

	// ActionRepeat emits the captured key sequence N times, where N
	// comes from the engine variable slot.
	ActionRepeat

	// ActionSetVariable stores N in the engine variable slot.
	ActionSetVariable

	// ActionAddVariable adds N to the engine variable slot.
	ActionAddVariable

	// ActionHelp publishes a help message through the notifier.
	ActionHelp

	// ActionNotify publishes a plain notification.
	ActionNotify

	// ActionDescribeBindings publishes a dump of the active keymap's
	// rules.
	ActionDescribeBindings

	// ActionShell runs an external command.  Semantics belong to the
	// OS adapter; the engine only forwards.
	ActionShell

	// ActionPlugin invokes a host plugin.  Opaque, like ActionShell.
	ActionPlugin
)

// KeyStroke is one step of a scripted key sequence.
type KeyStroke struct {
	Code Code
	Type EventType
}

// Action is a tagged variant attached to a compiled rule.  Only the
// fields relevant to the Kind are meaningful.
type Action struct {
	Kind   ActionKind
	Keys   []KeyStroke
	Lock   uint8
	Keymap KeymapID
	N      int
	Text   string
	Title  string
}

// immediate reports whether the action mutates engine state that the
// next event must observe (prefix stack, locks, variable).  Immediate
// actions are applied inline under the engine critical section; the
// rest are queued for the background executor.
func (a *Action) immediate() bool {
	switch a.Kind {
	case ActionToggleLock, ActionPrefix, ActionKeymapParent,
		ActionPrevPrefix, ActionCancelPrefix, ActionOtherWindowClass,
		ActionSetVariable, ActionAddVariable:
		return true
	}
	return false
}

// applyImmediate runs a state-mutating action.  Caller holds the
// engine critical section.
func (e *Engine) applyImmediate(a *Action) {
	switch a.Kind {
	case ActionToggleLock:
		e.mods.ToggleLock(a.Lock)
	case ActionPrefix:
		e.res.pushPrefix(a.Keymap)
	case ActionKeymapParent:
		e.res.toParent()
	case ActionPrevPrefix:
		e.res.prevPrefix()
	case ActionCancelPrefix:
		e.res.cancelPrefix()
	case ActionOtherWindowClass:
		e.res.otherWindowClass()
	case ActionSetVariable:
		e.variable = a.N
	case ActionAddVariable:
		e.variable += a.N
	}
}

// Notifier receives user-facing messages produced by help and notify
// actions.  Implementations run off the hot path and may block.
type Notifier interface {
	Notify(title, text string)
}

// ExternalRunner executes shell and plugin actions.  The engine never
// interprets the payload; the OS adapter defines the semantics.
type ExternalRunner interface {
	RunShell(command string) error
	RunPlugin(name string) error
}

// Executor drains queued rule actions on a background worker so the
// hot path never blocks on them.  The queue is bounded; when it is
// full the action is dropped and counted.
type Executor struct {
	eng    *Engine
	log    *slog.Logger
	queue  chan *Action
	drops  Counter
	notify Notifier
	extern ExternalRunner
	stop   chan struct{}
	done   chan struct{}
}

// executorQueueDepth bounds the action queue.
const executorQueueDepth = 256

func newExecutor(eng *Engine, log *slog.Logger) *Executor {
	return &Executor{
		eng:   eng,
		log:   log,
		queue: make(chan *Action, executorQueueDepth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SetNotifier installs the notification sink.  Must be called before
// the engine starts processing events.
func (x *Executor) SetNotifier(n Notifier) { x.notify = n }

// SetExternalRunner installs the shell/plugin runner.  Must be called
// before the engine starts processing events.
func (x *Executor) SetExternalRunner(r ExternalRunner) { x.extern = r }

// Drops returns the number of actions dropped because the queue was
// full.
func (x *Executor) Drops() uint64 { return x.drops.Value() }

// enqueue hands an action to the worker without blocking.
func (x *Executor) enqueue(a *Action) {
	select {
	case x.queue <- a:
	default:
		x.drops.Inc()
		x.log.Error("action dropped", "err", ErrQueueFull, "kind", a.Kind)
	}
}

// run is the worker loop.  It exits promptly on stop so configuration
// reload is never blocked by a slow action.
func (x *Executor) run() {
	defer close(x.done)
	for {
		select {
		case <-x.stop:
			return
		case a := <-x.queue:
			x.apply(a)
		}
	}
}

func (x *Executor) apply(a *Action) {
	switch a.Kind {
	case ActionKeySeq:
		x.eng.EmitKeys(a.Keys)

	case ActionRepeat:
		n := x.eng.Variable()
		if n < 0 {
			n = 0
		}
		if n > maxRepeatCount {
			n = maxRepeatCount
		}
		for i := 0; i < n; i++ {
			x.eng.EmitKeys(a.Keys)
		}

	case ActionHelp:
		if x.notify != nil {
			x.notify.Notify(a.Title, a.Text)
		}

	case ActionNotify:
		if x.notify != nil {
			x.notify.Notify("", a.Text)
		}

	case ActionDescribeBindings:
		if x.notify != nil {
			x.notify.Notify("bindings", x.eng.DescribeBindings())
		}

	case ActionShell:
		if x.extern == nil {
			x.log.Warn("shell action with no runner", "command", a.Text)
			return
		}
		if err := x.extern.RunShell(a.Text); err != nil {
			x.log.Error("shell action failed", "command", a.Text, "err", err)
		}

	case ActionPlugin:
		if x.extern == nil {
			x.log.Warn("plugin action with no runner", "plugin", a.Text)
			return
		}
		if err := x.extern.RunPlugin(a.Text); err != nil {
			x.log.Error("plugin action failed", "plugin", a.Text, "err", err)
		}

	default:
		// Immediate kinds are applied by the processor and never
		// reach the queue.
		x.log.Warn("unexpected queued action", "kind", a.Kind)
	}
}

// maxRepeatCount clamps the repeat action so a wild variable value
// cannot wedge the worker.
const maxRepeatCount = 256

func (x *Executor) shutdown() {
	close(x.stop)
	<-x.done
}
