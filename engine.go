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
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Injector delivers finished events to the OS virtual device.  The
// adapter expands FromTap events to a press immediately followed by a
// release and is responsible for sync barriers between logical events.
type Injector interface {
	Inject(InjectEvent) error
}

// injectRetries bounds the spin-retry on a saturated injection buffer.
// Further failures drop the event.
const injectRetries = 8

// maxGenerateRecursion bounds nested key-sequence generation.
const maxGenerateRecursion = 64

// Engine is the event processing core.  One hot-path goroutine per
// input device calls Submit; background goroutines use the control
// surface (InstallConfig, NotifyFocus, SetEnabled, Stats).
//
// The locking is two-tier: a small critical section (mu) covers the
// modifier state, the trigger state machines, and the keymap resolver;
// the installed configuration is published through an atomic pointer
// so reloads do not contend with the hot path beyond one brief
// acquisition.
type Engine struct {
	log     *slog.Logger
	metrics *Metrics
	procRec *MetricRecorder

	injector Injector
	now      func() time.Time

	cfg     atomic.Pointer[Config]
	enabled atomic.Bool

	journeyOn atomic.Bool
	observer  atomic.Pointer[JourneyObserver]

	decodeMiss  Counter
	injectFails Counter

	mu       sync.Mutex
	mods     *ModifierState
	triggers *TriggerSet
	res      resolver
	variable int
	genDepth int
	lastErr  string

	exec   *Executor
	closed atomic.Bool
}

// Option configures NewEngine.
type Option func(*Engine)

// WithInjector sets the OS injector.  An engine without an injector
// processes events but emits nothing; tests use this with a recorder.
func WithInjector(inj Injector) Option {
	return func(e *Engine) { e.injector = inj }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics collector shared with the embedding
// process.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine clock.  Tests use this to drive the
// hold/tap thresholds deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns a ready engine with no configuration installed.
// Events submitted before InstallConfig pass through unchanged.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}
	e.procRec = e.metrics.Ring("process")
	e.mods = NewModifierState()
	e.triggers = NewTriggerSet(e.log)
	e.triggers.now = e.now
	e.res = newResolver()
	e.enabled.Store(true)
	e.exec = newExecutor(e, e.log)
	go e.exec.run()
	return e
}

// Executor returns the action executor for wiring notifiers and
// external runners.
func (e *Engine) Executor() *Executor { return e.exec }

// SetInjector installs the OS injector.  Must be called before event
// processing starts; it is not synchronized against Submit.
func (e *Engine) SetInjector(inj Injector) { e.injector = inj }

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// SetLockChangeFunc installs the callback fired on every lock-bit
// change (the GUI/IPC lock indicator).
func (e *Engine) SetLockChangeFunc(fn LockChangeFunc) {
	e.mu.Lock()
	e.mods.SetLockChangeFunc(fn)
	e.mu.Unlock()
}

// InstallConfig validates and atomically installs a configuration.
// On failure the previous configuration stays live and the error is
// returned (and reported by Status).  On success the trigger state
// machines are rebuilt, any held standard or virtual modifier is
// cleared, and lock bits carry over before the new configuration's
// initial locks are applied.
func (e *Engine) InstallConfig(cfg *Config) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := cfg.Validate(); err != nil {
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}

	// Taking the critical section is the quiescence barrier: no
	// hot-path goroutine is mid-event while we hold it.
	e.mu.Lock()
	e.mods.ClearHeld()
	triggers := NewTriggerSet(e.log)
	triggers.now = e.now
	for _, t := range cfg.Triggers {
		triggers.Register(t.Trigger, t.Mod, t.TapOutput, t.Threshold)
	}
	e.triggers = triggers
	for _, lock := range cfg.InitialLocks {
		e.mods.SetLock(lock, true)
	}
	e.res.install(cfg)
	e.lastErr = ""
	e.cfg.Store(cfg)
	e.mu.Unlock()

	e.log.Info("configuration installed",
		"name", cfg.Name,
		"keymaps", len(cfg.Keymaps),
		"triggers", len(cfg.Triggers))
	return nil
}

// Config returns the installed configuration, or nil.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// NotifyFocus feeds a focus-change notification from the OS adapter.
// Idempotent per identity tuple.
func (e *Engine) NotifyFocus(snap FocusSnapshot) {
	e.mu.Lock()
	e.res.notifyFocus(snap)
	km := e.res.current
	e.mu.Unlock()
	if km != nil {
		e.log.Debug("focus change",
			"class", snap.Class, "title", snap.Title, "keymap", km.Name)
	}
}

// FocusOut destroys the focus snapshot for a provider thread.
func (e *Engine) FocusOut(thread uint32) {
	e.mu.Lock()
	e.res.focusOut(thread)
	e.mu.Unlock()
}

// SetEnabled toggles the engine.  While disabled every event passes
// through unchanged.
func (e *Engine) SetEnabled(on bool) {
	e.enabled.Store(on)
}

// Enabled reports whether remapping is active.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// SetJourneyObserver installs the journey observer and turns journey
// logging on or off.  A nil observer turns it off.
func (e *Engine) SetJourneyObserver(obs JourneyObserver) {
	if obs == nil {
		e.journeyOn.Store(false)
		e.observer.Store(nil)
		return
	}
	e.observer.Store(&obs)
	e.journeyOn.Store(true)
}

// Submit runs one raw input event through the pipeline and injects the
// result.  Auto-repeat is treated as press for matching; providers
// suppress redundant repeats on the output side.
func (e *Engine) Submit(ev InputEvent) {
	if e.closed.Load() {
		return
	}
	typ := ev.Type
	if typ == AutoRepeat {
		typ = Press
	}
	if !e.enabled.Load() {
		e.inject(InjectEvent{Code: ev.Code, Type: typ})
		return
	}

	start := e.now()
	e.mu.Lock()
	pe := e.process(ev.Device, ev.Code, typ, start)
	e.mu.Unlock()
	e.procRec.Record(e.now().Sub(start))

	if !pe.Valid {
		return
	}
	e.inject(InjectEvent{Code: pe.OutputEvdev, Type: pe.Type, FromTap: pe.Tap})
}

// inject writes one event with bounded retry; a saturated injector
// surfaces as a logged drop and a counter, never as a blocked hot
// path.
func (e *Engine) inject(ev InjectEvent) {
	if e.injector == nil {
		return
	}
	var err error
	for i := 0; i < injectRetries; i++ {
		if err = e.injector.Inject(ev); err == nil {
			return
		}
	}
	e.injectFails.Inc()
	e.log.Error("event dropped", "err", fmt.Errorf("%w: %w", ErrInjectFailed, err),
		"code", ev.Code, "type", ev.Type.String())
}

// EmitKeys plays a scripted key sequence through the injector,
// updating the modifier state as hardware modifiers go by.  Called by
// the executor for key-sequence and repeat actions.
func (e *Engine) EmitKeys(keys []KeyStroke) {
	e.mu.Lock()
	if e.genDepth >= maxGenerateRecursion {
		e.mu.Unlock()
		e.log.Warn("key sequence generation too deep, dropped")
		return
	}
	e.genDepth++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.genDepth--
		e.mu.Unlock()
	}()

	for _, ks := range keys {
		e.mu.Lock()
		if IsHardwareModifier(ks.Code) {
			e.mods.UpdateFromEvent(ks.Code, ks.Type != Release)
		}
		e.mu.Unlock()
		evdev := Encode(ks.Code)
		if evdev == 0 {
			continue
		}
		e.inject(InjectEvent{Code: evdev, Type: ks.Type})
	}
}

// Variable returns the engine variable slot (used by repeat actions).
func (e *Engine) Variable() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variable
}

// Locks returns the packed lock bits for persistence and the IPC lock
// indicator.
func (e *Engine) Locks() LockVector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mods.Locks()
}

// RestoreLocks applies a persisted lock vector at startup.
func (e *Engine) RestoreLocks(v LockVector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < LockModCount; i++ {
		if v[i/32]&(1<<uint(i%32)) != 0 {
			e.mods.SetLock(uint8(i), true)
		}
	}
}

// ModifierSnapshot returns a linearizable snapshot of the full
// modifier bitset.
func (e *Engine) ModifierSnapshot() Bits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mods.FullState()
}

// DescribeBindings renders the active keymap chain's rules in priority
// order, one binding per line.
func (e *Engine) DescribeBindings() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg.Load()
	if cfg == nil {
		return ""
	}
	var b strings.Builder
	for k := e.res.active(); k != nil; k = cfg.Keymap(k.Parent) {
		fmt.Fprintf(&b, "keymap %s\n", k.Name)
		inputs := k.Table.Inputs()
		sort.Slice(inputs, func(i, j int) bool { return inputs[i] < inputs[j] })
		for _, in := range inputs {
			for _, r := range k.Table.Rules(in) {
				fmt.Fprintf(&b, "  %s -> %s\n", in.Name(), r.Output.Name())
			}
		}
	}
	return b.String()
}

// EngineStatus is the control-surface view of the engine.
type EngineStatus struct {
	Running      bool
	Enabled      bool
	ActiveConfig string
	LastError    string
}

// Status reports the engine state for the IPC responder.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := EngineStatus{
		Running: !e.closed.Load(),
		Enabled: e.enabled.Load(),
	}
	if cfg := e.cfg.Load(); cfg != nil {
		st.ActiveConfig = cfg.Name
	}
	st.LastError = e.lastErr
	return st
}

// DecodeMisses returns the number of events dropped because a layer
// produced no mapping.
func (e *Engine) DecodeMisses() uint64 { return e.decodeMiss.Value() }

// InjectFailures returns the number of events dropped after exhausting
// injection retries.
func (e *Engine) InjectFailures() uint64 { return e.injectFails.Value() }

// Close stops the background executor.  Submit becomes a no-op.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.exec.shutdown()
}
