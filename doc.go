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

// Package keywarp provides a user-space keyboard remapping engine.
//
// KeyWarp grabs physical keyboard input at the OS input layer, transforms
// each event according to a compiled configuration, and injects the result
// into a virtual keyboard visible to the rest of the system.  The package
// contains the platform-independent core: the keycode mapper, the modifier
// state machine, the rule lookup table, the hold/tap trigger handler, the
// three-layer event processor, the keymap and focus resolver, the action
// executor, and the latency metrics.
//
// Platform adapters live in the evdev (Linux) and winhook (Windows)
// subpackages.  They are responsible for exclusively grabbing input
// devices, feeding raw events into Engine.Submit, and writing the engine's
// output to a virtual device.  The core never performs I/O on the event
// path other than handing the finished event to the injector.
//
// A typical embedding looks like:
//
//	cfg, err := config.LoadFile(path)
//	if err != nil {
//		// configuration errors carry file and line information
//	}
//	eng := keywarp.NewEngine(keywarp.WithInjector(inj))
//	eng.InstallConfig(cfg)
//	prov, err := evdev.NewProvider(eng, log, paths)
//	prov.Run(ctx) // pumps device events into eng.Submit
//
// The engine is safe for use by one hot-path goroutine per input device
// plus any number of background goroutines issuing control operations
// (configuration install, focus notifications, IPC queries).
package keywarp
