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
	"errors"
)

var (
	// ErrNoConfig indicates that an operation which requires an
	// installed configuration was attempted before InstallConfig
	// succeeded for the first time.
	ErrNoConfig = errors.New("no configuration installed")

	// ErrConfigRejected indicates that InstallConfig refused a
	// configuration.  The previously installed configuration, if any,
	// stays live; the wrapped cause says what was wrong.
	ErrConfigRejected = errors.New("configuration rejected")

	// ErrInjectFailed indicates that the injector could not deliver an
	// event after the bounded number of retries.  The event is dropped
	// and counted; the engine keeps running.
	ErrInjectFailed = errors.New("event injection failed")

	// ErrQueueFull indicates that the action queue is full and an
	// action was dropped rather than blocking the hot path.
	ErrQueueFull = errors.New("action queue full")

	// ErrEngineClosed is returned by control operations issued after
	// Close.
	ErrEngineClosed = errors.New("engine closed")
)
