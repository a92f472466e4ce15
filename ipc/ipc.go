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

// Package ipc implements the KeyWarp control surface: newline-delimited
// JSON messages over a local stream socket.  The daemon runs the
// Server; keywarpctl and the investigate viewer are Clients.
package ipc

import (
	"github.com/keywarp/keywarp"
)

// MessageType tags a control message.
type MessageType string

// Commands accepted by the server and the responses it produces.
// Every command is answered with RspStatus, RspLocks, or RspError;
// EvtJourney is streamed while investigate mode is on.
const (
	CmdGetStatus          MessageType = "get_status"
	CmdGetLockStatus      MessageType = "get_lock_status"
	CmdSetEnabled         MessageType = "set_enabled"
	CmdSwitchConfig       MessageType = "switch_config"
	CmdReloadConfig       MessageType = "reload_config"
	CmdEnableInvestigate  MessageType = "enable_investigate"
	CmdDisableInvestigate MessageType = "disable_investigate"
	CmdInvestigateWindow  MessageType = "investigate_window"
	CmdDescribeBindings   MessageType = "describe_bindings"

	RspStatus MessageType = "status"
	RspLocks  MessageType = "locks"
	RspError  MessageType = "error"

	EvtJourney MessageType = "journey"
)

// StatusPayload echoes the engine and configuration state.
type StatusPayload struct {
	EngineRunning bool     `json:"engine_running"`
	Enabled       bool     `json:"enabled"`
	ActiveConfig  string   `json:"active_config"`
	LastError     string   `json:"last_error,omitempty"`
	Configs       []string `json:"configs,omitempty"`
	Bindings      string   `json:"bindings,omitempty"`
}

// Message is the wire unit.  Only the fields relevant to Type are set.
type Message struct {
	Type    MessageType         `json:"type"`
	Enabled *bool               `json:"enabled,omitempty"`
	Name    string              `json:"name,omitempty"`
	Window  uint64              `json:"window,omitempty"`
	Error   string              `json:"error,omitempty"`
	Status  *StatusPayload      `json:"status,omitempty"`
	Locks   *keywarp.LockVector `json:"locks,omitempty"`
	Journey *keywarp.Journey    `json:"journey,omitempty"`
}
