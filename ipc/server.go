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

package ipc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/keywarp/keywarp"
	"github.com/keywarp/keywarp/config"
)

// journeyBuffer bounds the per-subscriber journey queue; overflow
// drops records rather than backpressuring the engine.
const journeyBuffer = 1024

// Server answers control commands and streams journey records to
// investigate-mode subscribers.
type Server struct {
	eng *keywarp.Engine
	mgr *config.Manager
	log *slog.Logger
	ln  net.Listener

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	investigate bool
	window      uint64
	closed      bool
}

type subscriber struct {
	ch chan keywarp.Journey
}

// NewServer wraps an engine and a configuration manager.  The manager
// may be nil when the daemon was started with a fixed file.
func NewServer(eng *keywarp.Engine, mgr *config.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		eng:         eng,
		mgr:         mgr,
		log:         log,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveConn(conn)
	}
}

// Close stops the listener and disables investigate mode.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	s.eng.SetJourneyObserver(nil)
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	var encMu sync.Mutex // responses and streamed journeys interleave
	send := func(m Message) error {
		encMu.Lock()
		defer encMu.Unlock()
		return enc.Encode(m)
	}
	var sub *subscriber
	defer func() {
		if sub != nil {
			s.unsubscribe(sub)
		}
	}()
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			return
		}
		rsp, startStream := s.handle(&msg)
		// Subscribe before the response goes out so that no journey of
		// an event submitted right after the response is missed.
		var newSub *subscriber
		if startStream && sub == nil {
			sub = s.subscribe()
			newSub = sub
		}
		if err := send(rsp); err != nil {
			return
		}
		if newSub != nil {
			go func(sub *subscriber) {
				for j := range sub.ch {
					jj := j
					if err := send(Message{Type: EvtJourney, Journey: &jj}); err != nil {
						return
					}
				}
			}(newSub)
		}
	}
}

// handle executes one command.  The bool result asks the connection
// loop to start streaming journeys to this client.
func (s *Server) handle(msg *Message) (Message, bool) {
	switch msg.Type {
	case CmdGetStatus:
		return s.status(""), false

	case CmdGetLockStatus:
		locks := s.eng.Locks()
		return Message{Type: RspLocks, Locks: &locks}, false

	case CmdSetEnabled:
		if msg.Enabled == nil {
			return errMsg("set_enabled needs enabled"), false
		}
		s.eng.SetEnabled(*msg.Enabled)
		return s.status(""), false

	case CmdSwitchConfig:
		return s.switchConfig(msg.Name), false

	case CmdReloadConfig:
		return s.reloadConfig(msg.Name), false

	case CmdEnableInvestigate:
		s.setInvestigate(true)
		return s.status(""), true

	case CmdDisableInvestigate:
		s.setInvestigate(false)
		return s.status(""), false

	case CmdInvestigateWindow:
		s.mu.Lock()
		s.window = msg.Window
		s.mu.Unlock()
		s.setInvestigate(true)
		return s.status(""), true

	case CmdDescribeBindings:
		st := s.status("")
		st.Status.Bindings = s.eng.DescribeBindings()
		return st, false
	}
	return errMsg("unknown command " + string(msg.Type)), false
}

func (s *Server) switchConfig(name string) Message {
	if s.mgr == nil {
		return errMsg("no configuration directory")
	}
	if name == "" {
		return errMsg("switch_config needs a name")
	}
	cfg, err := s.mgr.Load(name)
	if err != nil {
		return s.status(err.Error())
	}
	if err := s.eng.InstallConfig(cfg); err != nil {
		return s.status(err.Error())
	}
	return s.status("")
}

func (s *Server) reloadConfig(name string) Message {
	if s.mgr == nil {
		return errMsg("no configuration directory")
	}
	cfg, err := s.mgr.Reload(name)
	if err != nil {
		return s.status(err.Error())
	}
	if err := s.eng.InstallConfig(cfg); err != nil {
		return s.status(err.Error())
	}
	return s.status("")
}

func (s *Server) status(lastErr string) Message {
	st := s.eng.Status()
	payload := &StatusPayload{
		EngineRunning: st.Running,
		Enabled:       st.Enabled,
		ActiveConfig:  st.ActiveConfig,
		LastError:     st.LastError,
	}
	if lastErr != "" {
		payload.LastError = lastErr
	}
	if s.mgr != nil {
		if names, err := s.mgr.List(); err == nil {
			payload.Configs = names
		}
	}
	return Message{Type: RspStatus, Status: payload}
}

func errMsg(text string) Message {
	return Message{Type: RspError, Error: text}
}

// setInvestigate wires or unwires the engine's journey observer to the
// subscriber broadcast.
func (s *Server) setInvestigate(on bool) {
	s.mu.Lock()
	s.investigate = on
	s.mu.Unlock()
	if !on {
		s.eng.SetJourneyObserver(nil)
		return
	}
	s.eng.SetJourneyObserver(keywarp.JourneyFunc(s.broadcast))
}

// broadcast fans a journey record out to every subscriber without
// blocking the hot path.
func (s *Server) broadcast(j keywarp.Journey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.ch <- j:
		default:
			// Slow subscriber; drop.
		}
	}
}

func (s *Server) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan keywarp.Journey, journeyBuffer)}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	close(sub.ch)
}
