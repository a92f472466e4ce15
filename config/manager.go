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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/keywarp/keywarp"
)

// Ext is the configuration file extension the manager scans for.
const Ext = ".kw"

// Manager is the named-configuration registry behind the IPC
// SwitchConfig and ReloadConfig commands.  Each file under the
// directory with the configuration extension is one named
// configuration; the active name survives reloads.
type Manager struct {
	mu     sync.Mutex
	dir    string
	active string
}

// NewManager returns a manager over the given directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// List returns the available configuration names, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the name of the most recently loaded configuration.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Load parses the named configuration.  On success the name becomes
// active; on failure the active name is unchanged, matching the
// engine's keep-the-old-config behavior.
func (m *Manager) Load(name string) (*keywarp.Config, error) {
	cfg, err := LoadFile(filepath.Join(m.dir, name+Ext))
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active = name
	m.mu.Unlock()
	return cfg, nil
}

// Reload re-parses the active configuration, or the named one if name
// is non-empty.
func (m *Manager) Reload(name string) (*keywarp.Config, error) {
	if name == "" {
		name = m.Active()
	}
	if name == "" {
		return nil, fmt.Errorf("no active configuration to reload")
	}
	return m.Load(name)
}
