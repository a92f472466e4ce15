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

//go:build linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/keywarp/keywarp"
	"github.com/keywarp/keywarp/evdev"
)

func defaultSocket() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "keywarp.sock")
}

func listenControl(addr string) (net.Listener, error) {
	_ = os.Remove(addr)
	return net.Listen("unix", addr)
}

// runPlatform wires the evdev provider and the uinput injector, then
// pumps events until a signal arrives or the device loop fails.
func runPlatform(eng *keywarp.Engine, log *slog.Logger, stop <-chan os.Signal) int {
	vk, err := evdev.NewVirtualKeyboard("KeyWarp Virtual Keyboard")
	if err != nil {
		log.Error("uinput unavailable", "err", err)
		return exitPermission
	}
	defer vk.Close()
	eng.SetInjector(vk)

	paths, err := evdev.ListKeyboards()
	if err != nil {
		log.Error("no input devices", "err", err)
		return exitRuntimeIO
	}
	prov, err := evdev.NewProvider(eng, log, paths)
	if err != nil {
		log.Error("device setup failed", "err", err)
		if errors.Is(err, os.ErrPermission) {
			return exitPermission
		}
		return exitRuntimeIO
	}
	defer prov.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- prov.Run(ctx) }()

	select {
	case <-stop:
		cancel()
		<-errc
		return exitOK
	case err := <-errc:
		cancel()
		if err != nil {
			log.Error("device loop failed", "err", err)
			return exitRuntimeIO
		}
		return exitOK
	}
}
