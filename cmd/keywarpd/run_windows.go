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

//go:build windows

package main

import (
	"log/slog"
	"net"
	"os"
	"runtime"

	"github.com/keywarp/keywarp"
	"github.com/keywarp/keywarp/winhook"
)

func defaultSocket() string {
	return "127.0.0.1:48800"
}

func listenControl(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// runPlatform installs the low-level keyboard hook on a locked OS
// thread and runs the focus watcher alongside it.
func runPlatform(eng *keywarp.Engine, log *slog.Logger, stop <-chan os.Signal) int {
	eng.SetInjector(winhook.Injector{})

	watcher := winhook.NewFocusWatcher(eng, log)
	go watcher.Run()
	defer watcher.Stop()

	hook := winhook.NewHook(eng, log)
	errc := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		errc <- hook.Run()
	}()

	select {
	case <-stop:
		hook.Stop()
		<-errc
		return exitOK
	case err := <-errc:
		if err != nil {
			log.Error("keyboard hook failed", "err", err)
			return exitPermission
		}
		return exitOK
	}
}
