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

// keywarpd is the KeyWarp daemon: it grabs the keyboard, runs the
// remapping engine, and serves the control socket.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/keywarp/keywarp"
	"github.com/keywarp/keywarp/config"
	"github.com/keywarp/keywarp/ipc"
)

// Exit codes of the daemon process.
const (
	exitOK         = 0
	exitUsage      = 1
	exitPermission = 2
	exitConfig     = 3
	exitRuntimeIO  = 4
)

type options struct {
	configPath string
	configDir  string
	configName string
	socket     string
	logPath    string
	lockState  string
	debug      bool
	report     time.Duration
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "configuration file (overrides -config-dir)")
	flag.StringVar(&opts.configDir, "config-dir", defaultConfigDir(), "directory of named configurations")
	flag.StringVar(&opts.configName, "name", "default", "configuration name to load from -config-dir")
	flag.StringVar(&opts.socket, "socket", defaultSocket(), "control socket address")
	flag.StringVar(&opts.logPath, "log", "", "log file (stderr only when empty)")
	flag.StringVar(&opts.lockState, "lock-state", defaultLockState(), "lock persistence file")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.DurationVar(&opts.report, "report", 0, "metrics report interval (0 disables)")
	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
		return exitUsage
	}

	var logOut *os.File
	if opts.logPath != "" {
		f, err := os.OpenFile(opts.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			return exitUsage
		}
		defer f.Close()
		logOut = f
	}
	log := slog.New(keywarp.NewLogHandler(logOut, opts.debug))

	var mgr *config.Manager
	var cfg *keywarp.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		mgr = config.NewManager(opts.configDir)
		cfg, err = mgr.Load(opts.configName)
	}
	if err != nil {
		log.Error("configuration load failed", "err", err)
		return exitConfig
	}

	metrics := keywarp.NewMetrics()
	eng := keywarp.NewEngine(
		keywarp.WithLogger(log),
		keywarp.WithMetrics(metrics),
	)
	defer eng.Close()

	if err := eng.InstallConfig(cfg); err != nil {
		log.Error("configuration install failed", "err", err)
		return exitConfig
	}
	restoreLocks(eng, opts.lockState, log)

	if opts.report > 0 {
		rep := keywarp.NewReporter(metrics, log, opts.report)
		go rep.Run()
		defer rep.Stop()
	}

	srv := ipc.NewServer(eng, mgr, log)
	ln, err := listenControl(opts.socket)
	if err != nil {
		log.Error("control socket", "err", err)
		return exitUsage
	}
	go srv.Serve(ln)
	defer srv.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	code := runPlatform(eng, log, stop)

	saveLocks(eng, opts.lockState, log)
	return code
}

// restoreLocks applies the persisted lock vector, if any.
func restoreLocks(eng *keywarp.Engine, path string, log *slog.Logger) {
	if path == "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var v keywarp.LockVector
	if err := json.Unmarshal(b, &v); err != nil {
		log.Warn("lock state unreadable", "path", path, "err", err)
		return
	}
	eng.RestoreLocks(v)
}

// saveLocks snapshots the lock bits on clean shutdown.
func saveLocks(eng *keywarp.Engine, path string, log *slog.Logger) {
	if path == "" {
		return
	}
	b, err := json.Marshal(eng.Locks())
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn("lock state not saved", "path", path, "err", err)
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		log.Warn("lock state not saved", "path", path, "err", err)
	}
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "keywarp")
	}
	return "."
}

func defaultLockState() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "keywarp", "locks.json")
	}
	return ""
}
