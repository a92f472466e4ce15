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

// Package winhook is the Windows input adapter: a low-level keyboard
// hook feeds the engine, SendInput injects its output, and a focus
// watcher reports foreground-window changes.
package winhook

import (
	"log/slog"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding/unicode"

	"github.com/keywarp/keywarp"
)

const (
	whKeyboardLL = 13

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	llkhfExtended = 0x01
	llkhfInjected = 0x10

	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfScanCode    = 0x0008
)

// injectedMarker tags our own SendInput events so the hook does not
// loop them back through the engine.
const injectedMarker = 0x4B575250 // "KWRP"

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procSendInput           = user32.NewProc("SendInput")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetClassNameW       = user32.NewProc("GetClassNameW")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowThreadPID  = user32.NewProc("GetWindowThreadProcessId")
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keyboardInput struct {
	Type  uint32
	_     uint32 // alignment
	Vk    uint16
	Scan  uint16
	Flags uint32
	Time  uint32
	Extra uintptr
	_     [8]byte // pad to sizeof(INPUT)
}

// Hook owns the low-level keyboard hook and its message loop.  The
// hook thread is the hot path on Windows: the callback runs the engine
// synchronously and tells the OS to swallow the physical event.
type Hook struct {
	eng  *keywarp.Engine
	log  *slog.Logger
	hook uintptr
	tid  uint32
	done chan struct{}
}

// NewHook wraps the engine.  Call Run on a dedicated locked OS thread.
func NewHook(eng *keywarp.Engine, log *slog.Logger) *Hook {
	if log == nil {
		log = slog.Default()
	}
	return &Hook{eng: eng, log: log, done: make(chan struct{})}
}

// Run installs the hook and services the message loop until Stop.
// The returned error is a hook-registration failure (permission, exit
// code 2 territory).
func (h *Hook) Run() error {
	defer close(h.done)
	h.tid = windows.GetCurrentThreadId()

	cb := windows.NewCallback(func(code, wparam, lparam uintptr) uintptr {
		if int32(code) >= 0 && h.onKey(wparam, (*kbdllHookStruct)(unsafe.Pointer(lparam))) {
			return 1 // swallow the physical event
		}
		ret, _, _ := procCallNextHookEx.Call(h.hook, code, wparam, lparam)
		return ret
	})

	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, cb, 0, 0)
	if hook == 0 {
		return err
	}
	h.hook = hook
	defer procUnhookWindowsHookEx.Call(hook)

	// Standard message pump; GetMessage returns <= 0 on WM_QUIT.
	var msg [48]byte
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg[0])), 0, 0, 0)
		if int32(ret) <= 0 {
			return nil
		}
	}
}

// Stop posts WM_QUIT to the hook thread and waits for Run to return.
func (h *Hook) Stop() {
	const wmQuit = 0x0012
	procPostThreadMessageW.Call(uintptr(h.tid), wmQuit, 0, 0)
	<-h.done
}

// onKey translates one hook callback into an engine submission.
// Returns true when the physical event must be swallowed (the engine
// output, if any, was injected separately).
func (h *Hook) onKey(wparam uintptr, k *kbdllHookStruct) bool {
	if k.Flags&llkhfInjected != 0 && k.DwExtraInfo == injectedMarker {
		return false // our own injection
	}
	var typ keywarp.EventType
	switch wparam {
	case wmKeyDown, wmSysKeyDown:
		typ = keywarp.Press
	case wmKeyUp, wmSysKeyUp:
		typ = keywarp.Release
	default:
		return false
	}

	// The internal code numbering is scan code set 1; fold the
	// extended flag into the high byte and cross to the engine's
	// evdev contract.
	internal := keywarp.Code(k.ScanCode & 0xFF)
	if k.Flags&llkhfExtended != 0 {
		internal |= 0xE000
	}
	evdev := keywarp.Encode(internal)
	if evdev == 0 {
		return false
	}
	h.eng.Submit(keywarp.InputEvent{
		Device: 0,
		Code:   evdev,
		Type:   typ,
		Time:   time.Now(),
	})
	return true
}

// Injector emits events through SendInput.  Implements
// keywarp.Injector; taps expand to press+release.
type Injector struct{}

// Inject implements keywarp.Injector.
func (Injector) Inject(ev keywarp.InjectEvent) error {
	if ev.FromTap {
		if err := sendScan(ev.Code, true); err != nil {
			return err
		}
		return sendScan(ev.Code, false)
	}
	return sendScan(ev.Code, ev.Type != keywarp.Release)
}

func sendScan(evdev uint16, down bool) error {
	internal := keywarp.Decode(evdev)
	if internal == keywarp.CodeNone {
		return nil
	}
	var in keyboardInput
	in.Type = inputKeyboard
	in.Scan = uint16(internal & 0xFF)
	in.Flags = keyeventfScanCode
	if internal&0xE000 != 0 {
		in.Flags |= keyeventfExtendedKey
	}
	if !down {
		in.Flags |= keyeventfKeyUp
	}
	in.Extra = injectedMarker
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return err
	}
	return nil
}

// FocusWatcher polls the foreground window and reports changes to the
// engine.  Window class and title arrive as UTF-16LE and are decoded
// with the x/text transformer before they reach the regexp matcher.
type FocusWatcher struct {
	eng  *keywarp.Engine
	log  *slog.Logger
	stop chan struct{}
	done chan struct{}
	last keywarp.FocusSnapshot
}

// NewFocusWatcher wraps the engine.
func NewFocusWatcher(eng *keywarp.Engine, log *slog.Logger) *FocusWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &FocusWatcher{
		eng:  eng,
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run polls until Stop.
func (w *FocusWatcher) Run() {
	defer close(w.done)
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.poll()
		}
	}
}

// Stop terminates Run.
func (w *FocusWatcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *FocusWatcher) poll() {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return
	}
	var tid uint32
	procGetWindowThreadPID.Call(hwnd, uintptr(unsafe.Pointer(&tid)))

	snap := keywarp.FocusSnapshot{
		Thread: tid,
		Window: hwnd,
		Class:  readWindowString(procGetClassNameW, hwnd),
		Title:  readWindowString(procGetWindowTextW, hwnd),
	}
	snap.Console = snap.Class == "ConsoleWindowClass"
	if snap == w.last {
		return
	}
	w.last = snap
	w.eng.NotifyFocus(snap)
}

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

func readWindowString(proc *windows.LazyProc, hwnd uintptr) string {
	var buf [512]uint16
	n, _, _ := proc.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), int(n)*2)
	s, err := utf16Decoder.Bytes(raw)
	if err != nil {
		return windows.UTF16ToString(buf[:n])
	}
	return string(s)
}
