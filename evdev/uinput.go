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

package evdev

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/keywarp/keywarp"
)

// uinput ioctl requests (legacy uinput_user_dev API, available
// everywhere).
var (
	uiSetEvBit   = iow('U', 100, 4)
	uiSetKeyBit  = iow('U', 101, 4)
	uiDevCreate  = io('U', 1)
	uiDevDestroy = io('U', 2)
)

// uinputUserDevSize is sizeof(struct uinput_user_dev): 80-byte name,
// input_id, ff_effects_max, and four 64-slot abs arrays.
const uinputUserDevSize = 80 + 8 + 4 + 4*64*4

// maxKeyBit covers every key code we may emit.
const maxKeyBit = 768

// VirtualKeyboard is the uinput device the engine's output is written
// to.  One instance serves every grabbed physical keyboard; the hot
// path and the action executor both write, so the event buffer is
// mutex-guarded.
type VirtualKeyboard struct {
	mu      sync.Mutex
	fd      int
	pending []byte
}

// NewVirtualKeyboard creates the virtual device.  A permission error
// here is fatal for the daemon (exit code 2).
func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}
	vk := &VirtualKeyboard{fd: fd, pending: make([]byte, inputEventSize)}

	if err := unix.IoctlSetInt(fd, uint(uiSetEvBit), evKey); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uinput EV_KEY: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uint(uiSetEvBit), evSyn); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uinput EV_SYN: %w", err)
	}
	for code := 1; code < maxKeyBit; code++ {
		if err := unix.IoctlSetInt(fd, uint(uiSetKeyBit), code); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("uinput KEY bit %d: %w", code, err)
		}
	}

	dev := make([]byte, uinputUserDevSize)
	copy(dev, name)
	// input_id: BUS_VIRTUAL, vendor/product/version.
	binary.LittleEndian.PutUint16(dev[80:], 0x06)
	binary.LittleEndian.PutUint16(dev[82:], 0x1)
	binary.LittleEndian.PutUint16(dev[84:], 0x1)
	binary.LittleEndian.PutUint16(dev[86:], 0x1)
	if _, err := unix.Write(fd, dev); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uinput device setup: %w", err)
	}
	if err := ioctlNone(fd, uiDevCreate); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uinput create: %w", err)
	}
	return vk, nil
}

func ioctlNone(fd int, req uint) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Inject implements keywarp.Injector.  Tap events expand to a press
// immediately followed by a release; every logical event ends with a
// SYN_REPORT barrier so consumers see whole events.
func (vk *VirtualKeyboard) Inject(ev keywarp.InjectEvent) error {
	if ev.FromTap {
		if err := vk.writeKey(ev.Code, 1); err != nil {
			return err
		}
		return vk.writeKey(ev.Code, 0)
	}
	value := int32(0)
	if ev.Type != keywarp.Release {
		value = 1
	}
	return vk.writeKey(ev.Code, value)
}

func (vk *VirtualKeyboard) writeKey(code uint16, value int32) error {
	vk.mu.Lock()
	defer vk.mu.Unlock()
	encodeRawEvent(vk.pending, evKey, code, value)
	if _, err := unix.Write(vk.fd, vk.pending); err != nil {
		return err
	}
	encodeRawEvent(vk.pending, evSyn, synReport, 0)
	_, err := unix.Write(vk.fd, vk.pending)
	return err
}

// Close destroys the virtual device.
func (vk *VirtualKeyboard) Close() error {
	_ = ioctlNone(vk.fd, uiDevDestroy)
	return unix.Close(vk.fd)
}
