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

// Package evdev is the Linux input adapter: it grabs keyboard devices
// through the evdev interface, pumps their events into the engine, and
// injects the engine's output through a uinput virtual keyboard.
package evdev

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Input event types from the kernel's input layer.
const (
	evSyn = 0x00
	evKey = 0x01
	evMsc = 0x04

	synReport = 0
)

// ioctl encoding, as in <asm-generic/ioctl.h>.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uint) uint {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func io(typ, nr uint) uint           { return ioc(iocNone, typ, nr, 0) }
func iow(typ, nr, size uint) uint    { return ioc(iocWrite, typ, nr, size) }
func iorLen(typ, nr, size uint) uint { return ioc(iocRead, typ, nr, size) }

// evdev ioctl requests.
var (
	eviocGrab = iow('E', 0x90, 4)
)

func eviocgname(length uint) uint { return iorLen('E', 0x06, length) }

// inputEventSize is sizeof(struct input_event) on 64-bit: two 8-byte
// timeval words, type, code, value.
const inputEventSize = 24

// rawEvent mirrors struct input_event.
type rawEvent struct {
	Sec   uint64
	Usec  uint64
	Type  uint16
	Code  uint16
	Value int32
}

func decodeRawEvent(b []byte) rawEvent {
	return rawEvent{
		Sec:   binary.LittleEndian.Uint64(b[0:]),
		Usec:  binary.LittleEndian.Uint64(b[8:]),
		Type:  binary.LittleEndian.Uint16(b[16:]),
		Code:  binary.LittleEndian.Uint16(b[18:]),
		Value: int32(binary.LittleEndian.Uint32(b[20:])),
	}
}

func encodeRawEvent(b []byte, typ, code uint16, value int32) {
	binary.LittleEndian.PutUint64(b[0:], 0)
	binary.LittleEndian.PutUint64(b[8:], 0)
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
}

// Device is one grabbed keyboard.
type Device struct {
	fd   int
	path string
	name string
}

// OpenDevice opens and exclusively grabs an event device node.  The
// grab is mandatory: without it the physical key would reach the
// session twice, once raw and once remapped.
func OpenDevice(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &Device{fd: fd, path: path}

	var nameBuf [256]byte
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(eviocgname(uint(len(nameBuf)))), uintptr(unsafe.Pointer(&nameBuf[0]))); errno == 0 {
		d.name = strings.TrimRight(string(nameBuf[:]), "\x00")
	}

	if err := unix.IoctlSetInt(fd, uint(eviocGrab), 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("grab %s: %w", path, err)
	}
	return d, nil
}

// Name returns the kernel-reported device name.
func (d *Device) Name() string { return d.name }

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Fd returns the raw file descriptor for the epoll loop.
func (d *Device) Fd() int { return d.fd }

// Close releases the grab and the descriptor.
func (d *Device) Close() error {
	_ = unix.IoctlSetInt(d.fd, uint(eviocGrab), 0)
	return unix.Close(d.fd)
}

// read drains pending events from the descriptor.  A short buffer of
// events per wakeup is plenty for a keyboard.
func (d *Device) read(buf []byte) ([]rawEvent, error) {
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, err
	}
	events := make([]rawEvent, 0, n/inputEventSize)
	for off := 0; off+inputEventSize <= n; off += inputEventSize {
		events = append(events, decodeRawEvent(buf[off:]))
	}
	return events, nil
}

// ListKeyboards returns the event device nodes that look like
// keyboards, by scanning /dev/input/by-path for -kbd links and falling
// back to every event node.
func ListKeyboards() ([]string, error) {
	links, err := filepath.Glob("/dev/input/by-path/*-kbd")
	if err == nil && len(links) > 0 {
		var paths []string
		for _, l := range links {
			if p, err := filepath.EvalSymlinks(l); err == nil {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths, nil
		}
	}
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, os.ErrNotExist
	}
	return paths, nil
}
