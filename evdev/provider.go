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
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/keywarp/keywarp"
)

// Provider pumps events from grabbed devices into the engine through
// one epoll loop.  Events from a single device stay in arrival order;
// across devices the order is epoll readiness order.
type Provider struct {
	eng     *keywarp.Engine
	log     *slog.Logger
	devices []*Device
	epfd    int
}

// NewProvider grabs every given device path.  At least one device must
// open; a daemon with nothing grabbed is useless.
func NewProvider(eng *keywarp.Engine, log *slog.Logger, paths []string) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Provider{eng: eng, log: log}
	for _, path := range paths {
		d, err := OpenDevice(path)
		if err != nil {
			log.Warn("skipping device", "path", path, "err", err)
			continue
		}
		log.Info("grabbed device", "path", path, "name", d.Name())
		p.devices = append(p.devices, d)
	}
	if len(p.devices) == 0 {
		return nil, fmt.Errorf("no input device could be grabbed")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		p.closeDevices()
		return nil, fmt.Errorf("epoll: %w", err)
	}
	p.epfd = epfd
	for _, d := range p.devices {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(d.Fd())}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, d.Fd(), &ev); err != nil {
			p.Close()
			return nil, fmt.Errorf("epoll add: %w", err)
		}
	}
	return p, nil
}

// Run pumps events until the context is canceled or a read from any
// device fails.  A read error on a device is a runtime I/O failure and is
// returned to the caller (exit code 4 territory).
func (p *Provider) Run(ctx context.Context) error {
	byFd := make(map[int32]uint32, len(p.devices))
	for i, d := range p.devices {
		byFd[int32(d.Fd())] = uint32(i)
	}
	buf := make([]byte, inputEventSize*64)
	events := make([]unix.EpollEvent, 8)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := unix.EpollWait(p.epfd, events, 200)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}
		for _, ep := range events[:n] {
			idx, ok := byFd[ep.Fd]
			if !ok {
				continue
			}
			dev := p.devices[idx]
			raw, err := dev.read(buf)
			if err != nil {
				return fmt.Errorf("read %s: %w", dev.Path(), err)
			}
			for _, r := range raw {
				if r.Type != evKey {
					continue
				}
				p.eng.Submit(keywarp.InputEvent{
					Device: idx,
					Code:   r.Code,
					Type:   keywarp.EventType(r.Value),
					Time:   time.Unix(int64(r.Sec), int64(r.Usec)*1000),
				})
			}
		}
	}
}

// Close releases every grab and the epoll descriptor.
func (p *Provider) Close() {
	if p.epfd > 0 {
		unix.Close(p.epfd)
		p.epfd = 0
	}
	p.closeDevices()
}

func (p *Provider) closeDevices() {
	for _, d := range p.devices {
		d.Close()
	}
	p.devices = nil
}
