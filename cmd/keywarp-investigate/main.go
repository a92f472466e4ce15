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

// keywarp-investigate streams per-event journey records from a running
// daemon and renders them as an aligned live table.  Press q (or
// Ctrl-C) to quit.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/keywarp/keywarp"
	"github.com/keywarp/keywarp/ipc"
)

func main() {
	socket := flag.String("socket", defaultSocket(), "control socket address")
	window := flag.Uint64("window", 0, "investigate a specific window handle")
	flag.Parse()

	c, err := ipc.Dial(controlNetwork, *socket)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	req := ipc.Message{Type: ipc.CmdEnableInvestigate}
	if *window != 0 {
		req = ipc.Message{Type: ipc.CmdInvestigateWindow, Window: *window}
	}
	if _, err := c.Request(req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Request(ipc.Message{Type: ipc.CmdDisableInvestigate})

	// Raw mode so a single q quits and our own keystrokes don't
	// disturb the table.
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if old, err := term.MakeRaw(fd); err == nil {
			defer term.Restore(fd, old)
		}
		go func() {
			buf := make([]byte, 1)
			for {
				if _, err := os.Stdin.Read(buf); err != nil {
					return
				}
				if buf[0] == 'q' || buf[0] == 3 {
					c.Close() // unblocks Next
					return
				}
			}
		}()
	}

	printHeader()
	for {
		msg, err := c.Next()
		if err != nil {
			return
		}
		if msg.Type != ipc.EvtJourney || msg.Journey == nil {
			continue
		}
		printJourney(msg.Journey)
	}
}

var columns = []struct {
	name  string
	width int
}{
	{"dir", 8},
	{"in", 14},
	{"out", 14},
	{"flags", 12},
	{"latency", 10},
}

func printHeader() {
	for _, col := range columns {
		fmt.Print(pad(col.name, col.width))
	}
	fmt.Print("\r\n")
}

func printJourney(j *keywarp.Journey) {
	dir := "UP"
	if j.Press {
		dir = "DOWN"
	}
	flags := ""
	if !j.Valid {
		flags += "drop "
	}
	if j.Trigger {
		flags += "trig "
	}
	if j.Tap {
		flags += "tap "
	}
	if j.Substituted {
		flags += "sub"
	}
	cells := []string{
		dir,
		fmt.Sprintf("%s(%d)", j.InputName(), j.InputEvdev),
		fmt.Sprintf("%s(%d)", j.OutputName(), j.OutputEvdev),
		flags,
		fmt.Sprintf("%.1fus", float64(j.LatencyNs)/1000),
	}
	for i, cell := range cells {
		fmt.Print(pad(cell, columns[i].width))
	}
	fmt.Print("\r\n")
}

// pad right-fills to a display width, which keeps the table aligned
// even for wide key names.
func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	for w < width {
		s += " "
		w++
	}
	return s
}
