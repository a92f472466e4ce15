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

// keywarpctl drives the daemon's control socket.
//
//	keywarpctl status
//	keywarpctl locks
//	keywarpctl enable | disable
//	keywarpctl switch <name>
//	keywarpctl reload [name]
//	keywarpctl describe
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keywarp/keywarp/ipc"
)

func main() {
	socket := flag.String("socket", defaultSocket(), "control socket address")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	c, err := ipc.Dial(controlNetwork, *socket)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	var msg ipc.Message
	switch args[0] {
	case "status":
		msg = ipc.Message{Type: ipc.CmdGetStatus}
	case "locks":
		msg = ipc.Message{Type: ipc.CmdGetLockStatus}
	case "enable", "disable":
		on := args[0] == "enable"
		msg = ipc.Message{Type: ipc.CmdSetEnabled, Enabled: &on}
	case "switch":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		msg = ipc.Message{Type: ipc.CmdSwitchConfig, Name: args[1]}
	case "reload":
		msg = ipc.Message{Type: ipc.CmdReloadConfig}
		if len(args) == 2 {
			msg.Name = args[1]
		}
	case "describe":
		msg = ipc.Message{Type: ipc.CmdDescribeBindings}
	default:
		usage()
		os.Exit(1)
	}

	rsp, err := c.Request(msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printResponse(rsp)
}

func printResponse(rsp ipc.Message) {
	switch rsp.Type {
	case ipc.RspStatus:
		st := rsp.Status
		if st == nil {
			return
		}
		fmt.Printf("running: %v\nenabled: %v\nconfig:  %s\n",
			st.EngineRunning, st.Enabled, st.ActiveConfig)
		if st.LastError != "" {
			fmt.Printf("error:   %s\n", st.LastError)
		}
		if len(st.Configs) > 0 {
			fmt.Printf("available:")
			for _, n := range st.Configs {
				fmt.Printf(" %s", n)
			}
			fmt.Println()
		}
		if st.Bindings != "" {
			fmt.Print(st.Bindings)
		}
	case ipc.RspLocks:
		if rsp.Locks == nil {
			return
		}
		for i, w := range rsp.Locks {
			for b := 0; b < 32; b++ {
				if w&(1<<uint(b)) != 0 {
					fmt.Printf("L%02X on\n", i*32+b)
				}
			}
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr,
		"usage: keywarpctl [-socket addr] status|locks|enable|disable|switch <name>|reload [name]|describe")
}
