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

package ipc

import (
	"encoding/json"
	"fmt"
	"net"
)

// Client talks to a running daemon.
type Client struct {
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
}

// Dial connects to the daemon's control socket.  network is "unix" on
// Linux and "tcp" for the loopback listener on Windows.
func Dial(network, addr string) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return &Client{
		conn: conn,
		dec:  json.NewDecoder(conn),
		enc:  json.NewEncoder(conn),
	}, nil
}

// Request sends one command and returns the response.
func (c *Client) Request(msg Message) (Message, error) {
	if err := c.enc.Encode(msg); err != nil {
		return Message{}, err
	}
	var rsp Message
	if err := c.dec.Decode(&rsp); err != nil {
		return Message{}, err
	}
	if rsp.Type == RspError {
		return rsp, fmt.Errorf("daemon: %s", rsp.Error)
	}
	return rsp, nil
}

// Next reads the next streamed message.  Used after enabling
// investigate mode to receive journey events.
func (c *Client) Next() (Message, error) {
	var msg Message
	err := c.dec.Decode(&msg)
	return msg, err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
