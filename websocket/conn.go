// SPDX-License-Identifier: GPL-2.0
/*
 * Copyright (c) 2023 Oracle and/or its affiliates.
 * Copyright (c) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * ktlsws is free software; you can redistribute it and/or
 * modify it under the terms of the GNU General Public License as
 * published by the Free Software Foundation; version 2.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
 * General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 51 Franklin Street, Fifth Floor, Boston, MA
 * 02110-1301, USA.
 */

package websocket

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/dpeckett/ktlsws/internal/transport"
)

// Conn is an established client-side WebSocket connection. It is not safe
// for concurrent use; each connection is driven by a single logical task.
type Conn struct {
	conn   net.Conn
	random io.Reader
	buf    []byte // received bytes not yet decoded into frames
	asm    assembler
}

// NewConn wraps an already-upgraded transport as a WebSocket connection.
// random supplies frame mask keys; pass nil to use crypto/rand.
func NewConn(conn net.Conn, random io.Reader) *Conn {
	if random == nil {
		random = rand.Reader
	}

	return &Conn{conn: conn, random: random}
}

// ClientHandshake performs the HTTP upgrade handshake over conn and returns
// the established WebSocket connection. The 16-byte challenge nonce is drawn
// from random; pass nil to use crypto/rand. Any bytes the server sends after
// the upgrade response are retained for frame decoding.
func ClientHandshake(conn net.Conn, host, path string, random io.Reader) (*Conn, error) {
	if random == nil {
		random = rand.Reader
	}

	key, err := generateKey(random)
	if err != nil {
		return nil, err
	}

	if err := transport.WriteFull(conn, []byte(upgradeRequest(host, path, key))); err != nil {
		return nil, fmt.Errorf("failed to send upgrade request: %w", err)
	}

	// Accumulate until the end of the response headers. Frame bytes may
	// already follow in the same segment.
	var buf []byte
	chunk := make([]byte, 4096)
	var end int
	for {
		i := bytes.Index(buf, []byte("\r\n\r\n"))
		if i >= 0 {
			end = i + 4
			break
		}

		if len(buf) > maxResponseLen {
			return nil, &HandshakeError{Reason: "upgrade response headers too large"}
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil, &HandshakeError{Reason: "connection closed before upgrade response"}
			}
			return nil, fmt.Errorf("failed to read upgrade response: %w", err)
		}
	}

	if err := validateResponse(buf[:end], key); err != nil {
		return nil, err
	}

	return &Conn{
		conn:   conn,
		random: random,
		buf:    append([]byte(nil), buf[end:]...),
	}, nil
}

func (c *Conn) send(op Opcode, payload []byte) error {
	frame, err := EncodeFrame(Frame{Fin: true, Opcode: op, Payload: payload}, c.random)
	if err != nil {
		return err
	}

	return transport.WriteFull(c.conn, frame)
}

// SendText sends a single unfragmented text message.
func (c *Conn) SendText(text string) error {
	return c.send(OpText, []byte(text))
}

// SendBinary sends a single unfragmented binary message.
func (c *Conn) SendBinary(data []byte) error {
	return c.send(OpBinary, data)
}

// Ping sends a ping frame with the given application data.
func (c *Conn) Ping(data []byte) error {
	return c.send(OpPing, data)
}

// Pong sends a pong frame, typically in reply to a ping.
func (c *Conn) Pong(data []byte) error {
	return c.send(OpPong, data)
}

// Receive returns the next complete message from the server, reassembling
// fragmented messages transparently. It blocks until a message is available
// or the transport fails.
func (c *Conn) Receive() (*Message, error) {
	chunk := make([]byte, 4096)
	for {
		for len(c.buf) > 0 {
			frame, n, err := DecodeFrame(c.buf)
			if err == ErrIncomplete {
				break
			}
			if err != nil {
				return nil, err
			}
			c.buf = c.buf[n:]

			msg, err := c.asm.push(frame)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				return msg, nil
			}
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("websocket: connection closed")
			}
			return nil, fmt.Errorf("websocket: read failed: %w", err)
		}
	}
}

// Close sends a close frame carrying the given status code and reason, then
// closes the underlying transport. Use code 1000 for a normal closure.
func (c *Conn) Close(code uint16, reason string) error {
	payload := binary.BigEndian.AppendUint16(nil, code)
	payload = append(payload, reason...)

	sendErr := c.send(OpClose, payload)
	closeErr := c.conn.Close()
	if sendErr != nil {
		return sendErr
	}

	return closeErr
}
