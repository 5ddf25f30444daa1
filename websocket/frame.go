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

// Package websocket implements the client side of the WebSocket protocol
// (RFC 6455): the HTTP upgrade handshake and the binary frame codec. It is
// transport agnostic and runs over any net.Conn, including a kernel-TLS
// offloaded socket.
package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Opcode identifies the type of a WebSocket frame (RFC 6455 section 5.2).
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

const (
	finBit  = 0x80
	maskBit = 0x80
)

// ErrIncomplete is returned by DecodeFrame when the buffer does not yet hold
// a complete frame. It is not a failure: the caller should read more bytes
// from the transport and retry. No input is consumed in this case.
var ErrIncomplete = errors.New("websocket: incomplete frame")

// Frame is a single WebSocket frame. Client-to-server frames are always
// masked on the wire; the Payload here is always the unmasked data.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

func validOpcode(op Opcode) bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// EncodeFrame serializes f as a masked client frame, drawing the 4-byte mask
// key from random. The payload length is encoded in the shortest form the
// protocol allows: 7 bits below 126, 16 bits below 65536, 64 bits otherwise.
func EncodeFrame(f Frame, random io.Reader) ([]byte, error) {
	n := len(f.Payload)

	headerLen := 2
	switch {
	case n >= 65536:
		headerLen += 8
	case n >= 126:
		headerLen += 2
	}
	headerLen += 4 // mask key

	buf := make([]byte, 0, headerLen+n)

	b0 := byte(f.Opcode)
	if f.Fin {
		b0 |= finBit
	}
	buf = append(buf, b0)

	switch {
	case n < 126:
		buf = append(buf, maskBit|byte(n))
	case n < 65536:
		buf = append(buf, maskBit|126)
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	default:
		buf = append(buf, maskBit|127)
		buf = binary.BigEndian.AppendUint64(buf, uint64(n))
	}

	var key [4]byte
	if _, err := io.ReadFull(random, key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate mask key: %w", err)
	}
	buf = append(buf, key[:]...)

	for i, b := range f.Payload {
		buf = append(buf, b^key[i%4])
	}

	return buf, nil
}

// DecodeFrame parses one frame from the front of buf and returns it together
// with the number of bytes consumed. If buf does not yet contain the whole
// frame it returns ErrIncomplete and consumes nothing. The returned payload
// is a copy and does not alias buf.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncomplete
	}

	fin := buf[0]&finBit != 0
	op := Opcode(buf[0] & 0x0F)
	if !validOpcode(op) {
		return Frame{}, 0, fmt.Errorf("websocket: unknown opcode 0x%x", byte(op))
	}

	masked := buf[1]&maskBit != 0

	var payloadLen uint64
	headerLen := 2
	switch l := buf[1] & 0x7F; {
	case l < 126:
		payloadLen = uint64(l)
	case l == 126:
		headerLen = 4
		if len(buf) < headerLen {
			return Frame{}, 0, ErrIncomplete
		}
		payloadLen = uint64(binary.BigEndian.Uint16(buf[2:4]))
	default:
		headerLen = 10
		if len(buf) < headerLen {
			return Frame{}, 0, ErrIncomplete
		}
		payloadLen = binary.BigEndian.Uint64(buf[2:10])
	}

	if payloadLen > math.MaxInt32 {
		return Frame{}, 0, fmt.Errorf("websocket: frame payload too large: %d bytes", payloadLen)
	}

	if masked {
		headerLen += 4
	}

	total := headerLen + int(payloadLen)
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[headerLen:total])

	// Servers must not mask frames (RFC 6455 section 5.1). Some broken peers
	// do anyway, so unmask defensively. This is a compatibility shim, not
	// conformant behavior.
	if masked {
		key := buf[headerLen-4 : headerLen]
		for i := range payload {
			payload[i] ^= key[i%4]
		}
	}

	return Frame{Fin: fin, Opcode: op, Payload: payload}, total, nil
}
