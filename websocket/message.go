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
	"encoding/binary"
	"fmt"
)

// MessageType identifies the kind of a complete WebSocket message.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
	CloseMessage
	PingMessage
	PongMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case CloseMessage:
		return "close"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// CloseStatus is the optional status code and reason carried by a close
// frame. The reason is interpreted as UTF-8 text without validation.
type CloseStatus struct {
	Code   uint16
	Reason string
}

// Message is a complete, reassembled WebSocket message. The payload is owned
// by the message and does not alias any read buffer. Status is non-nil only
// for close messages that carried a status code.
type Message struct {
	Type   MessageType
	Data   []byte
	Status *CloseStatus
}

// Text returns the payload as a string.
func (m *Message) Text() string {
	return string(m.Data)
}

func messageFromData(op Opcode, payload []byte) (*Message, error) {
	switch op {
	case OpText:
		return &Message{Type: TextMessage, Data: payload}, nil
	case OpBinary:
		return &Message{Type: BinaryMessage, Data: payload}, nil
	case OpClose:
		msg := &Message{Type: CloseMessage, Data: payload}
		if len(payload) >= 2 {
			msg.Status = &CloseStatus{
				Code:   binary.BigEndian.Uint16(payload[:2]),
				Reason: string(payload[2:]),
			}
		}
		return msg, nil
	case OpPing:
		return &Message{Type: PingMessage, Data: payload}, nil
	case OpPong:
		return &Message{Type: PongMessage, Data: payload}, nil
	default:
		return nil, fmt.Errorf("websocket: no message type for opcode 0x%x", byte(op))
	}
}

// assembler reassembles fragmented messages. A logical message may span an
// initial text or binary frame plus any number of continuation frames, the
// last of which has FIN set (RFC 6455 section 5.4). Control frames are never
// fragmented and bypass the assembler entirely.
type assembler struct {
	opcode Opcode // opcode of the in-progress message, 0 when idle
	data   []byte
}

// push feeds one decoded frame to the assembler. It returns a non-nil
// message once a complete message is available, and nil while more frames
// are needed.
func (a *assembler) push(f Frame) (*Message, error) {
	if f.Opcode >= OpClose {
		if !f.Fin {
			return nil, fmt.Errorf("websocket: fragmented control frame 0x%x", byte(f.Opcode))
		}
		return messageFromData(f.Opcode, f.Payload)
	}

	switch f.Opcode {
	case OpContinuation:
		if a.opcode == 0 {
			// A continuation with no message in progress. Tolerated for
			// compatibility: treat it as the start of a binary message.
			a.opcode = OpBinary
		}
		a.data = append(a.data, f.Payload...)
	case OpText, OpBinary:
		if a.opcode != 0 {
			a.reset()
			return nil, fmt.Errorf("websocket: data frame 0x%x interleaved with unfinished fragmented message", byte(f.Opcode))
		}
		if f.Fin {
			return messageFromData(f.Opcode, f.Payload)
		}
		a.opcode = f.Opcode
		a.data = append([]byte(nil), f.Payload...)
	}

	if !f.Fin {
		return nil, nil
	}

	msg, err := messageFromData(a.opcode, a.data)
	a.reset()
	return msg, err
}

func (a *assembler) reset() {
	a.opcode = 0
	a.data = nil
}
