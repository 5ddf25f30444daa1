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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 125, 126, 1000, 65535, 65536} {
		t.Run(fmt.Sprintf("payload-%d", n), func(t *testing.T) {
			payload := make([]byte, n)
			_, err := rand.Read(payload)
			require.NoError(t, err)

			encoded, err := EncodeFrame(Frame{Fin: true, Opcode: OpBinary, Payload: payload}, rand.Reader)
			require.NoError(t, err)

			frame, consumed, err := DecodeFrame(encoded)
			require.NoError(t, err)
			require.Equal(t, len(encoded), consumed)
			require.True(t, frame.Fin)
			require.Equal(t, OpBinary, frame.Opcode)
			require.Equal(t, payload, frame.Payload)
		})
	}
}

func TestEncodeLengthForms(t *testing.T) {
	for _, tc := range []struct {
		payloadLen int
		headerLen  int
	}{
		{payloadLen: 0, headerLen: 6},
		{payloadLen: 125, headerLen: 6},
		{payloadLen: 126, headerLen: 8},
		{payloadLen: 65535, headerLen: 8},
		{payloadLen: 65536, headerLen: 14},
	} {
		encoded, err := EncodeFrame(Frame{Fin: true, Opcode: OpBinary, Payload: make([]byte, tc.payloadLen)}, rand.Reader)
		require.NoError(t, err)
		require.Len(t, encoded, tc.headerLen+tc.payloadLen)
	}
}

func TestDecodeIncompleteConsumesNothing(t *testing.T) {
	encoded, err := EncodeFrame(Frame{Fin: true, Opcode: OpText, Payload: make([]byte, 1000)}, rand.Reader)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 2, 3, 500, len(encoded) - 1} {
		_, consumed, err := DecodeFrame(encoded[:n])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", n)
		require.Zero(t, consumed)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, _, err := DecodeFrame([]byte{0x83, 0x00})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrIncomplete)
}

func TestDecodeUnmaskedServerFrame(t *testing.T) {
	// A conformant server frame: no mask bit, 5-byte payload.
	buf := append([]byte{0x81, 0x05}, []byte("hello")...)

	frame, consumed, err := DecodeFrame(buf)
	require.NoError(t, err)
	require.Equal(t, 7, consumed)
	require.Equal(t, OpText, frame.Opcode)
	require.Equal(t, []byte("hello"), frame.Payload)
}

func TestCloseMessageRoundTrip(t *testing.T) {
	payload := binary.BigEndian.AppendUint16(nil, 1000)
	payload = append(payload, "bye"...)

	encoded, err := EncodeFrame(Frame{Fin: true, Opcode: OpClose, Payload: payload}, rand.Reader)
	require.NoError(t, err)

	frame, _, err := DecodeFrame(encoded)
	require.NoError(t, err)

	msg, err := messageFromData(frame.Opcode, frame.Payload)
	require.NoError(t, err)
	require.Equal(t, CloseMessage, msg.Type)
	require.NotNil(t, msg.Status)
	require.Equal(t, uint16(1000), msg.Status.Code)
	require.Equal(t, "bye", msg.Status.Reason)
}

func TestCloseMessageWithoutStatus(t *testing.T) {
	msg, err := messageFromData(OpClose, nil)
	require.NoError(t, err)
	require.Equal(t, CloseMessage, msg.Type)
	require.Nil(t, msg.Status)
}

func TestAssemblerReassemblesFragments(t *testing.T) {
	var asm assembler

	msg, err := asm.push(Frame{Fin: false, Opcode: OpText, Payload: []byte("hel")})
	require.NoError(t, err)
	require.Nil(t, msg)

	msg, err = asm.push(Frame{Fin: false, Opcode: OpContinuation, Payload: []byte("lo ")})
	require.NoError(t, err)
	require.Nil(t, msg)

	msg, err = asm.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("world")})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, TextMessage, msg.Type)
	require.Equal(t, "hello world", msg.Text())
}

func TestAssemblerControlFrameDuringFragments(t *testing.T) {
	var asm assembler

	msg, err := asm.push(Frame{Fin: false, Opcode: OpBinary, Payload: []byte{1, 2}})
	require.NoError(t, err)
	require.Nil(t, msg)

	msg, err = asm.push(Frame{Fin: true, Opcode: OpPing, Payload: []byte("keepalive")})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, PingMessage, msg.Type)

	msg, err = asm.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte{3}})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, BinaryMessage, msg.Type)
	require.Equal(t, []byte{1, 2, 3}, msg.Data)
}

func TestAssemblerBareContinuation(t *testing.T) {
	var asm assembler

	msg, err := asm.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("stray")})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, BinaryMessage, msg.Type)
	require.Equal(t, []byte("stray"), msg.Data)
}
