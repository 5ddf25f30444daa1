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

package transport_test

import (
	"errors"
	"io"
	"testing"

	"github.com/dpeckett/ktlsws/internal/transport"
	"github.com/stretchr/testify/require"
)

// scriptReader plays back a fixed sequence of read results.
type scriptReader struct {
	steps []readStep
}

type readStep struct {
	data []byte
	err  error
}

func (r *scriptReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}

	step := r.steps[0]
	r.steps = r.steps[1:]

	n := copy(p, step.data)
	return n, step.err
}

func TestReadAllCleanEOF(t *testing.T) {
	r := &scriptReader{steps: []readStep{
		{data: []byte("hello ")},
		{data: []byte("world")},
		{err: io.EOF},
	}}

	buf, err := transport.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), buf)
}

func TestReadAllZeroLengthReadEndsLoop(t *testing.T) {
	r := &scriptReader{steps: []readStep{
		{data: []byte("response")},
		{data: nil, err: io.EOF},
	}}

	buf, err := transport.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("response"), buf)
}

func TestReadAllAbruptCloseWithData(t *testing.T) {
	r := &scriptReader{steps: []readStep{
		{data: []byte("partial response")},
		{err: io.ErrUnexpectedEOF},
	}}

	buf, err := transport.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("partial response"), buf)
}

func TestReadAllAbruptCloseWithoutData(t *testing.T) {
	r := &scriptReader{steps: []readStep{
		{err: io.ErrUnexpectedEOF},
	}}

	_, err := transport.ReadAll(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadAllOtherErrorPropagates(t *testing.T) {
	cause := errors.New("connection reset")
	r := &scriptReader{steps: []readStep{
		{data: []byte("some data")},
		{err: cause},
	}}

	_, err := transport.ReadAll(r)
	require.ErrorIs(t, err, cause)
}

// chunkWriter accepts at most three bytes per call to force partial writes.
type chunkWriter struct {
	written []byte
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > 3 {
		n = 3
	}

	w.written = append(w.written, p[:n]...)
	return n, nil
}

func TestWriteFullLoopsPartialWrites(t *testing.T) {
	w := &chunkWriter{}

	require.NoError(t, transport.WriteFull(w, []byte("0123456789")))
	require.Equal(t, []byte("0123456789"), w.written)
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestWriteFullError(t *testing.T) {
	err := transport.WriteFull(failWriter{}, []byte("data"))
	require.ErrorContains(t, err, "broken pipe")
}
