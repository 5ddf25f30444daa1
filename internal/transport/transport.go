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

// Package transport provides the read/write loop shared by the kernel TLS
// and user-space TLS request paths.
package transport

import (
	"fmt"
	"io"
)

const chunkSize = 8192

// WriteFull writes all of buf to w, looping over partial writes. The caller
// observes a single success or failure for the whole buffer.
func WriteFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("write failed: %w", err)
		}

		buf = buf[n:]
	}

	return nil
}

// ReadAll accumulates response bytes from r until EOF and returns them.
//
// Two end conditions are treated as success: a clean EOF, and an abrupt
// close (see AbruptClose) after at least one byte has been received. Many
// servers tear the connection down without a close_notify alert once they
// have sent "Connection: close" responses, and kernel TLS surfaces that as
// an I/O error rather than EOF. An abrupt close before any data arrives
// remains a hard error. Any other error is propagated unchanged, wrapped.
func ReadAll(r io.Reader) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}

		if err != nil {
			if err == io.EOF {
				return buf, nil
			}

			if len(buf) > 0 && AbruptClose(err) {
				return buf, nil
			}

			return nil, fmt.Errorf("read failed: %w", err)
		}
	}
}
