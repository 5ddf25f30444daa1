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

package transport

import (
	"errors"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// AbruptClose reports whether err is how the active transport surfaces a
// peer that closed the connection without a clean shutdown. The kernel TLS
// receive path returns EIO when the TCP connection drops without a
// close_notify alert; user-space TLS surfaces the same condition as
// io.ErrUnexpectedEOF. The errno check is specific to the Linux kTLS
// implementation and deliberately conservative: nothing else is classified
// as an implicit EOF.
func AbruptClose(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == unix.EIO
	}

	return false
}
