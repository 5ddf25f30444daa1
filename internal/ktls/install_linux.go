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

package ktls

import (
	"syscall"
	"unsafe"

	"github.com/dpeckett/ktlsws/internal/handshake"
	"golang.org/x/sys/unix"
)

// Install attaches the "tls" upper-layer protocol to fd and installs the
// transmit and receive traffic secrets.
func Install(fd int, res *handshake.Result) error {
	if err := syscall.SetsockoptString(fd, syscall.SOL_TCP, unix.TCP_ULP, "tls"); err != nil {
		return &InstallError{Op: "attach-ulp", Err: err}
	}

	if err := installDirection(fd, TLS_TX, res.Version, &res.TX); err != nil {
		return &InstallError{Op: "set-tx", Err: err}
	}

	if err := installDirection(fd, TLS_RX, res.Version, &res.RX); err != nil {
		return &InstallError{Op: "set-rx", Err: err}
	}

	return nil
}

// InstallConn is Install for a connection that exposes its raw file
// descriptor via syscall.Conn (as *net.TCPConn does).
func InstallConn(conn syscall.Conn, res *handshake.Result) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return &InstallError{Op: "attach-ulp", Err: err}
	}

	var installErr error
	if err := rc.Control(func(fd uintptr) {
		installErr = Install(int(fd), res)
	}); err != nil {
		return &InstallError{Op: "attach-ulp", Err: err}
	}

	return installErr
}

func installDirection(fd, direction int, version uint16, sec *handshake.DirectionSecrets) error {
	info, err := encodeCryptoInfo(version, sec)
	if err != nil {
		return err
	}

	return setsockoptBytes(fd, unix.SOL_TLS, direction, info)
}

func setsockoptBytes(s int, level int, name int, value []byte) error {
	_, _, e1 := syscall.Syscall6(syscall.SYS_SETSOCKOPT, uintptr(s), uintptr(level), uintptr(name), uintptr(unsafe.Pointer(unsafe.SliceData(value))), uintptr(len(value)), 0)
	if e1 != 0 {
		return unix.Errno(e1)
	}

	return nil
}
