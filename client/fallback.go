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

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/dpeckett/ktlsws/internal/transport"
)

// fallbackRequest redoes the entire request over user-space TLS on a fresh
// connection. Nothing attempted on the kernel offload path is reused.
func (c *Client) fallbackRequest(ctx context.Context, host string, request []byte) ([]byte, error) {
	conn, err := c.fallbackTransport(ctx, host)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := transport.WriteFull(conn, request); err != nil {
		return nil, err
	}

	return transport.ReadAll(conn)
}

// fallbackTransport dials host and performs the TLS exchange entirely in
// user space through the standard library's buffered record layer.
func (c *Client) fallbackTransport(ctx context.Context, host string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// crypto/tls takes exclusive, blocking ownership of the connection it
	// encrypts. Hand it a duplicate of the descriptor and drop the dialer's
	// handle, so the fallback path owns its socket for the life of the
	// request.
	fbConn, err := duplicateConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.Close()

	tlsConn := tls.Client(fbConn, &tls.Config{
		RootCAs:    c.rootCAs,
		ServerName: host,
	})

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = fbConn.Close()
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}

	return tlsConn, nil
}

// duplicateConn returns a new net.Conn over a duplicate of conn's file
// descriptor.
func duplicateConn(conn net.Conn) (net.Conn, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, errors.New("connection does not expose a file descriptor")
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to access socket fd: %w", err)
	}

	var (
		dupFD  int
		dupErr error
	)
	if err := rc.Control(func(fd uintptr) {
		dupFD, dupErr = syscall.Dup(int(fd))
	}); err != nil {
		return nil, fmt.Errorf("failed to access socket fd: %w", err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("failed to dup socket fd: %w", dupErr)
	}

	f := os.NewFile(uintptr(dupFD), "tls-fallback")
	defer f.Close() // net.FileConn dups the fd, so we can close it here.

	dup, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create net.Conn from fd: %w", err)
	}

	return dup, nil
}
