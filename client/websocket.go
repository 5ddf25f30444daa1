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
	"net"

	"github.com/dpeckett/ktlsws/websocket"
)

// DialWebSocket establishes an encrypted WebSocket connection to host and
// performs the upgrade handshake at path. The protocol layer runs over
// whichever transport is active: the kernel TLS socket when offload
// succeeds, user-space TLS otherwise.
func (c *Client) DialWebSocket(ctx context.Context, host, path string) (*websocket.Conn, error) {
	conn, err := c.dialTransport(ctx, host)
	if err != nil {
		return nil, err
	}

	ws, err := websocket.ClientHandshake(conn, host, path, c.random)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return ws, nil
}

func (c *Client) dialTransport(ctx context.Context, host string) (net.Conn, error) {
	if !c.disableOffload {
		conn, err := c.offloadTransport(ctx, host)
		if err == nil {
			return conn, nil
		}
		if !routeToFallback(err) {
			return nil, err
		}

		c.logger.Warn("Kernel TLS unavailable, falling back to user-space TLS", "host", host, "error", err)
	}

	conn, err := c.fallbackTransport(ctx, host)
	if err != nil {
		return nil, &FallbackError{Err: err}
	}

	return conn, nil
}
