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
	"bytes"
	"fmt"
)

const userAgent = "ktlsws/0.1"

// buildRequest formats a minimal HTTP/1.1 request. Connection: close keeps
// the end-of-response condition simple: the server closes the connection
// when it is done.
func buildRequest(method, host, path string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	if len(body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
		b.WriteString("Content-Type: application/json\r\n")
	}
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)

	return b.Bytes()
}

// SplitResponse splits a raw HTTP response into its head (status line and
// headers) and body. If no header terminator is present the whole input is
// returned as the head.
func SplitResponse(resp []byte) (head, body []byte) {
	i := bytes.Index(resp, []byte("\r\n\r\n"))
	if i < 0 {
		return resp, nil
	}

	return resp[:i], resp[i+4:]
}
