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
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// acceptGUID is the fixed key derivation GUID from RFC 6455 section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// maxResponseLen bounds how many bytes of upgrade response we will buffer
// before giving up on finding the end of the headers.
const maxResponseLen = 16 * 1024

// HandshakeError indicates that the server's upgrade response was malformed
// or did not match the client's challenge. It is terminal for the connection.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "websocket handshake failed: " + e.Reason
}

// generateKey returns a base64-encoded 16-byte nonce for the
// Sec-WebSocket-Key header, drawn from random.
func generateKey(random io.Reader) (string, error) {
	var nonce [16]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// acceptKey computes the expected Sec-WebSocket-Accept value for a client
// key: base64(SHA-1(key ++ GUID)), per RFC 6455 section 1.3.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func upgradeRequest(host, path, key string) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", path, host, key)
}

// headerContainsToken reports whether any value of the named header contains
// token in its comma-separated list, case-insensitively. Servers commonly
// send values like "Connection: upgrade, keep-alive".
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}

	return false
}

// validateResponse checks the server's upgrade response head (everything up
// to and including the blank line) against the client key.
func validateResponse(head []byte, key string) error {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(head)), nil)
	if err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("malformed response: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return &HandshakeError{Reason: fmt.Sprintf("expected status 101, got %q", resp.Status)}
	}

	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return &HandshakeError{Reason: "missing Upgrade: websocket header"}
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return &HandshakeError{Reason: "missing Connection: Upgrade header"}
	}

	accept := resp.Header.Get("Sec-WebSocket-Accept")
	if accept == "" {
		return &HandshakeError{Reason: "missing Sec-WebSocket-Accept header"}
	}

	if expected := acceptKey(key); accept != expected {
		return &HandshakeError{Reason: fmt.Sprintf("Sec-WebSocket-Accept mismatch: expected %q, got %q", expected, accept)}
	}

	return nil
}
