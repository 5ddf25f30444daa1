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

// Package handshake drives a TLS client handshake directly over a raw
// socket and extracts the post-handshake traffic secrets needed to install
// kernel TLS. The handshake uses a crypto/tls fork that exposes the
// per-direction key material; the raw socket stays in the caller's hands so
// the same file descriptor can carry the offloaded data path afterwards.
package handshake

import (
	"context"
	"crypto/x509"
	"net"

	"github.com/dpeckett/ktls/tls"
)

// DirectionSecrets is the key material for one direction of the record
// layer: cipher suite, symmetric key, IV/salt material, and the starting
// record sequence number.
type DirectionSecrets struct {
	CipherSuite uint16
	Key         []byte
	IV          []byte
	Seq         []byte
}

// Result is the outcome of a successful handshake. It is produced once per
// connection, consumed once by the kernel TLS installer, and must be wiped
// with Zero as soon as it is no longer needed.
type Result struct {
	Version uint16
	TX      DirectionSecrets
	RX      DirectionSecrets
}

// Zero wipes the key material in place.
func (r *Result) Zero() {
	for _, s := range [][]byte{r.TX.Key, r.TX.IV, r.TX.Seq, r.RX.Key, r.RX.IV, r.RX.Seq} {
		for i := range s {
			s[i] = 0
		}
	}
}

// Error indicates the TLS handshake did not complete: certificate
// verification failed, the peer aborted, or the socket failed before
// completion. The caller routes it to the user-space TLS fallback.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "tls handshake failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config returns a TLS client configuration suitable for secret extraction
// and kernel TLS offload. TLS 1.2 cipher suites are restricted to the subset
// the Linux kernel TLS implementation supports; TLS 1.3 suite selection is
// not customizable in Go, which is fine as all of them are supported.
func Config(rootCAs *x509.CertPool) *tls.Config {
	return &tls.Config{
		RootCAs:    rootCAs,
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}

// Perform drives the TLS handshake over conn and returns the negotiated
// version and the extracted traffic secrets for both directions. conn is
// used directly for the handshake records; no buffered stream takes
// ownership of it, so on success the caller keeps writing and reading the
// raw socket (with the kernel doing the record crypto once the secrets are
// installed). The in-memory TLS session is abandoned after extraction; it
// must not be used for application data.
func Perform(ctx context.Context, conn net.Conn, config *tls.Config, serverName string) (*Result, error) {
	config = config.Clone()
	config.ServerName = serverName

	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &Error{Err: err}
	}

	state := tlsConn.ConnectionState()

	res := &Result{Version: state.Version}

	key, iv, seq := state.KeyInfo(false)
	res.TX = DirectionSecrets{CipherSuite: state.CipherSuite, Key: key, IV: iv, Seq: seq}

	key, iv, seq = state.KeyInfo(true)
	res.RX = DirectionSecrets{CipherSuite: state.CipherSuite, Key: key, IV: iv, Seq: seq}

	return res, nil
}
