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

package handshake_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"testing"
	"time"

	ktlstls "github.com/dpeckett/ktls/tls"
	"github.com/dpeckett/ktlsws/internal/handshake"
	"github.com/dpeckett/ktlsws/internal/util"
	"github.com/stretchr/testify/require"
)

// startTLSServer runs a user-space TLS server that accepts connections,
// completes the handshake, and discards whatever the client sends.
func startTLSServer(t *testing.T) (addr string, pool *x509.CertPool) {
	t.Helper()

	cert, err := util.GenerateSelfSignedCert()
	require.NoError(t, err)

	pool = x509.NewCertPool()
	pool.AddCert(cert.Leaf)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()

				tlsConn := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{cert}})
				buf := make([]byte, 4096)
				for {
					if _, err := tlsConn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String(), pool
}

func TestPerform(t *testing.T) {
	addr, pool := startTLSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	res, err := handshake.Perform(ctx, conn, handshake.Config(pool), "localhost")
	require.NoError(t, err)

	require.Contains(t, []uint16{ktlstls.VersionTLS12, ktlstls.VersionTLS13}, res.Version)

	for _, sec := range []handshake.DirectionSecrets{res.TX, res.RX} {
		require.NotZero(t, sec.CipherSuite)
		require.NotEmpty(t, sec.Key)
		require.NotEmpty(t, sec.IV)
		require.Len(t, sec.Seq, 8)
	}
}

func TestPerformUntrustedCertificate(t *testing.T) {
	addr, _ := startTLSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// An empty root pool: certificate verification must fail.
	_, err = handshake.Perform(ctx, conn, handshake.Config(x509.NewCertPool()), "localhost")

	var hsErr *handshake.Error
	require.ErrorAs(t, err, &hsErr)
}

func TestResultZero(t *testing.T) {
	res := &handshake.Result{
		TX: handshake.DirectionSecrets{Key: []byte{1, 2, 3}, IV: []byte{4, 5}, Seq: []byte{6}},
		RX: handshake.DirectionSecrets{Key: []byte{7, 8}, IV: []byte{9}, Seq: []byte{10}},
	}

	res.Zero()

	for _, s := range [][]byte{res.TX.Key, res.TX.IV, res.TX.Seq, res.RX.Key, res.RX.IV, res.RX.Seq} {
		for _, b := range s {
			require.Zero(t, b)
		}
	}
}
