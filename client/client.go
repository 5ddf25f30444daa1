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

// Package client is an HTTPS and WebSocket client that offloads TLS record
// encryption to the kernel. Each request handshakes in user space, installs
// the extracted traffic secrets into the kernel TLS subsystem, and then does
// plain reads and writes on the raw socket. If the handshake or the install
// fails, the client redials and performs the whole exchange over user-space
// TLS instead.
package client

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"

	ktlstls "github.com/dpeckett/ktls/tls"
	"github.com/dpeckett/ktlsws/internal/handshake"
	"github.com/dpeckett/ktlsws/internal/ktls"
	"github.com/dpeckett/ktlsws/internal/transport"
)

const defaultPort = "443"

// Config configures a Client. The zero value uses the system root store,
// port 443, kernel TLS offload when available, and crypto/rand for nonces
// and mask keys.
type Config struct {
	// RootCAs is the trusted root certificate pool. nil means the system
	// root store.
	RootCAs *x509.CertPool
	// Port is the TCP port to connect to, default "443".
	Port string
	// DisableOffload skips the kernel TLS path entirely and always uses
	// user-space TLS.
	DisableOffload bool
	// Logger receives routing decisions and failures. nil means
	// slog.Default().
	Logger *slog.Logger
	// Rand is the source of handshake nonces and frame mask keys. nil means
	// crypto/rand.Reader.
	Rand io.Reader
}

// Client issues HTTPS requests and dials WebSocket connections. The TLS
// configuration is built once and read-only afterwards, so a Client is safe
// to share across concurrent connections; each connection owns its socket,
// buffers, and secrets exclusively.
type Client struct {
	tlsConfig      *ktlstls.Config
	rootCAs        *x509.CertPool
	port           string
	disableOffload bool
	logger         *slog.Logger
	random         io.Reader
	dialer         net.Dialer

	// installOffload is replaced in tests to simulate install failures.
	installOffload func(conn syscall.Conn, res *handshake.Result) error
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	port := cfg.Port
	if port == "" {
		port = defaultPort
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	random := cfg.Rand
	if random == nil {
		random = rand.Reader
	}

	return &Client{
		tlsConfig:      handshake.Config(cfg.RootCAs),
		rootCAs:        cfg.RootCAs,
		port:           port,
		disableOffload: cfg.DisableOffload,
		logger:         logger,
		random:         random,
		installOffload: ktls.InstallConn,
	}
}

// FallbackError indicates that the user-space TLS path failed. There is no
// further fallback, so it is terminal for the request.
type FallbackError struct {
	Err error
}

func (e *FallbackError) Error() string {
	return "user-space TLS fallback failed: " + e.Err.Error()
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// routeToFallback reports whether err is a failure that degrades to the
// user-space TLS path. Only handshake and kernel install failures qualify;
// transport I/O errors after a working transport exists are terminal.
func routeToFallback(err error) bool {
	var hsErr *handshake.Error
	var installErr *ktls.InstallError
	return errors.As(err, &hsErr) || errors.As(err, &installErr)
}

// Request performs a single HTTPS request and returns the raw response
// bytes (status line, headers, and body). The connection is not reused.
func (c *Client) Request(ctx context.Context, method, host, path string, body []byte) ([]byte, error) {
	request := buildRequest(method, host, path, body)

	if !c.disableOffload {
		resp, err := c.offloadRequest(ctx, host, request)
		if err == nil {
			return resp, nil
		}
		if !routeToFallback(err) {
			return nil, err
		}

		c.logger.Warn("Kernel TLS unavailable, falling back to user-space TLS", "host", host, "error", err)
	}

	resp, err := c.fallbackRequest(ctx, host, request)
	if err != nil {
		return nil, &FallbackError{Err: err}
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, host, path string) ([]byte, error) {
	return c.Request(ctx, "GET", host, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, host, path string, body []byte) ([]byte, error) {
	return c.Request(ctx, "POST", host, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, host, path string, body []byte) ([]byte, error) {
	return c.Request(ctx, "PUT", host, path, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, host, path string, body []byte) ([]byte, error) {
	return c.Request(ctx, "PATCH", host, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, host, path string) ([]byte, error) {
	return c.Request(ctx, "DELETE", host, path, nil)
}

func (c *Client) offloadRequest(ctx context.Context, host string, request []byte) ([]byte, error) {
	conn, err := c.offloadTransport(ctx, host)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := transport.WriteFull(conn, request); err != nil {
		return nil, err
	}

	return transport.ReadAll(conn)
}

// offloadTransport connects to host, handshakes, and installs the traffic
// secrets into the kernel. On success the returned connection is the raw
// socket: the kernel encrypts and decrypts records transparently. On
// handshake or install failure the socket is abandoned; its handshake-time
// state cannot be reattached, so the caller reconnects on the fallback path
// rather than retrying offload on the same descriptor.
func (c *Client) offloadTransport(ctx context.Context, host string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	res, err := handshake.Perform(ctx, conn, c.tlsConfig, host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer res.Zero()

	sc, ok := conn.(syscall.Conn)
	if !ok {
		_ = conn.Close()
		return nil, &ktls.InstallError{Op: "attach-ulp", Err: errors.New("connection does not expose a file descriptor")}
	}

	if err := c.installOffload(sc, res); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Debug("Using kernel TLS", "host", host, "version", res.Version)

	return conn, nil
}
