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

// Package ktls installs extracted TLS traffic secrets into the kernel TLS
// subsystem. It attaches the "tls" upper-layer protocol to a connected
// socket and sets one crypto_info record per direction, laid out according
// to the negotiated TLS version and cipher suite.
//
// Every failure is reported as an *InstallError and is a routing decision,
// never fatal: the caller abandons the socket and falls back to user-space
// TLS. Once the ULP attach has been attempted the socket's handshake-time
// state cannot be recovered, so a failed install must not be retried on the
// same file descriptor.
package ktls

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dpeckett/ktls/tls"
	"github.com/dpeckett/ktlsws/internal/handshake"
)

const (
	TLS_TX = 1 // Set transmit parameters.
	TLS_RX = 2 // Set receive parameters.
)

// InstallError is a failed kernel TLS install: missing kernel support, an
// unsupported cipher suite, or a setsockopt failure. Op names the step that
// failed ("attach-ulp", "set-tx", "set-rx").
type InstallError struct {
	Op  string
	Err error
}

func (e *InstallError) Error() string {
	return "kernel TLS " + e.Op + " failed: " + e.Err.Error()
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// encodeCryptoInfo builds the kernel-ABI crypto_info record for one
// direction. The layout depends on the cipher suite and, for the IV field,
// on the TLS version: for TLS 1.2 the kernel generates per-record IVs seeded
// from the record sequence, while for TLS 1.3 the IV is the remainder of the
// handshake IV after the salt.
func encodeCryptoInfo(version uint16, sec *handshake.DirectionSecrets) ([]byte, error) {
	if version != tls.VersionTLS12 && version != tls.VersionTLS13 {
		return nil, fmt.Errorf("unsupported TLS version: 0x%x", version)
	}

	var info any
	switch sec.CipherSuite {
	case tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_AES_128_GCM_SHA256:
		var err error
		info, err = aesGCM128Info(version, sec)
		if err != nil {
			return nil, err
		}
	case tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_AES_256_GCM_SHA384:
		var err error
		info, err = aesGCM256Info(version, sec)
		if err != nil {
			return nil, err
		}
	case tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_CHACHA20_POLY1305_SHA256:
		var err error
		info, err = chaCha20Poly1305Info(version, sec)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported cipher suite: %d", sec.CipherSuite)
	}

	var w bytes.Buffer
	if err := binary.Write(&w, binary.NativeEndian, info); err != nil {
		return nil, fmt.Errorf("failed to encode crypto info: %w", err)
	}

	return w.Bytes(), nil
}

func aesGCM128Info(version uint16, sec *handshake.DirectionSecrets) (*cryptoInfoAESGCM128, error) {
	if err := checkSizes(sec, cipherAESGCM128KeySize, cipherAESGCM128SaltSize, cipherAESGCM128RecSeqSize); err != nil {
		return nil, err
	}

	info := &cryptoInfoAESGCM128{
		Info: cryptoInfo{
			Version:    version,
			CipherType: cipherAESGCM128,
		},
		Key:    [cipherAESGCM128KeySize]byte(sec.Key),
		Salt:   [cipherAESGCM128SaltSize]byte(sec.IV[:cipherAESGCM128SaltSize]),
		RecSeq: [cipherAESGCM128RecSeqSize]byte(sec.Seq),
	}

	// TLSv1.2 generates the per-record IV in the kernel.
	if version == tls.VersionTLS12 {
		info.IV = [cipherAESGCM128IVSize]byte(sec.Seq)
	} else {
		copy(info.IV[:], sec.IV[cipherAESGCM128SaltSize:])
	}

	return info, nil
}

func aesGCM256Info(version uint16, sec *handshake.DirectionSecrets) (*cryptoInfoAESGCM256, error) {
	if err := checkSizes(sec, cipherAESGCM256KeySize, cipherAESGCM256SaltSize, cipherAESGCM256RecSeqSize); err != nil {
		return nil, err
	}

	info := &cryptoInfoAESGCM256{
		Info: cryptoInfo{
			Version:    version,
			CipherType: cipherAESGCM256,
		},
		Key:    [cipherAESGCM256KeySize]byte(sec.Key),
		Salt:   [cipherAESGCM256SaltSize]byte(sec.IV[:cipherAESGCM256SaltSize]),
		RecSeq: [cipherAESGCM256RecSeqSize]byte(sec.Seq),
	}

	// TLSv1.2 generates the per-record IV in the kernel.
	if version == tls.VersionTLS12 {
		info.IV = [cipherAESGCM256IVSize]byte(sec.Seq)
	} else {
		copy(info.IV[:], sec.IV[cipherAESGCM256SaltSize:])
	}

	return info, nil
}

func chaCha20Poly1305Info(version uint16, sec *handshake.DirectionSecrets) (*cryptoInfoCHACHA20POLY1305, error) {
	if err := checkSizes(sec, cipherCHACHA20KeySize, cipherCHACHA20IVSize, cipherCHACHA20RecSeqSize); err != nil {
		return nil, err
	}

	return &cryptoInfoCHACHA20POLY1305{
		Info: cryptoInfo{
			Version:    version,
			CipherType: cipherCHACHA20POLY1305,
		},
		IV:     [cipherCHACHA20IVSize]byte(sec.IV),
		Key:    [cipherCHACHA20KeySize]byte(sec.Key),
		RecSeq: [cipherCHACHA20RecSeqSize]byte(sec.Seq),
	}, nil
}

func checkSizes(sec *handshake.DirectionSecrets, keySize, ivSize, seqSize int) error {
	if len(sec.Key) != keySize {
		return fmt.Errorf("unexpected key size: got %d, want %d", len(sec.Key), keySize)
	}

	if len(sec.IV) < ivSize {
		return fmt.Errorf("unexpected IV size: got %d, want at least %d", len(sec.IV), ivSize)
	}

	if len(sec.Seq) != seqSize {
		return fmt.Errorf("unexpected record sequence size: got %d, want %d", len(sec.Seq), seqSize)
	}

	return nil
}
