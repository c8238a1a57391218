/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	// ErrTLSOption is raised when a TLS options map key is outside the whitelist.
	ErrTLSOption liberr.CodeError = 4410 + iota
	// ErrTLSCertFile is raised when the configured certificate/key files cannot be loaded.
	ErrTLSCertFile
	// ErrTLSCAFile is raised when the configured CA bundle cannot be loaded.
	ErrTLSCAFile
)

func init() {
	liberr.RegisterIdFctMessage(ErrTLSOption, tlsCodeMessage)
}

func tlsCodeMessage(code liberr.CodeError) string {
	switch code {
	case ErrTLSOption:
		return "ssl option key is not in the supported whitelist"
	case ErrTLSCertFile:
		return "could not load tls certificate/key pair"
	case ErrTLSCAFile:
		return "could not load tls ca bundle"
	default:
		return liberr.UnknownMessage
	}
}

// tlsOptionWhitelist enumerates every key the "ssl" configuration map may
// carry. Keys outside this set are rejected at config-load time rather
// than silently ignored.
var tlsOptionWhitelist = map[string]bool{
	"ca": true, "client_ca": true,
	"cert_file": true, "cert": true,
	"key_file": true, "key": true,
	"password_cb": true,
	"use_cert":    true,
	"dh":          true,
	"verify_mode": true, "verify_callback": true,
	"reuse_ctx":           true,
	"session_cache_size":  true,
	"session_cache":       true,
	"session_key":         true,
	"npn_protocols":       true,
	"alpn_protocols":      true,
	"server":              true,
	"start_handshake":     true,
}

// ValidateTLSOptions rejects any key outside the documented whitelist.
func ValidateTLSOptions(opts map[string]string) liberr.Error {
	for key := range opts {
		if !tlsOptionWhitelist[key] {
			return ErrTLSOption.Error()
		}
	}
	return nil
}

// BuildTLSConfig turns the whitelisted option map into a *tls.Config.
// verify_mode is always forced to peer verification regardless of what
// the caller passed, per the contract: presence of the map enables TLS,
// but certificate verification is never optional.
func BuildTLSConfig(opts map[string]string) (*tls.Config, liberr.Error) {
	if err := ValidateTLSOptions(opts); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		InsecureSkipVerify: false,
		MinVersion:         tls.VersionTLS12,
	}

	certFile := firstNonEmpty(opts["cert_file"], opts["cert"])
	keyFile := firstNonEmpty(opts["key_file"], opts["key"])
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, ErrTLSCertFile.Error(err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if ca := opts["ca"]; ca != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(ca)
		if err != nil {
			return nil, ErrTLSCAFile.Error(err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ErrTLSCAFile.Error()
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
