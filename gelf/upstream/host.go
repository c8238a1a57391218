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
	"net"
	"strconv"
	"strings"

	liberr "github.com/nabbar/gelf-broker/errors"
)

// DefaultPort is used whenever a graylog endpoint is configured without an
// explicit port.
const DefaultPort = 12222

// HostKind classifies how a host was spelled, in the order host parsing
// tries them: dotted IPv4, bracketed IPv6, or FQDN.
type HostKind uint8

const (
	HostUnknown HostKind = iota
	HostIPv4
	HostIPv6
	HostFQDN
)

const (
	// ErrHostUnparseable is raised when the configured host:port cannot be classified.
	ErrHostUnparseable liberr.CodeError = 4401 + iota
)

func init() {
	liberr.RegisterIdFctMessage(ErrHostUnparseable, codeMessage)
}

func codeMessage(code liberr.CodeError) string {
	switch code {
	case ErrHostUnparseable:
		return "unparseable graylog host:port"
	default:
		return liberr.UnknownMessage
	}
}

// Endpoint is a resolved upstream address: the hostport string ready for
// net.Dial, the classified host kind, and the effective port.
type Endpoint struct {
	HostPort string
	Kind     HostKind
	Port     int
}

// ParseEndpoint accepts HOST or HOST:PORT. HOST is classified, in order,
// as dotted IPv4, bracketed IPv6, or FQDN; a missing port defaults to
// DefaultPort. Unparseable input yields an error without dialing.
func ParseEndpoint(raw string) (Endpoint, liberr.Error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, ErrHostUnparseable.Error()
	}

	host, port, splitErr := splitHostPort(raw)
	if splitErr != nil {
		return Endpoint{}, ErrHostUnparseable.Error(splitErr)
	}

	kind := classify(host)
	if kind == HostUnknown {
		return Endpoint{}, ErrHostUnparseable.Error()
	}

	return Endpoint{
		HostPort: net.JoinHostPort(host, strconv.Itoa(port)),
		Kind:     kind,
		Port:     port,
	}, nil
}

func splitHostPort(raw string) (host string, port int, err error) {
	// bracketed IPv6 with an explicit port, e.g. "[::1]:12222"
	if strings.HasPrefix(raw, "[") {
		h, p, splitErr := net.SplitHostPort(raw)
		if splitErr == nil {
			portNum, convErr := strconv.Atoi(p)
			if convErr != nil {
				return "", 0, convErr
			}
			return h, portNum, nil
		}
		// bracketed IPv6 with no port, e.g. "[::1]"
		return strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]"), DefaultPort, nil
	}

	if h, p, splitErr := net.SplitHostPort(raw); splitErr == nil {
		portNum, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", 0, convErr
		}
		return h, portNum, nil
	}

	// no port separator at all, or a bare IPv6 literal with internal colons
	if strings.Count(raw, ":") > 1 {
		return raw, DefaultPort, nil
	}

	return raw, DefaultPort, nil
}

func classify(host string) HostKind {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return HostIPv4
		}
		return HostIPv6
	}

	if host == "" {
		return HostUnknown
	}

	return HostFQDN
}
