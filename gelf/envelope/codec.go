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

// Package envelope implements the two wire framings used by the broker: the
// 2-byte length-prefixed datagram read from the intake socket, and the
// NUL-terminated frame written to the upstream TCP stream.
package envelope

import (
	"encoding/binary"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	// ErrShortDatagram names a datagram smaller than the 2-byte length prefix.
	// DecodeIntake treats such datagrams as liveness probes and does not return it.
	ErrShortDatagram liberr.CodeError = 4001 + iota
	// ErrLengthMismatch is raised when the declared length does not match the received size.
	ErrLengthMismatch
)

func init() {
	liberr.RegisterIdFctMessage(ErrShortDatagram, codeMessage)
}

func codeMessage(code liberr.CodeError) string {
	switch code {
	case ErrShortDatagram:
		return "datagram shorter than the length prefix"
	case ErrLengthMismatch:
		return "declared length does not match datagram size"
	default:
		return liberr.UnknownMessage
	}
}

// nulByte terminates every frame written to the upstream stream.
const nulByte = 0x00

// DecodeIntake validates and strips the 2-byte big-endian length prefix off a
// datagram read from the Unix intake socket. A datagram of length 0 or 1 is a
// liveness probe, not a framing error, and is reported as a nil record with a
// nil error.
func DecodeIntake(datagram []byte) (record []byte, err liberr.Error) {
	if len(datagram) <= 1 {
		return nil, nil
	}

	if len(datagram) < 2 {
		return nil, ErrShortDatagram.Error()
	}

	length := binary.BigEndian.Uint16(datagram[:2])
	if int(length)+2 != len(datagram) {
		return nil, ErrLengthMismatch.Error()
	}

	return datagram[2:], nil
}

// EncodeIntake frames a record the way a producer would before writing it to
// the Unix intake socket. Not used on the broker's hot path (the broker only
// decodes) but kept for symmetry and exercised by round-trip tests.
func EncodeIntake(record []byte) []byte {
	out := make([]byte, 2+len(record))
	binary.BigEndian.PutUint16(out[:2], uint16(len(record)))
	copy(out[2:], record)
	return out
}

// EncodeUpstream appends the NUL delimiter expected by the upstream stream.
func EncodeUpstream(record []byte) []byte {
	out := make([]byte, len(record)+1)
	copy(out, record)
	out[len(record)] = nulByte
	return out
}

// KeepAliveFrame is the well-formed noise frame sent on an idle connected
// upstream; it must never be counted by the sent-record counter.
func KeepAliveFrame() []byte {
	return EncodeUpstream([]byte("{}"))
}
