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

// Package listener owns the Unix datagram socket producers write to. It
// binds, self-checks for drift (the socket file being unlinked or replaced
// out from under it), and rebinds on demand.
package listener

import (
	"encoding/binary"
	"net"
	"os"
	"syscall"
	"time"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	// ErrLiveCompetitor is raised when another broker already owns the socket path.
	ErrLiveCompetitor liberr.CodeError = 4301 + iota
	// ErrBind is raised when the Unix datagram socket cannot be created or bound.
	ErrBind
	// ErrPerms is raised when the configured permission bits cannot be applied.
	ErrPerms
)

func init() {
	liberr.RegisterIdFctMessage(ErrLiveCompetitor, codeMessage)
}

func codeMessage(code liberr.CodeError) string {
	switch code {
	case ErrLiveCompetitor:
		return "another broker already owns this socket path"
	case ErrBind:
		return "could not bind unix datagram socket"
	case ErrPerms:
		return "could not apply permission bits to socket"
	default:
		return liberr.UnknownMessage
	}
}

// probeTimeout bounds the liveness probe's write/read to a value small
// enough to not stall a control-loop tick.
const probeTimeout = 200 * time.Millisecond

// Signature is the fixed-width device+inode identity of a bound socket
// file, used to detect that the file on disk has been replaced.
type Signature [16]byte

// IsZero reports whether the signature was never captured.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Listener owns one Unix datagram socket and its on-disk identity.
type Listener struct {
	path  string
	perms os.FileMode
	conn  *net.UnixConn
	sig   Signature
}

// Bind implements the 6-step bind sequence: refuse a live competitor,
// unlink any stale file, create and bind the socket, apply permissions,
// capture the signature, and leave the connection ready for reads.
func Bind(path string, perms os.FileMode) (*Listener, liberr.Error) {
	if socketLooksLive(path) {
		return nil, ErrLiveCompetitor.Error()
	}

	_ = os.Remove(path)

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, ErrBind.Error(err)
	}

	if perms != 0 {
		if chErr := os.Chmod(path, perms&os.ModePerm); chErr != nil {
			_ = conn.Close()
			return nil, ErrPerms.Error(chErr)
		}
	}

	sig, sigErr := signatureOf(path)
	if sigErr != nil {
		_ = conn.Close()
		return nil, ErrBind.Error(sigErr)
	}

	return &Listener{path: path, perms: perms, conn: conn, sig: sig}, nil
}

// Path returns the socket's filesystem path.
func (l *Listener) Path() string {
	return l.path
}

// Signature returns the device+inode identity captured at bind time.
func (l *Listener) Signature() Signature {
	return l.sig
}

// Conn returns the underlying datagram connection for use by the caller's
// read loop; the listener itself does not read.
func (l *Listener) Conn() *net.UnixConn {
	return l.conn
}

// Check verifies the bound socket file still exists, is a socket, carries
// the same signature, and answers a probe datagram. Any failure means the
// listener should be closed and rebound on the next tick.
func (l *Listener) Check() bool {
	if l.conn == nil {
		return false
	}

	info, err := os.Lstat(l.path)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		return false
	}

	sig, err := signatureOf(l.path)
	if err != nil || sig != l.sig {
		return false
	}

	return probe(l.path)
}

// Close removes the socket from use and closes the file descriptor. The
// file on disk is only unlinked by the caller at shutdown, not here.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

// Unlink removes the socket file from disk; called only during shutdown.
func (l *Listener) Unlink() error {
	return os.Remove(l.path)
}

// socketLooksLive reports whether path exists, is a socket, and answers a
// probe datagram — i.e. another broker is already bound there.
func socketLooksLive(path string) bool {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		return false
	}
	return probe(path)
}

// probe sends the 1-byte NUL liveness datagram a socket MUST accept
// without enqueueing, and reports whether the send succeeded.
func probe(path string) bool {
	conn, err := net.DialTimeout("unixgram", path, probeTimeout)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetWriteDeadline(time.Now().Add(probeTimeout))
	_, err = conn.Write([]byte{0x00})
	return err == nil
}

func signatureOf(path string) (Signature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Signature{}, nil
	}

	var sig Signature
	binary.BigEndian.PutUint64(sig[0:8], uint64(stat.Dev))
	binary.BigEndian.PutUint64(sig[8:16], stat.Ino)
	return sig, nil
}
