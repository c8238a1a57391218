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
	"net"
	"sync"
	"time"

	"github.com/nabbar/gelf-broker/gelf/envelope"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	// ErrNotConnected is raised when Send is called while the connector is not CONNECTED.
	ErrNotConnected liberr.CodeError = 4420 + iota
	// ErrDial is raised when the TCP (or TLS) handshake fails.
	ErrDial
	// ErrWrite is raised when a write to the established stream fails.
	ErrWrite
)

func init() {
	liberr.RegisterIdFctMessage(ErrNotConnected, connectorCodeMessage)
}

func connectorCodeMessage(code liberr.CodeError) string {
	switch code {
	case ErrNotConnected:
		return "upstream connector is not connected"
	case ErrDial:
		return "could not establish upstream connection"
	case ErrWrite:
		return "could not write to upstream connection"
	default:
		return liberr.UnknownMessage
	}
}

// dialTimeout bounds the connect attempt so a dead remote never stalls a
// control-loop tick past one cycle.
const dialTimeout = 5 * time.Second

// Connector owns the single persistent connection to the graylog
// endpoint and its state machine (§4.5). It is not safe for concurrent
// use beyond the control loop that owns it.
type Connector struct {
	mu       sync.Mutex
	endpoint Endpoint
	tlsCfg   *tls.Config
	state    State
	conn     net.Conn
}

// New returns a connector targeting endpoint, initially in state UNKNOWN.
// tlsCfg is nil for plain TCP; a non-nil config enables TLS.
func New(endpoint Endpoint, tlsCfg *tls.Config) *Connector {
	return &Connector{
		endpoint: endpoint,
		tlsCfg:   tlsCfg,
		state:    Unknown,
	}
}

// State returns the current connection state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the configured target.
func (c *Connector) Endpoint() Endpoint {
	return c.endpoint
}

// Reconnect attempts the UNKNOWN/ERROR → CONNECTING → CONNECTED transition.
// Called once per tick when not already connected.
func (c *Connector) Reconnect() liberr.Error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	var (
		conn net.Conn
		err  error
	)

	if c.tlsCfg != nil {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", c.endpoint.HostPort, c.tlsCfg)
	} else {
		conn, err = net.DialTimeout("tcp", c.endpoint.HostPort, dialTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = Error
		return ErrDial.Error(err)
	}

	c.conn = conn
	c.state = Connected
	return nil
}

// Send requires state == CONNECTED; it frames the record and writes it.
// A write failure transitions to ERROR; the caller is responsible for
// re-inserting the record at the head of the queue.
func (c *Connector) Send(record []byte) liberr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return ErrNotConnected.Error()
	}

	if _, err := c.conn.Write(envelope.EncodeUpstream(record)); err != nil {
		c.state = Error
		return ErrWrite.Error(err)
	}

	return nil
}

// KeepAlive writes the `{}` + NUL noise frame; only valid when CONNECTED.
// Never counted by the sent-record counter (invariant 7).
func (c *Connector) KeepAlive() liberr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return ErrNotConnected.Error()
	}

	if _, err := c.conn.Write(envelope.KeepAliveFrame()); err != nil {
		c.state = Error
		return ErrWrite.Error(err)
	}

	return nil
}

// RequestShutdown transitions CONNECTED → SHUTDOWN: stop accepting new
// writes and flush pending bytes. The caller finishes the drain, then
// calls FinishShutdown once the write queue is empty.
func (c *Connector) RequestShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Connected {
		c.state = Shutdown
	}
}

// FinishShutdown closes the underlying stream and returns to UNKNOWN, the
// non-terminal state from which the next tick will reconnect.
func (c *Connector) FinishShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = Unknown
}

// Reset transitions ERROR → UNKNOWN; called once per tick so the next
// tick's Reconnect re-attempts CONNECTING.
func (c *Connector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Error {
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.state = Unknown
	}
}
