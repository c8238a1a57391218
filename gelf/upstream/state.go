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

// Package upstream manages the broker's single persistent connection to
// the remote graylog endpoint: host parsing, the connection state
// machine, optional TLS, and the keep-alive/send/half-close policy.
package upstream

// State is a tagged value describing the upstream connection's lifecycle.
type State uint8

const (
	Unknown State = iota
	Connecting
	Connected
	Error
	Shutdown
)

// String renders the state the way the status file and self-log expect.
func (s State) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Error:
		return "ERROR"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}
