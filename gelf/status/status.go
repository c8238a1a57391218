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

// Package status writes and reads the broker's YAML status snapshot under
// a "<path>~" advisory lockfile rendezvous.
package status

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	ErrLock liberr.CodeError = iota + 4501
	ErrOpen
	ErrWrite
	ErrDecode
)

func init() {
	liberr.RegisterIdFctMessage(ErrLock, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrLock:
		return "cannot acquire status lockfile"
	case ErrOpen:
		return "cannot open status file"
	case ErrWrite:
		return "cannot write status file"
	case ErrDecode:
		return "cannot decode status file"
	}
	return liberr.NullMessage
}

// Listener mirrors the broker's current intake socket binding.
type Listener struct {
	SocketPath string `yaml:"socket_path"`
	Signature  string `yaml:"signature"` // hex, empty when not bound
}

// Upstream mirrors the broker's current upstream connection.
type Upstream struct {
	State    int    `yaml:"state"`
	HostPort string `yaml:"hostport"`
}

// Snapshot is the full status payload written to the status file, per §4.8.
type Snapshot struct {
	PID         int       `yaml:"pid"`
	QueueLength int       `yaml:"queue_length"`
	StartedAt   time.Time `yaml:"started_at"`
	UptimeSec   float64   `yaml:"uptime_seconds"`
	Listener    Listener  `yaml:"listener"`
	SocketPath  string    `yaml:"socket_path"`
	Upstream    Upstream  `yaml:"upstream"`
}

// SignatureHex renders a listener signature as a status-file field, or ""
// when the listener has no live binding.
func SignatureHex(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return hex.EncodeToString(sig)
}

// Write performs the three-step atomic publish: create "<path>~" as an
// exclusive advisory lock, write the YAML payload to path, remove the
// lockfile. Failure to acquire the lock is non-fatal to the caller's loop
// tick, per §5 ("failure to acquire a lock is non-fatal").
func Write(path string, snap Snapshot) liberr.Error {
	lockPath := path + "~"
	fl := flock.New(lockPath)

	ok, err := fl.TryLock()
	if err != nil {
		return ErrLock.Error(err)
	}
	if !ok {
		return ErrLock.Error()
	}
	defer func() {
		_ = fl.Unlock()
		_ = os.Remove(lockPath)
	}()

	out, mErr := yaml.Marshal(&snap)
	if mErr != nil {
		return ErrWrite.Error(mErr)
	}

	if wErr := os.WriteFile(path, out, 0o644); wErr != nil {
		return ErrWrite.Error(wErr)
	}

	return nil
}

// Read loads a previously written status snapshot, used by tests and by
// the status/monitoring probe (an external collaborator per §1).
func Read(path string) (Snapshot, liberr.Error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, ErrOpen.Error(err)
	}

	var snap Snapshot
	if dErr := yaml.Unmarshal(raw, &snap); dErr != nil {
		return Snapshot{}, ErrDecode.Error(dErr)
	}

	return snap, nil
}
