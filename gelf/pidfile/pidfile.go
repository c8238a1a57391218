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

// Package pidfile acquires and releases the broker's exclusive pidfile,
// detecting and clearing a stale one left behind by a crashed instance.
package pidfile

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	ErrRead liberr.CodeError = iota + 4601
	ErrLiveOwner
	ErrLock
	ErrWrite
)

func init() {
	liberr.RegisterIdFctMessage(ErrRead, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrRead:
		return "cannot read existing pidfile"
	case ErrLiveOwner:
		return "pidfile is owned by a live process"
	case ErrLock:
		return "cannot acquire pidfile lock"
	case ErrWrite:
		return "cannot write pidfile"
	}
	return liberr.NullMessage
}

// PIDFile is a held, locked pidfile. Release unlocks and removes it.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// processAlive reports whether pid is a running process, preferring /proc
// presence on Linux and falling back to a zero-signal probe.
func processAlive(pid int) bool {
	if _, err := os.Stat("/proc/" + strconv.Itoa(pid)); err == nil {
		return true
	} else if os.IsNotExist(err) {
		if _, procErr := os.Stat("/proc/self"); procErr == nil {
			return false
		}
	}
	// /proc missing or inaccessible: fall back to a zero-signal probe.

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Acquire implements the startup sequence from §4.7 step 4: read any
// existing pidfile, abort if its owner is alive, unlink if stale, then
// create the pidfile with an exclusive advisory lock and write our PID.
func Acquire(path string) (*PIDFile, liberr.Error) {
	if raw, err := os.ReadFile(path); err == nil {
		existing := strings.TrimSpace(string(raw))
		if pid, convErr := strconv.Atoi(existing); convErr == nil && pid > 0 {
			if processAlive(pid) {
				return nil, ErrLiveOwner.Error()
			}
		}
		_ = os.Remove(path)
	} else if !os.IsNotExist(err) {
		return nil, ErrRead.Error(err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, ErrLock.Error(err)
	}
	if !ok {
		return nil, ErrLiveOwner.Error()
	}

	if wErr := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); wErr != nil {
		_ = fl.Unlock()
		return nil, ErrWrite.Error(wErr)
	}

	return &PIDFile{path: path, lock: fl}, nil
}

// Release unlocks and removes the pidfile, per the shutdown sequence in §4.7.
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	_ = p.lock.Unlock()
	return os.Remove(p.path)
}
