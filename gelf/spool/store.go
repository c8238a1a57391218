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

// Package spool persists the broker's in-memory queue to a small binary
// file so that records survive a restart. It is a hint, not a WAL: no
// fsync, no rename-swap, best-effort locking.
package spool

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/gofrs/flock"

	liberr "github.com/nabbar/gelf-broker/errors"
)

const (
	// ErrLock is raised when the exclusive advisory lock cannot be acquired.
	ErrLock liberr.CodeError = 4101 + iota
	// ErrOpen is raised when the spool file cannot be opened.
	ErrOpen
	// ErrWrite is raised when writing the spool file fails.
	ErrWrite
)

func init() {
	liberr.RegisterIdFctMessage(ErrLock, codeMessage)
}

func codeMessage(code liberr.CodeError) string {
	switch code {
	case ErrLock:
		return "could not acquire exclusive lock on spool file"
	case ErrOpen:
		return "could not open spool file"
	case ErrWrite:
		return "could not write spool file"
	default:
		return liberr.UnknownMessage
	}
}

// Load reads the spool file at path and returns the records it holds, in
// original order. A missing file is treated as an empty spool, not an
// error. On a partial or corrupt read, the records read so far are
// returned and the remainder is abandoned (caller is expected to log a
// warning for this case, via the returned warn flag).
func Load(path string) (records [][]byte, warn bool, err liberr.Error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, false, nil
	}

	fl := flock.New(path)
	locked, lockErr := fl.TryLock()
	if lockErr != nil || !locked {
		return nil, false, ErrLock.Error(lockErr)
	}
	defer func() { _ = fl.Unlock() }()

	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, false, ErrOpen.Error(openErr)
	}
	defer func() { _ = f.Close() }()

	var count uint32
	if readErr := binary.Read(f, binary.BigEndian, &count); readErr != nil {
		if readErr == io.EOF {
			return nil, false, nil
		}
		return nil, true, nil
	}

	records = make([][]byte, 0, count)

	for i := uint32(0); i < count; i++ {
		var length uint16
		if readErr := binary.Read(f, binary.BigEndian, &length); readErr != nil {
			warn = true
			break
		}

		payload := make([]byte, length)
		if _, readErr := io.ReadFull(f, payload); readErr != nil {
			warn = true
			break
		}

		records = append(records, payload)
	}

	return records, warn, nil
}

// Save truncates the spool file at path and writes the given records in
// order: a 4-byte count header followed by {2-byte length, payload} per
// record. Failures are reported, not fatal — the caller keeps the
// records in memory and retries on the next snapshot.
func Save(path string, records [][]byte) liberr.Error {
	fl := flock.New(path)
	locked, lockErr := fl.TryLock()
	if lockErr != nil || !locked {
		return ErrLock.Error(lockErr)
	}
	defer func() { _ = fl.Unlock() }()

	f, openErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if openErr != nil {
		return ErrOpen.Error(openErr)
	}
	defer func() { _ = f.Close() }()

	if writeErr := binary.Write(f, binary.BigEndian, uint32(len(records))); writeErr != nil {
		return ErrWrite.Error(writeErr)
	}

	for _, record := range records {
		if writeErr := binary.Write(f, binary.BigEndian, uint16(len(record))); writeErr != nil {
			return ErrWrite.Error(writeErr)
		}
		if _, writeErr := f.Write(record); writeErr != nil {
			return ErrWrite.Error(writeErr)
		}
	}

	return nil
}
