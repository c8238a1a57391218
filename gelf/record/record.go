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

// Package record builds GELF 1.1 JSON documents, both for the broker's own
// self-log and for tests standing in for the out-of-scope producer client
// library. The broker never parses records it merely forwards; this
// package is only used to author records the broker itself originates.
package record

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is the only GELF spec version this package emits.
const Version = "1.1"

// levelAliases maps every recognized producer level name to its GELF
// integer level, per the syslog-derived severity table.
var levelAliases = map[string]int{
	"fatal": 1, "emerg": 1, "emergency": 1,
	"alert": 2,
	"crit":  3, "critical": 3,
	"error": 4, "err": 4,
	"warn": 5, "warning": 5,
	"note": 6, "notice": 6,
	"info":  7,
	"debug": 8,
	"trace": 9, "core": 9,
}

// LevelFromName resolves a producer-facing level alias to its GELF integer
// level. ok is false for an unrecognized name.
func LevelFromName(name string) (level int, ok bool) {
	level, ok = levelAliases[strings.ToLower(name)]
	return level, ok
}

// Record is a builder for a single GELF JSON document. The zero value is
// not usable; construct one with New.
type Record struct {
	host    string
	level   int
	short   string
	full    string
	ts      string
	fields  map[string]interface{}
}

// New builds a record from a raw message and a set of user fields. The
// message is split at its first newline into short_message/full_message
// per the multi-line contract; fields are copied and re-prefixed with
// "_", with the reserved "_id"/"id" key stripped regardless of how the
// caller spelled it.
func New(levelName string, message string, fields map[string]interface{}) *Record {
	level, ok := LevelFromName(levelName)
	if !ok {
		level = 7 // info, the producer contract's implicit default
	}

	short, full := splitMessage(message)

	r := &Record{
		host:   hostname(),
		level:  level,
		short:  short,
		full:   full,
		ts:     strconv.FormatInt(time.Now().Unix(), 10),
		fields: make(map[string]interface{}, len(fields)),
	}

	for k, v := range fields {
		key := strings.TrimPrefix(k, "_")
		if key == "id" {
			continue
		}
		r.fields["_"+key] = v
	}

	return r
}

// SelfLog builds a broker-originated operational record: facility is
// forced to "gelf-broker" and the broker's own pid is attached.
func SelfLog(levelName string, message string) *Record {
	r := New(levelName, message, nil)
	r.fields["_facility"] = "gelf-broker"
	r.fields["_pid"] = os.Getpid()
	return r
}

// WithTimestamp overrides the generated timestamp, used by tests that need
// a deterministic clock.
func (r *Record) WithTimestamp(t time.Time) *Record {
	r.ts = strconv.FormatInt(t.Unix(), 10)
	return r
}

// JSON renders the record as a GELF 1.1 JSON document.
func (r *Record) JSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(r.fields)+6)
	for k, v := range r.fields {
		doc[k] = v
	}

	doc["version"] = Version
	doc["host"] = r.host
	doc["timestamp"] = r.ts
	doc["level"] = r.level
	doc["short_message"] = r.short

	if r.full != "" {
		doc["full_message"] = r.full
	}

	return json.Marshal(doc)
}

func splitMessage(message string) (short, full string) {
	idx := strings.IndexByte(message, '\n')
	if idx < 0 {
		return message, ""
	}
	return message[:idx], message[idx+1:]
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
