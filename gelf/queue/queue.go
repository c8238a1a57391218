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

// Package queue implements the broker's in-memory FIFO of pending records.
// It is intentionally not safe for concurrent use: the control loop is the
// sole owner and caller, matching the single-threaded event loop model.
package queue

// Queue is an ordered sequence of records with two insertion points: the
// tail, for ordinary intake, and the head, for self-log records and for
// records that failed to send and must be retried without losing their
// place in line.
type Queue struct {
	records [][]byte
	max     int
	dropped uint64
}

// New returns an empty queue. max is a soft cap on the number of records
// held (0 means unbounded, matching the legacy behavior); once exceeded,
// the oldest record is dropped and the drop counter incremented.
func New(max int) *Queue {
	return &Queue{
		records: make([][]byte, 0, 64),
		max:     max,
	}
}

// PushTail appends a record at the tail, the normal intake path.
func (q *Queue) PushTail(record []byte) {
	q.records = append(q.records, record)
	q.enforceCap()
}

// PushHead re-inserts a record at the head, used for self-log traffic and
// for a record that could not be sent and must retain its place in line.
func (q *Queue) PushHead(record []byte) {
	q.records = append(q.records, nil)
	copy(q.records[1:], q.records)
	q.records[0] = record
	q.enforceCap()
}

// PopHead removes and returns the record at the head of the queue.
// ok is false if the queue is empty.
func (q *Queue) PopHead() (record []byte, ok bool) {
	if len(q.records) == 0 {
		return nil, false
	}

	record = q.records[0]
	q.records = q.records[1:]
	return record, true
}

// Len returns the number of records currently queued.
func (q *Queue) Len() int {
	return len(q.records)
}

// Dropped returns the number of records dropped due to the soft cap.
func (q *Queue) Dropped() uint64 {
	return q.dropped
}

// Drain removes every record currently queued, in FIFO order, and returns
// it as a fresh slice. Used to hand the whole queue to the spool store.
func (q *Queue) Drain() [][]byte {
	out := q.records
	q.records = make([][]byte, 0, 64)
	return out
}

// Restore replaces the queue contents, preserving order, typically with
// records loaded back from the spool store at startup.
func (q *Queue) Restore(records [][]byte) {
	q.records = records
	q.enforceCap()
}

func (q *Queue) enforceCap() {
	if q.max <= 0 {
		return
	}

	for len(q.records) > q.max {
		q.records = q.records[1:]
		q.dropped++
	}
}
