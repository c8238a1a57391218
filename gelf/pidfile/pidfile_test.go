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

package pidfile_test

import (
	"os"
	"path/filepath"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/gelf-broker/gelf/pidfile"
)

var _ = Describe("pidfile", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "gelf-pidfile-")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("creates a fresh pidfile containing our own PID", func() {
		path := filepath.Join(dir, "broker.pid")

		pf, err := pidfile.Acquire(path)
		Expect(err).To(BeNil())
		defer func() { _ = pf.Release() }()

		raw, rErr := os.ReadFile(path)
		Expect(rErr).ToNot(HaveOccurred())
		Expect(string(raw)).To(Equal(strconv.Itoa(os.Getpid())))
	})

	It("removes the pidfile on Release", func() {
		path := filepath.Join(dir, "broker.pid")

		pf, err := pidfile.Acquire(path)
		Expect(err).To(BeNil())
		Expect(pf.Release()).To(Succeed())

		_, statErr := os.Stat(path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("clears a stale pidfile left by a PID that is no longer running", func() {
		path := filepath.Join(dir, "broker.pid")
		// PID 1 belongs to init inside a container and is unreachable by
		// this test's signal probe in the common case, but to keep this
		// deterministic we instead pick an implausibly large PID that
		// cannot correspond to a live process.
		Expect(os.WriteFile(path, []byte("999999"), 0o644)).To(Succeed())

		pf, err := pidfile.Acquire(path)
		Expect(err).To(BeNil())
		defer func() { _ = pf.Release() }()

		raw, rErr := os.ReadFile(path)
		Expect(rErr).ToNot(HaveOccurred())
		Expect(string(raw)).To(Equal(strconv.Itoa(os.Getpid())))
	})

	It("refuses to acquire a pidfile owned by this live process", func() {
		path := filepath.Join(dir, "broker.pid")
		Expect(os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)).To(Succeed())

		_, err := pidfile.Acquire(path)
		Expect(err).ToNot(BeNil())
		Expect(err.IsCode(pidfile.ErrLiveOwner)).To(BeTrue())
	})
})
