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

package upstream_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/gelf-broker/gelf/upstream"
)

var _ = Describe("host parsing", func() {
	DescribeTable("classifies and defaults the port",
		func(raw string, wantHostPort string, wantKind upstream.HostKind) {
			ep, err := upstream.ParseEndpoint(raw)
			Expect(err).To(BeNil())
			Expect(ep.HostPort).To(Equal(wantHostPort))
			Expect(ep.Kind).To(Equal(wantKind))
		},
		Entry("ipv4 with port", "10.0.0.1:9000", "10.0.0.1:9000", upstream.HostIPv4),
		Entry("ipv4 without port defaults to 12222", "10.0.0.1", "10.0.0.1:12222", upstream.HostIPv4),
		Entry("bracketed ipv6 with port", "[::1]:9000", "[::1]:9000", upstream.HostIPv6),
		Entry("bracketed ipv6 without port defaults to 12222", "[::1]", "[::1]:12222", upstream.HostIPv6),
		Entry("fqdn with port", "graylog.example.com:9000", "graylog.example.com:9000", upstream.HostFQDN),
		Entry("fqdn without port defaults to 12222", "graylog.example.com", "graylog.example.com:12222", upstream.HostFQDN),
	)

	It("rejects empty input without dialing", func() {
		_, err := upstream.ParseEndpoint("")
		Expect(err).ToNot(BeNil())
		Expect(err.IsCode(upstream.ErrHostUnparseable)).To(BeTrue())
	})
})
