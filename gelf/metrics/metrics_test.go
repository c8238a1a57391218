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

package metrics_test

import (
	dto "github.com/prometheus/client_model/go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/gelf-broker/gelf/metrics"
)

func gaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

func counterValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return -1
}

var _ = Describe("Counter", func() {
	It("accumulates count and bytes across Add calls", func() {
		r := metrics.New()
		r.Read.Add(12)
		r.Read.Add(8)

		count, bytes, _ := r.Read.Snapshot()
		Expect(count).To(Equal(uint64(2)))
		Expect(bytes).To(Equal(uint64(20)))
	})

	It("resets to zero on Snapshot", func() {
		r := metrics.New()
		r.Sent.Add(5)
		_, _, _ = r.Sent.Snapshot()

		count, bytes, _ := r.Sent.Snapshot()
		Expect(count).To(Equal(uint64(0)))
		Expect(bytes).To(Equal(uint64(0)))
	})
})

var _ = Describe("Registry.Report", func() {
	It("publishes read/sent totals and queue/upstream gauges to the private registry", func() {
		r := metrics.New()
		r.Read.Add(100)
		r.Sent.Add(42)

		r.Report(7, 3, 2)

		families, err := r.Registry().Gather()
		Expect(err).ToNot(HaveOccurred())

		Expect(counterValue(families, "gelf_broker_read_total")).To(Equal(float64(1)))
		Expect(counterValue(families, "gelf_broker_read_bytes_total")).To(Equal(float64(100)))
		Expect(counterValue(families, "gelf_broker_sent_total")).To(Equal(float64(1)))
		Expect(counterValue(families, "gelf_broker_sent_bytes_total")).To(Equal(float64(42)))
		Expect(gaugeValue(families, "gelf_broker_queue_length")).To(Equal(float64(7)))
		Expect(gaugeValue(families, "gelf_broker_queue_dropped_total")).To(Equal(float64(3)))
		Expect(gaugeValue(families, "gelf_broker_upstream_state")).To(Equal(float64(2)))
	})

	It("overwrites the gauges rather than accumulating them across reports", func() {
		r := metrics.New()

		r.Report(0, 0, 0)
		r.Report(5, 9, 2)

		families, err := r.Registry().Gather()
		Expect(err).ToNot(HaveOccurred())

		Expect(gaugeValue(families, "gelf_broker_queue_length")).To(Equal(float64(5)))
		Expect(gaugeValue(families, "gelf_broker_queue_dropped_total")).To(Equal(float64(9)))
	})

	It("keeps accumulating the read/sent counters across reports", func() {
		r := metrics.New()

		r.Read.Add(10)
		r.Report(0, 0, 0)
		r.Read.Add(5)
		r.Report(0, 0, 0)

		families, err := r.Registry().Gather()
		Expect(err).ToNot(HaveOccurred())

		Expect(counterValue(families, "gelf_broker_read_total")).To(Equal(float64(2)))
		Expect(counterValue(families, "gelf_broker_read_bytes_total")).To(Equal(float64(15)))
	})
})
