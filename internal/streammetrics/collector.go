/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package streammetrics exports stream statistics to Prometheus.
package streammetrics

import (
	"sync"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var statMetrics = [stream.NumStats]struct {
	name string
	help string
}{
	stream.StatReads:   {"reads_total", "Backend read calls"},
	stream.StatWrites:  {"writes_total", "Backend write calls"},
	stream.StatSeeks:   {"seeks_total", "Backend seek calls"},
	stream.StatIn:      {"read_bytes_total", "Bytes read from backends"},
	stream.StatOut:     {"written_bytes_total", "Bytes written to backends"},
	stream.StatInLn:    {"read_lines_total", "Newlines read from backends"},
	stream.StatOutLn:   {"written_lines_total", "Newlines written to backends"},
	stream.StatIn8Bit:  {"read_8bit_bytes_total", "Bytes with the high bit set read from backends"},
	stream.StatOut8Bit: {"written_8bit_bytes_total", "Bytes with the high bit set written to backends"},
}

type tracked struct {
	name string
	buf  *stream.StatBuffer
	mask stream.StatMask
}

// Collector aggregates the statistics of tracked streams by stream name.
//
// Counters of untracked streams are kept, so exported values never go
// down.
type Collector struct {
	descs   [stream.NumStats]*prometheus.Desc
	tracked *prometheus.Desc

	mu      sync.Mutex
	streams map[uuid.UUID]tracked
	retired map[string]*[stream.NumStats]uint64
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		tracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "tracked"),
			"Streams currently tracked",
			[]string{"name"}, nil,
		),
		streams: make(map[uuid.UUID]tracked),
		retired: make(map[string]*[stream.NumStats]uint64),
	}
	for k, m := range statMetrics {
		c.descs[k] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", m.name),
			m.help,
			[]string{"name"}, nil,
		)
	}
	return c
}

// Track starts exporting statistics of s under the given name. If s does
// not collect statistics yet, collection of all kinds is enabled.
//
// Counters are read while the stream may be in use; the stream itself
// stays single-threaded.
func (c *Collector) Track(name string, s *stream.Stream) uuid.UUID {
	mask, buf := s.Stat()
	if buf == nil {
		buf = new(stream.StatBuffer)
		mask = stream.StatMaskAll
		s.SetStat(mask, buf)
	}

	id := uuid.New()
	c.mu.Lock()
	c.streams[id] = tracked{name: name, buf: buf, mask: mask}
	c.mu.Unlock()
	return id
}

// Untrack stops following the stream registered under id. Its counters
// stay included in the totals.
func (c *Collector) Untrack(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.streams[id]
	if !ok {
		return
	}
	delete(c.streams, id)

	totals := c.retired[t.name]
	if totals == nil {
		totals = new([stream.NumStats]uint64)
		c.retired[t.name] = totals
	}
	for k := stream.Stat(0); k < stream.NumStats; k++ {
		if t.mask.Has(k) {
			totals[k] += t.buf.Load(k)
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.tracked
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	totals := make(map[string]*[stream.NumStats]uint64, len(c.retired))
	live := make(map[string]int)
	for name, r := range c.retired {
		cp := *r
		totals[name] = &cp
		live[name] = 0
	}
	for _, t := range c.streams {
		sum := totals[t.name]
		if sum == nil {
			sum = new([stream.NumStats]uint64)
			totals[t.name] = sum
		}
		for k := stream.Stat(0); k < stream.NumStats; k++ {
			if t.mask.Has(k) {
				sum[k] += t.buf.Load(k)
			}
		}
		live[t.name]++
	}
	c.mu.Unlock()

	for name, sum := range totals {
		for k, v := range sum {
			ch <- prometheus.MustNewConstMetric(c.descs[k], prometheus.CounterValue, float64(v), name)
		}
		ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(live[name]), name)
	}
}
