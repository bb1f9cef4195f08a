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

package stream

import (
	"bytes"
	"sync/atomic"
)

// Stat is an index into StatBuffer.
type Stat int

const (
	// StatReads counts read calls issued to the backend.
	StatReads Stat = iota
	// StatWrites counts write calls issued to the backend.
	StatWrites
	// StatSeeks counts seek calls issued to the backend.
	StatSeeks
	// StatIn counts bytes read from the backend.
	StatIn
	// StatOut counts bytes written to the backend.
	StatOut
	// StatInLn counts newlines in data read from the backend.
	StatInLn
	// StatOutLn counts newlines in data written to the backend.
	StatOutLn
	// StatIn8Bit counts bytes with the high bit set in data read from the
	// backend.
	StatIn8Bit
	// StatOut8Bit counts bytes with the high bit set in data written to the
	// backend.
	StatOut8Bit

	NumStats
)

var statNames = [NumStats]string{
	StatReads:   "reads",
	StatWrites:  "writes",
	StatSeeks:   "seeks",
	StatIn:      "in",
	StatOut:     "out",
	StatInLn:    "in_lines",
	StatOutLn:   "out_lines",
	StatIn8Bit:  "in_8bit",
	StatOut8Bit: "out_8bit",
}

func (k Stat) String() string {
	if k < 0 || k >= NumStats {
		return "unknown"
	}
	return statNames[k]
}

// StatByName returns the Stat with the specified name as returned by
// Stat.String.
func StatByName(name string) (Stat, bool) {
	for k, n := range statNames {
		if n == name {
			return Stat(k), true
		}
	}
	return 0, false
}

// StatMask selects counters maintained in a StatBuffer.
type StatMask int

const StatMaskAll = StatMask(1<<NumStats - 1)

func StatMaskOf(kinds ...Stat) StatMask {
	var m StatMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

func (m StatMask) Has(k Stat) bool {
	return m&(1<<k) != 0
}

// StatBuffer holds stream statistics counters. It is owned by the caller
// that passed it to SetStat.
//
// The stream updates counters atomically, so Load can be used to observe
// them from another goroutine (e.g. a metrics exporter). The stream itself
// is still not safe for concurrent use.
type StatBuffer [NumStats]uint64

func (b *StatBuffer) Load(k Stat) uint64 {
	return atomic.LoadUint64(&b[k])
}

func (b *StatBuffer) Reset() {
	for i := range b {
		atomic.StoreUint64(&b[i], 0)
	}
}

// SetStat installs the counter buffer buf and selects counters to maintain
// using mask. buf is zeroed. A nil buf disables statistics.
func (s *Stream) SetStat(mask StatMask, buf *StatBuffer) {
	if buf == nil {
		mask = 0
	}
	s.statMask = mask
	s.stats = buf
	if buf != nil {
		buf.Reset()
	}
}

// Stat returns the counter mask and buffer installed with SetStat.
func (s *Stream) Stat() (StatMask, *StatBuffer) {
	return s.statMask, s.stats
}

func (s *Stream) statIncr(k Stat, n int) {
	if n > 0 && s.statMask.Has(k) {
		atomic.AddUint64(&s.stats[k], uint64(n))
	}
}

func (s *Stream) statData(lines, eightBit Stat, p []byte) {
	if len(p) == 0 {
		return
	}
	if s.statMask.Has(lines) {
		s.statIncr(lines, bytes.Count(p, []byte{'\n'}))
	}
	if s.statMask.Has(eightBit) {
		s.statIncr(eightBit, count8Bit(p))
	}
}

func count8Bit(p []byte) int {
	n := 0
	for _, b := range p {
		if b&0x80 != 0 {
			n++
		}
	}
	return n
}
