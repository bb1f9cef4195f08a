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
	"fmt"
	"sync/atomic"
)

// BufferType is the buffering mode of a stream.
type BufferType int

const (
	// BufferNone forwards every call directly to the backend.
	BufferNone BufferType = iota
	// BufferFull fills and flushes the buffer with a single backend call.
	BufferFull
	// BufferLine fills the buffer one line at a time and flushes it as soon
	// as it contains a newline.
	BufferLine
)

func (t BufferType) String() string {
	switch t {
	case BufferNone:
		return "none"
	case BufferFull:
		return "full"
	case BufferLine:
		return "line"
	}
	return fmt.Sprintf("BufferType(%d)", int(t))
}

func ParseBufferType(s string) (BufferType, error) {
	switch s {
	case "none":
		return BufferNone, nil
	case "full":
		return BufferFull, nil
	case "line":
		return BufferLine, nil
	}
	return BufferNone, fmt.Errorf("stream: unknown buffering mode: %s", s)
}

// Policy is a buffering mode together with the requested buffer size. Zero
// Size means DefaultBufferSize.
type Policy struct {
	Type BufferType
	Size int
}

func (p Policy) String() string {
	if p.Type == BufferNone {
		return p.Type.String()
	}
	return fmt.Sprintf("%v %d", p.Type, p.Size)
}

var defaultBufferSize int64 = 8192

// DefaultBufferSize returns the process-wide buffer size used when a
// buffering policy does not specify one.
func DefaultBufferSize() int {
	return int(atomic.LoadInt64(&defaultBufferSize))
}

// SetDefaultBufferSize changes the process-wide default buffer size. It is
// meant to be called once during program initialization. Streams that
// already have a buffer are not affected.
func SetDefaultBufferSize(size int) error {
	if size <= 0 {
		return ErrInvalidArgument
	}
	atomic.StoreInt64(&defaultBufferSize, int64(size))
	return nil
}

// SetBuffer changes the buffering policy of the stream. A size of zero
// selects DefaultBufferSize.
//
// The current buffer, if any, is flushed and released first.
func (s *Stream) SetBuffer(t BufferType, size int) error {
	s.bootstrap()

	if size < 0 || t < BufferNone || t > BufferLine {
		return ErrInvalidArgument
	}
	if size == 0 {
		size = DefaultBufferSize()
	}

	if s.ops.setbuf != nil {
		if err := s.ops.setbuf.SetBufferHook(t, size); err != nil {
			return err
		}
	}

	if s.buf != nil {
		if err := s.Flush(); err != nil {
			s.Log.DebugError("flush before buffer change failed", err)
		}
		if s.flags&FlagDirty != 0 {
			s.clrFlag(FlagDirty)
		}
		s.buf = nil
	}
	s.pos, s.level = 0, 0

	s.buftype = t
	if t == BufferNone {
		return nil
	}

	s.buf = make([]byte, size)
	s.bufsize = size
	return nil
}

// SetPolicy is a convenience wrapper for SetBuffer.
func (s *Stream) SetPolicy(p Policy) error {
	return s.SetBuffer(p.Type, p.Size)
}

// Buffer returns the current buffering mode and buffer size.
func (s *Stream) Buffer() (BufferType, int) {
	return s.buftype, s.bufsize
}

// fill refills the buffer from the backend. It must be called only when all
// buffered data was consumed (pos == level).
func (s *Stream) fill() error {
	var err error

	switch s.buftype {
	case BufferNone:
		return nil
	case BufferFull:
		var n int
		n, err = s.readUnbuffered(s.buf[:s.bufsize], false)
		if err == nil {
			s.level = n
		}
	case BufferLine:
		var (
			c [1]byte
			n int
		)
		for n < s.bufsize {
			var rdn int
			rdn, err = s.readUnbuffered(c[:], false)
			if err != nil {
				break
			}
			if rdn == 0 {
				s.setFlag(FlagEOF)
				break
			}
			s.buf[n] = c[0]
			n++
			if c[0] == '\n' {
				break
			}
		}
		s.level = n
	}

	if err == nil {
		s.pos = 0
		s.event(EventFillBuf, int64(s.level), s.buf[:s.level])
	}
	return err
}

type flushMode int

const (
	// flushWrite commits modified data, but keeps unread data in the buffer.
	flushWrite flushMode = iota
	// flushRdWr commits modified data and empties the buffer.
	flushRdWr
)

func (s *Stream) flushBuffer(mode flushMode) error {
	if s.flags&FlagDirty != 0 {
		// Backend position may have drifted if it is also used for
		// reading.
		if s.flags&FlagSeek != 0 && s.ops.seek != nil {
			if _, err := s.backendSeek(s.offset); err != nil {
				return err
			}
		}

		if _, err := s.writeUnbuffered(s.buf[:s.level], true); err != nil {
			return err
		}
		s.event(EventFlushBuf, int64(s.level), s.buf[:s.level])
		s.clrFlag(FlagDirty)

		if s.pos < s.level {
			copy(s.buf, s.buf[s.pos:s.level])
		}
		s.offset += int64(s.pos)
		s.level -= s.pos
		s.pos = 0
	}

	if mode == flushRdWr {
		s.offset += int64(s.level)
		s.pos, s.level = 0, 0
	}
	return nil
}

// bufferFull reports whether buffered output should be flushed before more
// data is added.
func (s *Stream) bufferFull() bool {
	if s.buftype == BufferNone {
		return false
	}
	if s.pos == s.bufsize {
		return true
	}
	return s.buftype == BufferLine && s.pos > 0 && bytes.IndexByte(s.buf[:s.pos], '\n') >= 0
}
