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
	"io"
	"math"
	"time"
)

// deadline tracks the absolute stop time of a delimited read and the
// backend timeout that was in effect before it started. taken counts the
// bytes copied out of the current buffer window, so that a read that runs
// out of time can put them back.
type deadline struct {
	s     *Stream
	stop  time.Time
	saved time.Duration
	taken int
	// expired is set when arm failed, which happens with the window
	// still in place.
	expired bool
}

// startDeadline converts timeout into an absolute stop time. A negative
// timeout means no deadline and yields a nil *deadline, which is valid to
// use.
func (s *Stream) startDeadline(timeout time.Duration) (*deadline, error) {
	if timeout < 0 {
		return nil, nil
	}
	dl := &deadline{s: s, stop: time.Now().Add(timeout)}
	if err := s.Ioctl(IoctlTimeout, OpGet, &dl.saved); err != nil {
		s.Log.DebugError("cannot query backend timeout", err)
		return nil, ErrSetTimeout
	}
	return dl, nil
}

// arm is called before every step that may block. It fails with ErrTimeout
// once the stop time has passed and pushes the remaining time into the
// backend otherwise.
func (dl *deadline) arm() error {
	if dl == nil {
		return nil
	}
	now := time.Now()
	if !now.Before(dl.stop) {
		dl.expired = true
		return ErrTimeout
	}
	left := dl.stop.Sub(now)
	if err := dl.s.Ioctl(IoctlTimeout, OpSet, &left); err != nil {
		dl.s.Log.DebugError("cannot set backend timeout", err)
		dl.expired = true
		return ErrSetTimeout
	}
	return nil
}

func (dl *deadline) took(n int) {
	if dl != nil {
		dl.taken += n
	}
}

func (dl *deadline) refilled() {
	if dl != nil {
		dl.taken = 0
	}
}

// rewind returns the bytes taken from the current window to the buffer
// if the deadline failed. It reports how many bytes the caller has to drop
// from its result.
func (dl *deadline) rewind() int {
	if dl == nil || !dl.expired {
		return 0
	}
	n := dl.taken
	dl.s.pos -= n
	dl.taken = 0
	return n
}

func (dl *deadline) restore() {
	if dl == nil {
		return
	}
	if err := dl.s.Ioctl(IoctlTimeout, OpSet, &dl.saved); err != nil {
		dl.s.Log.DebugError("cannot restore backend timeout", err)
	}
}

// scanDelim copies bytes from the buffer into p until delim is copied, p
// is full or the input ends, refilling the buffer as needed. Callers undo
// the copy from the last window with dl.rewind when the deadline fails.
func (s *Stream) scanDelim(p []byte, delim byte, dl *deadline) (int, error) {
	var (
		nread int
		err   error
	)
	for len(p) > 0 {
		if s.pos == s.level {
			if err = dl.arm(); err != nil {
				break
			}
			if err = s.flushBuffer(flushRdWr); err != nil {
				break
			}
			if err = s.fill(); err != nil || s.level == 0 {
				break
			}
			dl.refilled()
		}

		avail := s.buf[s.pos:s.level]
		i := bytes.IndexByte(avail, delim)
		if i >= 0 {
			avail = avail[:i+1]
		}
		n := copy(p, avail)
		s.pos += n
		dl.took(n)
		p = p[n:]
		nread += n
		if i >= 0 {
			break
		}
	}
	return nread, err
}

// stepDelim is the unbuffered counterpart of scanDelim. It reads one byte
// at a time so that nothing past the delimiter is consumed.
func (s *Stream) stepDelim(p []byte, delim byte, dl *deadline) (int, error) {
	var c [1]byte
	n := 0
	for n < len(p) {
		if err := dl.arm(); err != nil {
			return n, err
		}
		rdn, err := s.Read(c[:])
		if err == io.EOF {
			err = nil
		}
		if err != nil || rdn == 0 {
			return n, err
		}
		p[n] = c[0]
		n++
		if c[0] == delim {
			break
		}
	}
	return n, nil
}

func (s *Stream) readDelim(buf []byte, delim byte, timeout time.Duration) (int, error) {
	s.bootstrap()
	if len(buf) == 0 {
		return 0, ErrInvalidArgument
	}
	room := buf[:len(buf)-1]
	if len(room) == 0 {
		return 0, ErrBufferSpace
	}
	if err := s.prepare(); err != nil {
		return 0, err
	}

	if s.buftype != BufferNone {
		if err := s.flushBuffer(flushWrite); err != nil {
			return 0, err
		}
	}
	n, err := s.timedDelim(room, delim, timeout)
	buf[n] = 0

	if err == nil && n == 0 && s.EOF() {
		return 0, io.EOF
	}
	return n, err
}

func (s *Stream) timedDelim(p []byte, delim byte, timeout time.Duration) (int, error) {
	dl, err := s.startDeadline(timeout)
	if err != nil {
		return 0, err
	}
	defer dl.restore()
	if s.buftype == BufferNone {
		return s.stepDelim(p, delim, dl)
	}
	n, err := s.scanDelim(p, delim, dl)
	return n - dl.rewind(), err
}

// ReadDelim reads bytes up to and including delim into buf. At most
// len(buf)-1 bytes are read and a NUL byte is stored after them, so buf
// must hold at least two bytes.
//
// The number of bytes read, not counting the NUL, is returned even if an
// error occurs. When the input is exhausted (0, io.EOF) is returned.
func (s *Stream) ReadDelim(buf []byte, delim byte) (int, error) {
	return s.readDelim(buf, delim, NoTimeout)
}

// ReadDelimTimeout is ReadDelim that gives up with ErrTimeout after
// timeout has elapsed. The backend must support IoctlTimeout. A negative
// timeout waits forever.
func (s *Stream) ReadDelimTimeout(buf []byte, delim byte, timeout time.Duration) (int, error) {
	return s.readDelim(buf, delim, timeout)
}

// ReadLine is ReadDelim with '\n' as the delimiter.
func (s *Stream) ReadLine(buf []byte) (int, error) {
	return s.readDelim(buf, '\n', NoTimeout)
}

// maxLine is the capacity past which a line buffer is not grown anymore.
const maxLine = math.MaxInt / 3 * 2

// growLine makes sure line has room past its first used bytes. Growth
// starts at 64 bytes and then goes up by half of the current size.
func growLine(line []byte, used int) ([]byte, error) {
	n := len(line)
	if used < n {
		return line, nil
	}
	switch {
	case n == 0:
		n = 64
	case n >= maxLine:
		return line, ErrNoMemory
	default:
		n += (n + 1) / 2
	}
	grown := make([]byte, n)
	copy(grown, line[:used])
	return grown, nil
}

func (s *Stream) getDelim(pbuf *[]byte, delim byte, timeout time.Duration) (int, error) {
	if err := s.prepare(); err != nil {
		return 0, err
	}
	if err := s.flushBuffer(flushWrite); err != nil {
		return 0, err
	}

	dl, err := s.startDeadline(timeout)
	if err != nil {
		return 0, err
	}
	defer dl.restore()

	line := *pbuf
	used := 0
	for {
		if line, err = growLine(line, used); err != nil {
			break
		}

		var rdn int
		if s.buftype == BufferNone {
			rdn, err = s.stepDelim(line[used:], delim, dl)
		} else {
			rdn, err = s.scanDelim(line[used:], delim, dl)
		}
		used += rdn - dl.rewind()
		if err != nil || rdn == 0 {
			break
		}
		if line[used-1] == delim {
			break
		}
	}

	if err == nil {
		if line, err = growLine(line, used); err == nil {
			line[used] = 0
		}
	}
	*pbuf = line

	if err == nil && used == 0 && s.EOF() {
		return 0, io.EOF
	}
	return used, err
}

// GetDelim reads bytes up to and including delim into *pbuf, growing it
// as needed. *pbuf may be nil. On return (*pbuf)[:n] holds the data and
// is followed by a NUL byte.
//
// Bytes read before an error are kept in *pbuf and counted in n. When the
// input is exhausted (0, io.EOF) is returned.
func (s *Stream) GetDelim(pbuf *[]byte, delim byte) (int, error) {
	return s.getDelim(pbuf, delim, NoTimeout)
}

// GetDelimTimeout is GetDelim with a deadline, see ReadDelimTimeout.
func (s *Stream) GetDelimTimeout(pbuf *[]byte, delim byte, timeout time.Duration) (int, error) {
	return s.getDelim(pbuf, delim, timeout)
}

// GetLine is GetDelim with '\n' as the delimiter.
func (s *Stream) GetLine(pbuf *[]byte) (int, error) {
	return s.getDelim(pbuf, '\n', NoTimeout)
}
