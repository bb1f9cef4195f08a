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

// writeUnbuffered writes directly to the backend.
//
// In full mode it loops until all of p is written; a backend that makes no
// progress fails the write with ErrIO. Output is marked as pending for the
// backend Flush hook either way.
func (s *Stream) writeUnbuffered(p []byte, full bool) (int, error) {
	if s.ops.write == nil {
		return 0, s.setErr(ErrUnsupported, false)
	}
	if s.flags&(FlagWrite|FlagAppend) == 0 {
		return 0, s.setErr(ErrPermission, true)
	}
	if s.flags&FlagErr != 0 {
		return 0, s.lastErr
	}
	if len(p) == 0 {
		return 0, nil
	}

	var (
		nwritten int
		err      error
	)
	if full {
		for len(p) > 0 {
			var n int
			n, err = s.backendWrite(p)
			p = p[n:]
			nwritten += n
			s.statIncr(StatOut, n)
			if err != nil {
				break
			}
			if n == 0 {
				err = ErrIO
				break
			}
		}
	} else {
		nwritten, err = s.backendWrite(p)
		s.statIncr(StatOut, nwritten)
	}

	s.setFlag(FlagWritten)
	return nwritten, s.setErr(err, err != nil)
}

func (s *Stream) write(p []byte, full bool) (int, error) {
	if err := s.prepare(); err != nil {
		return 0, err
	}

	if s.buftype == BufferNone {
		n, err := s.writeUnbuffered(p, full)
		s.offset += int64(n)
		return n, err
	}

	// Refuse early instead of failing on the next flush with the data
	// already accepted.
	if s.ops.write == nil {
		return 0, s.setErr(ErrUnsupported, false)
	}
	if s.flags&(FlagWrite|FlagAppend) == 0 {
		return 0, s.setErr(ErrPermission, true)
	}

	nbytes := 0
	for {
		if s.bufferFull() {
			if err := s.flushBuffer(flushRdWr); err != nil {
				return nbytes, err
			}
		}
		if len(p) == 0 {
			break
		}

		n := copy(s.buf[s.pos:s.bufsize], p)
		s.pos += n
		if s.pos > s.level {
			s.level = s.pos
		}
		nbytes += n
		p = p[n:]
		s.setFlag(FlagDirty)
	}
	return nbytes, nil
}

// Write writes all of p to the stream, implementing io.Writer.
//
// Buffered streams pass data to the backend when the buffer fills up (or,
// in line mode, once it holds a newline).
func (s *Stream) Write(p []byte) (int, error) {
	return s.write(p, true)
}

// WriteSome is like Write but makes only one backend call on unbuffered
// streams, so it may write less than len(p) without an error.
func (s *Stream) WriteSome(p []byte) (int, error) {
	return s.write(p, false)
}

func (s *Stream) WriteString(str string) (int, error) {
	return s.write([]byte(str), true)
}

var crlf = []byte("\r\n")

// WriteLine writes p followed by CRLF.
func (s *Stream) WriteLine(p []byte) error {
	if _, err := s.write(p, true); err != nil {
		return err
	}
	_, err := s.write(crlf, true)
	return err
}
