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
	"io"
)

// readUnbuffered reads directly from the backend.
//
// In full mode it loops until p is filled, end of file or an error; errors
// are not latched then since the caller gets the partial count. Otherwise a
// single backend call is made.
func (s *Stream) readUnbuffered(p []byte, full bool) (int, error) {
	if s.ops.read == nil {
		return 0, s.setErr(ErrUnsupported, false)
	}
	if s.flags&FlagRead == 0 {
		return 0, s.setErr(ErrPermission, true)
	}
	if s.flags&FlagErr != 0 {
		return 0, s.lastErr
	}
	if s.EOF() || len(p) == 0 {
		return 0, nil
	}

	if !full {
		n, err := s.backendRead(p)
		if err == nil {
			if n == 0 {
				s.setFlag(FlagEOF)
			}
			s.statIncr(StatIn, n)
		}
		return n, s.setErr(err, err != nil)
	}

	var (
		nread int
		err   error
	)
	for len(p) > 0 {
		var n int
		n, err = s.backendRead(p)
		if err != nil {
			break
		}
		if n == 0 {
			s.setFlag(FlagEOF)
			break
		}
		p = p[n:]
		nread += n
		s.statIncr(StatIn, n)
	}
	if len(p) > 0 && err != nil {
		err = s.setErr(err, false)
	}
	return nread, err
}

// Read reads up to len(p) bytes from the stream.
//
// For unbuffered streams a single backend read is made. Buffered streams
// copy from the buffer refilling it as needed until p is full or end of
// file. In line buffering mode Read returns right after copying a newline,
// so each call yields at most one line.
//
// At the end of file Read returns (0, io.EOF).
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.prepare(); err != nil {
		return 0, err
	}
	want := len(p)

	if s.buftype == BufferNone {
		n, err := s.readUnbuffered(p, false)
		s.offset += int64(n)
		if err == nil && n == 0 && want != 0 && s.EOF() {
			return 0, io.EOF
		}
		return n, err
	}

	nbytes := 0
	for len(p) > 0 {
		if s.pos == s.level {
			if err := s.flushBuffer(flushRdWr); err != nil {
				if nbytes != 0 {
					break
				}
				return 0, err
			}
			if err := s.fill(); err != nil {
				if nbytes != 0 {
					break
				}
				return 0, err
			}
			if s.level == 0 {
				break
			}
		}

		n := copy(p, s.buf[s.pos:s.level])
		s.pos += n
		nbytes += n
		p = p[n:]
		if s.buftype == BufferLine && s.buf[s.pos-1] == '\n' {
			break
		}
	}

	if nbytes == 0 && want != 0 && s.EOF() {
		return 0, io.EOF
	}
	return nbytes, nil
}

// ReadFull reads exactly len(p) bytes unless the end of file or an error is
// encountered first.
//
// The number of bytes read is always returned, even together with an
// error. io.EOF is returned if no bytes were read, io.ErrUnexpectedEOF if
// end of file was reached after reading some.
func (s *Stream) ReadFull(p []byte) (int, error) {
	var (
		n   int
		err error
	)
	if s.buftype == BufferNone {
		if err = s.prepare(); err != nil {
			return 0, err
		}
		n, err = s.readUnbuffered(p, true)
		s.offset += int64(n)
	} else {
		for n < len(p) {
			var m int
			m, err = s.Read(p[n:])
			n += m
			if err != nil || m == 0 {
				break
			}
		}
		if err == io.EOF {
			err = nil
		}
	}

	if err != nil || n == len(p) {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, io.ErrUnexpectedEOF
}

// ReadByte implements io.ByteReader.
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// SkipInputBytes skips count bytes of input by reading them. It returns the
// resulting stream position.
//
// It exists to implement seeking forward in streams that can't seek
// otherwise (e.g. filters) and is very slow on unbuffered streams.
// ErrSeekPipe is returned if the input ends first.
func (s *Stream) SkipInputBytes(count int64) (int64, error) {
	// Flushing seeks the backend if FlagSeek is set, which would recurse
	// into the caller if it is a backend seek implementation.
	seekFlag := s.flags & FlagSeek
	s.flags &^= FlagSeek
	defer func() { s.flags |= seekFlag }()

	if err := s.prepare(); err != nil {
		return 0, err
	}
	if s.flags&FlagRead == 0 {
		return 0, s.setErr(ErrPermission, true)
	}

	var err error
	if count > 0 {
		if s.buftype == BufferNone {
			var c [1]byte
			for pos := int64(0); pos < count; pos++ {
				var n int
				n, err = s.Read(c[:])
				if n == 0 {
					err = ErrSeekPipe
				}
				if err != nil {
					break
				}
			}
		} else {
			for pos := int64(0); ; {
				if pos != 0 || s.level == 0 {
					if err = s.flushBuffer(flushRdWr); err != nil {
						return 0, err
					}
					if err = s.fill(); err != nil {
						break
					}
					if s.level == 0 {
						err = ErrSeekPipe
						break
					}
				}
				if pos <= count && count < pos+int64(s.level) {
					s.pos = int(count - pos)
					break
				}
				pos += int64(s.level)
			}
		}
	}

	return s.offset + int64(s.pos), err
}
