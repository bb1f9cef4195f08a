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

// Seek sets the logical position of the stream, implementing io.Seeker.
//
// A target that falls into the data currently buffered only moves the
// buffer cursor. Anything else flushes pending output and repositions the
// backend (unless it is already there). End of file is cleared on success.
//
// ErrSeekPipe reported by the backend is returned as is and does not put
// the stream into the error state.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.prepare(); err != nil {
		return 0, err
	}
	if s.ops.seek == nil {
		return 0, s.setErr(ErrUnsupported, false)
	}
	if s.flags&FlagSeek == 0 {
		return 0, s.setErr(ErrPermission, true)
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		if offset == 0 {
			return s.offset + int64(s.pos), nil
		}
		offset += s.offset + int64(s.pos)
	case io.SeekEnd:
		size, err := s.Size()
		if err != nil {
			return 0, err
		}
		offset += size
	default:
		return 0, s.setErr(ErrInvalidArgument, true)
	}
	if offset < 0 {
		return 0, ErrInvalidArgument
	}

	var inWindow bool
	if s.buftype == BufferNone {
		inWindow = offset == s.offset
	} else {
		inWindow = s.offset <= offset && offset < s.offset+int64(s.level)
	}

	if !inWindow {
		if err := s.flushBuffer(flushRdWr); err != nil {
			return 0, err
		}
		if s.offset != offset {
			off, err := s.backendSeek(offset)
			if err != nil {
				if isSeekPipe(err) {
					return 0, err
				}
				return 0, s.setErr(err, true)
			}
			s.offset = off
		}
	} else if s.buftype != BufferNone {
		s.pos = int(offset - s.offset)
	}

	s.clrFlag(FlagEOF)
	return s.offset + int64(s.pos), nil
}

// Size returns the size of the stream as reported by the backend. Data
// written to the buffer but not yet flushed is taken into account.
func (s *Stream) Size() (int64, error) {
	if err := s.prepare(); err != nil {
		return 0, err
	}
	if s.ops.size == nil {
		return 0, s.setErr(ErrUnsupported, false)
	}

	size, err := s.ops.size.Size()
	if err != nil {
		return 0, s.setErr(err, true)
	}
	if s.buftype != BufferNone {
		if n := s.offset + int64(s.level); n > size {
			size = n
		}
	}
	s.setErr(nil, false)
	return size, nil
}

// Truncate changes the size of the stream. Pending output is flushed
// first and buffered data past the new end is discarded.
func (s *Stream) Truncate(size int64) error {
	if err := s.prepare(); err != nil {
		return err
	}
	if s.ops.truncate == nil {
		return ErrUnsupported
	}
	if size < 0 {
		return ErrInvalidArgument
	}
	if err := s.flushBuffer(flushRdWr); err != nil {
		return err
	}

	switch {
	case s.offset > size:
		s.offset = size
		s.level, s.pos = 0, 0
	case s.offset+int64(s.pos) > size:
		s.pos = int(size - s.offset)
		s.level = s.pos
	case s.offset+int64(s.level) > size:
		s.level = int(size - s.offset)
		if s.pos > s.level {
			s.pos = s.level
		}
	}
	return s.ops.truncate.Truncate(size)
}
