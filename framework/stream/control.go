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
	"time"
)

// Flush writes out buffered output and lets the backend flush its own
// state if anything was written since the last Flush.
func (s *Stream) Flush() error {
	if err := s.prepare(); err != nil {
		return err
	}
	if err := s.flushBuffer(flushRdWr); err != nil {
		return err
	}
	if s.flags&FlagWritten != 0 {
		if s.ops.flush != nil {
			if err := s.ops.flush.Flush(); err != nil {
				return err
			}
		}
		s.clrFlag(FlagWritten)
	}
	return nil
}

// Shutdown flushes the stream and shuts down one direction of the backend
// transport, if it supports that.
func (s *Stream) Shutdown(how ShutdownHow) error {
	if err := s.prepare(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if s.ops.shutdown != nil {
		return s.ops.shutdown.Shutdown(how)
	}
	return nil
}

// Ioctl passes a control request to the backend after pushing pending
// output to it. ErrUnsupported is returned if the backend has no control
// entry point; backends return it for families they do not know.
//
// The argument type depends on the family:
//
//	IoctlTransport   *interface{}     (OpGet only)
//	IoctlTimeout     *time.Duration
//	IoctlSeekLimits  *[2]int64
func (s *Stream) Ioctl(family Family, op Op, arg interface{}) error {
	s.bootstrap()
	if err := s.flushBuffer(flushWrite); err != nil {
		return err
	}
	if s.ops.ctl == nil {
		return ErrUnsupported
	}
	return s.ops.ctl.Ioctl(family, op, arg)
}

// Wait blocks until the stream is ready for one of the operations in want
// or timeout expires, and reports which ones are ready. NoTimeout waits
// forever.
//
// Buffered input satisfies ReadyRead without asking the backend.
func (s *Stream) Wait(want Ready, timeout time.Duration) (Ready, error) {
	s.bootstrap()

	var got Ready
	if want&ReadyRead != 0 && s.buftype != BufferNone && s.pos < s.level {
		got = ReadyRead
		want &^= ReadyRead
	}
	if got != 0 && want == 0 {
		return got, nil
	}

	if s.ops.wait == nil {
		return 0, ErrUnsupported
	}
	ready, err := s.ops.wait.Wait(want, timeout)
	if err != nil {
		return 0, err
	}
	return ready | got, nil
}
