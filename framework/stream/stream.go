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

// Package stream implements the buffered stream engine all protocol readers
// and writers are built on.
//
// A Stream wraps an arbitrary transport (see Backend) and provides uniform
// buffering (none, full-block or line), offset tracking, delimiter reads with
// deadlines, statistics, event notifications and a reference-counted
// lifecycle.
//
// Streams are not safe for concurrent use. Code that needs to share a
// transport between goroutines should use separate streams and rely on the
// transport's own guarantees.
package stream

import (
	"io"

	"github.com/foxcpp/mailstream/framework/log"
)

// Stream is the buffered stream handle.
//
// The buffer window buf[0:level] mirrors the backend starting at offset,
// pos is the read/write cursor inside it, so the logical position of the
// stream is offset+pos.
type Stream struct {
	Log log.Logger

	be  Backend
	ops ops

	flags Flag

	buftype BufferType
	buf     []byte
	bufsize int
	level   int
	pos     int
	offset  int64

	eventFn   EventFunc
	eventMask EventMask

	lastErr error

	statMask StatMask
	stats    *StatBuffer

	refs      int
	destroyed bool
}

// New creates a stream on top of be with the specified capability flags.
//
// Internal state flags are ignored except for FlagOpen, which creates an
// already open stream. The returned stream holds one reference and is
// unbuffered.
func New(be Backend, flags Flag) *Stream {
	s := &Stream{
		Log:   log.Logger{Name: "stream"},
		be:    be,
		ops:   resolveOps(be),
		flags: flags &^ (internalMask &^ FlagOpen),
	}
	s.Ref()
	return s
}

// Backend returns the backend passed to New.
func (s *Stream) Backend() Backend {
	return s.be
}

func (s *Stream) init() {
	if s.stats != nil {
		s.stats.Reset()
	}
	s.flags &^= internalMask
	s.setFlag(FlagOpen)
	s.offset = 0
	s.level, s.pos = 0, 0
	s.lastErr = nil
}

// prepare is called on entry of every operation that requires an open
// stream. Streams without an Open hook are opened implicitly.
func (s *Stream) prepare() error {
	s.bootstrap()
	if s.flags&FlagOpen == 0 {
		if s.ops.open != nil {
			return ErrNotOpen
		}
		s.init()
	}
	return nil
}

// Open opens the stream.
//
// If the stream has both FlagAppend and FlagSeek set, it is positioned at
// the end of the backend.
func (s *Stream) Open() error {
	if s.flags&FlagOpen != 0 {
		return ErrAlreadyOpen
	}
	s.bootstrap()
	if s.ops.open != nil {
		if err := s.ops.open.Open(); err != nil {
			return s.setErr(err, true)
		}
	}
	s.init()
	s.Log.DebugMsg("opened", "flags", s.flags)

	if s.flags&(FlagAppend|FlagSeek) == FlagAppend|FlagSeek {
		if _, err := s.Seek(0, io.SeekEnd); err != nil {
			return s.setErr(err, true)
		}
	}
	return nil
}

// Close flushes the stream and closes the backend, unless other references
// to the stream exist. In that case the stream stays open and only the
// flush is done.
//
// Close never changes the reference count, use Unref or Destroy to drop a
// reference.
func (s *Stream) Close() error {
	if s.flags&FlagOpen == 0 {
		return ErrNotOpen
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if s.refs > 1 {
		return nil
	}

	s.event(EventClose, 0, nil)
	if s.ops.close != nil {
		if err := s.ops.close.Close(); err != nil {
			return err
		}
	}
	s.clrFlag(FlagOpen)
	s.Log.DebugMsg("closed")
	return nil
}

// Ref adds a reference to the stream.
func (s *Stream) Ref() {
	s.refs++
}

// Unref drops a reference to the stream. See Destroy.
func (s *Stream) Unref() {
	s.Destroy()
}

// RefCount returns the number of references held on the stream.
func (s *Stream) RefCount() int {
	return s.refs
}

// Destroy drops a reference to the stream. When the last reference is
// dropped the stream is torn down: it is closed if still open (which
// flushes it), the buffer is released, then the backend Done and Destroy
// hooks are called in that order. The stream must not be used afterwards.
func (s *Stream) Destroy() {
	if s.destroyed {
		return
	}
	if s.refs > 0 {
		s.refs--
	}
	if s.refs > 0 {
		return
	}
	s.destroyed = true

	if s.flags&FlagOpen != 0 {
		if err := s.Close(); err != nil {
			s.Log.DebugError("close on destroy failed", err)
		}
	}
	if s.buftype != BufferNone {
		s.buf = nil
		s.buftype = BufferNone
	}
	if s.ops.done != nil {
		s.ops.done.Done()
	}
	if s.ops.destroy != nil {
		s.ops.destroy.Destroy()
	}
}

func (s *Stream) IsOpen() bool {
	return s.flags&FlagOpen != 0
}

// EOF reports whether the end of file was reached and all buffered data
// was consumed.
func (s *Stream) EOF() bool {
	return s.flags&FlagEOF != 0 && s.pos == s.level
}

// Err reports whether a permanent error is latched on the stream.
func (s *Stream) Err() bool {
	return s.flags&FlagErr != 0
}

// LastError returns the error recorded by the last operation that touched
// the error state.
func (s *Stream) LastError() error {
	return s.lastErr
}

// ClearErr resets the last error and unlatches the error flag.
func (s *Stream) ClearErr() {
	s.lastErr = nil
	s.clrFlag(FlagErr)
}

// StrError describes err, using backend-specific descriptions if the
// backend provides them.
func (s *Stream) StrError(err error) string {
	if err == nil {
		return ""
	}
	if s.ops.errStr != nil {
		return s.ops.errStr.ErrorString(err)
	}
	return err.Error()
}

// Flags returns the capability flags of the stream.
func (s *Stream) Flags() Flag {
	return s.flags &^ internalMask
}

// SetFlags sets capability flags. Internal state flags are ignored.
func (s *Stream) SetFlags(f Flag) {
	s.flags |= f &^ internalMask
}

// ClearFlags clears capability flags. Internal state flags are ignored.
func (s *Stream) ClearFlags(f Flag) {
	s.flags &^= f &^ internalMask
}

// Offset returns the logical position of the stream without consulting
// the backend.
func (s *Stream) Offset() int64 {
	return s.offset + int64(s.pos)
}
