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
	"errors"
	"syscall"

	"github.com/foxcpp/mailstream/framework/exterrors"
)

var (
	ErrNotOpen         = errors.New("stream: not open")
	ErrAlreadyOpen     = errors.New("stream: already open")
	ErrUnsupported     = errors.New("stream: operation not supported")
	ErrPermission      = errors.New("stream: operation not permitted by stream flags")
	ErrInvalidArgument = errors.New("stream: invalid argument")
	ErrIO              = errors.New("stream: I/O error")
	ErrTimeout         = errors.New("stream: timed out")
	ErrSetTimeout      = errors.New("stream: failed to set timeout")
	ErrBufferSpace     = errors.New("stream: buffer too small")
	ErrNoMemory        = errors.New("stream: cannot grow buffer")
	ErrSeekPipe        = errors.New("stream: illegal seek")

	// Transient conditions. These are never latched on the stream, the
	// caller is expected to retry the operation.

	ErrWouldBlock  = exterrors.WithTemporary(errors.New("stream: operation would block"), true)
	ErrInterrupted = exterrors.WithTemporary(errors.New("stream: interrupted"), true)
	ErrInProgress  = exterrors.WithTemporary(errors.New("stream: operation in progress"), true)
)

// IsTransient reports whether err describes a condition that should be
// retried rather than treated as a stream failure.
//
// Besides the transient errors defined by this package, errno values with
// the same meaning, ErrUnsupported and any error that reports itself as
// temporary are considered transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupported) || errors.Is(err, syscall.ENOSYS) {
		return true
	}
	return exterrors.IsTemporary(err)
}

func isSeekPipe(err error) bool {
	return errors.Is(err, ErrSeekPipe) || errors.Is(err, syscall.ESPIPE)
}

// setErr records err as the last error. If perm is true and err is not
// transient, the error flag is latched and all further I/O fails with err
// until ClearErr is called.
func (s *Stream) setErr(err error, perm bool) error {
	s.lastErr = err
	if err != nil && perm && !IsTransient(err) {
		if s.flags&FlagErr == 0 {
			s.Log.DebugError("error latched", err, "flags", s.flags)
		}
		s.setFlag(FlagErr)
	}
	return err
}
