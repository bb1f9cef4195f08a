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
	"time"
)

// Backend is the transport a Stream delegates to.
//
// Any value can be a backend. Its capabilities are discovered by checking
// which of the optional interfaces below (plus io.Reader, io.Writer,
// io.Seeker and io.Closer) it implements. Operations the backend does not
// implement fail with ErrUnsupported.
//
// A read returning (0, nil) or (0, io.EOF) means end of file. An error
// returned together with data is dropped, the backend is expected to report
// it again on the next call.
//
// Seeks are always issued with io.SeekStart.
type Backend interface{}

// Sizer reports the size of the underlying object.
type Sizer interface {
	Size() (int64, error)
}

// Truncater changes the size of the underlying object.
type Truncater interface {
	Truncate(size int64) error
}

type ShutdownHow int

const (
	ShutdownRead ShutdownHow = iota
	ShutdownWrite
)

// Shutdowner shuts down one direction of a duplex transport.
type Shutdowner interface {
	Shutdown(how ShutdownHow) error
}

// Ready is a set of readiness conditions used by Wait.
type Ready int

const (
	ReadyRead Ready = 1 << iota
	ReadyWrite
	ReadyExcept
)

// NoTimeout is the timeout value meaning "block until ready".
const NoTimeout time.Duration = -1

// Waiter waits until the transport becomes ready for the requested
// operations or the timeout expires. It returns the subset of want that is
// ready, possibly empty on timeout.
type Waiter interface {
	Wait(want Ready, timeout time.Duration) (Ready, error)
}

// Family selects a group of control operations.
type Family int

const (
	// IoctlTransport gives access to the raw transport. OpGet takes
	// *interface{}.
	IoctlTransport Family = iota
	// IoctlTimeout controls the timeout of blocking transport operations.
	// OpGet and OpSet take *time.Duration, NoTimeout meaning none.
	IoctlTimeout
	// IoctlSeekLimits controls the byte range visible through a stream
	// reference. OpGet and OpSet take *[2]int64.
	IoctlSeekLimits
)

type Op int

const (
	OpGet Op = iota
	OpSet
)

// Controller implements transport specific control operations.
type Controller interface {
	Ioctl(family Family, op Op, arg interface{}) error
}

// Flusher commits output buffered by the transport itself.
type Flusher interface {
	Flush() error
}

// ErrorStringer produces transport-specific descriptions for errors.
type ErrorStringer interface {
	ErrorString(err error) string
}

// BufferHook is consulted before a new buffering policy is applied and can
// veto it by returning an error.
type BufferHook interface {
	SetBufferHook(t BufferType, size int) error
}

// Opener is called by Stream.Open. Streams whose backend implements Opener
// must be opened explicitly.
type Opener interface {
	Open() error
}

// Finalizer is called once the last reference to the stream is dropped,
// after the stream was closed and its buffer released.
type Finalizer interface {
	Done()
}

// Destroyer is called at the very end of stream teardown, after Done.
type Destroyer interface {
	Destroy()
}

type ops struct {
	read     io.Reader
	write    io.Writer
	seek     io.Seeker
	size     Sizer
	truncate Truncater
	close    io.Closer
	shutdown Shutdowner
	wait     Waiter
	ctl      Controller
	flush    Flusher
	errStr   ErrorStringer
	setbuf   BufferHook
	open     Opener
	done     Finalizer
	destroy  Destroyer
}

func resolveOps(be Backend) ops {
	var o ops
	o.read, _ = be.(io.Reader)
	o.write, _ = be.(io.Writer)
	o.seek, _ = be.(io.Seeker)
	o.size, _ = be.(Sizer)
	o.truncate, _ = be.(Truncater)
	o.close, _ = be.(io.Closer)
	o.shutdown, _ = be.(Shutdowner)
	o.wait, _ = be.(Waiter)
	o.ctl, _ = be.(Controller)
	o.flush, _ = be.(Flusher)
	o.errStr, _ = be.(ErrorStringer)
	o.setbuf, _ = be.(BufferHook)
	o.open, _ = be.(Opener)
	o.done, _ = be.(Finalizer)
	o.destroy, _ = be.(Destroyer)
	return o
}

func (s *Stream) backendRead(p []byte) (int, error) {
	s.statIncr(StatReads, 1)
	n, err := s.ops.read.Read(p)
	if n < 0 || n > len(p) {
		return 0, ErrIO
	}
	if n > 0 {
		err = nil
	}
	if err == io.EOF {
		err = nil
	}
	if err == nil {
		s.statData(StatInLn, StatIn8Bit, p[:n])
	}
	return n, err
}

func (s *Stream) backendWrite(p []byte) (int, error) {
	s.statIncr(StatWrites, 1)
	n, err := s.ops.write.Write(p)
	if n < 0 || n > len(p) {
		return 0, ErrIO
	}
	s.statData(StatOutLn, StatOut8Bit, p[:n])
	return n, err
}

func (s *Stream) backendSeek(off int64) (int64, error) {
	s.statIncr(StatSeeks, 1)
	return s.ops.seek.Seek(off, io.SeekStart)
}
