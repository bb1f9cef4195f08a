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

// Package streamref implements streams that refer to another stream.
//
// A reference keeps its own position in the shared transport stream and
// may be limited to a byte range of it, which is how a message body is
// handed out as a stream of its own while the mailbox stream stays shared.
package streamref

import (
	"io"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

// Ref is the backend of a reference stream.
type Ref struct {
	tr *stream.Stream

	// offset is the transport position of the next I/O.
	offset int64
	start  int64
	// end is the first transport offset past the range, negative if the
	// reference is not bounded.
	end int64
}

// New creates a stream referring to the whole transport stream.
func New(tr *stream.Stream) *stream.Stream {
	return newRef(tr, 0, -1)
}

// NewAbridged creates a stream referring to the [start, end) range of the
// transport stream. Position 0 of the new stream is start.
func NewAbridged(tr *stream.Stream, start, end int64) (*stream.Stream, error) {
	if start < 0 || end < start {
		return nil, stream.ErrInvalidArgument
	}
	return newRef(tr, start, end), nil
}

func newRef(tr *stream.Stream, start, end int64) *stream.Stream {
	tr.Ref()
	r := &Ref{tr: tr, offset: start, start: start, end: end}
	s := stream.New(r, tr.Flags()|stream.FlagSeek|stream.FlagOpen)
	s.Log = tr.Log.Sublogger("ref")
	return s
}

// Transport returns the referenced stream.
func (r *Ref) Transport() *stream.Stream {
	return r.tr
}

// position moves the transport to the reference offset. Transports that
// can't seek are used at whatever position they are.
func (r *Ref) position() error {
	if r.tr.Flags()&stream.FlagSeek == 0 {
		return nil
	}
	_, err := r.tr.Seek(r.offset, io.SeekStart)
	return err
}

func (r *Ref) remaining(p []byte) []byte {
	if r.end < 0 {
		return p
	}
	if rem := r.end - r.offset; int64(len(p)) > rem {
		return p[:rem]
	}
	return p
}

func (r *Ref) Read(p []byte) (int, error) {
	p = r.remaining(p)
	if len(p) == 0 {
		return 0, io.EOF
	}
	if err := r.position(); err != nil {
		return 0, err
	}
	n, err := r.tr.Read(p)
	r.offset += int64(n)
	return n, err
}

func (r *Ref) Write(p []byte) (int, error) {
	p = r.remaining(p)
	if len(p) == 0 {
		return 0, stream.ErrBufferSpace
	}
	if err := r.position(); err != nil {
		return 0, err
	}
	n, err := r.tr.WriteSome(p)
	r.offset += int64(n)
	return n, err
}

func (r *Ref) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		offset += r.start
	case io.SeekCurrent:
		offset += r.offset
	case io.SeekEnd:
		size, err := r.Size()
		if err != nil {
			return 0, err
		}
		offset += r.start + size
	default:
		return 0, stream.ErrInvalidArgument
	}

	if offset < r.start {
		return 0, stream.ErrInvalidArgument
	}
	if r.end >= 0 && offset > r.end {
		return 0, stream.ErrSeekPipe
	}
	if r.tr.Flags()&stream.FlagSeek == 0 && offset != r.offset {
		return 0, stream.ErrSeekPipe
	}
	r.offset = offset
	return offset - r.start, nil
}

func (r *Ref) Size() (int64, error) {
	if r.end >= 0 {
		return r.end - r.start, nil
	}
	size, err := r.tr.Size()
	if err != nil {
		return 0, err
	}
	if size < r.start {
		return 0, nil
	}
	return size - r.start, nil
}

func (r *Ref) Truncate(size int64) error {
	if err := r.tr.Truncate(r.start + size); err != nil {
		return err
	}
	if r.end >= 0 && r.start+size < r.end {
		r.end = r.start + size
	}
	return nil
}

func (r *Ref) Flush() error {
	return r.tr.Flush()
}

// Close closes the transport. The transport stream is shared, so this only
// flushes it unless the reference is its last user.
func (r *Ref) Close() error {
	if !r.tr.IsOpen() {
		return nil
	}
	return r.tr.Close()
}

func (r *Ref) Shutdown(how stream.ShutdownHow) error {
	return r.tr.Shutdown(how)
}

func (r *Ref) Wait(want stream.Ready, timeout time.Duration) (stream.Ready, error) {
	return r.tr.Wait(want, timeout)
}

// Ioctl handles IoctlSeekLimits and IoctlTransport itself and passes
// everything else to the transport.
//
// Setting seek limits moves the reference to the new start. A negative end
// removes the upper bound.
func (r *Ref) Ioctl(family stream.Family, op stream.Op, arg interface{}) error {
	switch family {
	case stream.IoctlSeekLimits:
		lim, ok := arg.(*[2]int64)
		if !ok {
			return stream.ErrInvalidArgument
		}
		if op == stream.OpGet {
			*lim = [2]int64{r.start, r.end}
			return nil
		}
		if lim[0] < 0 || (lim[1] >= 0 && lim[1] < lim[0]) {
			return stream.ErrInvalidArgument
		}
		r.start, r.end = lim[0], lim[1]
		if r.end < 0 {
			r.end = -1
		}
		r.offset = r.start
		return nil
	case stream.IoctlTransport:
		tr, ok := arg.(*interface{})
		if !ok || op != stream.OpGet {
			return stream.ErrInvalidArgument
		}
		*tr = r.tr
		return nil
	}
	return r.tr.Ioctl(family, op, arg)
}

func (r *Ref) ErrorString(err error) string {
	return r.tr.StrError(err)
}

// Done drops the reference to the transport.
func (r *Ref) Done() {
	r.tr.Unref()
}
