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

package testutils

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

// ScriptStep is a single canned backend read result. Data is handed out
// over as many Read calls as needed; a step with only Err set fails one
// Read with that error.
type ScriptStep struct {
	Data []byte
	Err  error
}

// ScriptBackend is a stream backend that records every call made to it.
//
// Reads consume Script first and then Data starting at Pos, writes go into
// Data at Pos the way a regular file would take them.
type ScriptBackend struct {
	Calls []string

	Script []ScriptStep
	Data   []byte
	Pos    int64

	// WriteLimit caps the number of bytes accepted by one Write call.
	WriteLimit int
	WriteErr   error
	SeekErr    error
	FlushErr   error
	CloseErr   error
	BufferVeto error

	// Timeout is the value managed through IoctlTimeout.
	Timeout time.Duration
	// NoCtl makes Ioctl reject every request.
	NoCtl bool

	Ready   stream.Ready
	WaitErr error
}

func (b *ScriptBackend) record(format string, args ...interface{}) {
	b.Calls = append(b.Calls, fmt.Sprintf(format, args...))
}

// Count returns the number of recorded calls starting with prefix.
func (b *ScriptBackend) Count(prefix string) int {
	n := 0
	for _, c := range b.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (b *ScriptBackend) Read(p []byte) (int, error) {
	b.record("read %d", len(p))

	if len(b.Script) != 0 {
		step := &b.Script[0]
		if len(step.Data) == 0 {
			b.Script = b.Script[1:]
			return 0, step.Err
		}
		n := copy(p, step.Data)
		step.Data = step.Data[n:]
		if len(step.Data) == 0 && step.Err == nil {
			b.Script = b.Script[1:]
		}
		return n, nil
	}

	if b.Pos >= int64(len(b.Data)) {
		return 0, io.EOF
	}
	n := copy(p, b.Data[b.Pos:])
	b.Pos += int64(n)
	return n, nil
}

func (b *ScriptBackend) Write(p []byte) (int, error) {
	b.record("write %q", p)
	if b.WriteErr != nil {
		return 0, b.WriteErr
	}

	if b.WriteLimit > 0 && len(p) > b.WriteLimit {
		p = p[:b.WriteLimit]
	}
	if end := b.Pos + int64(len(p)); end > int64(len(b.Data)) {
		grown := make([]byte, end)
		copy(grown, b.Data)
		b.Data = grown
	}
	n := copy(b.Data[b.Pos:], p)
	b.Pos += int64(n)
	return n, nil
}

func (b *ScriptBackend) Seek(offset int64, whence int) (int64, error) {
	b.record("seek %d", offset)
	if b.SeekErr != nil {
		return 0, b.SeekErr
	}
	if whence != io.SeekStart {
		return 0, stream.ErrInvalidArgument
	}
	b.Pos = offset
	return offset, nil
}

func (b *ScriptBackend) Size() (int64, error) {
	b.record("size")
	return int64(len(b.Data)), nil
}

func (b *ScriptBackend) Truncate(size int64) error {
	b.record("truncate %d", size)
	if size < int64(len(b.Data)) {
		b.Data = b.Data[:size]
	} else {
		b.Data = append(b.Data, make([]byte, size-int64(len(b.Data)))...)
	}
	return nil
}

func (b *ScriptBackend) Close() error {
	b.record("close")
	return b.CloseErr
}

func (b *ScriptBackend) Shutdown(how stream.ShutdownHow) error {
	b.record("shutdown %d", how)
	return nil
}

func (b *ScriptBackend) Wait(want stream.Ready, timeout time.Duration) (stream.Ready, error) {
	b.record("wait %d", want)
	if b.WaitErr != nil {
		return 0, b.WaitErr
	}
	return b.Ready & want, nil
}

func (b *ScriptBackend) Ioctl(family stream.Family, op stream.Op, arg interface{}) error {
	if b.NoCtl {
		b.record("ioctl rejected")
		return stream.ErrUnsupported
	}

	switch family {
	case stream.IoctlTransport:
		if op != stream.OpGet {
			return stream.ErrInvalidArgument
		}
		b.record("ioctl transport")
		*arg.(*interface{}) = b
		return nil
	case stream.IoctlTimeout:
		d := arg.(*time.Duration)
		if op == stream.OpGet {
			b.record("ioctl timeout get")
			*d = b.Timeout
		} else {
			b.record("ioctl timeout set")
			b.Timeout = *d
		}
		return nil
	}
	return stream.ErrUnsupported
}

func (b *ScriptBackend) Flush() error {
	b.record("flush")
	return b.FlushErr
}

func (b *ScriptBackend) SetBufferHook(t stream.BufferType, size int) error {
	b.record("setbuf %v %d", t, size)
	return b.BufferVeto
}

func (b *ScriptBackend) Done() {
	b.record("done")
}

func (b *ScriptBackend) Destroy() {
	b.record("destroy")
}

// OpenableBackend is a ScriptBackend with an Open hook, which makes the
// stream refuse I/O until it is explicitly opened.
type OpenableBackend struct {
	*ScriptBackend
	OpenErr error
}

func (b OpenableBackend) Open() error {
	b.record("open")
	return b.OpenErr
}

// ReaderOnly hides everything but Read of the wrapped reader.
type ReaderOnly struct {
	R io.Reader
}

func (r ReaderOnly) Read(p []byte) (int, error) {
	return r.R.Read(p)
}
