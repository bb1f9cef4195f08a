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

package transport

import (
	"io"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

// Memory is a transport backed by a byte slice. Reads and writes share a
// single position, like they do for a file.
type Memory struct {
	data []byte
	pos  int64
}

// NewMemory creates a memory transport holding init. The slice is owned by
// the transport afterwards.
func NewMemory(init []byte) *Memory {
	return &Memory{data: init}
}

// InMemory is a convenience function which creates a Memory transport with
// the contents of the passed io.Reader.
func InMemory(r io.Reader) (*Memory, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewMemory(blob), nil
}

// Bytes returns the current contents. The slice is valid until the next
// write.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *Memory) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		if end > int64(cap(m.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, m.data)
			m.data = grown
		} else {
			old := len(m.data)
			m.data = m.data[:end]
			for i := old; i < len(m.data); i++ {
				m.data[i] = 0
			}
		}
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += m.pos
	case io.SeekEnd:
		offset += int64(len(m.data))
	default:
		return 0, stream.ErrInvalidArgument
	}
	if offset < 0 {
		return 0, stream.ErrInvalidArgument
	}
	m.pos = offset
	return offset, nil
}

func (m *Memory) Size() (int64, error) {
	return int64(len(m.data)), nil
}

func (m *Memory) Truncate(size int64) error {
	if size < 0 {
		return stream.ErrInvalidArgument
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

// Ioctl supports IoctlTransport and IoctlTimeout. Memory never blocks, so
// timeouts are accepted and ignored.
func (m *Memory) Ioctl(family stream.Family, op stream.Op, arg interface{}) error {
	switch family {
	case stream.IoctlTransport:
		tr, ok := arg.(*interface{})
		if !ok || op != stream.OpGet {
			return stream.ErrInvalidArgument
		}
		*tr = m
		return nil
	case stream.IoctlTimeout:
		d, ok := arg.(*time.Duration)
		if !ok {
			return stream.ErrInvalidArgument
		}
		if op == stream.OpGet {
			*d = stream.NoTimeout
		}
		return nil
	}
	return stream.ErrUnsupported
}

func (m *Memory) Wait(want stream.Ready, _ time.Duration) (stream.Ready, error) {
	return want & (stream.ReadyRead | stream.ReadyWrite), nil
}
