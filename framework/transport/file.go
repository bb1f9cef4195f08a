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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

// File is a transport backed by a file system object. The file is opened
// by the stream Open call using Flag and Perm.
type File struct {
	Path string
	Flag int
	Perm os.FileMode

	f       *os.File
	timeout time.Duration
}

func NewFile(path string, flag int, perm os.FileMode) *File {
	return &File{Path: path, Flag: flag, Perm: perm, timeout: stream.NoTimeout}
}

// OSFile wraps an already open file, such as os.Stdin. The stream using it
// should be created with stream.FlagOpen.
func OSFile(f *os.File) *File {
	return &File{Path: f.Name(), f: f, timeout: stream.NoTimeout}
}

// CreateTemp creates a new empty file with a random name in dir. The
// returned File is not open yet.
func CreateTemp(dir string) (*File, error) {
	nameBytes := make([]byte, 32)
	if _, err := rand.Read(nameBytes); err != nil {
		return nil, fmt.Errorf("transport: failed to generate randomness for file name: %v", err)
	}
	path := filepath.Join(dir, hex.EncodeToString(nameBytes))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to create file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("transport: failed to close file: %w", err)
	}
	return NewFile(path, os.O_RDWR, 0o600), nil
}

func (f *File) wrap(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	return timeoutErr(err, map[string]interface{}{"path": f.Path})
}

func (f *File) Open() error {
	if f.f != nil {
		return stream.ErrAlreadyOpen
	}
	fd, err := os.OpenFile(f.Path, f.Flag, f.Perm)
	if err != nil {
		return f.wrap(err)
	}
	f.f = fd
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.f.Read(p)
	return n, f.wrap(err)
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	return n, f.wrap(err)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	off, err := f.f.Seek(offset, whence)
	return off, f.wrap(err)
}

func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, f.wrap(err)
	}
	return info.Size(), nil
}

func (f *File) Truncate(size int64) error {
	return f.wrap(f.f.Truncate(size))
}

// Flush commits written data to stable storage. Files that can't be
// synced (pipes, terminals) are silently skipped.
func (f *File) Flush() error {
	err := f.f.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) {
		return nil
	}
	return f.wrap(err)
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return f.wrap(err)
}

func (f *File) Wait(want stream.Ready, timeout time.Duration) (stream.Ready, error) {
	return waitFd(f.f, want, timeout)
}

func (f *File) Ioctl(family stream.Family, op stream.Op, arg interface{}) error {
	switch family {
	case stream.IoctlTransport:
		tr, ok := arg.(*interface{})
		if !ok || op != stream.OpGet {
			return stream.ErrInvalidArgument
		}
		*tr = f.f
		return nil
	case stream.IoctlTimeout:
		d, ok := arg.(*time.Duration)
		if !ok {
			return stream.ErrInvalidArgument
		}
		if op == stream.OpGet {
			*d = f.timeout
			return nil
		}
		var deadline time.Time
		if *d >= 0 {
			deadline = time.Now().Add(*d)
		}
		// Regular files never block.
		if err := f.f.SetReadDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			return f.wrap(err)
		}
		f.timeout = *d
		return nil
	}
	return stream.ErrUnsupported
}

func (f *File) ErrorString(err error) string {
	return fmt.Sprintf("%s: %v", f.Path, err)
}

// Remove deletes the file from the file system.
func (f *File) Remove() error {
	return os.Remove(f.Path)
}
