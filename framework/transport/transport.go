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

// Package transport provides stream backends for memory buffers, files and
// network connections.
//
// Values returned by this package are meant to be wrapped with stream.New
// and used only through the resulting stream.
package transport

import (
	"errors"
	"io"
	"os"

	"github.com/foxcpp/mailstream/framework/exterrors"
	"github.com/foxcpp/mailstream/framework/stream"
)

// timeoutErr translates an expired I/O deadline into the stream timeout
// error. The result is temporary so the stream stays usable afterwards.
func timeoutErr(err error, fields map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		err = exterrors.WithTemporary(stream.ErrTimeout, true)
	}
	return exterrors.WithFields(err, fields)
}

// FileFlags returns the stream flags matching os.OpenFile flags.
func FileFlags(flag int) stream.Flag {
	var f stream.Flag
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		f = stream.FlagRead
	case os.O_WRONLY:
		f = stream.FlagWrite
	case os.O_RDWR:
		f = stream.FlagRdWr
	}
	if flag&os.O_APPEND != 0 {
		f |= stream.FlagAppend
	}
	return f | stream.FlagSeek
}

type reader struct {
	r io.Reader
}

func (r reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

// Reader returns a read-only backend for r. Other capabilities r might
// have (seeking, closing) are hidden from the stream.
func Reader(r io.Reader) stream.Backend {
	return reader{r: r}
}

type writer struct {
	w io.Writer
}

func (w writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Writer returns a write-only backend for w.
func Writer(w io.Writer) stream.Backend {
	return writer{w: w}
}
