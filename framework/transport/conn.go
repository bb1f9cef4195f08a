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
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

// Conn is a transport over a network connection.
//
// IoctlTimeout sets the read deadline of the connection. A read that runs
// into it fails with a temporary stream.ErrTimeout.
type Conn struct {
	c       net.Conn
	timeout time.Duration
}

func NewConn(c net.Conn) *Conn {
	return &Conn{c: c, timeout: stream.NoTimeout}
}

func (c *Conn) fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if addr := c.c.RemoteAddr(); addr != nil {
		fields["remote_addr"] = addr.String()
	}
	return fields
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.c.Read(p)
	if err == io.EOF {
		return n, err
	}
	return n, timeoutErr(err, c.fields())
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.c.Write(p)
	return n, timeoutErr(err, c.fields())
}

func (c *Conn) Close() error {
	return c.c.Close()
}

func (c *Conn) Shutdown(how stream.ShutdownHow) error {
	switch how {
	case stream.ShutdownRead:
		if cr, ok := c.c.(interface{ CloseRead() error }); ok {
			return cr.CloseRead()
		}
	case stream.ShutdownWrite:
		if cw, ok := c.c.(interface{ CloseWrite() error }); ok {
			return cw.CloseWrite()
		}
	default:
		return stream.ErrInvalidArgument
	}
	return stream.ErrUnsupported
}

func (c *Conn) Wait(want stream.Ready, timeout time.Duration) (stream.Ready, error) {
	sc, ok := c.c.(syscall.Conn)
	if !ok {
		return 0, stream.ErrUnsupported
	}
	return waitFd(sc, want, timeout)
}

func (c *Conn) Ioctl(family stream.Family, op stream.Op, arg interface{}) error {
	switch family {
	case stream.IoctlTransport:
		tr, ok := arg.(*interface{})
		if !ok || op != stream.OpGet {
			return stream.ErrInvalidArgument
		}
		*tr = c.c
		return nil
	case stream.IoctlTimeout:
		d, ok := arg.(*time.Duration)
		if !ok {
			return stream.ErrInvalidArgument
		}
		if op == stream.OpGet {
			*d = c.timeout
			return nil
		}
		var deadline time.Time
		if *d >= 0 {
			deadline = time.Now().Add(*d)
		}
		if err := c.c.SetReadDeadline(deadline); err != nil {
			return err
		}
		c.timeout = *d
		return nil
	}
	return stream.ErrUnsupported
}

func (c *Conn) ErrorString(err error) string {
	if addr := c.c.RemoteAddr(); addr != nil {
		return fmt.Sprintf("%v: %v", addr, err)
	}
	return err.Error()
}
