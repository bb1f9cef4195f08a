//go:build unix

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
	"syscall"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
	"golang.org/x/sys/unix"
)

// waitFd polls the descriptor behind sc.
func waitFd(sc syscall.Conn, want stream.Ready, timeout time.Duration) (stream.Ready, error) {
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var events int16
	if want&stream.ReadyRead != 0 {
		events |= unix.POLLIN
	}
	if want&stream.ReadyWrite != 0 {
		events |= unix.POLLOUT
	}
	if want&stream.ReadyExcept != 0 {
		events |= unix.POLLPRI
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	var (
		revents int16
		pollErr error
	)
	err = raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		_, pollErr = unix.Poll(fds, ms)
		revents = fds[0].Revents
	})
	if err != nil {
		return 0, err
	}
	if pollErr == unix.EINTR {
		return 0, stream.ErrInterrupted
	}
	if pollErr != nil {
		return 0, pollErr
	}

	var ready stream.Ready
	// Hangup means the next read returns end of file right away.
	if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
		ready |= stream.ReadyRead
	}
	if revents&unix.POLLOUT != 0 {
		ready |= stream.ReadyWrite
	}
	if revents&(unix.POLLPRI|unix.POLLERR) != 0 {
		ready |= stream.ReadyExcept
	}
	return ready & want, nil
}
