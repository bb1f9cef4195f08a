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
	"errors"
	"net"
	"testing"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/internal/testutils"
)

func TestConnReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := stream.New(NewConn(server), stream.FlagRdWr)
	s.Log = testutils.Logger(t, "conn")
	defer s.Unref()
	if err := s.SetBuffer(stream.BufferLine, 512); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 512)
	_, err := s.ReadDelimTimeout(buf, '\n', 50*time.Millisecond)
	if !errors.Is(err, stream.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s.Err() {
		t.Fatal("timeout put the stream into error state")
	}

	go func() {
		client.Write([]byte("220 mx.example.org ESMTP\r\n")) //nolint:errcheck
	}()
	n, err := s.ReadLine(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "220 mx.example.org ESMTP\r\n" {
		t.Errorf("unexpected greeting %q", buf[:n])
	}

	var d time.Duration
	if err := s.Ioctl(stream.IoctlTimeout, stream.OpGet, &d); err != nil {
		t.Fatal(err)
	}
	if d != stream.NoTimeout {
		t.Errorf("timeout not restored: %v", d)
	}
}

func TestConnWriteLine(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := stream.New(NewConn(client), stream.FlagRdWr)
	defer s.Unref()
	if err := s.SetBuffer(stream.BufferLine, 0); err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()

	if err := s.WriteLine([]byte("QUIT")); err != nil {
		t.Fatal(err)
	}
	select {
	case line := <-got:
		if line != "QUIT\r\n" {
			t.Errorf("unexpected line %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("line buffered data was not flushed")
	}

	var tr interface{}
	if err := s.Ioctl(stream.IoctlTransport, stream.OpGet, &tr); err != nil {
		t.Fatal(err)
	}
	if tr != client {
		t.Error("wrong transport")
	}
	if err := s.Shutdown(stream.ShutdownWrite); err != stream.ErrUnsupported {
		t.Errorf("pipe shutdown: expected ErrUnsupported, got %v", err)
	}
}
