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

package stream_test

import (
	"io"
	"strings"
	"syscall"
	"testing"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/internal/testutils"
)

func TestSeekWithinBuffer(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("0123456789")}
	s := newStream(t, b, stream.FlagRead|stream.FlagSeek)
	if err := s.SetBuffer(stream.BufferFull, 8); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read(make([]byte, 2)); err != nil {
		t.Fatal(err)
	}
	pos, err := s.Seek(5, io.SeekStart)
	if err != nil || pos != 5 {
		t.Fatalf("expected position 5, got %d (%v)", pos, err)
	}
	if b.Count("seek") != 0 {
		t.Error("backend seek for a target inside the buffer")
	}
	if c, _ := s.ReadByte(); c != '5' {
		t.Errorf("expected 5, got %q", c)
	}

	pos, err = s.Seek(9, io.SeekStart)
	if err != nil || pos != 9 {
		t.Fatalf("expected position 9, got %d (%v)", pos, err)
	}
	if b.Count("seek 9") != 1 {
		t.Errorf("expected backend seek to 9, got %q", b.Calls)
	}
	if c, _ := s.ReadByte(); c != '9' {
		t.Errorf("expected 9, got %q", c)
	}

	calls := len(b.Calls)
	pos, err = s.Seek(0, io.SeekCurrent)
	if err != nil || pos != 10 {
		t.Fatalf("expected position 10, got %d (%v)", pos, err)
	}
	if len(b.Calls) != calls {
		t.Error("backend used to report the current position")
	}
}

func TestSeekEnd(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("0123456789")}
	s := newStream(t, b, stream.FlagRead|stream.FlagSeek)

	pos, err := s.Seek(-2, io.SeekEnd)
	if err != nil || pos != 8 {
		t.Fatalf("expected position 8, got %d (%v)", pos, err)
	}
	buf := make([]byte, 4)
	if n, err := s.Read(buf); err != nil || string(buf[:n]) != "89" {
		t.Fatalf("expected 89, got %q (%v)", buf[:n], err)
	}

	if pos, err := s.Seek(-3, io.SeekCurrent); err != nil || pos != 7 {
		t.Fatalf("expected position 7, got %d (%v)", pos, err)
	}
}

func TestSeekClearsEOF(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("ab")}, stream.FlagRead|stream.FlagSeek)

	if _, err := io.ReadAll(s); err != nil {
		t.Fatal(err)
	}
	if !s.EOF() {
		t.Fatal("EOF not reached")
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if s.EOF() {
		t.Error("EOF not cleared by Seek")
	}
	if data, err := io.ReadAll(s); err != nil || string(data) != "ab" {
		t.Errorf("expected ab after rewind, got %q (%v)", data, err)
	}
}

func TestSeekErrors(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{}, stream.FlagRead)
	if _, err := s.Seek(0, io.SeekStart); err != stream.ErrPermission {
		t.Errorf("expected ErrPermission, got %v", err)
	}
	if !s.Err() {
		t.Error("permission error is not latched")
	}

	s = newStream(t, testutils.ReaderOnly{R: strings.NewReader("ab")}, stream.FlagRead|stream.FlagSeek)
	if _, err := s.Seek(0, io.SeekStart); err != stream.ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}

	s = newStream(t, &testutils.ScriptBackend{}, stream.FlagRead|stream.FlagSeek)
	if _, err := s.Seek(-1, io.SeekStart); err != stream.ErrInvalidArgument {
		t.Errorf("negative offset: expected ErrInvalidArgument, got %v", err)
	}
	if s.Err() {
		t.Error("negative offset is latched")
	}
	if _, err := s.Seek(0, 42); err != stream.ErrInvalidArgument {
		t.Errorf("bad whence: expected ErrInvalidArgument, got %v", err)
	}
	if !s.Err() {
		t.Error("bad whence is not latched")
	}
}

func TestSeekPipe(t *testing.T) {
	for _, seekErr := range []error{stream.ErrSeekPipe, syscall.ESPIPE} {
		b := &testutils.ScriptBackend{SeekErr: seekErr}
		s := newStream(t, b, stream.FlagRead|stream.FlagSeek)

		if _, err := s.Seek(3, io.SeekStart); err != seekErr {
			t.Fatalf("expected %v, got %v", seekErr, err)
		}
		if s.Err() {
			t.Errorf("%v is latched", seekErr)
		}
	}
}

func TestFlushSeeksToBufferStart(t *testing.T) {
	b := &testutils.ScriptBackend{}
	s := newStream(t, b, stream.FlagWrite|stream.FlagSeek)
	if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write([]byte("X")); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	checkCalls(t, b, "setbuf full 16", "seek 0", `write "Xbc"`, "flush")
}

func TestSizeIncludesBufferedOutput(t *testing.T) {
	b := &testutils.ScriptBackend{}
	s := newStream(t, b, stream.FlagWrite|stream.FlagSeek)
	if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	size, err := s.Size()
	if err != nil || size != 3 {
		t.Fatalf("expected size 3, got %d (%v)", size, err)
	}
	if len(b.Data) != 0 {
		t.Error("Size flushed the buffer")
	}

	s = newStream(t, testutils.ReaderOnly{R: strings.NewReader("")}, stream.FlagRead)
	if _, err := s.Size(); err != stream.ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("0123456789")}
	s := newStream(t, b, stream.FlagRead|stream.FlagWrite|stream.FlagSeek)
	if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read(make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if err := s.Truncate(6); err != nil {
		t.Fatal(err)
	}
	if string(b.Data) != "012345" {
		t.Errorf("expected 012345, got %q", b.Data)
	}
	if s.Offset() != 6 {
		t.Errorf("position past the new end: %d", s.Offset())
	}
	if size, err := s.Size(); err != nil || size != 6 {
		t.Errorf("expected size 6, got %d (%v)", size, err)
	}

	s = newStream(t, testutils.ReaderOnly{R: strings.NewReader("")}, stream.FlagRead)
	if err := s.Truncate(0); err != stream.ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
