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
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/internal/testutils"
)

func TestReadBuffered(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("hello world")}
	s := newStream(t, b, stream.FlagRead)
	if err := s.SetBuffer(stream.BufferFull, 4); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 3)
	if n, err := s.Read(buf); err != nil || string(buf[:n]) != "hel" {
		t.Fatalf("expected hel, got %q (%v)", buf[:n], err)
	}
	if n, err := s.Read(buf); err != nil || string(buf[:n]) != "lo " {
		t.Fatalf("expected 'lo ', got %q (%v)", buf[:n], err)
	}
	if s.Offset() != 6 {
		t.Errorf("expected offset 6, got %d", s.Offset())
	}
	checkCalls(t, b, "setbuf full 4", "read 4", "read 4")

	rest, err := io.ReadAll(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "world" {
		t.Errorf("expected world, got %q", rest)
	}
}

func TestReadEOF(t *testing.T) {
	for _, bt := range []stream.BufferType{stream.BufferNone, stream.BufferFull, stream.BufferLine} {
		t.Run(bt.String(), func(t *testing.T) {
			s := newStream(t, &testutils.ScriptBackend{Data: []byte("ab")}, stream.FlagRead)
			if err := s.SetBuffer(bt, 16); err != nil {
				t.Fatal(err)
			}

			buf := make([]byte, 10)
			n, err := s.Read(buf)
			if err != nil || string(buf[:n]) != "ab" {
				t.Fatalf("expected ab, got %q (%v)", buf[:n], err)
			}
			if n, err := s.Read(buf); n != 0 || err != io.EOF {
				t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
			}
			if !s.EOF() {
				t.Error("EOF() is false at end of input")
			}
			if n, err := s.Read(nil); n != 0 || err != nil {
				t.Errorf("empty read at EOF: expected (0, nil), got (%d, %v)", n, err)
			}
		})
	}
}

func TestReadLineBuffering(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("one\ntwo\n")}
	s := newStream(t, b, stream.FlagRead)
	if err := s.SetBuffer(stream.BufferLine, 64); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	n, err := s.Read(buf)
	if err != nil || string(buf[:n]) != "one\n" {
		t.Fatalf("expected first line, got %q (%v)", buf[:n], err)
	}
	if b.Count("read 1") != 4 || b.Count("read") != 4 {
		t.Errorf("line buffer should be filled a byte at a time, got %q", b.Calls)
	}
	n, err = s.Read(buf)
	if err != nil || string(buf[:n]) != "two\n" {
		t.Fatalf("expected second line, got %q (%v)", buf[:n], err)
	}
}

func TestReadPermission(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("ab")}, stream.FlagWrite)
	if _, err := s.Read(make([]byte, 2)); err != stream.ErrPermission {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if !s.Err() {
		t.Error("permission error is not latched")
	}

	s = newStream(t, struct{ io.Writer }{io.Discard}, stream.FlagRead)
	if _, err := s.Read(make([]byte, 2)); err != stream.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if s.Err() {
		t.Error("ErrUnsupported is latched")
	}
}

func TestReadErrorLatched(t *testing.T) {
	readErr := errors.New("bad sector")
	b := &testutils.ScriptBackend{
		Script: []testutils.ScriptStep{{Err: readErr}},
		Data:   []byte("data"),
	}
	s := newStream(t, b, stream.FlagRead)

	if _, err := s.Read(make([]byte, 4)); err != readErr {
		t.Fatalf("expected %v, got %v", readErr, err)
	}
	if !s.Err() || s.LastError() != readErr {
		t.Fatal("read error is not latched")
	}
	if _, err := s.Read(make([]byte, 4)); err != readErr {
		t.Fatalf("latched error not returned: %v", err)
	}
	if b.Count("read") != 1 {
		t.Error("backend called while in error state")
	}

	s.ClearErr()
	buf := make([]byte, 4)
	if n, err := s.Read(buf); err != nil || string(buf[:n]) != "data" {
		t.Fatalf("expected data after ClearErr, got %q (%v)", buf[:n], err)
	}
}

func TestReadTransientNotLatched(t *testing.T) {
	b := &testutils.ScriptBackend{
		Script: []testutils.ScriptStep{{Err: stream.ErrWouldBlock}},
		Data:   []byte("data"),
	}
	s := newStream(t, b, stream.FlagRead)

	if _, err := s.Read(make([]byte, 4)); !errors.Is(err, stream.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	if s.Err() {
		t.Fatal("transient error is latched")
	}
	buf := make([]byte, 4)
	if n, err := s.Read(buf); err != nil || string(buf[:n]) != "data" {
		t.Fatalf("expected data, got %q (%v)", buf[:n], err)
	}
}

func TestReadFull(t *testing.T) {
	b := &testutils.ScriptBackend{
		Script: []testutils.ScriptStep{{Data: []byte("ab")}, {Data: []byte("cd")}},
		Data:   []byte("xy"),
	}
	s := newStream(t, b, stream.FlagRead)

	buf := make([]byte, 4)
	if n, err := s.ReadFull(buf); err != nil || string(buf[:n]) != "abcd" {
		t.Fatalf("expected abcd, got %q (%v)", buf[:n], err)
	}
	if n, err := s.ReadFull(buf); err != io.ErrUnexpectedEOF || string(buf[:n]) != "xy" {
		t.Fatalf("expected (xy, ErrUnexpectedEOF), got (%q, %v)", buf[:n], err)
	}
	if n, err := s.ReadFull(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
	}
}

func TestReadFullBuffered(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("hello world")}, stream.FlagRead)
	if err := s.SetBuffer(stream.BufferFull, 4); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 11)
	if n, err := s.ReadFull(buf); err != nil || string(buf[:n]) != "hello world" {
		t.Fatalf("expected whole input, got %q (%v)", buf[:n], err)
	}
}

func TestReadByte(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("z")}, stream.FlagRead)
	c, err := s.ReadByte()
	if err != nil || c != 'z' {
		t.Fatalf("expected z, got %q (%v)", c, err)
	}
	if _, err := s.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadDelim(t *testing.T) {
	for _, bt := range []stream.BufferType{stream.BufferNone, stream.BufferFull, stream.BufferLine} {
		t.Run(bt.String(), func(t *testing.T) {
			s := newStream(t, &testutils.ScriptBackend{Data: []byte("abc\ndef")}, stream.FlagRead)
			if err := s.SetBuffer(bt, 16); err != nil {
				t.Fatal(err)
			}

			buf := make([]byte, 8)
			n, err := s.ReadLine(buf)
			if err != nil || string(buf[:n]) != "abc\n" {
				t.Fatalf("expected first line, got %q (%v)", buf[:n], err)
			}
			if buf[n] != 0 {
				t.Error("result is not NUL-terminated")
			}
			n, err = s.ReadLine(buf)
			if err != nil || string(buf[:n]) != "def" {
				t.Fatalf("expected unterminated tail, got %q (%v)", buf[:n], err)
			}
			if n, err := s.ReadLine(buf); n != 0 || err != io.EOF {
				t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
			}
		})
	}
}

func TestReadDelimSmallBuffer(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("abcdef\n")}, stream.FlagRead)

	buf := make([]byte, 3)
	n, err := s.ReadDelim(buf, '\n')
	if err != nil || string(buf[:n]) != "ab" || buf[2] != 0 {
		t.Fatalf("expected ab, got %q (%v)", buf[:n], err)
	}

	if _, err := s.ReadDelim(nil, '\n'); err != stream.ErrInvalidArgument {
		t.Errorf("empty buffer: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := s.ReadDelim(make([]byte, 1), '\n'); err != stream.ErrBufferSpace {
		t.Errorf("one byte buffer: expected ErrBufferSpace, got %v", err)
	}
}

func TestReadDelimUnbufferedStopsAtDelim(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("ab\ncd")}
	s := newStream(t, b, stream.FlagRead)

	buf := make([]byte, 16)
	n, err := s.ReadDelim(buf, '\n')
	if err != nil || string(buf[:n]) != "ab\n" {
		t.Fatalf("expected ab, got %q (%v)", buf[:n], err)
	}
	if b.Pos != 3 {
		t.Errorf("input consumed past the delimiter: backend at %d", b.Pos)
	}
	if b.Count("read 1") != 3 {
		t.Errorf("expected byte-sized reads, got %q", b.Calls)
	}
}

func TestGetLine(t *testing.T) {
	long := strings.Repeat("x", 100) + "\n"

	for _, bt := range []stream.BufferType{stream.BufferNone, stream.BufferFull, stream.BufferLine} {
		t.Run(bt.String(), func(t *testing.T) {
			s := newStream(t, &testutils.ScriptBackend{Data: []byte(long + "y")}, stream.FlagRead)
			if err := s.SetBuffer(bt, 16); err != nil {
				t.Fatal(err)
			}

			var line []byte
			n, err := s.GetLine(&line)
			if err != nil {
				t.Fatal(err)
			}
			if string(line[:n]) != long {
				t.Fatalf("wrong line: %q", line[:n])
			}
			// 64, 96, 144
			if len(line) != 144 {
				t.Errorf("expected line buffer to grow to 144, got %d", len(line))
			}
			if line[n] != 0 {
				t.Error("result is not NUL-terminated")
			}

			n, err = s.GetLine(&line)
			if err != nil || string(line[:n]) != "y" {
				t.Fatalf("expected y, got %q (%v)", line[:n], err)
			}
			if len(line) != 144 {
				t.Error("line buffer reallocated while it was large enough")
			}

			if n, err := s.GetLine(&line); n != 0 || err != io.EOF {
				t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
			}
		})
	}
}

func TestGetDelimCallerBuffer(t *testing.T) {
	s := newStream(t, &testutils.ScriptBackend{Data: []byte("a;b")}, stream.FlagRead)

	line := make([]byte, 10)
	n, err := s.GetDelim(&line, ';')
	if err != nil || !bytes.Equal(line[:n], []byte("a;")) {
		t.Fatalf("expected a;, got %q (%v)", line[:n], err)
	}
	if len(line) != 10 {
		t.Errorf("caller buffer replaced: len %d", len(line))
	}
}

func TestReadDelimTimeoutUnsupported(t *testing.T) {
	s := newStream(t, testutils.ReaderOnly{R: strings.NewReader("x\n")}, stream.FlagRead)

	if _, err := s.ReadDelimTimeout(make([]byte, 8), '\n', time.Second); err != stream.ErrSetTimeout {
		t.Fatalf("expected ErrSetTimeout, got %v", err)
	}

	var line []byte
	if _, err := s.GetDelimTimeout(&line, '\n', time.Second); err != stream.ErrSetTimeout {
		t.Fatalf("expected ErrSetTimeout, got %v", err)
	}
}

func TestReadDelimTimeoutExpired(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("foo\n"), Timeout: 5 * time.Second}
	s := newStream(t, b, stream.FlagRead)
	if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	n, err := s.ReadDelimTimeout(buf, '\n', 0)
	if n != 0 || err != stream.ErrTimeout {
		t.Fatalf("expected (0, ErrTimeout), got (%d, %v)", n, err)
	}
	if b.Count("read") != 0 {
		t.Error("backend read after the deadline expired")
	}
	if b.Timeout != 5*time.Second {
		t.Errorf("backend timeout not restored: %v", b.Timeout)
	}
	if s.Err() {
		t.Error("timeout is latched")
	}

	n, err = s.ReadLine(buf)
	if err != nil || string(buf[:n]) != "foo\n" {
		t.Fatalf("expected foo, got %q (%v)", buf[:n], err)
	}
}

func TestReadDelimTimeoutKeepsBuffered(t *testing.T) {
	timed := map[string]func(s *stream.Stream) (int, error){
		"ReadDelimTimeout": func(s *stream.Stream) (int, error) {
			return s.ReadDelimTimeout(make([]byte, 16), '\n', 0)
		},
		"GetDelimTimeout": func(s *stream.Stream) (int, error) {
			var line []byte
			return s.GetDelimTimeout(&line, '\n', 0)
		},
	}

	for name, read := range timed {
		t.Run(name, func(t *testing.T) {
			b := &testutils.ScriptBackend{
				Script:  []testutils.ScriptStep{{Data: []byte("xx\nfo")}},
				Data:    []byte("o\n"),
				Timeout: 5 * time.Second,
			}
			s := newStream(t, b, stream.FlagRead)
			if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
				t.Fatal(err)
			}

			buf := make([]byte, 16)
			n, err := s.ReadLine(buf)
			if err != nil || string(buf[:n]) != "xx\n" {
				t.Fatalf("expected xx, got %q (%v)", buf[:n], err)
			}

			n, err = read(s)
			if n != 0 || err != stream.ErrTimeout {
				t.Fatalf("expected (0, ErrTimeout), got (%d, %v)", n, err)
			}
			if b.Count("read") != 1 {
				t.Errorf("backend read after the deadline expired: %q", b.Calls)
			}
			if s.Offset() != 3 {
				t.Errorf("offset moved past the unterminated prefix: %d", s.Offset())
			}

			n, err = s.ReadLine(buf)
			if err != nil || string(buf[:n]) != "foo\n" {
				t.Fatalf("expected foo, got %q (%v)", buf[:n], err)
			}
		})
	}
}

func TestReadDelimTimeoutPartial(t *testing.T) {
	b := &testutils.ScriptBackend{
		Script: []testutils.ScriptStep{
			{Data: []byte("fo")},
			{Err: stream.ErrWouldBlock},
		},
		Data:    []byte("o\n"),
		Timeout: 5 * time.Second,
	}
	s := newStream(t, b, stream.FlagRead)
	if err := s.SetBuffer(stream.BufferFull, 16); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	n, err := s.ReadDelimTimeout(buf, '\n', time.Hour)
	if !errors.Is(err, stream.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	if string(buf[:n]) != "fo" {
		t.Fatalf("bytes read before the error are lost: %q", buf[:n])
	}
	if b.Count("ioctl timeout set") != 3 {
		t.Errorf("expected two timeout updates and a restore, got %q", b.Calls)
	}
	if b.Timeout != 5*time.Second {
		t.Errorf("backend timeout not restored: %v", b.Timeout)
	}

	n, err = s.ReadLine(buf)
	if err != nil || string(buf[:n]) != "o\n" {
		t.Fatalf("expected rest of the line, got %q (%v)", buf[:n], err)
	}
}

func TestGetDelimTimeout(t *testing.T) {
	b := &testutils.ScriptBackend{Data: []byte("line\n"), Timeout: stream.NoTimeout}
	s := newStream(t, b, stream.FlagRead)

	var line []byte
	n, err := s.GetDelimTimeout(&line, '\n', time.Minute)
	if err != nil || string(line[:n]) != "line\n" {
		t.Fatalf("expected line, got %q (%v)", line[:n], err)
	}
	if b.Timeout != stream.NoTimeout {
		t.Errorf("backend timeout not restored: %v", b.Timeout)
	}
	// One update per byte read plus the final restore.
	if b.Count("ioctl timeout set") != 6 {
		t.Errorf("unexpected timeout updates: %q", b.Calls)
	}
}

func TestSkipInputBytes(t *testing.T) {
	for _, bt := range []stream.BufferType{stream.BufferNone, stream.BufferFull} {
		t.Run(bt.String(), func(t *testing.T) {
			s := newStream(t, &testutils.ScriptBackend{Data: []byte("0123456789")}, stream.FlagRead|stream.FlagSeek)
			if err := s.SetBuffer(bt, 4); err != nil {
				t.Fatal(err)
			}

			pos, err := s.SkipInputBytes(6)
			if err != nil || pos != 6 {
				t.Fatalf("expected position 6, got %d (%v)", pos, err)
			}
			if s.Flags()&stream.FlagSeek == 0 {
				t.Error("seek flag not restored")
			}
			c, err := s.ReadByte()
			if err != nil || c != '6' {
				t.Fatalf("expected 6, got %q (%v)", c, err)
			}
		})
	}
}

func TestSkipInputBytesPastEnd(t *testing.T) {
	for _, bt := range []stream.BufferType{stream.BufferNone, stream.BufferFull} {
		t.Run(bt.String(), func(t *testing.T) {
			s := newStream(t, &testutils.ScriptBackend{Data: []byte("0123456789")}, stream.FlagRead)
			if err := s.SetBuffer(bt, 4); err != nil {
				t.Fatal(err)
			}
			if _, err := s.SkipInputBytes(20); err != stream.ErrSeekPipe {
				t.Fatalf("expected ErrSeekPipe, got %v", err)
			}
		})
	}
}
