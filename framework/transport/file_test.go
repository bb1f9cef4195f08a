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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/foxcpp/mailstream/framework/exterrors"
	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/internal/testutils"
)

func TestFileStream(t *testing.T) {
	tf, err := CreateTemp(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer tf.Remove()

	s := stream.New(tf, FileFlags(tf.Flag))
	s.Log = testutils.Logger(t, "file")
	if _, err := s.Write([]byte("x")); err != stream.ErrNotOpen {
		t.Fatalf("expected ErrNotOpen before Open, got %v", err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBuffer(stream.BufferFull, 0); err != nil {
		t.Fatal(err)
	}

	for _, l := range []string{"EHLO example.org", "MAIL FROM:<a@example.org>"} {
		if err := s.WriteLine([]byte(l)); err != nil {
			t.Fatal(err)
		}
	}
	if size, err := s.Size(); err != nil || size != 45 {
		t.Errorf("expected size 45, got %d (%v)", size, err)
	}
	if _, err := s.Seek(18, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := s.ReadLine(buf)
	if err != nil || string(buf[:n]) != "MAIL FROM:<a@example.org>\r\n" {
		t.Fatalf("unexpected line %q (%v)", buf[:n], err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	blob, err := os.ReadFile(tf.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "EHLO example.org\r\nMAIL FROM:<a@example.org>\r\n" {
		t.Errorf("unexpected file contents: %q", blob)
	}
}

func TestFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mbox")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFile(path, os.O_WRONLY|os.O_APPEND, 0)
	s := stream.New(f, FileFlags(f.Flag))
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if s.Offset() != 6 {
		t.Errorf("append stream not positioned at the end: %d", s.Offset())
	}
	if _, err := s.WriteString("second\n"); err != nil {
		t.Fatal(err)
	}
	s.Unref()

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "first\nsecond\n" {
		t.Errorf("unexpected file contents: %q", blob)
	}
}

func TestFileOpenError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	s := stream.New(NewFile(path, os.O_RDONLY, 0), stream.FlagRead)

	err := s.Open()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
	if exterrors.Fields(err)["path"] != path {
		t.Error("path missing from error context")
	}
	if s.StrError(err) == err.Error() {
		t.Error("error text not decorated by the transport")
	}
}

func TestFileFlags(t *testing.T) {
	cases := []struct {
		flag int
		want stream.Flag
	}{
		{os.O_RDONLY, stream.FlagRead | stream.FlagSeek},
		{os.O_WRONLY | os.O_CREATE, stream.FlagWrite | stream.FlagSeek},
		{os.O_RDWR, stream.FlagRdWr | stream.FlagSeek},
		{os.O_WRONLY | os.O_APPEND, stream.FlagWrite | stream.FlagAppend | stream.FlagSeek},
	}
	for _, c := range cases {
		if got := FileFlags(c.flag); got != c.want {
			t.Errorf("FileFlags(%#x) = %v, want %v", c.flag, got, c.want)
		}
	}
}
