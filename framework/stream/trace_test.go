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
	"testing"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/internal/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTraceEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	s := newStream(t, &testutils.ScriptBackend{Data: []byte("abc")}, stream.FlagRead)
	s.SetEventCallback(stream.TraceEvents(zap.New(core)), stream.EventMaskOf(stream.EventFillBuf, stream.EventSetFlag))
	if err := s.SetBuffer(stream.BufferFull, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}

	fills := logs.FilterMessage("fillbuf").All()
	if len(fills) != 2 {
		t.Fatalf("expected 2 fillbuf entries, got %d", len(fills))
	}
	ctx := fills[0].ContextMap()
	if ctx["bytes"] != int64(3) {
		t.Errorf("expected 3 bytes, got %v", ctx["bytes"])
	}
	if ctx["data"] != "abc" {
		t.Errorf("expected data abc, got %v", ctx["data"])
	}

	flags := logs.FilterMessage("setflag").All()
	if len(flags) == 0 || flags[0].ContextMap()["flag"] != "open" {
		t.Errorf("expected open flag to be traced first, got %v", flags)
	}
}

func TestTraceEventsDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	s := newStream(t, &testutils.ScriptBackend{Data: []byte("abc")}, stream.FlagRead)
	s.SetEventCallback(stream.TraceEvents(zap.New(core)), stream.EventMaskAll)
	if _, err := s.Read(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if logs.Len() != 0 {
		t.Errorf("debug events logged at info level: %d", logs.Len())
	}
}
