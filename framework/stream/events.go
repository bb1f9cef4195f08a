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

package stream

// Event identifies a state transition reported to the stream event
// callback.
type Event int

const (
	// EventSetFlag is fired before a flag is set. The n argument is the
	// flag.
	EventSetFlag Event = iota
	// EventClrFlag is fired before a flag is cleared. The n argument is the
	// flag.
	EventClrFlag
	// EventFillBuf is fired after the buffer was filled from the backend. The
	// n argument is the number of buffered bytes, data is the buffer
	// contents.
	EventFillBuf
	// EventFlushBuf is fired after the buffer was written to the backend.
	// The n argument is the number of bytes written, data holds them.
	EventFlushBuf
	// EventClose is fired right before the backend is closed.
	EventClose
	// EventBootstrap is fired on the first use of the stream, before any
	// other event. It is removed from the event mask once delivered.
	EventBootstrap

	numEvents
)

func (ev Event) String() string {
	switch ev {
	case EventSetFlag:
		return "setflag"
	case EventClrFlag:
		return "clrflag"
	case EventFillBuf:
		return "fillbuf"
	case EventFlushBuf:
		return "flushbuf"
	case EventClose:
		return "close"
	case EventBootstrap:
		return "bootstrap"
	}
	return "unknown"
}

// EventMask selects events delivered to the event callback.
type EventMask int

// EventMaskAll selects all events.
const EventMaskAll = EventMask(1<<numEvents - 1)

func EventMaskOf(evs ...Event) EventMask {
	var m EventMask
	for _, ev := range evs {
		m |= 1 << ev
	}
	return m
}

func (m EventMask) Has(ev Event) bool {
	return m&(1<<ev) != 0
}

// EventFunc is the signature of the stream event callback.
//
// The data slice aliases the stream buffer and is valid only for the
// duration of the call.
type EventFunc func(s *Stream, ev Event, n int64, data []byte)

// SetEventCallback installs fn as the event callback. Only events selected
// by mask are delivered. A nil fn disables event delivery.
func (s *Stream) SetEventCallback(fn EventFunc, mask EventMask) {
	s.eventFn = fn
	s.eventMask = mask
}

// EventCallback returns the current event callback and mask.
func (s *Stream) EventCallback() (EventFunc, EventMask) {
	return s.eventFn, s.eventMask
}

func (s *Stream) event(ev Event, n int64, data []byte) {
	if s.eventFn != nil && s.eventMask.Has(ev) {
		s.eventFn(s, ev, n, data)
	}
}

func (s *Stream) bootstrap() {
	if s.eventFn != nil && s.eventMask.Has(EventBootstrap) {
		s.eventFn(s, EventBootstrap, 0, nil)
		s.eventMask &^= EventMaskOf(EventBootstrap)
	}
}

func (s *Stream) setFlag(f Flag) {
	s.event(EventSetFlag, int64(f), nil)
	s.flags |= f
}

func (s *Stream) clrFlag(f Flag) {
	s.event(EventClrFlag, int64(f), nil)
	s.flags &^= f
}
