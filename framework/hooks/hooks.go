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

// Package hooks implements process-wide event callbacks.
package hooks

import "sync"

type Event int

const (
	// EventShutdown is triggered when the process was asked to stop, e.g.
	// by SIGINT. Long-running commands use it to abort their streams.
	EventShutdown Event = iota
)

type hook struct {
	id int
	f  func()
}

var (
	hooks    = make(map[Event][]hook)
	lastID   int
	hooksLck sync.Mutex
)

func hooksToRun(ev Event) []func() {
	hooksLck.Lock()
	defer hooksLck.Unlock()

	// Copied so hooks run without the lock held.
	fs := make([]func(), 0, len(hooks[ev]))
	for _, h := range hooks[ev] {
		fs = append(fs, h.f)
	}
	return fs
}

// RunHooks runs the hooks installed for ev in the reverse order.
func RunHooks(ev Event) {
	fs := hooksToRun(ev)
	for i := len(fs) - 1; i >= 0; i-- {
		fs[i]()
	}
}

// AddHook installs f to be executed when ev occurs. The returned function
// uninstalls it.
func AddHook(ev Event, f func()) (remove func()) {
	hooksLck.Lock()
	defer hooksLck.Unlock()

	lastID++
	id := lastID
	hooks[ev] = append(hooks[ev], hook{id: id, f: f})

	return func() {
		hooksLck.Lock()
		defer hooksLck.Unlock()
		list := hooks[ev]
		for i, h := range list {
			if h.id == id {
				hooks[ev] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}
