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

// Package future implements a value that is produced by one goroutine and
// awaited by others.
package future

import (
	"context"
	"sync"
)

// Future holds a (value, error) pair that is set once, later.
//
// It should not be copied after first use.
type Future[T any] struct {
	mu  sync.Mutex
	set bool
	val T
	err error

	notify chan struct{}
}

func New[T any]() *Future[T] {
	return &Future[T]{notify: make(chan struct{})}
}

// Set stores the result and wakes up all waiters. Only the first call has
// an effect, it reports whether the value was stored.
func (f *Future[T]) Set(val T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.set {
		return false
	}
	f.set = true
	f.val = val
	f.err = err
	close(f.notify)
	return true
}

func (f *Future[T]) Get() (T, error) {
	return f.GetContext(context.Background())
}

// GetContext waits for the result or for ctx to be done, whichever comes
// first.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.notify:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}
