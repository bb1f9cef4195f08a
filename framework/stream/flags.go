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

import (
	"strings"
)

// Flag is a set of stream flags.
//
// The low bits are capability flags chosen by whoever creates the stream.
// The high bits describe the internal state of the stream. They are reported
// to event callbacks but never returned by Flags and never changed by
// SetFlags or ClearFlags.
type Flag int

const (
	FlagRead Flag = 1 << iota
	FlagWrite
	FlagAppend
	FlagSeek
	FlagNonblock

	FlagRdWr = FlagRead | FlagWrite
)

const (
	// FlagOpen is set while the stream is open.
	FlagOpen Flag = 0x1000000 << iota
	// FlagEOF is set when the backend reported end of file.
	FlagEOF
	// FlagErr is set when a permanent error is latched on the stream.
	FlagErr
	// FlagDirty is set while the buffer holds data not yet written to the
	// backend.
	FlagDirty
	// FlagWritten is set when data was written to the backend since the last
	// Flush.
	FlagWritten

	internalMask = FlagOpen | FlagEOF | FlagErr | FlagDirty | FlagWritten
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{FlagRead, "read"},
	{FlagWrite, "write"},
	{FlagAppend, "append"},
	{FlagSeek, "seek"},
	{FlagNonblock, "nonblock"},
	{FlagOpen, "open"},
	{FlagEOF, "eof"},
	{FlagErr, "err"},
	{FlagDirty, "dirty"},
	{FlagWritten, "written"},
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
