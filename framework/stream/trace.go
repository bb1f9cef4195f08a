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
	"go.uber.org/zap"
)

// TraceEvents returns an EventFunc that logs every stream event at debug
// level through l.
//
// Buffer events carry the number of bytes moved, flag events the flag
// names.
func TraceEvents(l *zap.Logger) EventFunc {
	return func(s *Stream, ev Event, n int64, data []byte) {
		ce := l.Check(zap.DebugLevel, ev.String())
		if ce == nil {
			return
		}

		fields := []zap.Field{zap.Int64("offset", s.Offset())}
		switch ev {
		case EventSetFlag, EventClrFlag:
			fields = append(fields, zap.Stringer("flag", Flag(n)))
		case EventFillBuf, EventFlushBuf:
			fields = append(fields, zap.Int64("bytes", n))
			if len(data) <= 80 {
				fields = append(fields, zap.ByteString("data", data))
			}
		}
		ce.Write(fields...)
	}
}
