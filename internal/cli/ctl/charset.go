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

package ctl

import (
	"errors"
	"mime"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
)

// hz-gb-2312 decoding can exhaust memory on crafted input, see
// https://github.com/golang/go/issues/35118, so it is replaced with an
// encoding that always fails.
type disabledEncoding struct{}

func (disabledEncoding) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: disabledEncoding{}}
}

func (disabledEncoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: disabledEncoding{}}
}

func (disabledEncoding) Reset() {}

func (disabledEncoding) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	return 0, 0, errors.New("hz-gb-2312 decoding is disabled due to known issues")
}

func init() {
	charset.RegisterEncoding("hz-gb-2312", disabledEncoding{})
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// decodeValue decodes RFC 2047 encoded-words in a header value. The raw
// value is returned if it can't be decoded.
func decodeValue(v string) string {
	dec, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return dec
}
