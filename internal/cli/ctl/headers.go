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
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/textproto"
	maddycli "github.com/foxcpp/mailstream/internal/cli"
	"github.com/urfave/cli/v2"
)

func init() {
	maddycli.AddSubcommand(
		&cli.Command{
			Name:      "headers",
			Usage:     "Print the header or the body of a message",
			ArgsUsage: "[FILE]",
			Description: `Reads an RFC 5322 message and prints its header fields, one per line.
With --body, the body is printed instead.

Standard input is spooled first so the body can be located by seeking.
`,
			Action: headersCommand,
			Flags: append([]cli.Flag{
				&cli.StringSliceFlag{
					Name:    "field",
					Aliases: []string{"f"},
					Usage:   "Print only fields named `NAME`",
				},
				&cli.BoolFlag{
					Name:  "body",
					Usage: "Print the message body",
				},
				&cli.BoolFlag{
					Name:    "decode",
					Aliases: []string{"d"},
					Usage:   "Decode RFC 2047 encoded words in field values",
				},
				&cli.PathFlag{
					Name:  "spool-dir",
					Usage: "Spool standard input into a temporary file in `DIR` instead of memory",
				},
			}, streamFlags()...),
		})
}

func headersCommand(ctx *cli.Context) error {
	s, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	in, release, err := s.openInput(ctx, ctx.Args().First(), true)
	if err != nil {
		return err
	}
	defer release()

	out, err := s.output(ctx)
	if err != nil {
		return err
	}
	defer out.Destroy()

	br := bufio.NewReader(in)
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return fmt.Errorf("cannot parse header: %w", err)
	}

	if ctx.Bool("body") {
		// bufio may have read ahead into the body.
		bodyOffset := in.Offset() - int64(br.Buffered())
		if _, err := in.Seek(bodyOffset, io.SeekStart); err != nil {
			return err
		}
		if _, err := copyStream(out, in); err != nil {
			return err
		}
		return out.Flush()
	}

	names := ctx.StringSlice("field")
	for fields := hdr.Fields(); fields.Next(); {
		if len(names) != 0 && !hasName(names, fields.Key()) {
			continue
		}
		value := fields.Value()
		if ctx.Bool("decode") {
			value = decodeValue(value)
		}
		if _, err := fmt.Fprintf(out, "%s: %s\n", fields.Key(), value); err != nil {
			return err
		}
	}
	return out.Flush()
}

func hasName(names []string, key string) bool {
	for _, name := range names {
		if strings.EqualFold(name, key) {
			return true
		}
	}
	return false
}
