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
	"bytes"
	"fmt"
	"io"

	maddycli "github.com/foxcpp/mailstream/internal/cli"
	"github.com/urfave/cli/v2"
)

func init() {
	maddycli.AddSubcommand(
		&cli.Command{
			Name:      "lines",
			Usage:     "Split input into delimited records and print them",
			ArgsUsage: "[FILE]",
			Action:    linesCommand,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "delim",
					Usage: "Record delimiter, a single byte",
					Value: "\n",
				},
				&cli.BoolFlag{
					Name:    "number",
					Aliases: []string{"n"},
					Usage:   "Prefix records with their number",
				},
				&cli.BoolFlag{
					Name:  "crlf",
					Usage: "Terminate printed records with CRLF",
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "Fail if a record is not complete within `DURATION`",
				},
			}, streamFlags()...),
		})
}

func linesCommand(ctx *cli.Context) error {
	s, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	delim := ctx.String("delim")
	if len(delim) != 1 {
		return cli.Exit("Error: --delim must be a single byte", 2)
	}
	timeout := s.ReadTimeout
	if d := ctx.Duration("timeout"); d != 0 {
		timeout = d
	}

	in, release, err := s.openInput(ctx, ctx.Args().First(), false)
	if err != nil {
		return err
	}
	defer release()

	out, err := s.output(ctx)
	if err != nil {
		return err
	}
	defer out.Destroy()

	var rec []byte
	for num := 1; ; num++ {
		n, err := in.GetDelimTimeout(&rec, delim[0], timeout)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if ctx.Bool("number") {
			if _, err := fmt.Fprintf(out, "%*d\t", s.NumberWidth, num); err != nil {
				return err
			}
		}
		if ctx.Bool("crlf") || s.CRLF {
			err = out.WriteLine(bytes.TrimRight(rec[:n], "\r"+delim))
		} else {
			_, err = out.Write(rec[:n])
		}
		if err != nil {
			return err
		}
	}
	return out.Flush()
}
