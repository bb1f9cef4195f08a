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

	"github.com/foxcpp/mailstream/framework/stream"
	maddycli "github.com/foxcpp/mailstream/internal/cli"
	"github.com/urfave/cli/v2"
)

func init() {
	maddycli.AddSubcommand(
		&cli.Command{
			Name:      "cat",
			Usage:     "Copy files or standard input to standard output",
			ArgsUsage: "[FILE...]",
			Action:    catCommand,
			Flags: append([]cli.Flag{
				&cli.Int64Flag{
					Name:  "skip",
					Usage: "Skip `N` bytes at the start of each input",
				},
			}, streamFlags()...),
		})
}

func catCommand(ctx *cli.Context) error {
	s, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if ctx.Int64("skip") < 0 {
		return cli.Exit("Error: --skip must not be negative", 2)
	}

	out, err := s.output(ctx)
	if err != nil {
		return err
	}
	defer out.Destroy()

	paths := ctx.Args().Slice()
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	for _, path := range paths {
		if err := catOne(ctx, s, out, path); err != nil {
			return err
		}
	}
	return out.Flush()
}

func catOne(ctx *cli.Context, s *settings, out *stream.Stream, path string) error {
	in, release, err := s.openInput(ctx, path, false)
	if err != nil {
		return err
	}
	defer release()

	if skip := ctx.Int64("skip"); skip > 0 {
		_, err := in.SkipInputBytes(skip)
		if errors.Is(err, stream.ErrSeekPipe) {
			// Input is shorter than the skipped part.
			return nil
		}
		if err != nil {
			return err
		}
	}

	_, err = copyStream(out, in)
	return err
}
