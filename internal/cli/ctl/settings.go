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
	"fmt"
	"io"
	"os"
	"time"

	parser "github.com/foxcpp/mailstream/framework/cfgparser"
	"github.com/foxcpp/mailstream/framework/config"
	"github.com/foxcpp/mailstream/framework/log"
	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/framework/transport"
	"github.com/urfave/cli/v2"
)

// streamFlags returns the flags accepted by every command that opens
// streams.
func streamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "buffer",
			Usage: "Buffering `MODE` (none, full or line)",
		},
		&cli.StringFlag{
			Name:  "buffer-size",
			Usage: "Buffer `SIZE`, e.g. 4K",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Log stream statistics when done",
		},
	}
}

type settings struct {
	Policy      stream.Policy
	ReadTimeout time.Duration
	Stats       stream.StatMask
	Debug       bool
	CRLF        bool
	NumberWidth int

	Log log.Logger

	logFile log.Output
}

// commandBlocks are the top-level blocks that override stream settings for
// a single command.
var commandBlocks = map[string]bool{
	"cat":     true,
	"lines":   true,
	"headers": true,
	"relay":   true,
}

var lineEndings = map[string]bool{
	"lf":   false,
	"crlf": true,
}

// streamDirectives registers the directives allowed both at the top level
// and in command blocks. Current values are used as defaults so a command
// block only changes what it mentions.
func (s *settings) streamDirectives(m *config.Map) {
	m.BufferPolicy("buffer", false, s.Policy, &s.Policy)
	m.Duration("read_timeout", false, s.ReadTimeout, &s.ReadTimeout)
	m.StatMask("stats", s.Stats, &s.Stats)
	config.EnumMapped(m, "line_ending", false, lineEndings, s.CRLF, &s.CRLF)
}

func readConfig(path, command string, s *settings) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	nodes, err := parser.Read(f, path)
	if err != nil {
		return err
	}

	var (
		defaultSize int64
		logFile     string
	)
	m := config.NewMap(config.Node{Children: nodes})
	m.AllowUnknown()
	m.DataSize("default_buffer_size", false, 0, &defaultSize)
	m.Bool("debug", false, &s.Debug)
	m.String("log_file", false, "", &logFile)
	m.Int("number_width", false, s.NumberWidth, &s.NumberWidth)
	s.streamDirectives(m)
	unknown, err := m.Process()
	if err != nil {
		return err
	}

	for _, node := range unknown {
		if !commandBlocks[node.Name] {
			return config.NodeErr(node, "unexpected directive: %s", node.Name)
		}
		if len(node.Args) != 0 {
			return config.NodeErr(node, "command block takes no arguments")
		}
		// Blocks of other commands are checked but not applied.
		target := s
		if node.Name != command {
			scratch := *s
			target = &scratch
		}
		cm := config.NewMap(node)
		target.streamDirectives(cm)
		if _, err := cm.Process(); err != nil {
			return err
		}
	}

	if defaultSize != 0 {
		if defaultSize > 1<<30 {
			return fmt.Errorf("%s: default_buffer_size is too big", path)
		}
		if err := stream.SetDefaultBufferSize(int(defaultSize)); err != nil {
			return err
		}
	}
	if s.NumberWidth <= 0 || s.NumberWidth > 20 {
		return fmt.Errorf("%s: number_width out of range: %d", path, s.NumberWidth)
	}
	if logFile != "" {
		lf, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
		if err != nil {
			return err
		}
		s.logFile = log.WriteCloserOutput(lf, true)
	}
	return nil
}

// loadSettings builds the stream settings from the configuration file, if
// any, and command line flags. Flags take precedence.
//
// Callers must call Close on the result.
func loadSettings(c *cli.Context) (*settings, error) {
	s := &settings{
		Policy:      stream.Policy{Type: stream.BufferFull},
		ReadTimeout: stream.NoTimeout,
		NumberWidth: 6,
	}

	if path := c.Path("config"); path != "" {
		if err := readConfig(path, c.Command.Name, s); err != nil {
			return nil, cli.Exit("Error: "+err.Error(), 2)
		}
	}

	if c.Bool("debug") {
		s.Debug = true
	}
	if mode := c.String("buffer"); mode != "" {
		t, err := stream.ParseBufferType(mode)
		if err != nil {
			s.Close()
			return nil, cli.Exit("Error: "+err.Error(), 2)
		}
		s.Policy = stream.Policy{Type: t}
	}
	if sizeStr := c.String("buffer-size"); sizeStr != "" {
		size, err := config.ParseDataSize(sizeStr)
		if err != nil || size <= 0 || size > 1<<30 {
			s.Close()
			return nil, cli.Exit("Error: invalid buffer size: "+sizeStr, 2)
		}
		s.Policy.Size = int(size)
	}
	if c.Bool("stats") && s.Stats == 0 {
		s.Stats = stream.StatMaskAll
	}

	out := log.WriterOutput(c.App.ErrWriter, false)
	if s.logFile != nil {
		out = log.MultiOutput(out, s.logFile)
	}
	s.Log = log.Logger{
		Out:   out,
		Name:  "mstream",
		Debug: s.Debug,
	}
	return s, nil
}

// Close closes the log file, if any.
func (s *settings) Close() {
	if s.logFile == nil {
		return
	}
	if err := s.logFile.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "mstream: log file close failed:", err)
	}
	s.logFile = nil
}

// setup applies the settings to a newly created stream.
func (s *settings) setup(st *stream.Stream, name string) error {
	st.Log = s.Log.Sublogger(name)
	if s.Debug {
		st.SetEventCallback(stream.TraceEvents(st.Log.Zap()), stream.EventMaskAll)
	}
	if s.Stats != 0 {
		st.SetStat(s.Stats, new(stream.StatBuffer))
	}
	return st.SetPolicy(s.Policy)
}

func (s *settings) reportStats(st *stream.Stream, name string) {
	mask, buf := st.Stat()
	if buf == nil {
		return
	}
	fields := []interface{}{"stream", name}
	for k := stream.Stat(0); k < stream.NumStats; k++ {
		if mask.Has(k) {
			fields = append(fields, k.String(), buf.Load(k))
		}
	}
	s.Log.Msg("stream statistics", fields...)
}

// output returns a stream writing to the command output.
func (s *settings) output(c *cli.Context) (*stream.Stream, error) {
	out := stream.New(transport.Writer(c.App.Writer), stream.FlagWrite)
	if err := s.setup(out, "stdout"); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *settings) spool(c *cli.Context) (*stream.Stream, func(), error) {
	dir := c.String("spool-dir")
	if dir == "" {
		m, err := transport.InMemory(c.App.Reader)
		if err != nil {
			return nil, nil, err
		}
		return stream.New(m, stream.FlagRead|stream.FlagSeek), func() {}, nil
	}

	f, err := transport.CreateTemp(dir)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := f.Remove(); err != nil {
			s.Log.Error("spool file removal failed", err, "path", f.Path)
		}
	}
	st := stream.New(f, transport.FileFlags(os.O_RDWR))
	if err := st.Open(); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := io.Copy(st, c.App.Reader); err != nil {
		st.Destroy()
		cleanup()
		return nil, nil, err
	}
	if _, err := st.Seek(0, io.SeekStart); err != nil {
		st.Destroy()
		cleanup()
		return nil, nil, err
	}
	return st, cleanup, nil
}

// openInput opens path for reading, "-" or an empty path meaning standard
// input. If seekable is set, standard input is spooled into memory or into
// a file in --spool-dir first.
//
// The returned function releases the stream.
func (s *settings) openInput(c *cli.Context, path string, seekable bool) (*stream.Stream, func(), error) {
	var (
		st      *stream.Stream
		cleanup = func() {}
	)
	switch {
	case path != "" && path != "-":
		st = stream.New(transport.NewFile(path, os.O_RDONLY, 0), transport.FileFlags(os.O_RDONLY))
	case seekable:
		var err error
		st, cleanup, err = s.spool(c)
		if err != nil {
			return nil, nil, err
		}
		path = "stdin"
	default:
		st = stream.New(transport.Reader(c.App.Reader), stream.FlagRead)
		path = "stdin"
	}

	release := func() {
		s.reportStats(st, path)
		st.Destroy()
		cleanup()
	}
	if err := s.setup(st, path); err != nil {
		release()
		return nil, nil, err
	}
	if !st.IsOpen() {
		if err := st.Open(); err != nil {
			release()
			return nil, nil, err
		}
	}
	return st, release, nil
}

// copyStream copies src to dst until the end of src.
func copyStream(dst, src *stream.Stream) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
