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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/foxcpp/mailstream/framework/future"
	"github.com/foxcpp/mailstream/framework/hooks"
	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/framework/transport"
	maddycli "github.com/foxcpp/mailstream/internal/cli"
	"github.com/foxcpp/mailstream/internal/streammetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

func init() {
	maddycli.AddSubcommand(
		&cli.Command{
			Name:      "relay",
			Usage:     "Exchange lines between standard streams and a TCP server",
			ArgsUsage: "ADDRESS",
			Description: `Connects to ADDRESS and forwards standard input to it line by line,
printing every line received from the server. The relay ends when the
server closes the connection.

End of standard input shuts down the sending side of the connection.
`,
			Action: relayCommand,
			Flags: append([]cli.Flag{
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "Fail if the server does not complete a line within `DURATION`",
				},
				&cli.DurationFlag{
					Name:  "connect-timeout",
					Usage: "Connection establishment timeout",
					Value: 30 * time.Second,
				},
				&cli.BoolFlag{
					Name:  "crlf",
					Usage: "Send lines terminated with CRLF",
				},
				&cli.StringFlag{
					Name:  "socks5",
					Usage: "Connect through the SOCKS5 proxy at `ADDRESS`",
				},
				&cli.StringFlag{
					Name:  "metrics",
					Usage: "Serve stream metrics in OpenMetrics format on `ADDRESS`",
				},
			}, streamFlags()...),
		})
}

type relay struct {
	s *settings

	in, out *stream.Stream
	up      *stream.Stream
	down    *stream.Stream

	crlf    bool
	timeout time.Duration
}

// upstream forwards standard input to the server and returns the number of
// lines sent.
func (r *relay) upstream() (int, error) {
	var line []byte
	for lines := 0; ; lines++ {
		n, err := r.in.GetLine(&line)
		if err == io.EOF {
			return lines, r.up.Shutdown(stream.ShutdownWrite)
		}
		if err != nil {
			return lines, err
		}

		if r.crlf {
			err = r.up.WriteLine(bytes.TrimRight(line[:n], "\r\n"))
		} else {
			_, err = r.up.Write(line[:n])
		}
		if err != nil {
			return lines, err
		}
		if err := r.up.Flush(); err != nil {
			return lines, err
		}
	}
}

// downstream prints lines received from the server.
func (r *relay) downstream() error {
	var line []byte
	for {
		n, err := r.down.GetDelimTimeout(&line, '\n', r.timeout)
		if err == io.EOF {
			return r.out.Flush()
		}
		if err != nil {
			return err
		}
		if _, err := r.out.Write(line[:n]); err != nil {
			return err
		}
		if err := r.out.Flush(); err != nil {
			return err
		}
	}
}

func serveMetrics(ctx context.Context, s *settings, addr string, coll prometheus.Collector) (func() error, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(coll); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.Log.Msg("serving metrics", "addr", l.Addr().String())

	srv := &http.Server{Handler: mux}
	return func() error {
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, nil
}

func dial(ctx *cli.Context, addr string) (net.Conn, error) {
	forward := &net.Dialer{Timeout: ctx.Duration("connect-timeout")}
	proxyAddr := ctx.String("socks5")
	if proxyAddr == "" {
		return forward.DialContext(ctx.Context, "tcp", addr)
	}

	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, forward)
	if err != nil {
		return nil, err
	}
	return d.(proxy.ContextDialer).DialContext(ctx.Context, "tcp", addr)
}

func relayCommand(ctx *cli.Context) error {
	s, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	addr := ctx.Args().First()
	if addr == "" {
		return cli.Exit("Error: ADDRESS is required", 2)
	}

	r := &relay{
		s:       s,
		crlf:    ctx.Bool("crlf") || s.CRLF,
		timeout: s.ReadTimeout,
	}
	if d := ctx.Duration("timeout"); d != 0 {
		r.timeout = d
	}

	nc, err := dial(ctx, addr)
	if err != nil {
		return err
	}

	// Each direction gets its own stream so both can be used concurrently.
	// Only down is destroyed, which closes the connection.
	r.down = stream.New(transport.NewConn(nc), stream.FlagRead)
	r.up = stream.New(transport.NewConn(nc), stream.FlagWrite)
	r.in = stream.New(transport.Reader(ctx.App.Reader), stream.FlagRead)
	r.out = stream.New(transport.Writer(ctx.App.Writer), stream.FlagWrite)
	defer r.down.Destroy()

	named := []struct {
		name string
		st   *stream.Stream
	}{{"recv", r.down}, {"send", r.up}, {"stdin", r.in}, {"stdout", r.out}}
	for _, n := range named {
		if err := s.setup(n.st, n.name); err != nil {
			return err
		}
	}
	if err := r.down.Open(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()
	defer hooks.AddHook(hooks.EventShutdown, cancel)()
	g, gctx := errgroup.WithContext(runCtx)

	if metricsAddr := ctx.String("metrics"); metricsAddr != "" {
		coll := streammetrics.NewCollector("mstream")
		for _, n := range named {
			coll.Track(n.name, n.st)
		}
		serve, err := serveMetrics(gctx, s, metricsAddr, coll)
		if err != nil {
			return err
		}
		g.Go(serve)
	}

	g.Go(func() error {
		defer cancel()
		err := r.downstream()
		if err != nil && gctx.Err() != nil {
			// Interrupted, the cause is reported by whoever stopped the
			// relay.
			return nil
		}
		return err
	})
	go func() {
		<-gctx.Done()
		// Unblocks a pending read.
		nc.SetReadDeadline(time.Now())
	}()

	// A read from standard input cannot be interrupted, so the relay does
	// not wait for it once the server is done.
	sent := future.New[int]()
	go func() { sent.Set(r.upstream()) }()
	g.Go(func() error {
		lines, err := sent.GetContext(gctx)
		if gctx.Err() != nil {
			return nil
		}
		if err == nil {
			s.Log.DebugMsg("input forwarded", "lines", lines)
		}
		return err
	})

	err = g.Wait()
	for _, n := range named {
		s.reportStats(n.st, n.name)
	}
	return err
}
