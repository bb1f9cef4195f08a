package mstreamcli

import (
	"fmt"
	"io"
	"os"

	"github.com/foxcpp/mailstream/framework/log"
	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = cli.NewApp()
	app.Name = "mstream"
	app.Usage = "buffered stream toolbox"
	app.Description = `mstream reads, inspects and relays byte streams using the buffered
stream engine. Buffering, timeouts and statistics collection are
controlled by command line flags or a configuration file.
`
	app.ExitErrHandler = func(c *cli.Context, err error) {
		cli.HandleExitCoder(err)
		if err != nil {
			log.Println(err)
			cli.OsExiter(1)
		}
	}
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Usage:   "Read settings from `FILE`",
			EnvVars: []string{"MSTREAM_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging and stream event tracing",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "generate-man",
			Hidden: true,
			Action: func(c *cli.Context) error {
				man, err := app.ToMan()
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, man)
				return nil
			},
		},
	}
}

func AddGlobalFlag(f cli.Flag) {
	app.Flags = append(app.Flags, f)
}

func AddSubcommand(cmd *cli.Command) {
	app.Commands = append(app.Commands, cmd)
}

// RunWith runs the application with the specified arguments and standard
// streams. Errors are returned instead of terminating the process.
func RunWith(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app.Reader = stdin
	app.Writer = stdout
	app.ErrWriter = stderr
	handler := app.ExitErrHandler
	app.ExitErrHandler = func(*cli.Context, error) {}
	defer func() {
		app.Reader = os.Stdin
		app.Writer = os.Stdout
		app.ErrWriter = os.Stderr
		app.ExitErrHandler = handler
	}()

	return app.Run(args)
}

func Run() {
	go handleSignals()

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger.Error("app.Run failed", err)
	}
}
