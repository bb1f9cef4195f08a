package mstreamcli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/foxcpp/mailstream/framework/hooks"
	"github.com/foxcpp/mailstream/framework/log"
)

func waitForSignal() os.Signal {
	sig := make(chan os.Signal, 5)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	return <-sig
}

// handleSignals runs shutdown hooks on the first termination signal. The
// next one terminates the process immediately.
func handleSignals() {
	s := waitForSignal()
	go func() {
		s := waitForSignal()
		log.Printf("forced shutdown due to signal (%v)!", s)
		os.Exit(1)
	}()

	log.Printf("signal received (%v), next signal will force immediate shutdown.", s)
	hooks.RunHooks(hooks.EventShutdown)
}
