//go:build windows

package mcp

import (
	"os"
	"os/signal"
)

// notifySignals subscribes ch to the signals that should stop the server.
// Windows delivers only os.Interrupt (Ctrl+C); there is no SIGTERM.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}

func stopSignals(ch chan<- os.Signal) {
	signal.Stop(ch)
}
