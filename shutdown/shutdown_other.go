//go:build !windows

package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify relays interrupt, termination and hangup (terminal closed) to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
