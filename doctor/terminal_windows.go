//go:build windows

package doctor

import (
	"os"
	"os/signal"
)

func resetTerminal() {}

// HandleInterrupt exits on Ctrl+C while checks wait on devices.
func HandleInterrupt() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}
