//go:build windows

package process

import (
	"os"
	"os/signal"
)

// installSignalHandlers wires os.Interrupt to onTerminate; Windows has no
// SIGTERM equivalent delivered through os/signal (§4.9).
func installSignalHandlers(onTerminate func()) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			onTerminate()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
