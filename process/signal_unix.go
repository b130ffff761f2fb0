//go:build !windows

package process

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// installSignalHandlers wires SIGTERM/SIGINT to onTerminate and returns a
// func that detaches them (§4.9 optional signal handling).
func installSignalHandlers(onTerminate func()) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGTERM, unix.SIGINT)

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
