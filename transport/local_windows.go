//go:build windows

package transport

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func dialLocal(path string) (net.Conn, error) {
	return winio.DialPipeContext(context.Background(), path)
}

func listenLocal(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}
