//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"time"
)

// CreatePlatformListener listens on address. A plain path is a Unix domain
// socket; a stale socket file left by a previous run is replaced and the new
// one is made world-writable so local clients of any user can join.
func CreatePlatformListener(address string) (net.Listener, error) {
	network, addr := splitAddress(address, "unix")
	if network == "tcp" {
		return listenTCP(addr)
	}

	if err := CleanupSocket(addr); err != nil {
		return nil, fmt.Errorf("cleanup socket: %w", err)
	}
	listener, err := net.Listen("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(addr, 0666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

// ConnectPlatform dials the match server at address.
func ConnectPlatform(address string) (net.Conn, error) {
	network, addr := splitAddress(address, "unix")
	return net.DialTimeout(network, addr, time.Second)
}

// GetPlatformAddress describes address for logs.
func GetPlatformAddress(address string) string {
	network, addr := splitAddress(address, "unix")
	return network + ":" + addr
}
