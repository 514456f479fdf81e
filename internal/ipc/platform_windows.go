//go:build windows

package ipc

import (
	"net"
	"time"
)

// CreatePlatformListener listens on address. Unix sockets are not used on
// Windows: a plain path falls back to DefaultTCPPort.
func CreatePlatformListener(address string) (net.Listener, error) {
	_, addr := splitAddress(address, "tcp")
	return listenTCP(addr)
}

// ConnectPlatform dials the match server at address.
func ConnectPlatform(address string) (net.Conn, error) {
	_, addr := splitAddress(address, "tcp")
	return net.DialTimeout("tcp", addr, time.Second)
}

// GetPlatformAddress describes address for logs.
func GetPlatformAddress(address string) string {
	_, addr := splitAddress(address, "tcp")
	return "tcp:" + addr
}
