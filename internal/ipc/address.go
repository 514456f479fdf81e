package ipc

import (
	"fmt"
	"net"
	"strings"
)

// TCPScheme prefixes socket addresses that name a TCP endpoint, for peers on
// other hosts: "tcp://0.0.0.0:7311".
const TCPScheme = "tcp://"

// splitAddress resolves a socket address to a network and dial address.
// Plain paths use the platform's local network; for "tcp" that is
// DefaultTCPPort.
func splitAddress(address, local string) (network, addr string) {
	if rest, ok := strings.CutPrefix(address, TCPScheme); ok {
		return "tcp", rest
	}
	if local == "tcp" {
		return "tcp", DefaultTCPPort
	}
	return local, address
}

// IsTCPAddress reports whether address names a TCP endpoint.
func IsTCPAddress(address string) bool {
	return strings.HasPrefix(address, TCPScheme)
}

func listenTCP(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return listener, nil
}
