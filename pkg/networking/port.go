// Package networking provides network helpers for the deskauth flow:
// loopback port selection, bounded HTTP clients, and URL validation.
package networking

import (
	"fmt"
	"net"
)

// IsAvailable checks if a loopback TCP port is available
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailable asks the OS for an ephemeral loopback port and returns it.
// Returns 0 if no port could be bound.
func FindAvailable() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// FindOrUsePort returns the requested port if it is free, or an
// OS-assigned ephemeral port when the request is 0 or the port is busy.
func FindOrUsePort(port int) (int, error) {
	if port == 0 {
		port = FindAvailable()
		if port == 0 {
			return 0, fmt.Errorf("could not find an available port")
		}
		return port, nil
	}

	if IsAvailable(port) {
		return port, nil
	}

	alt := FindAvailable()
	if alt == 0 {
		return 0, fmt.Errorf("failed to find an alternative port after requested port %d was unavailable", port)
	}
	return alt, nil
}
