package netutil

import (
	"fmt"
	"net"
)

// ListenWithFallback attempts to listen on the preferred port. If that port
// is unavailable it falls back to a random system port (:0) and returns the
// port actually bound.
func ListenWithFallback(preferredPort string) (net.Listener, int, error) {
	lis, err := net.Listen("tcp", ":"+preferredPort)
	if err == nil {
		addr := lis.Addr().(*net.TCPAddr)
		return lis, addr.Port, nil
	}

	lis, err = net.Listen("tcp", ":0")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to listen on preferred port %s and random port: %w", preferredPort, err)
	}

	addr := lis.Addr().(*net.TCPAddr)
	return lis, addr.Port, nil
}
