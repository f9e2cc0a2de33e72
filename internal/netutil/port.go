// Package netutil binds the companion's local listener.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
)

// ErrNoAddr is returned when neither the preferred address nor any
// fallback could be bound.
var ErrNoAddr = errors.New("no available companion bind addresses")

// Listen binds preferred, or with autoFallback the first candidate that is
// free. The listener is returned already bound so the address cannot be
// taken between the check and the serve.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback || !inUse(err) {
			return nil, fmt.Errorf("listen %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address in use, trying fallbacks", "addr", preferred)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		slog.Debug("fallback bind address unavailable", "addr", addr, "error", err)
	}
	return nil, ErrNoAddr
}

func inUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
