package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/siftlab/sift/config"
)

// checkOrigin validates an Origin header against the configured allowed
// origins. Prefix matching admits any port on an allowed host. Requests
// without an Origin header (direct clients, tests) are allowed.
func (s *SiftServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}
	for _, a := range allowed {
		if strings.HasPrefix(origin, a) {
			return true
		}
	}
	return false
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port, then the preferred defaults,
// then a small high range as a last resort
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	for _, port := range []int{config.DefaultServerPort, config.FallbackServerPort} {
		if port != requestedPort && isPortAvailable(port) {
			return port, nil
		}
	}

	fallbackStart := 59204
	for i := 0; i < 10; i++ {
		if port := fallbackStart + i; isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found (tried %d, %d, %d, and range %d-%d)",
		requestedPort, config.DefaultServerPort, config.FallbackServerPort, fallbackStart, fallbackStart+9)
}
