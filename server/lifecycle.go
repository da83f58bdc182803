package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/siftlab/sift/errors"
)

// ShutdownTimeout bounds how long Stop waits for goroutines to drain
const ShutdownTimeout = 10 * time.Second

// Start runs the hub and serves HTTP on the given port, falling back to an
// alternative when the port is taken. Blocks until the listener fails or the
// server is stopped.
func (s *SiftServer) Start(port int) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	mux := s.setupHTTPRoutes()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", actualPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop gracefully shuts down the server and cleans up resources
func (s *SiftServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP shutdown error", "error", err)
		}
	}

	// Close client connections before cancelling the context so the read
	// pumps unblock and exit cleanly
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()
	for _, client := range clients {
		client.conn.Close()
	}

	// Stop engine clients; pending jobs resolve with a transport error
	s.viewsMu.Lock()
	for id, view := range s.views {
		view.engine.Close()
		view.store.Unsubscribe(view.events)
		delete(s.views, id)
	}
	s.viewsMu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}

	s.logger.Infow("Server shutdown complete",
		"broadcast_drops", s.broadcastDrops.Load(),
	)
	return nil
}
