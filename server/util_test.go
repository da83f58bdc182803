package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siftlab/sift/config"
)

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckOriginDefaultsToLocalhost(t *testing.T) {
	s := &SiftServer{cfg: &config.Config{}}

	assert.True(t, s.checkOrigin(originRequest("")))
	assert.True(t, s.checkOrigin(originRequest("http://localhost:3000")))
	assert.True(t, s.checkOrigin(originRequest("https://localhost:9204")))
	assert.False(t, s.checkOrigin(originRequest("https://evil.example.com")))
}

func TestCheckOriginHonorsConfiguredList(t *testing.T) {
	s := &SiftServer{cfg: &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins: []string{"https://sift.example.com"},
		},
	}}

	assert.True(t, s.checkOrigin(originRequest("https://sift.example.com")))
	assert.False(t, s.checkOrigin(originRequest("http://localhost:3000")))
}
