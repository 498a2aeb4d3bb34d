package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerStartup verifies the full handler can be built
func TestServerStartup(t *testing.T) {
	router := setupRouter(t)
	assert.NotNil(t, router, "Router should be initialized")
}

// TestAPIHealthEndpointAcceptance sends a real HTTP request through a test server
func TestAPIHealthEndpointAcceptance(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "Health endpoint should return 200 OK")

	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.True(t, response.Success, "Success field should be true")
	assert.Equal(t, "Jersey Repair API is running", response.Message)
}

// TestHealthEndpointAvailability tests that the health endpoint answers consistently
func TestHealthEndpointAvailability(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	for i := 0; i < 5; i++ {
		resp, err := http.Get(server.URL + "/api/v1/health")
		require.NoError(t, err)

		var response map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&response)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, fmt.Sprintf("Request %d should succeed", i+1))
		assert.Equal(t, true, response["success"], fmt.Sprintf("Request %d should have success=true", i+1))
	}
}

// TestHealthEndpointResponseTime tests that the endpoint responds quickly
func TestHealthEndpointResponseTime(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	start := time.Now()
	resp, err := http.Get(server.URL + "/api/v1/health")
	duration := time.Since(start)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Less(t, duration, 500*time.Millisecond, "Health endpoint should respond in less than 500ms")
}

func TestMetricsExposed(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
