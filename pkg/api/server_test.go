package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairgate/pkg/ingest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("", StatsSource{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	srv := NewServer("", StatsSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	stream := &ingest.StreamStats{}
	stream.ConnectionsAccepted.Add(3)
	stream.ClosedReset.Add(1)
	datagram := &ingest.DatagramStats{}
	datagram.Forwarded.Add(7)
	datagram.ForwardFailures.Add(2)

	srv := NewServer("", StatsSource{Stream: stream, Datagram: datagram})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stream   ingest.StreamSnapshot   `json:"stream"`
		Datagram ingest.DatagramSnapshot `json:"datagram"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Stream.ConnectionsAccepted)
	assert.Equal(t, int64(1), body.Stream.ClosedReset)
	assert.Equal(t, int64(7), body.Datagram.Forwarded)
	assert.Equal(t, int64(2), body.Datagram.ForwardFailures)
}

func TestStatsEndpoint_DisabledTransportsOmitted(t *testing.T) {
	srv := NewServer("", StatsSource{Datagram: &ingest.DatagramStats{}})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "stream")
	assert.Contains(t, body, "datagram")
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", StatsSource{})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/api/health", srv.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
