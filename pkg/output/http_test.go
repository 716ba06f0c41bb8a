package output

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairgate/pkg/codec"
	"chairgate/pkg/model"
)

func TestForwarder_CreatedIsSuccess(t *testing.T) {
	var gotBody, gotType, gotToken, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Chair-Token")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := NewForwarder(ForwarderConfig{
		URL:       srv.URL,
		Headers:   map[string]string{"X-Chair-Token": "abc"},
		NameField: codec.FieldModel,
	})

	err := f.Write(context.Background(), model.Record{Name: "RandomChair", MaxWeight: 150, HasPillow: false})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"Model":"RandomChair","MaxWeight":150,"HasPillow":false}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "abc", gotToken)
}

func TestForwarder_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok is not created", http.StatusOK, "ok"},
		{"bad request", http.StatusBadRequest, "missing field"},
		{"server error", http.StatusInternalServerError, "database down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body+"\n")
			}))
			defer srv.Close()

			f := NewForwarder(ForwarderConfig{URL: srv.URL})
			err := f.Write(context.Background(), model.Record{Name: "x", MaxWeight: 60})
			require.Error(t, err)

			var fe *ForwardError
			require.True(t, errors.As(err, &fe), "want *ForwardError, got %T", err)
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, tt.body, fe.Body)
			assert.Contains(t, fe.Error(), tt.body)
		})
	}
}

func TestForwarder_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, strings.Repeat("x", maxErrorBody*2))
	}))
	defer srv.Close()

	err := NewForwarder(ForwarderConfig{URL: srv.URL}).Write(context.Background(), model.Record{})
	var fe *ForwardError
	require.True(t, errors.As(err, &fe))
	assert.Len(t, fe.Body, maxErrorBody)
}

func TestForwarder_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewForwarder(ForwarderConfig{URL: url, Timeout: time.Second}).Write(context.Background(), model.Record{Name: "x"})
	require.Error(t, err)

	var fe *ForwardError
	assert.False(t, errors.As(err, &fe), "transport failures carry no status")
	assert.Contains(t, err.Error(), url)
}

func TestForwarder_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewForwarder(ForwarderConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	err := f.Write(context.Background(), model.Record{Name: "slow"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestForwarder_SetTarget(t *testing.T) {
	var firstHits, secondHits atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		assert.Equal(t, "v2", r.Header.Get("X-Version"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer second.Close()

	f := NewForwarder(ForwarderConfig{URL: first.URL})
	require.NoError(t, f.Write(context.Background(), model.Record{}))

	headers := map[string]string{"X-Version": "v2"}
	f.SetTarget(second.URL, headers)
	headers["X-Version"] = "mutated"
	assert.Equal(t, second.URL, f.URL())
	require.NoError(t, f.Write(context.Background(), model.Record{}))

	assert.Equal(t, int32(1), firstHits.Load())
	assert.Equal(t, int32(1), secondHits.Load())
}
