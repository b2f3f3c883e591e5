package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/ticketing/services/events/config"

	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("<eventList/>"))
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{URL: srv.URL, FetchTimeout: 5 * time.Second})

	body, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("<eventList/>"), body)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{URL: srv.URL, FetchTimeout: 5 * time.Second})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Connection refused

	client := NewClient(config.ProviderConfig{URL: srv.URL, FetchTimeout: 5 * time.Second})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Error(t, fetchErr.Unwrap())
}

func TestFetchHonorsContextDeadline(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{URL: srv.URL, FetchTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx)
	require.Error(t, err)
	<-started
}
