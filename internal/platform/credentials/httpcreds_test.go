package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPStore_QueryReturnsCredentialsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cookies/u1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uid":"u1","cookies":{"SUB":"abc"},"validated_at":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, time.Second)
	creds, err := store.Query(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", creds.UID)
	require.Equal(t, "abc", creds.Cookies["SUB"])
}

func TestHTTPStore_QueryReturnsCookiesNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, time.Second)
	_, err := store.Query(context.Background(), "nobody")
	require.Error(t, err)
}

func TestHTTPStore_QueryReturnsNetworkErrorOnUnreachableHost(t *testing.T) {
	store := NewHTTPStore("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := store.Query(context.Background(), "u1")
	require.Error(t, err)
}
