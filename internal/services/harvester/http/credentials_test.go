package harvesterhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"weibo-harvester/internal/platform/credentials"
	phttp "weibo-harvester/internal/platform/net/http"
)

func TestMountCredentialSeed_PutStoresCookies(t *testing.T) {
	store := credentials.New()

	m := chi.NewRouter()
	MountCredentialSeed(phttp.AdaptChi(m), store)
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/credentials/u1", strings.NewReader(`{"cookies":{"SUB":"abc"}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	creds, err := store.Query(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "abc", creds.Cookies["SUB"])
}
