package harvesterhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"weibo-harvester/internal/platform/credentials"
	phttp "weibo-harvester/internal/platform/net/http"
)

// MountCredentialSeed exposes a seeding endpoint for the in-memory credential
// store used when no external cookie-capture service is configured. It has
// no business being mounted against a real CredentialStore, which is why the
// caller passes the concrete *credentials.Store rather than the interface.
func MountCredentialSeed(r phttp.Router, store *credentials.Store) {
	r.Route("/credentials", func(r phttp.Router) {
		phttp.PutJSON(r, "/{uid}", putCredentials(store))
	})
}

type putCredentialsRequest struct {
	Cookies map[string]string `json:"cookies" validate:"required"`
}

func putCredentials(store *credentials.Store) func(*http.Request, putCredentialsRequest) (any, error) {
	return func(r *http.Request, in putCredentialsRequest) (any, error) {
		uid := chi.URLParam(r, "uid")
		store.Put(uid, in.Cookies)
		return struct{}{}, nil
	}
}
