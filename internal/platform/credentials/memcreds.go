// Package credentials provides a local stand-in for the external credential
// store the harvester consumes but never owns.
package credentials

import (
	"context"
	"sync"
	"time"

	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// Store is an in-memory domain.CredentialStore, seeded by Put, used for local
// runs and tests where no real credential service is wired up.
type Store struct {
	mu   sync.RWMutex
	byID map[string]domain.Credentials
}

// New returns an empty in-memory credential store
func New() *Store {
	return &Store{byID: map[string]domain.Credentials{}}
}

// Put seeds or replaces the credentials for uid, stamping ValidatedAt to now
func (s *Store) Put(uid string, cookies map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[uid] = domain.Credentials{UID: uid, Cookies: cookies, ValidatedAt: time.Now()}
}

// Query implements domain.CredentialStore
func (s *Store) Query(ctx context.Context, uid string) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[uid]
	if !ok {
		return domain.Credentials{}, perr.CookiesNotFoundf("no saved cookies for uid %s", uid)
	}
	return c, nil
}

var _ domain.CredentialStore = (*Store)(nil)
