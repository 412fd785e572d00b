package store

import "github.com/rs/zerolog"

// Option customizes a Store before backends are opened
type Option func(*Store) error

// WithLogger sets the logger backends use for tracing and guard failures
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) error {
		s.Log = l
		return nil
	}
}
