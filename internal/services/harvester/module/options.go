package module

import (
	"time"

	"weibo-harvester/internal/platform/config"
)

// Options are the CORE_HARVESTER_-prefixed knobs that tune engine and scheduler
// behavior without touching code. All have sane production defaults.
type Options struct {
	// FetcherURL is the websocket endpoint the crawl engine dials for every fetch.
	FetcherURL string
	// FetcherTimeout bounds a single page fetch round trip.
	FetcherTimeout time.Duration

	// ExportDir is where export files are written.
	ExportDir string

	// CredentialsURL is the base URL of an external cookie-capture service
	// implementing GET /cookies/{uid}. Empty selects the in-memory fallback
	// store instead, seeded through the /credentials/{uid} endpoint.
	CredentialsURL string
	// CredentialsTimeout bounds a single credentials lookup.
	CredentialsTimeout time.Duration

	// SwaggerEnabled mounts the Swagger UI under /api/docs when true.
	SwaggerEnabled bool
	// ProfilerEnabled mounts net/http/pprof under /debug when true.
	ProfilerEnabled bool
}

// LoadOptions reads Options from the environment under the CORE_HARVESTER_ prefix
func LoadOptions(root config.Conf) Options {
	cfg := root.Prefix("CORE_HARVESTER_")
	return Options{
		FetcherURL:         cfg.MayString("FETCHER_URL", "ws://127.0.0.1:8765/ws"),
		FetcherTimeout:     cfg.MayDuration("FETCHER_TIMEOUT", 30*time.Second),
		ExportDir:          cfg.MayString("EXPORT_DIR", "./exports"),
		CredentialsURL:     cfg.MayString("CREDENTIALS_URL", ""),
		CredentialsTimeout: cfg.MayDuration("CREDENTIALS_TIMEOUT", 5*time.Second),
		SwaggerEnabled:     cfg.MayBool("SWAGGER_ENABLED", true),
		ProfilerEnabled:    cfg.MayBool("PROFILER_ENABLED", false),
	}
}
