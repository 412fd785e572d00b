// Package module wires the harvester's storage, engine, scheduler and transport
// layers into a single unit a CLI entrypoint can start and stop.
package module

import (
	"context"

	"weibo-harvester/internal/modkit/repokit"
	"weibo-harvester/internal/modkit/swaggerkit"
	"weibo-harvester/internal/platform/clock"
	"weibo-harvester/internal/platform/config"
	"weibo-harvester/internal/platform/credentials"
	"weibo-harvester/internal/platform/logger"
	phttp "weibo-harvester/internal/platform/net/http"
	"weibo-harvester/internal/platform/net/middleware"
	"weibo-harvester/internal/platform/store"
	"weibo-harvester/internal/services/harvester/domain"
	"weibo-harvester/internal/services/harvester/engine"
	"weibo-harvester/internal/services/harvester/events"
	harvesterhttp "weibo-harvester/internal/services/harvester/http"
	"weibo-harvester/internal/services/harvester/repo"
	"weibo-harvester/internal/services/harvester/scheduler"
)

// Module bundles the wired harvester service and its storage handle so a
// caller can Mount it onto a router and Close it on shutdown.
type Module struct {
	Scheduler *scheduler.Scheduler
	Events    *events.Broker
	Creds     domain.CredentialStore

	st  *store.Store
	opt Options
}

// New opens storage, binds the repositories, and wires the engine dependencies
// behind a Scheduler. The returned Module owns the store and must be Closed.
//
// Creds is HTTPStore when opt.CredentialsURL is set, pointing at an external
// cookie-capture service; otherwise it falls back to an in-memory store seeded
// through the /credentials/{uid} endpoint, for local runs with no such service.
func New(ctx context.Context, root config.Conf, storeCfg store.Config) (*Module, error) {
	opt := LoadOptions(root)

	st, err := store.Open(ctx, storeCfg, store.WithLogger(*logger.Get()))
	if err != nil {
		return nil, err
	}

	tasks := repokit.MustBind[domain.TaskStore](repo.NewTasksPG(), st.PG)
	posts := repokit.MustBind[domain.PostStore](repo.NewPostsPG(), st.PG)
	checkpoints := repokit.MustBind[domain.CheckpointStore](repo.NewCheckpointsPG(), st.PG)
	snapshots := repokit.MustBind[domain.CredentialSnapshotStore](repo.NewCredentialSnapshotsPG(), st.PG)

	var creds domain.CredentialStore
	if opt.CredentialsURL != "" {
		creds = credentials.NewHTTPStore(opt.CredentialsURL, opt.CredentialsTimeout)
	} else {
		creds = credentials.New()
	}

	fetcher := engine.NewWebSocketFetcher(opt.FetcherURL, opt.FetcherTimeout)
	broker := events.New()

	sched := scheduler.New(tasks, posts, checkpoints, snapshots, creds, fetcher, broker, clock.Real{})
	sched.ExportDir = opt.ExportDir

	return &Module{
		Scheduler: sched,
		Events:    broker,
		Creds:     creds,
		st:        st,
		opt:       opt,
	}, nil
}

// Mount wires the 7-command HTTP surface, the SSE event stream, and (when
// enabled) the Swagger UI onto r. The credential seed endpoint is only mounted
// when Creds fell back to the in-memory store; a real credentials service has
// no use for it.
func (m *Module) Mount(r phttp.Router) {
	r.Use(middleware.Defaults()...)

	harvesterhttp.Mount(r, m.Scheduler)
	harvesterhttp.MountEvents(r, m.Events)
	if memStore, ok := m.Creds.(*credentials.Store); ok {
		harvesterhttp.MountCredentialSeed(r, memStore)
	}
	swaggerkit.Mount(r, m.opt.SwaggerEnabled)
	phttp.MountProfiler(r, "/debug", m.opt.ProfilerEnabled)
}

// Guard verifies the underlying storage is reachable
func (m *Module) Guard(ctx context.Context) error {
	return m.st.Guard(ctx)
}

// Close releases storage resources
func (m *Module) Close(ctx context.Context) error {
	return m.st.Close(ctx)
}
