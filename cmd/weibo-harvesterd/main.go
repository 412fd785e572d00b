// @title         Weibo Harvester API
// @version       0.1.0
// @description   Desktop-hosted microblog crawl scheduler and durable state machine

package main

import (
	"context"

	"weibo-harvester/internal/platform/config"
	"weibo-harvester/internal/platform/logger"
	phttp "weibo-harvester/internal/platform/net/http"
	"weibo-harvester/internal/platform/store"
	"weibo-harvester/internal/services/harvester/module"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_HARVESTER_")
	dbCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()

	dsn := dbCfg.MayString("DBURL", "")
	if dsn == "" {
		l.Panic().Msg("missing SERVICE_PGSQL_DBURL")
	}

	ctx := context.Background()
	mod, err := module.New(ctx, root, store.Config{
		AppName: "weibo-harvesterd",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dsn,
			MaxConns:    int32(dbCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: dbCfg.MayInt("SLOW_MS", 500),
			LogSQL:      dbCfg.MayBool("LOG_SQL", true),
		},
	})
	if err != nil {
		l.Panic().Err(err).Msg("module.New failed")
	}
	defer func() {
		if err := mod.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	if err := mod.Guard(ctx); err != nil {
		l.Panic().Err(err).Msg("storage guard failed")
	}

	srv := phttp.NewServer(apiCfg)
	mod.Mount(srv.Router())

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
