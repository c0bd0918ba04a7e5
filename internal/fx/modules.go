package fx

import (
	"jassguru/internal/config"
	"jassguru/internal/database"
	"jassguru/internal/logger"
	"jassguru/internal/repository"
	"jassguru/internal/server"
	"jassguru/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewRatingRepository),
	fx.Provide(repository.NewStatsRepository),
	fx.Provide(repository.NewSnapshotRepository),
	// svc
	fx.Provide(service.NewRatingService),
	fx.Provide(service.NewPlayerStatsService),
	fx.Provide(service.NewGroupStatsService),
	fx.Provide(service.NewSnapshotService),
	fx.Provide(service.NewCoordinator),
	// server
	fx.Provide(server.NewEngineServer),
)
