//go:build wireinject
// +build wireinject

package di

import (
	"MidgardPull/internal/domain/repository"
	"MidgardPull/internal/handler/api"
	internalrepo "MidgardPull/internal/repository"
	"MidgardPull/internal/service/midgard"
	"MidgardPull/internal/usecase"
	"MidgardPull/pkg/config"
	"MidgardPull/pkg/metrics"
	"MidgardPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvidePostgres,
		ProvideCache,

		// Repositories
		ProvideIntervalStore,
		wire.Bind(new(repository.IntervalStore), new(*internalrepo.PGIntervalStore)),
		wire.Bind(new(repository.IntervalReader), new(*internalrepo.PGIntervalStore)),
		wire.Bind(new(usecase.CursorSource), new(*internalrepo.PGIntervalStore)),
		ProvideMidgardClient,
		wire.Bind(new(repository.SourceFetcher), new(*midgard.Client)),
		ProvideLiveFeed,
		ProvideMirrors,

		// Use cases
		usecase.NewHistoryGenerations,
		ProvideUpsertWriter,
		wire.Bind(new(usecase.BatchWriter), new(*usecase.UpsertWriter)),
		ProvideScheduler,
		ProvideHistoryQuery,

		// HTTP
		api.NewHistoryEchoHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
