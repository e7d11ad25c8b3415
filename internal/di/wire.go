//go:build wireinject
// +build wireinject

package di

import (
	"CardSignals/pkg/config"
	"CardSignals/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideStore,
	ProvideHistory,
	ProvideFeatureStore,
	ProvideRedis,
	ProvideKafkaProducer,
	ProvideExecutor,
	ProvideCache,
	ProvideHub,
)

var usecaseSet = wire.NewSet(
	ProvideAggregator,
	ProvideEdgeScorer,
	ProvideSignalPublisher,
	ProvideAlertDispatcher,
	ProvideScorer,
	ProvidePipeline,
	ProvideJobQueue,
	ProvideJobService,
	ProvideFairValue,
	ProvideSignalsQuery,
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup closes every client in reverse order of creation.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		usecaseSet,
		ProvideKafkaConsumer,
		ProvideScheduler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
