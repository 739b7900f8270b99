//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalFusion/pkg/config"
	"SignalFusion/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideEngineSource,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideStores,
)

var engineSet = wire.NewSet(
	ProvideCandleCache,
	ProvideFeatureStore,
	ProvideAuditSink,
	ProvideHub,
	ProvidePublishers,
	ProvideProducers,
	ProvideRunner,
	ProvideQualityWindow,
	ProvideDecisionEngine,
	ProvideRetuner,
)

// InitializeApp builds the long-running daemon.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		engineSet,
		ProvideUpdater,
		ProvideScheduler,
		ProvideKafkaConsumer,
		ProvideCandles,
		ProvideAPIHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeRuntime builds the engine and retuner for one-shot commands.
func InitializeRuntime(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(
		infraSet,
		engineSet,
		ProvideRuntime,
	)
	return nil, nil, nil
}
