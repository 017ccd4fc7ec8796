//go:build wireinject
// +build wireinject

package di

import (
	"CoinSight/pkg/config"
	"CoinSight/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideMarketStore,
		ProvideSnapshotCache,
		ProvideKafkaProducer,

		// Upstream providers
		ProvideBinance,
		ProvideCoinGecko,
		ProvideFearGreed,

		// Domain services
		ProvideQuoteService,
		ProvideMarketService,
		ProvidePipeline,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
