//go:build wireinject
// +build wireinject

package di

import (
	"PriceCast/pkg/config"
	"PriceCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideLocation,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRepository,
		ProvideImporter,
		ProvideCache,
		ProvideLocker,

		// Forecaster
		ProvideFeatures,
		ProvideModel,
		ProvideSnapshotStore,
		ProvideForecaster,

		// Use cases
		ProvideExporters,
		ProvideReconciler,
		ProvidePublisher,
		ProvideCycleRunner,
		ProvideScheduler,

		// Application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
