// Package app wires the identification service from configuration: provider
// clients, the fan-out pipeline, the record store, and metrics.
package app

import (
	"time"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/datastore"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/httpclient"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/observability"
	"github.com/fieldquest/fieldquest-go/internal/provider/birdweather"
	"github.com/fieldquest/fieldquest-go/internal/provider/inaturalist"
	"github.com/fieldquest/fieldquest-go/internal/provider/macro"
	"github.com/fieldquest/fieldquest-go/internal/retry"
	"github.com/fieldquest/fieldquest-go/internal/security"
)

// App bundles the wired service and the resources behind it.
type App struct {
	Settings *conf.Settings
	Service  *identify.Service
	Store    datastore.Interface
	Metrics  *observability.Metrics

	httpClient *httpclient.Client
	closers    []func()
}

// New builds the full identification stack from settings. The returned App
// owns the database connection and provider clients; call Close when done.
func New(settings *conf.Settings) (*App, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}

	metricsObj, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	store := datastore.New(settings, metricsObj.Datastore)
	if store == nil {
		return nil, errors.Newf("no database backend is enabled").
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	timeout := time.Duration(settings.Identify.TimeoutMS) * time.Millisecond
	hc := httpclient.New(&httpclient.Config{DefaultTimeout: timeout})

	a := &App{
		Settings:   settings,
		Store:      store,
		Metrics:    metricsObj,
		httpClient: hc,
	}

	registry := identify.NewRegistry()
	if settings.Providers.INaturalist.Enabled {
		client := inaturalist.NewFromSettings(&settings.Providers.INaturalist, hc)
		registry.Register(client)
		a.closers = append(a.closers, client.Close)
	}
	if settings.Providers.BirdWeather.Enabled {
		client := birdweather.NewFromSettings(&settings.Providers.BirdWeather, hc)
		registry.Register(client)
		a.closers = append(a.closers, client.Close)
	}
	if settings.Providers.Macro.Enabled {
		client := macro.NewFromSettings(&settings.Providers.Macro, hc)
		registry.Register(client)
		a.closers = append(a.closers, client.Close)
	}

	pipeline := identify.NewPipeline(registry,
		retry.FromSettings(&settings.Identify.Retry),
		timeout,
		metricsObj.Pipeline)

	a.Service = identify.NewService(a.Store, pipeline,
		identify.ThresholdsFromSettings(&settings.Identify.Thresholds),
		security.NewConfigAuthorizer(&settings.Security),
		metricsObj.Pipeline)

	return a, nil
}

// Close releases the database connection and provider clients.
func (a *App) Close() error {
	for _, closeFn := range a.closers {
		closeFn()
	}
	a.httpClient.Close()
	return a.Store.Close()
}
