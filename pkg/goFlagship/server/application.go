// Package server exposes the FLAGSHIP transmitter HTTP API: stream
// management, event publication, poll and acknowledge delivery, the
// transmitter JWKS and operational endpoints.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/grcorsair/flagship/internal/authUtil"
	"github.com/grcorsair/flagship/internal/config"
	"github.com/grcorsair/flagship/internal/deliveryClient"
	"github.com/grcorsair/flagship/internal/eventRouter"
	"github.com/grcorsair/flagship/internal/providers/dbProviders"
	"github.com/grcorsair/flagship/pkg/goSet"
)

var serverLog = log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime)

type FlagshipApplication struct {
	Registry dbProviders.StreamRegistry
	Queue    dbProviders.DeliveryQueue
	Router   *eventRouter.Router
	Auth     *authUtil.AuthIssuer
	Keys     goSet.KeyProvider

	Server    *http.Server
	BaseUrl   *url.URL
	DefIssuer string
	Stats     *PrometheusHandler
}

func (app *FlagshipApplication) Name() string {
	return "goFlagship"
}

func (app *FlagshipApplication) HealthCheck() bool {
	checker, ok := app.Registry.(interface{ Check() error })
	if !ok {
		return true
	}
	if err := checker.Check(); err != nil {
		serverLog.Println("Provider ping failed: " + err.Error())
		return false
	}
	return true
}

/*
StartServer assembles the transmitter from its parts and returns the
application with an unstarted http.Server; the caller owns ListenAndServe.
A signing keypair is mandatory: the same Ed25519 key signs SETs and the
stream bearer tokens.
*/
func StartServer(cfg config.Config, registry dbProviders.StreamRegistry, queue dbProviders.DeliveryQueue, keys goSet.KeyProvider) (*FlagshipApplication, error) {
	keypair, err := keys.LoadKeypair()
	if err != nil {
		return nil, err
	}
	if keypair == nil {
		return nil, errors.New("no signing keypair configured")
	}

	auth, err := authUtil.NewAuthIssuer(cfg.TokenIssuer, keypair)
	if err != nil {
		return nil, err
	}

	baseUrl, err := url.Parse(cfg.BaseUrl)
	if err != nil {
		return nil, err
	}

	pusher := deliveryClient.NewClient("", cfg.DeliveryApiKey)
	router := eventRouter.NewRouter(registry, queue, pusher, keys, cfg.TokenIssuer, cfg.DefaultAudience)

	app := &FlagshipApplication{
		Registry:  registry,
		Queue:     queue,
		Router:    router,
		Auth:      auth,
		Keys:      keys,
		BaseUrl:   baseUrl,
		DefIssuer: cfg.TokenIssuer,
	}
	app.InitializePrometheus()

	app.Server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.NewRouter(),
	}
	serverLog.Printf("Server configured at %s (issuer %s)", app.Server.Addr, cfg.TokenIssuer)
	return app, nil
}

func (app *FlagshipApplication) Shutdown(ctx context.Context) error {
	serverLog.Println("Shutdown requested")
	return app.Server.Shutdown(ctx)
}
