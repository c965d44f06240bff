package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/grcorsair/flagship/internal/config"
	"github.com/grcorsair/flagship/internal/providers/dbProviders"
	"github.com/grcorsair/flagship/internal/providers/dbProviders/mem_provider"
	"github.com/grcorsair/flagship/internal/providers/dbProviders/mongo_provider"
	"github.com/grcorsair/flagship/pkg/goFlagship/server"
	"github.com/grcorsair/flagship/pkg/goSet"
)

var mainLog = log.New(os.Stdout, "FLAGSHIP: ", log.Ldate|log.Ltime)

// CLI flags override the corresponding environment settings.
type CLI struct {
	Port        string `help:"Port to listen on."`
	Mode        string `help:"Stream registry backend (memory or persisted)."`
	MongoUrl    string `name:"mongo-url" help:"MongoDB connection url for persisted mode."`
	DbName      string `name:"db-name" help:"MongoDB database name."`
	Issuer      string `help:"Issuer value placed in signed SETs and bearer tokens."`
	PrivKeyPath string `name:"priv-key" help:"Path to the PEM encoded Ed25519 private key." type:"path"`
	PubKeyPath  string `name:"pub-key" help:"Path to the PEM encoded Ed25519 public key." type:"path"`
	AdminToken  bool   `name:"print-admin-token" help:"Print an admin bearer token at startup."`
}

func (c CLI) applyTo(cfg *config.Config) {
	if c.Port != "" {
		cfg.Port = c.Port
	}
	if c.Mode != "" {
		cfg.RegistryMode = c.Mode
	}
	if c.MongoUrl != "" {
		cfg.MongoUrl = c.MongoUrl
	}
	if c.DbName != "" {
		cfg.DbName = c.DbName
	}
	if c.Issuer != "" {
		cfg.TokenIssuer = c.Issuer
	}
	if c.PrivKeyPath != "" {
		cfg.PrivateKeyPath = c.PrivKeyPath
	}
	if c.PubKeyPath != "" {
		cfg.PublicKeyPath = c.PubKeyPath
	}
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("flagshipServer"),
		kong.Description("FLAGSHIP signed event notification transmitter"),
		kong.UsageOnError(),
	)

	cfg := config.GetEnvConfig()
	cli.applyTo(&cfg)

	var store *mongo_provider.MongoProvider
	var queue dbProviders.DeliveryQueue
	if cfg.RegistryMode == dbProviders.ModePersisted {
		var err error
		store, err = mongo_provider.Open(cfg.MongoUrl, cfg.DbName)
		if err != nil {
			mainLog.Fatalln("Mongo client error: " + err.Error())
		}
		queue = store
	}

	registry, err := dbProviders.NewStreamRegistry(cfg.RegistryMode, store)
	if err != nil {
		mainLog.Fatalln(err.Error())
	}
	if queue == nil {
		memStore, ok := registry.(*mem_provider.MemProvider)
		if !ok {
			mainLog.Fatalln("no delivery queue available for registry mode " + cfg.RegistryMode)
		}
		queue = memStore
	}

	keys := &goSet.FileKeyProvider{
		PrivateKeyPath: cfg.PrivateKeyPath,
		PublicKeyPath:  cfg.PublicKeyPath,
	}

	app, err := server.StartServer(cfg, registry, queue, keys)
	if err != nil {
		mainLog.Fatalln("Startup error: " + err.Error())
	}

	if cli.AdminToken {
		token, err := app.Auth.IssueAdminToken()
		if err != nil {
			mainLog.Fatalln("Error issuing admin token: " + err.Error())
		}
		mainLog.Println("Admin token: " + token)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			mainLog.Println("Shutdown error: " + err.Error())
		}
	}()

	mainLog.Printf("Listening on %s", app.Server.Addr)
	if err := app.Server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		mainLog.Fatalln(err.Error())
	}
	if store != nil {
		_ = store.Close()
	}
	mainLog.Println("Server stopped")
}
