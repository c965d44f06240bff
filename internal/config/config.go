// Package config reads the FLAGSHIP server settings from the environment.
package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"FLAGSHIP_PORT" default:"8888"`
	BaseUrl     string `envconfig:"FLAGSHIP_BASEURL" default:"http://localhost:8888"`
	TokenIssuer string `envconfig:"FLAGSHIP_ISSUER" default:"https://grcorsair.com"`

	// memory or persisted; persisted requires MONGO_URL.
	RegistryMode string `envconfig:"FLAGSHIP_REGISTRY_MODE" default:"memory"`
	MongoUrl     string `envconfig:"MONGO_URL"`
	DbName       string `envconfig:"FLAGSHIP_DBNAME" default:"flagship"`

	// PEM paths for the Ed25519 signing keypair. The server refuses to start
	// without one; the same key signs SETs and stream bearer tokens.
	PrivateKeyPath string `envconfig:"FLAGSHIP_PRIVKEY_PATH"`
	PublicKeyPath  string `envconfig:"FLAGSHIP_PUBKEY_PATH"`

	DefaultAudience string `envconfig:"FLAGSHIP_DEFAULT_AUD" default:"https://receiver.grcorsair.com"`
	DeliveryApiKey  string `envconfig:"FLAGSHIP_DELIVERY_APIKEY"`
}

func GetEnvConfig() Config {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		log.Println("Error occurred reading configuration: " + err.Error())
		return Config{}
	}
	return cfg
}
