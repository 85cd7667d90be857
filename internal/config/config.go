package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	assetsConfig "github.com/iurnickita/digimart/internal/assets/config"
	handlerConfig "github.com/iurnickita/digimart/internal/handler/config"
	issuerConfig "github.com/iurnickita/digimart/internal/issuer/config"
	loggerConfig "github.com/iurnickita/digimart/internal/logger/config"
	ratelimitConfig "github.com/iurnickita/digimart/internal/ratelimit/config"
	serviceConfig "github.com/iurnickita/digimart/internal/service/config"
	storeConfig "github.com/iurnickita/digimart/internal/store/config"
	sweeperConfig "github.com/iurnickita/digimart/internal/sweeper/config"
	tokenConfig "github.com/iurnickita/digimart/internal/token/config"
)

// Prefix of every variable. Each value may also be given by its bare name,
// e.g. DATABASE_URI instead of DIGIMART_STORE_DATABASE_URI.
const envPrefix = "DIGIMART"

type Config struct {
	Handler   handlerConfig.Config
	Service   serviceConfig.Config
	Store     storeConfig.Config
	Logger    loggerConfig.Config
	Issuer    issuerConfig.Config
	Token     tokenConfig.Config
	Assets    assetsConfig.Config
	RateLimit ratelimitConfig.Config
	Sweeper   sweeperConfig.Config
}

// GetConfig reads an optional .env file and then the environment.
func GetConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
