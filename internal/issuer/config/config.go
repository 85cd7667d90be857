package config

import "time"

type Config struct {
	// срок действия ссылки на скачивание
	TokenTTL time.Duration `envconfig:"DOWNLOAD_TOKEN_TTL" default:"720h"`
}
