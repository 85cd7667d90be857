package config

import "time"

type Config struct {
	// ключ подписи JWT пользователя
	SecretKey string        `envconfig:"JWT_SECRET" default:""`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"24h"`
}
