package config

type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// человекочитаемый вывод вместо JSON
	Development bool `envconfig:"LOG_DEVELOPMENT" default:"false"`
}
