package config

type Config struct {
	ServerAddr string `envconfig:"RUN_ADDRESS" default:"localhost:8080"`
	// общий секрет вебхуков платежного провайдера; пусто - вебхуки отклоняются
	WebhookSecret  string   `envconfig:"WEBHOOK_SECRET" default:""`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}
