package config

type Config struct {
	// каталог файлов товаров, если S3 не настроен
	Dir string `envconfig:"ASSETS_DIR" default:"./assets"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:""`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" default:""`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"digimart"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`
}
