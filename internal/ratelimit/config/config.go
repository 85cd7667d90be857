package config

type Config struct {
	// адрес redis; пусто - счетчики в памяти процесса
	RedisAddr     string `envconfig:"REDIS_ADDRESS" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	// лимит скачиваний одного покупателя в минуту; 0 - без лимита
	DownloadsPerMinute int `envconfig:"DOWNLOADS_PER_MINUTE" default:"30"`
}
