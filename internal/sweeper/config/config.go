package config

import "time"

type Config struct {
	// через сколько неоплаченная покупка считается брошенной; 0 - не отменять
	PendingTTL time.Duration `envconfig:"SWEEPER_PENDING_TTL" default:"0"`
	Interval   time.Duration `envconfig:"SWEEPER_INTERVAL" default:"10m"`
}
