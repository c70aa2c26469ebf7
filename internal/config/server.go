package config

import "time"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// LeadTime is how long before a game's scheduled start its runtime must
	// already be live.
	LeadTime          time.Duration `env:"LEAD_TIME" envDefault:"10m"`
	StaleThresholdSec int64         `env:"STALE_THRESHOLD_SEC" envDefault:"30"`
}

func LoadServer() (ServerConfig, error) {
	return parse[ServerConfig]()
}
