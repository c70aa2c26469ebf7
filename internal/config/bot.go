package config

// BotConfig configures the walker-bot debug client.
type BotConfig struct {
	WSURL   string `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	UserID  string `env:"USER_ID" envDefault:"walker"`
	GameID  string `env:"GAME_ID"`
	WSToken string `env:"WS_TOKEN" envDefault:""`
}

func LoadBot() (BotConfig, error) {
	return parse[BotConfig]()
}
