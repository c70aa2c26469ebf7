package config

// AppConfig bundles everything the game-server process reads from the
// environment.
type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

func LoadApp() (AppConfig, error) {
	var app AppConfig
	var err error
	if app.Log, err = LoadLog(); err != nil {
		return AppConfig{}, err
	}
	if app.Server, err = LoadServer(); err != nil {
		return AppConfig{}, err
	}
	return app, nil
}
