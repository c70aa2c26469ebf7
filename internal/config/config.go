// Package config loads per-concern settings from the environment, one small
// struct per binary or subsystem.
package config

import "github.com/caarlos0/env/v11"

func parse[T any]() (T, error) {
	var cfg T
	err := env.Parse(&cfg)
	return cfg, err
}
