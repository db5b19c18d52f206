package config

import "github.com/caarlos0/env/v11"

// LogConfig selects the process-wide zerolog output: level, console
// pretty-printing for local runs, optional sampling for chatty move
// traffic, and a size-capped file sink.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	MaxMB       int    `env:"LOG_FILE_MAX_MB" envDefault:"32"`
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}
