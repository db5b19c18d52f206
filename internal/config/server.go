package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	QuestConfigPath string `env:"QUEST_CONFIG_PATH"`

	SeedUserName  string `env:"SEED_USER_NAME"`
	SeedUserToken string `env:"SEED_USER_TOKEN"`
	SeedBalance   int64  `env:"SEED_BALANCE" envDefault:"100000"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
