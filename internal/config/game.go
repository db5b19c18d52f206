package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// GameConfig holds the orchestrator's timing and table defaults. All
// windows are server-authoritative; clients only ever see the derived
// deadlines.
type GameConfig struct {
	TurnSeconds           int `env:"TURN_SECONDS" envDefault:"30"`
	BlitzBankSeconds      int `env:"BLITZ_BANK_SECONDS" envDefault:"120"`
	StartGraceSeconds     int `env:"START_GRACE_SECONDS" envDefault:"3"`
	OfferSeconds          int `env:"OFFER_SECONDS" envDefault:"20"`
	ReconnectGraceSeconds int `env:"RECONNECT_GRACE_SECONDS" envDefault:"30"`
	SweepMS               int `env:"SWEEP_MS" envDefault:"250"`

	DefaultBoardSize int   `env:"DEFAULT_BOARD_SIZE" envDefault:"3"`
	DefaultWinLength int   `env:"DEFAULT_WIN_LENGTH" envDefault:"3"`
	DefaultAnte      int64 `env:"DEFAULT_ANTE" envDefault:"50"`
}

func LoadGame() (GameConfig, error) {
	var cfg GameConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c GameConfig) TurnDuration() time.Duration {
	return time.Duration(c.TurnSeconds) * time.Second
}

func (c GameConfig) BlitzBank() time.Duration {
	return time.Duration(c.BlitzBankSeconds) * time.Second
}

func (c GameConfig) StartGrace() time.Duration {
	return time.Duration(c.StartGraceSeconds) * time.Second
}

func (c GameConfig) OfferWindow() time.Duration {
	return time.Duration(c.OfferSeconds) * time.Second
}

func (c GameConfig) ReconnectGrace() time.Duration {
	return time.Duration(c.ReconnectGraceSeconds) * time.Second
}

func (c GameConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepMS) * time.Millisecond
}
