package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validatable is implemented by config structs that check their own invariants
// after parsing.
type Validatable interface {
	Validate() error
}

// Load parses environment variables into cfg using its `env` tags, then runs
// cfg.Validate when cfg implements Validatable.
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
