// Package config содержит логику чтения конфигурации сервиса FlySure.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/flysure/internal/model"
)

const (
	defaultRunAddress       = "localhost:8080"
	defaultCustodyAddress   = "0x000000000000000000000000000000000000f15e"
	defaultAuthSecret       = "flysure-secret"
	defaultFaucetLimit      = "1000"
	defaultSolvencyInterval = time.Minute
)

// Config содержит параметры конфигурации сервиса FlySure.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	NatsURL          string        `env:"NATS_URL"`
	OwnerAddress     string        `env:"OWNER_ADDRESS"`
	CustodyAddress   string        `env:"CUSTODY_ADDRESS"`
	AuthSecret       string        `env:"AUTH_SECRET"`
	LogFile          string        `env:"LOG_FILE"`
	FaucetLimit      string        `env:"FAUCET_LIMIT"`
	SolvencyInterval time.Duration `env:"SOLVENCY_INTERVAL"`

	// Разобранные значения, заполняются в Parse.
	Owner          model.Address
	Custody        model.Address
	FaucetLimitAmt model.Amount
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	fromEnv := Config{}
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.NatsURL, "n", "", "NATS server URL, events are logged when empty")
	flag.StringVar(&cfg.OwnerAddress, "o", "", "initial ledger owner address")
	flag.StringVar(&cfg.CustodyAddress, "c", defaultCustodyAddress, "ledger custody account address")
	flag.StringVar(&cfg.AuthSecret, "s", defaultAuthSecret, "secret for signing auth cookies")
	flag.StringVar(&cfg.LogFile, "l", "", "rotating log file path")
	flag.StringVar(&cfg.FaucetLimit, "f", defaultFaucetLimit, "max PYUSD minted per faucet call, 0 disables faucet")
	flag.DurationVar(&cfg.SolvencyInterval, "m", defaultSolvencyInterval, "solvency check interval, 0 disables monitor")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.NatsURL, fromEnv.NatsURL)
	override(&cfg.OwnerAddress, fromEnv.OwnerAddress)
	override(&cfg.CustodyAddress, fromEnv.CustodyAddress)
	override(&cfg.AuthSecret, fromEnv.AuthSecret)
	override(&cfg.LogFile, fromEnv.LogFile)
	override(&cfg.FaucetLimit, fromEnv.FaucetLimit)
	// Нулевой интервал из окружения тоже задан явно и отключает монитор.
	if v, ok := os.LookupEnv("SOLVENCY_INTERVAL"); ok && v != "" {
		cfg.SolvencyInterval = fromEnv.SolvencyInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) resolve() error {
	if c.OwnerAddress == "" {
		return errors.New("owner address is required (OWNER_ADDRESS or -o)")
	}

	var err error
	if c.Owner, err = model.ParseAddress(c.OwnerAddress); err != nil {
		return fmt.Errorf("owner address: %w", err)
	}
	if c.Owner.IsZero() {
		return errors.New("owner address must not be zero")
	}

	if c.Custody, err = model.ParseAddress(c.CustodyAddress); err != nil {
		return fmt.Errorf("custody address: %w", err)
	}
	if c.Custody.IsZero() {
		return errors.New("custody address must not be zero")
	}

	if c.FaucetLimitAmt, err = model.ParseAmount(c.FaucetLimit); err != nil {
		return fmt.Errorf("faucet limit: %w", err)
	}
	if c.FaucetLimitAmt < 0 {
		return errors.New("faucet limit must not be negative")
	}
	return nil
}
