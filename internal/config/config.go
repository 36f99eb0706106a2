package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Port             string
	Env              string
	DBSource         string
	LedgerRPCURL     string
	ContractAddress  string
	SignerKey        string
	ConfirmTimeout   time.Duration
	RefreshInterval  time.Duration
	HistoryRetention time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getenv("SERVER_PORT", "8080"),
		Env:              getenv("ENVIRONMENT", "development"),
		DBSource:         os.Getenv("DB_SOURCE"),
		LedgerRPCURL:     os.Getenv("LEDGER_RPC_URL"),
		ContractAddress:  os.Getenv("CONTRACT_ADDRESS"),
		SignerKey:        os.Getenv("SIGNER_PRIVATE_KEY"),
		ConfirmTimeout:   2 * time.Minute,
		RefreshInterval:  30 * time.Second,
		HistoryRetention: 24 * time.Hour,
	}

	var err error
	if cfg.ConfirmTimeout, err = getduration("CONFIRM_TIMEOUT", cfg.ConfirmTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getduration("CATALOG_REFRESH_INTERVAL", cfg.RefreshInterval); err != nil {
		return nil, err
	}
	if cfg.HistoryRetention, err = getduration("HISTORY_RETENTION", cfg.HistoryRetention); err != nil {
		return nil, err
	}

	// An RPC endpoint without signing material cannot submit anything.
	if cfg.LedgerRPCURL != "" {
		if cfg.ContractAddress == "" {
			return nil, fmt.Errorf("CONTRACT_ADDRESS is required when LEDGER_RPC_URL is set")
		}
		if cfg.SignerKey == "" {
			return nil, fmt.Errorf("SIGNER_PRIVATE_KEY is required when LEDGER_RPC_URL is set")
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
