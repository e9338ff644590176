package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	HTTPAddr string
	WSAddr   string

	RedisURL    string
	DatabaseURL string

	TurnTimeout time.Duration

	WinDelta   int
	LossDelta  int
	DrawCredit int

	AllowOrigins string
}

// fileConfig is the optional YAML overlay (XO_CONFIG). Environment variables
// win over file values.
type fileConfig struct {
	HTTPAddr     string `yaml:"http_addr"`
	WSAddr       string `yaml:"ws_addr"`
	RedisURL     string `yaml:"redis_url"`
	DatabaseURL  string `yaml:"database_url"`
	TurnTimeout  string `yaml:"turn_timeout"`
	WinDelta     int    `yaml:"win_delta"`
	LossDelta    int    `yaml:"loss_delta"`
	DrawCredit   int    `yaml:"draw_credit"`
	AllowOrigins string `yaml:"allow_origins"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:     ":8080",
		WSAddr:       ":8081",
		TurnTimeout:  60 * time.Second,
		WinDelta:     10,
		LossDelta:    10,
		DrawCredit:   5,
		AllowOrigins: "*",
	}

	if path := strings.TrimSpace(os.Getenv("XO_CONFIG")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TURN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.New("TURN_TIMEOUT must be a duration like 60s")
		}
		cfg.TurnTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("WIN_DELTA")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WinDelta = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOSS_DELTA")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LossDelta = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRAW_CREDIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DrawCredit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOW_ORIGINS")); v != "" {
		cfg.AllowOrigins = v
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if fc.WSAddr != "" {
		cfg.WSAddr = fc.WSAddr
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.TurnTimeout != "" {
		d, err := time.ParseDuration(fc.TurnTimeout)
		if err != nil {
			return errors.New("turn_timeout must be a duration like 60s")
		}
		cfg.TurnTimeout = d
	}
	if fc.WinDelta != 0 {
		cfg.WinDelta = fc.WinDelta
	}
	if fc.LossDelta != 0 {
		cfg.LossDelta = fc.LossDelta
	}
	if fc.DrawCredit != 0 {
		cfg.DrawCredit = fc.DrawCredit
	}
	if fc.AllowOrigins != "" {
		cfg.AllowOrigins = fc.AllowOrigins
	}
	return nil
}
