package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bricktok/internal/common"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Asset struct {
		Symbol         string `yaml:"symbol"`
		Name           string `yaml:"name"`
		ReferencePrice string `yaml:"reference_price"`
		Supply         uint64 `yaml:"supply"`
		SellerAccount  string `yaml:"seller_account"`
		RentAPR        string `yaml:"rent_apr"`
		FeeRate        string `yaml:"fee_rate"`
	} `yaml:"asset"`
	Book struct {
		SeedLevels  int `yaml:"seed_levels"`
		DepthLevels int `yaml:"depth_levels"`
		LadderRows  int `yaml:"ladder_rows"`
	} `yaml:"book"`
	Feed struct {
		Enabled          bool          `yaml:"enabled"`
		TickInterval     time.Duration `yaml:"tick_interval"`
		TradeProbability float64       `yaml:"trade_probability"`
		Seed             uint64        `yaml:"seed"`
	} `yaml:"feed"`
	Tape struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"tape"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Server struct {
		HTTPAddr       string   `yaml:"http_addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Gateway struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		Workers int    `yaml:"workers"`
	} `yaml:"gateway"`
}

func defaultConfig() Config {
	var c Config
	c.Asset.Symbol = "BTK-ROSARIO-001"
	c.Asset.Name = "Depto. 2 amb. - Pellegrini 1234 (Rosario)"
	c.Asset.ReferencePrice = "1000"
	c.Asset.Supply = 7000
	c.Asset.SellerAccount = "BRICKTOK SAS"
	c.Asset.RentAPR = "9.2"
	c.Asset.FeeRate = "0.5"
	c.Book.SeedLevels = 16
	c.Book.DepthLevels = 10
	c.Book.LadderRows = 14
	c.Feed.Enabled = true
	c.Feed.TickInterval = 1200 * time.Millisecond
	c.Feed.TradeProbability = 0.3
	c.Tape.Capacity = 40
	c.Logging.Level = "info"
	c.Server.HTTPAddr = ":8080"
	c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	c.Gateway.Enabled = true
	c.Gateway.Address = "0.0.0.0"
	c.Gateway.Port = 9001
	c.Gateway.Workers = 10
	return c
}

// Load builds the config from defaults, then an optional YAML file named by
// BRICKTOK_CONFIG, then BRICKTOK_* environment variables. A .env file in the
// working directory is read first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := defaultConfig()
	if path := os.Getenv("BRICKTOK_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if v := os.Getenv("BRICKTOK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BRICKTOK_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("BRICKTOK_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("BRICKTOK_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("BRICKTOK_REFERENCE_PRICE"); v != "" {
		c.Asset.ReferencePrice = v
	}
	if v := os.Getenv("BRICKTOK_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: BRICKTOK_TICK_INTERVAL %q: %v", ErrInvalidConfig, v, err)
		}
		c.Feed.TickInterval = d
	}
	if v := os.Getenv("BRICKTOK_FEED_ENABLED"); v == "0" || v == "false" {
		c.Feed.Enabled = false
	}
	if v := os.Getenv("BRICKTOK_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%w: BRICKTOK_SEED %q: %v", ErrInvalidConfig, v, err)
		}
		c.Feed.Seed = n
	}
	if v := os.Getenv("BRICKTOK_GATEWAY_ENABLED"); v == "0" || v == "false" {
		c.Gateway.Enabled = false
	}
	if v := os.Getenv("BRICKTOK_GATEWAY_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return c, fmt.Errorf("%w: BRICKTOK_GATEWAY_PORT %q", ErrInvalidConfig, v)
		}
		c.Gateway.Port = n
	}

	return c, c.Validate()
}

// Validate checks the fields the simulation cannot run without.
func (c Config) Validate() error {
	price, err := decimal.NewFromString(c.Asset.ReferencePrice)
	if err != nil {
		return fmt.Errorf("%w: reference_price %q: %v", ErrInvalidConfig, c.Asset.ReferencePrice, err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: reference_price must be positive", ErrInvalidConfig)
	}
	for name, v := range map[string]string{"rent_apr": c.Asset.RentAPR, "fee_rate": c.Asset.FeeRate} {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidConfig, name, v, err)
		}
	}
	if c.Feed.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	}
	if c.Feed.TradeProbability < 0 || c.Feed.TradeProbability > 1 {
		return fmt.Errorf("%w: trade_probability must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Tape.Capacity <= 0 || c.Book.DepthLevels <= 0 || c.Book.LadderRows <= 0 || c.Book.SeedLevels < 0 {
		return fmt.Errorf("%w: book and tape sizes must be positive", ErrInvalidConfig)
	}
	return nil
}

// Asset converts the asset section. Call only on a validated config.
func (c Config) Asset() common.Asset {
	return common.Asset{
		Symbol:         c.Asset.Symbol,
		Name:           c.Asset.Name,
		ReferencePrice: decimal.RequireFromString(c.Asset.ReferencePrice),
		Supply:         c.Asset.Supply,
		SellerAccount:  c.Asset.SellerAccount,
		RentAPR:        decimal.RequireFromString(c.Asset.RentAPR),
		FeeRate:        decimal.RequireFromString(c.Asset.FeeRate),
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
