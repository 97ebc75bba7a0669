package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDiscountPercentage applies when pricing.discount_percentage is not set.
const DefaultDiscountPercentage = 45.0

// SupportedCryptos lists every currency the checkout can price and verify.
var SupportedCryptos = []string{
	"BTC", "ETH", "USDT", "USDC", "BNB", "SOL", "XRP", "ADA", "DOGE", "TRX", "LTC", "BCH", "TON",
}

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Addr        string        `yaml:"addr"`
		Timeout     time.Duration `yaml:"timeout"`
		IdleTimeout time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`
	DB struct {
		DSN            string `yaml:"dsn"`
		MigrationsPath string `yaml:"migrations_path"`
	} `yaml:"db"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	// Addresses maps a crypto code to the receiving address for that currency.
	Addresses map[string]string `yaml:"addresses"`
	Explorers ExplorersConfig   `yaml:"explorers"`
	Pricing   struct {
		QuoteURL           string        `yaml:"quote_url"`
		APIKey             string        `yaml:"api_key"`
		CacheTTL           time.Duration `yaml:"cache_ttl"`
		DiscountPercentage *float64      `yaml:"discount_percentage"`
		RequestTimeout     time.Duration `yaml:"request_timeout"`
	} `yaml:"pricing"`
	Payments struct {
		ConfirmationsRequired int64 `yaml:"confirmations_required"`
		// ConfirmationsByCrypto overrides ConfirmationsRequired for individual chains.
		ConfirmationsByCrypto map[string]int64 `yaml:"confirmations_by_crypto"`
	} `yaml:"payments"`
	Worker struct {
		Schedule    string        `yaml:"schedule"`
		Concurrency int           `yaml:"concurrency"`
		WatchEvery  time.Duration `yaml:"watch_every"`
	} `yaml:"worker"`
}

type ExplorersConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Blockchain     string        `yaml:"blockchain"`
	Etherscan      string        `yaml:"etherscan"`
	EtherscanKey   string        `yaml:"etherscan_key"`
	Bscscan        string        `yaml:"bscscan"`
	BscscanKey     string        `yaml:"bscscan_key"`
	Blockcypher    string        `yaml:"blockcypher"`
	Solscan        string        `yaml:"solscan"`
	XRPScan        string        `yaml:"xrpscan"`
	Cardanoscan    string        `yaml:"cardanoscan"`
	Dogechain      string        `yaml:"dogechain"`
	Tronscan       string        `yaml:"tronscan"`
	BitcoinCom     string        `yaml:"bitcoin_com"`
	Toncenter      string        `yaml:"toncenter"`
	ToncenterKey   string        `yaml:"toncenter_key"`
}

func Load(path string) (*Config, error) {
	// .env is optional; real environment variables always win.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, then applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if d := c.DiscountPercentage(); d < 0 || d >= 100 {
		return fmt.Errorf("pricing.discount_percentage must be in [0,100), got %v", d)
	}
	if c.Payments.ConfirmationsRequired < 1 {
		return errors.New("payments.confirmations_required must be at least 1")
	}
	for code := range c.Addresses {
		if !isSupported(code) {
			return fmt.Errorf("addresses: unsupported crypto %q", code)
		}
	}
	return nil
}

// Address returns the configured receiving address for a crypto code.
func (c *Config) Address(code string) string {
	return strings.TrimSpace(c.Addresses[strings.ToUpper(code)])
}

// RequiredConfirmations returns the confirmation threshold for a crypto code.
func (c *Config) RequiredConfirmations(code string) int64 {
	if n, ok := c.Payments.ConfirmationsByCrypto[strings.ToUpper(code)]; ok && n > 0 {
		return n
	}
	return c.Payments.ConfirmationsRequired
}

// DiscountPercentage is the storefront discount used until an admin stores one.
func (c *Config) DiscountPercentage() float64 {
	if c.Pricing.DiscountPercentage == nil {
		return DefaultDiscountPercentage
	}
	return *c.Pricing.DiscountPercentage
}

func applyDefaults(cfg *Config) {
	if cfg.Pricing.DiscountPercentage == nil {
		d := DefaultDiscountPercentage
		cfg.Pricing.DiscountPercentage = &d
	}
	if cfg.Env == "" {
		cfg.Env = "prod"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Pricing.QuoteURL == "" {
		cfg.Pricing.QuoteURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"
	}
	if cfg.Pricing.CacheTTL == 0 {
		cfg.Pricing.CacheTTL = 5 * time.Minute
	}
	if cfg.Pricing.RequestTimeout == 0 {
		cfg.Pricing.RequestTimeout = 10 * time.Second
	}
	if cfg.Payments.ConfirmationsRequired == 0 {
		cfg.Payments.ConfirmationsRequired = 1
	}
	if cfg.Worker.Schedule == "" {
		cfg.Worker.Schedule = "@every 60s"
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.WatchEvery == 0 {
		cfg.Worker.WatchEvery = 15 * time.Second
	}

	e := &cfg.Explorers
	if e.RequestTimeout == 0 {
		e.RequestTimeout = 10 * time.Second
	}
	setDefault(&e.Blockchain, "https://blockchain.info")
	setDefault(&e.Etherscan, "https://api.etherscan.io")
	setDefault(&e.Bscscan, "https://api.bscscan.com")
	setDefault(&e.Blockcypher, "https://api.blockcypher.com")
	setDefault(&e.Solscan, "https://api.solscan.io")
	setDefault(&e.XRPScan, "https://api.xrpscan.com")
	setDefault(&e.Cardanoscan, "https://cardanoscan.io")
	setDefault(&e.Dogechain, "https://dogechain.info")
	setDefault(&e.Tronscan, "https://apilist.tronscan.org")
	setDefault(&e.BitcoinCom, "https://rest.bitcoin.com")
	setDefault(&e.Toncenter, "https://toncenter.com")
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
		cfg.DB.MigrationsPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.Redis.DB = atoiOr(cfg.Redis.DB, v)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	for _, code := range SupportedCryptos {
		if v := os.Getenv(code + "_ADDRESS"); v != "" {
			if cfg.Addresses == nil {
				cfg.Addresses = map[string]string{}
			}
			cfg.Addresses[code] = v
		}
	}
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		cfg.Explorers.EtherscanKey = v
	}
	if v := os.Getenv("BSCSCAN_API_KEY"); v != "" {
		cfg.Explorers.BscscanKey = v
	}
	if v := os.Getenv("TONCENTER_API_KEY"); v != "" {
		cfg.Explorers.ToncenterKey = v
	}
	if v := os.Getenv("COINMARKETCAP_API_KEY"); v != "" {
		cfg.Pricing.APIKey = v
	}
	if v := os.Getenv("DISCOUNT_PERCENTAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pricing.DiscountPercentage = &f
		}
	}
	if v := os.Getenv("PAYMENT_CONFIRMATIONS_REQUIRED"); v != "" {
		cfg.Payments.ConfirmationsRequired = atoi64Or(cfg.Payments.ConfirmationsRequired, v)
	}
	if v := os.Getenv("WORKER_SCHEDULE"); v != "" {
		cfg.Worker.Schedule = v
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		cfg.Worker.Concurrency = atoiOr(cfg.Worker.Concurrency, v)
	}
}

func isSupported(code string) bool {
	for _, c := range SupportedCryptos {
		if c == code {
			return true
		}
	}
	return false
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
