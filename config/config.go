// Package config loads marginbook settings from a YAML file or command-line flags.
// API credentials always come from the environment, optionally populated from a .env file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvAPISecret = "BINANCE_API_SECRET"

	OrderStoreNone  = "none"
	OrderStoreWAL   = "wal"
	OrderStoreRedis = "redis"
)

const (
	defaultWorkers           = 4
	defaultSettleInterval    = 500 * time.Millisecond
	defaultSettleMaxWait     = 10 * time.Second
	defaultHTTPAddr          = ":8080"
	defaultKeepaliveInterval = 30 * time.Minute
	defaultOrderStoreDir     = "./wal/orders"
	defaultRedisPrefix       = "marginbook"
)

var defaultTargetMarginLevel = decimal.RequireFromString("1.3")

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	IsolatedSymbols []domain.Symbol
	CreateMissing   bool
	SettleInterval  time.Duration
	SettleMaxWait   time.Duration
	SeedWorkers     int

	CrossMarginRatio  int
	TargetMarginLevel decimal.Decimal
	ConversionBridges []string

	OrderStore  string
	OrderDir    string
	RedisAddr   string
	RedisPrefix string

	HTTPAddr          string
	StreamURL         string
	KeepaliveInterval time.Duration
}

// fileConfig mirrors the YAML layout; decimals are kept as strings until validated.
type fileConfig struct {
	Testnet  bool `yaml:"testnet"`
	Isolated struct {
		Symbols        []string      `yaml:"symbols"`
		CreateMissing  bool          `yaml:"create_missing"`
		SettleInterval time.Duration `yaml:"settle_interval"`
		SettleMaxWait  time.Duration `yaml:"settle_max_wait"`
	} `yaml:"isolated"`
	Seeding struct {
		Workers int `yaml:"workers"`
	} `yaml:"seeding"`
	Margin struct {
		CrossRatio        int    `yaml:"cross_ratio"`
		TargetMarginLevel string `yaml:"target_margin_level"`
	} `yaml:"margin"`
	ConversionBridges []string `yaml:"conversion_bridges"`
	OrderStore        struct {
		Kind        string `yaml:"kind"`
		Dir         string `yaml:"dir"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisPrefix string `yaml:"redis_prefix"`
	} `yaml:"order_store"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Stream struct {
		BaseURL           string        `yaml:"base_url"`
		KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	} `yaml:"stream"`
}

// Get reads the configuration from --config when given, otherwise from the remaining flags.
func Get(args []string) (Config, error) {
	fs := flag.NewFlagSet("marginbook", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	symbols := fs.String("isolated", "", "comma separated isolated margin symbols, example: ADAEUR,DOT_USDT")
	createMissing := fs.Bool("create-missing", false, "create isolated margin accounts that do not exist")
	workers := fs.Int("workers", defaultWorkers, "concurrent REST calls while seeding")
	settleInterval := fs.Duration("settle-interval", defaultSettleInterval, "first poll delay after creating an isolated account")
	settleMaxWait := fs.Duration("settle-max-wait", defaultSettleMaxWait, "max wait for a created isolated account to appear")
	crossRatio := fs.Int("cross-ratio", domain.DefaultCrossMarginRatio, "cross margin ratio")
	target := fs.String("target-margin-level", defaultTargetMarginLevel.String(), "margin level to keep after a stop-out")
	bridges := fs.String("bridges", "", "comma separated conversion bridge assets")
	store := fs.String("order-store", OrderStoreWAL, "order store: none, wal or redis")
	dir := fs.String("order-dir", defaultOrderStoreDir, "order WAL directory")
	redisAddr := fs.String("redis-addr", "localhost:6379", "redis address for the redis order store")
	httpAddr := fs.String("http", defaultHTTPAddr, "http listen address, empty disables the server")
	streamURL := fs.String("stream-url", "", "user data stream base url")
	keepalive := fs.Duration("keepalive", defaultKeepaliveInterval, "listen key keepalive interval")
	testnet := fs.Bool("testnet", false, "use the Binance testnet")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var (
		cfg Config
		err error
	)
	if *path != "" {
		cfg, err = getYaml(*path)
	} else {
		cfg = Config{
			Testnet:           *testnet,
			IsolatedSymbols:   parseSymbols(splitList(*symbols)),
			CreateMissing:     *createMissing,
			SettleInterval:    *settleInterval,
			SettleMaxWait:     *settleMaxWait,
			SeedWorkers:       *workers,
			CrossMarginRatio:  *crossRatio,
			ConversionBridges: upper(splitList(*bridges)),
			OrderStore:        *store,
			OrderDir:          *dir,
			RedisAddr:         *redisAddr,
			RedisPrefix:       defaultRedisPrefix,
			HTTPAddr:          *httpAddr,
			StreamURL:         *streamURL,
			KeepaliveInterval: *keepalive,
		}
		cfg.TargetMarginLevel, err = decimal.NewFromString(*target)
		if err != nil {
			err = fmt.Errorf("invalid --target-margin-level provided, --target-margin-level=%s", *target)
		}
	}
	if err != nil {
		return Config{}, err
	}

	if err := loadCredentials(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func getYaml(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg := Config{
		Testnet:           fc.Testnet,
		IsolatedSymbols:   parseSymbols(fc.Isolated.Symbols),
		CreateMissing:     fc.Isolated.CreateMissing,
		SettleInterval:    fc.Isolated.SettleInterval,
		SettleMaxWait:     fc.Isolated.SettleMaxWait,
		SeedWorkers:       fc.Seeding.Workers,
		CrossMarginRatio:  fc.Margin.CrossRatio,
		TargetMarginLevel: defaultTargetMarginLevel,
		ConversionBridges: upper(fc.ConversionBridges),
		OrderStore:        fc.OrderStore.Kind,
		OrderDir:          fc.OrderStore.Dir,
		RedisAddr:         fc.OrderStore.RedisAddr,
		RedisPrefix:       fc.OrderStore.RedisPrefix,
		HTTPAddr:          fc.HTTP.Addr,
		StreamURL:         fc.Stream.BaseURL,
		KeepaliveInterval: fc.Stream.KeepaliveInterval,
	}

	if fc.Margin.TargetMarginLevel != "" {
		cfg.TargetMarginLevel, err = decimal.NewFromString(fc.Margin.TargetMarginLevel)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'target_margin_level' param in yaml config (must be a decimal), error: %w", err)
		}
	}

	// zero values in the file fall back to the flag defaults
	if cfg.SeedWorkers == 0 {
		cfg.SeedWorkers = defaultWorkers
	}
	if cfg.SettleInterval == 0 {
		cfg.SettleInterval = defaultSettleInterval
	}
	if cfg.SettleMaxWait == 0 {
		cfg.SettleMaxWait = defaultSettleMaxWait
	}
	if cfg.CrossMarginRatio == 0 {
		cfg.CrossMarginRatio = domain.DefaultCrossMarginRatio
	}
	if cfg.OrderStore == "" {
		cfg.OrderStore = OrderStoreWAL
	}
	if cfg.OrderDir == "" {
		cfg.OrderDir = defaultOrderStoreDir
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaultRedisPrefix
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = defaultKeepaliveInterval
	}

	return cfg, nil
}

// loadCredentials reads the API keys, a missing .env file is not an error.
func loadCredentials(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}

	cfg.APIKey = os.Getenv(EnvAPIKey)
	cfg.APISecret = os.Getenv(EnvAPISecret)
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("%s and %s environment variables must be set", EnvAPIKey, EnvAPISecret)
	}

	return nil
}

func (c Config) validate() error {
	if c.SeedWorkers < 1 {
		return fmt.Errorf("invalid seeding workers %d, must be at least 1", c.SeedWorkers)
	}
	if c.CrossMarginRatio <= 1 {
		return fmt.Errorf("invalid cross margin ratio %d, must be greater than 1", c.CrossMarginRatio)
	}
	if !c.TargetMarginLevel.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid target margin level %s, must be greater than 1", c.TargetMarginLevel)
	}
	if c.SettleInterval <= 0 || c.SettleMaxWait < c.SettleInterval {
		return fmt.Errorf("invalid settle timing: interval %s, max wait %s", c.SettleInterval, c.SettleMaxWait)
	}

	switch c.OrderStore {
	case OrderStoreNone, OrderStoreWAL:
	case OrderStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("redis order store requires a redis address")
		}
	default:
		return fmt.Errorf("unknown order store %q", c.OrderStore)
	}

	if c.CreateMissing && len(c.IsolatedSymbols) == 0 {
		return errors.New("create missing isolated accounts requires isolated symbols")
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSymbols(raw []string) []domain.Symbol {
	var out []domain.Symbol
	seen := make(map[domain.Symbol]bool, len(raw))
	for _, r := range raw {
		s := domain.NormalizeSymbol(r)
		if s.IsZero() || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func upper(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}
