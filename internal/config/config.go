package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Auth    AuthConfig
	Fees    FeesConfig
	Logging LoggingConfig
	Storage string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

type FeesConfig struct {
	StructureFile       string
	Structure           ledger.FeeStructure
	DefaultAdmissionFee decimal.Decimal
	DueIn               time.Duration
	MaxRetries          int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		Server: ServerConfig{
			Port:            e.str("PORT", "8080"),
			ReadTimeout:     e.duration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    e.duration("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Mongo: MongoConfig{
			URI:      e.str("MONGOURI", ""),
			Database: e.str("MONGO_DB", "schooldb"),
		},
		Auth: AuthConfig{
			JWTSecret:     e.str("JWT_SECRET", ""),
			TokenTTL:      e.duration("JWT_TTL", 24*time.Hour),
			AdminEmail:    e.str("ADMIN_EMAIL", ""),
			AdminPassword: e.str("ADMIN_PASSWORD", ""),
		},
		Fees: FeesConfig{
			StructureFile:       e.str("FEE_STRUCTURE_FILE", ""),
			DefaultAdmissionFee: e.decimal("DEFAULT_ADMISSION_FEE", decimal.NewFromInt(2000)),
			DueIn:               time.Duration(e.int("FEE_DUE_DAYS", 30)) * 24 * time.Hour,
			MaxRetries:          e.int("FEE_MAX_RETRIES", 5),
		},
		Logging: LoggingConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
		Storage: e.str("STORAGE", StorageMongo),
	}
	if e.err != nil {
		return nil, e.err
	}

	switch cfg.Storage {
	case StorageMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("MONGOURI environment variable not set")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMongo, StorageMemory, cfg.Storage)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	if cfg.Fees.StructureFile != "" {
		fs, err := ledger.LoadFeeStructure(cfg.Fees.StructureFile)
		if err != nil {
			return nil, err
		}
		cfg.Fees.Structure = fs
	} else {
		cfg.Fees.Structure = ledger.DefaultFeeStructure()
	}
	return cfg, nil
}

// env collects the first parse error so FromEnv can report it once.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (e *env) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}
