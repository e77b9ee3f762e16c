// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration violates a constraint.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config defines the structure for all application configuration.
type Config struct {
	Symbols  []string       `yaml:"symbols" validate:"min=1,dive,required"`
	LogLevel string         `yaml:"log_level" default:"info" validate:"oneof=debug info warn error fatal"`
	Data     DataConfig     `yaml:"data"`
	Window   WindowConfig   `yaml:"window"`
	Training TrainingConfig `yaml:"training"`
	Loss     LossConfig     `yaml:"loss"`
	Model    ModelConfig    `yaml:"model"`
	Search   SearchConfig   `yaml:"search"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Output   OutputConfig   `yaml:"output"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// DataConfig selects where bars come from.
type DataConfig struct {
	Source string    `yaml:"source" default:"csv" validate:"oneof=csv timescale"`
	CSVDir string    `yaml:"csv_dir" default:"data"`
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
}

// WindowConfig holds the sequence window length and the train/test split ratio.
type WindowConfig struct {
	Length     int     `yaml:"length" default:"60" validate:"gt=0"`
	TrainRatio float64 `yaml:"train_ratio" default:"0.8" validate:"gt=0,lt=1"`
}

// TrainingConfig holds optimizer and loop settings.
type TrainingConfig struct {
	BatchSize      int      `yaml:"batch_size" default:"32" validate:"gt=0"`
	Epochs         int      `yaml:"epochs" default:"50" validate:"gt=0"`
	LearningRate   float64  `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
	WeightDecay    float64  `yaml:"weight_decay" validate:"gte=0"`
	ClipNorm       float64  `yaml:"clip_norm" default:"1.0" validate:"gte=0"`
	LogEvery       int      `yaml:"log_every" default:"10" validate:"gt=0"`
	Workers        int      `yaml:"workers" default:"2" validate:"gte=0"`
	Seed           int64    `yaml:"seed" default:"42"`
	Shuffle        FlexBool `yaml:"shuffle" default:"true"`
	MixedPrecision FlexBool `yaml:"mixed_precision"`
}

// LossConfig holds the composite loss weights.
type LossConfig struct {
	Alpha float64 `yaml:"alpha" default:"1.0" validate:"gte=0"`
	Beta  float64 `yaml:"beta" default:"1.0" validate:"gte=0"`
	Gamma float64 `yaml:"gamma" default:"1.0" validate:"gte=0"`
	Delta float64 `yaml:"delta" default:"1.0" validate:"gte=0"`
}

// ModelConfig holds the architecture used when search is disabled.
type ModelConfig struct {
	DModel  int     `yaml:"d_model" default:"32" validate:"gt=0"`
	Heads   int     `yaml:"heads" default:"4" validate:"gt=0"`
	FFDim   int     `yaml:"ff_dim" default:"64" validate:"gt=0"`
	Layers  int     `yaml:"layers" default:"2" validate:"gt=0"`
	Dropout float64 `yaml:"dropout" default:"0.1" validate:"gte=0,lt=1"`
}

// IntRange is an inclusive integer search range.
type IntRange struct {
	Min int `yaml:"min" validate:"gt=0"`
	Max int `yaml:"max" validate:"gtefield=Min"`
}

// FloatRange is an inclusive continuous search range.
type FloatRange struct {
	Min float64 `yaml:"min" validate:"gte=0"`
	Max float64 `yaml:"max" validate:"gtefield=Min"`
}

// SpaceConfig declares the hyperparameter search space.
type SpaceConfig struct {
	Heads        IntRange   `yaml:"heads" default:"{\"Min\":1,\"Max\":4}"`
	HeadDimMult  IntRange   `yaml:"head_dim_mult" default:"{\"Min\":4,\"Max\":16}"`
	FFDim        IntRange   `yaml:"ff_dim" default:"{\"Min\":16,\"Max\":128}"`
	Layers       IntRange   `yaml:"layers" default:"{\"Min\":1,\"Max\":3}"`
	Dropout      FloatRange `yaml:"dropout" default:"{\"Min\":0.0,\"Max\":0.3}"`
	LearningRate FloatRange `yaml:"learning_rate" default:"{\"Min\":0.0001,\"Max\":0.01}"`
}

// SearchConfig controls the hyperparameter search harness.
type SearchConfig struct {
	Enabled         FlexBool    `yaml:"enabled"`
	Trials          int         `yaml:"trials" default:"20" validate:"gt=0"`
	EpochBudget     int         `yaml:"epoch_budget" default:"10" validate:"gt=0"`
	Parallelism     int         `yaml:"parallelism" default:"1" validate:"gt=0"`
	ValidationRatio float64     `yaml:"validation_ratio" default:"0.2" validate:"gt=0,lt=1"`
	StartupTrials   int         `yaml:"startup_trials" default:"5" validate:"gte=0"`
	WarmupSteps     int         `yaml:"warmup_steps" default:"2" validate:"gte=0"`
	Space           SpaceConfig `yaml:"space"`
}

// DatabaseConfig holds TimescaleDB connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
}

// DSN builds a postgres connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// StorageConfig selects the persistence backend for artifacts and trial history.
type StorageConfig struct {
	Driver     string `yaml:"driver" default:"none" validate:"oneof=none memory sqlite timescale"`
	DSN        string `yaml:"dsn" default:"forecast.db"`
	Migrations string `yaml:"migrations" default:"db/schema"`
	BatchSize  int    `yaml:"batch_size" default:"500" validate:"gt=0"`
}

// OutputConfig controls files written after a run.
type OutputConfig struct {
	PredictionsDir string `yaml:"predictions_dir"`
}

// HTTPConfig controls the health/metrics server. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

var validate = validator.New()

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", configPath, err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides loads sensitive data and overrides from environment variables.
func applyEnvOverrides(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if symbols := os.Getenv("FORECAST_SYMBOLS"); symbols != "" {
		cfg.Symbols = splitList(symbols)
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every field constraint plus the cross-field rules the tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Model.DModel%c.Model.Heads != 0 {
		return fmt.Errorf("%w: model.d_model (%d) must be divisible by model.heads (%d)",
			ErrInvalidConfig, c.Model.DModel, c.Model.Heads)
	}
	if c.Search.Space.LearningRate.Min <= 0 {
		return fmt.Errorf("%w: search.space.learning_rate.min must be positive for log-uniform sampling", ErrInvalidConfig)
	}
	if c.Search.Space.Dropout.Max >= 1 {
		return fmt.Errorf("%w: search.space.dropout.max must be below 1", ErrInvalidConfig)
	}
	if !c.Data.Start.IsZero() && !c.Data.End.IsZero() && !c.Data.End.After(c.Data.Start) {
		return fmt.Errorf("%w: data.end must be after data.start", ErrInvalidConfig)
	}
	return nil
}
