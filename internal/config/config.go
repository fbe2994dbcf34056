package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/quickbooks"
	"github.com/Veraticus/tally/internal/resolver"
)

// EnvPrefix prefixes every environment override, e.g. TALLY_DATABASE_PATH.
const EnvPrefix = "TALLY"

// DefaultDatabasePath is where the database lives unless database.path says otherwise.
const DefaultDatabasePath = "$HOME/.local/share/tally/tally.db"

// Settings is the resolved configuration for one command invocation.
type Settings struct {
	DatabasePath      string
	LogLevel          string
	LogFormat         string
	Environment       model.Environment
	QuickBooks        quickbooks.Config
	Thresholds        resolver.Thresholds
	BackfillThreshold float64
	Workers           int
}

// SetDefaults registers the default for every key tally reads.
func SetDefaults(v *viper.Viper) {
	qb := quickbooks.DefaultConfig()
	th := resolver.DefaultThresholds()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("quickbooks.environment", string(model.EnvironmentSandbox))
	v.SetDefault("quickbooks.token_url", qb.TokenURL)
	v.SetDefault("quickbooks.timeout", qb.Timeout)
	v.SetDefault("quickbooks.requests_per_second", qb.RequestsPerSecond)
	v.SetDefault("quickbooks.page_size", qb.PageSize)
	v.SetDefault("matching.auto_threshold", th.Auto)
	v.SetDefault("matching.suggest_threshold", th.Suggest)
	v.SetDefault("matching.max_suggestions", th.MaxSuggestions)
	v.SetDefault("matching.backfill_threshold", 0.8)
	v.SetDefault("import.workers", 1)
}

// Init points v at the config file (cfgFile, or config.yaml in Dir and the working directory),
// enables TALLY_ environment overrides and registers defaults. A missing config file is not
// an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are skipped and variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(ExpandPath(path)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves Settings from v. QuickBooks credentials are not required here; commands that
// talk to the provider call QuickBooks.Validate themselves.
func Load(v *viper.Viper) (*Settings, error) {
	env, err := model.ParseEnvironment(v.GetString("quickbooks.environment"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	s := &Settings{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		LogLevel:     v.GetString("logging.level"),
		LogFormat:    v.GetString("logging.format"),
		Environment:  env,
		QuickBooks: quickbooks.Config{
			ClientID:          v.GetString("quickbooks.client_id"),
			ClientSecret:      v.GetString("quickbooks.client_secret"),
			TokenURL:          v.GetString("quickbooks.token_url"),
			BaseURL:           v.GetString("quickbooks.base_url"),
			Timeout:           v.GetDuration("quickbooks.timeout"),
			RequestsPerSecond: v.GetFloat64("quickbooks.requests_per_second"),
			PageSize:          v.GetInt("quickbooks.page_size"),
		},
		Thresholds: resolver.Thresholds{
			Auto:           v.GetInt("matching.auto_threshold"),
			Suggest:        v.GetInt("matching.suggest_threshold"),
			MaxSuggestions: v.GetInt("matching.max_suggestions"),
		},
		BackfillThreshold: v.GetFloat64("matching.backfill_threshold"),
		Workers:           v.GetInt("import.workers"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings every command depends on.
func (s *Settings) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if _, err := common.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.Thresholds.Suggest < 0 || s.Thresholds.Auto > 100 || s.Thresholds.Suggest > s.Thresholds.Auto {
		return fmt.Errorf("%w: matching thresholds must satisfy 0 <= suggest <= auto <= 100",
			common.ErrInvalidConfig)
	}
	if s.BackfillThreshold <= 0 || s.BackfillThreshold > 1 {
		return fmt.Errorf("%w: matching.backfill_threshold must be in (0, 1]", common.ErrInvalidConfig)
	}
	if s.Workers < 1 {
		return fmt.Errorf("%w: import.workers must be at least 1", common.ErrInvalidConfig)
	}
	if s.QuickBooks.Timeout <= 0 {
		return fmt.Errorf("%w: quickbooks.timeout must be positive", common.ErrInvalidConfig)
	}
	return nil
}
