package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AxlAleT/Redes2/pkg/mirror"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

// ErrConfig is returned for unreadable or invalid configuration.
var ErrConfig = errors.New("server: invalid configuration")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHAT_"

// Config holds server configuration.
type Config struct {
	ListenAddr         string        `yaml:"listen_addr"`          // TCP bind address (e.g. ":8080")
	CredentialsFile    string        `yaml:"credentials_file"`     // flat user,secret file, re-read on every login
	CredentialsDB      string        `yaml:"credentials_db"`       // SQLite database; replaces the flat file when set
	UploadDir          string        `yaml:"upload_dir"`           // destination directory for received files
	MetricsAddr        string        `yaml:"metrics_addr"`         // HTTP bind address for /metrics (empty = disabled)
	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"` // 0 disables the periodic summary
	MaxLineLength      int           `yaml:"max_line_length"`      // framed line limit including the terminator
	Mirror             mirror.Config `yaml:"mirror"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         fmt.Sprintf(":%d", protocol.DefaultPort),
		CredentialsFile:    "users.csv",
		UploadDir:          "uploads",
		MetricsLogInterval: 60 * time.Second,
		MaxLineLength:      protocol.DefaultMaxLine,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrConfig, path, err)
	}
	return nil
}

// ApplyEnv overlays CHAT_* variables found by lookup onto cfg.
// Pass os.LookupEnv in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN_ADDR":      &cfg.ListenAddr,
		"CREDENTIALS_FILE": &cfg.CredentialsFile,
		"CREDENTIALS_DB":   &cfg.CredentialsDB,
		"UPLOAD_DIR":       &cfg.UploadDir,
		"METRICS_ADDR":     &cfg.MetricsAddr,
		"MIRROR_BUCKET":    &cfg.Mirror.Bucket,
		"MIRROR_REGION":    &cfg.Mirror.Region,
		"MIRROR_ENDPOINT":  &cfg.Mirror.Endpoint,
		"MIRROR_PREFIX":    &cfg.Mirror.Prefix,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "METRICS_LOG_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sMETRICS_LOG_INTERVAL: %w", ErrConfig, EnvPrefix, err)
		}
		cfg.MetricsLogInterval = d
	}
	if v, ok := lookup(EnvPrefix + "MAX_LINE_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_LINE_LENGTH: %w", ErrConfig, EnvPrefix, err)
		}
		cfg.MaxLineLength = n
	}
	if v, ok := lookup(EnvPrefix + "MIRROR_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sMIRROR_PATH_STYLE: %w", ErrConfig, EnvPrefix, err)
		}
		cfg.Mirror.UsePathStyle = b
	}
	return nil
}

// Validate checks that the config can start a server.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen address is empty", ErrConfig)
	case c.CredentialsFile == "" && c.CredentialsDB == "":
		return fmt.Errorf("%w: no credential source configured", ErrConfig)
	case c.UploadDir == "":
		return fmt.Errorf("%w: upload directory is empty", ErrConfig)
	case c.MaxLineLength < 2:
		return fmt.Errorf("%w: max line length %d is too small", ErrConfig, c.MaxLineLength)
	case c.MetricsLogInterval < 0:
		return fmt.Errorf("%w: negative metrics log interval", ErrConfig)
	}
	return nil
}
