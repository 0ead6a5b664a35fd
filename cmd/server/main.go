package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AxlAleT/Redes2/pkg/credentials"
	"github.com/AxlAleT/Redes2/pkg/datastore"
	"github.com/AxlAleT/Redes2/pkg/logging"
	"github.com/AxlAleT/Redes2/pkg/mirror"
	"github.com/AxlAleT/Redes2/pkg/server"
	"github.com/AxlAleT/Redes2/pkg/version"
)

// recentUploads bounds the in-memory ledger used without a database.
const recentUploads = 100

// actions are CLI-only modes that run against the database and exit.
type actions struct {
	importCredentials string
	replace           bool
	exportUsers       bool
	exportUploads     bool
}

func main() {
	fl := server.DefaultConfig()

	flag.StringVar(&fl.ListenAddr, "listen", fl.ListenAddr, "TCP bind address")
	flag.StringVar(&fl.CredentialsFile, "credentials", fl.CredentialsFile, "Flat credentials file (user,secret per line)")
	flag.StringVar(&fl.CredentialsDB, "credentials-db", fl.CredentialsDB, "SQLite database for credentials and the upload ledger (overrides -credentials)")
	flag.StringVar(&fl.UploadDir, "uploads", fl.UploadDir, "Directory for received files")
	flag.StringVar(&fl.MetricsAddr, "metrics", fl.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.DurationVar(&fl.MetricsLogInterval, "metrics-log-interval", fl.MetricsLogInterval, "Interval between metrics log summaries (0 to disable)")
	flag.IntVar(&fl.MaxLineLength, "max-line", fl.MaxLineLength, "Maximum protocol line length in bytes")
	flag.StringVar(&fl.Mirror.Bucket, "mirror-bucket", fl.Mirror.Bucket, "S3 bucket to mirror received files to (empty to disable)")

	var act actions
	flag.StringVar(&act.importCredentials, "import-credentials", "", "Import a flat credentials file into -credentials-db and exit")
	flag.BoolVar(&act.replace, "replace", false, "With -import-credentials, drop existing credentials first")
	flag.BoolVar(&act.exportUsers, "export-users", false, "Export usernames from -credentials-db as YAML and exit")
	flag.BoolVar(&act.exportUploads, "export-uploads", false, "Export the upload ledger from -credentials-db as YAML and exit")

	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env-file", ".env", "Environment file with CHAT_* overrides (ignored if missing)")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		version.Print(os.Stdout, "chat-server")
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath, *envFile, fl)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	if act.importCredentials != "" || act.exportUsers || act.exportUploads {
		if err := runActions(cfg, act); err != nil {
			slog.Error("command failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// loadConfig applies, in increasing precedence: defaults, the YAML file, the
// environment (and .env file), then flags given on the command line.
func loadConfig(configPath, envFile string, fl server.Config) (server.Config, error) {
	cfg := server.DefaultConfig()
	if configPath != "" {
		if err := server.LoadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := server.LoadDotEnv(envFile); err != nil {
		return cfg, err
	}
	if err := server.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	overrides := map[string]func(){
		"listen":               func() { cfg.ListenAddr = fl.ListenAddr },
		"credentials":          func() { cfg.CredentialsFile = fl.CredentialsFile },
		"credentials-db":       func() { cfg.CredentialsDB = fl.CredentialsDB },
		"uploads":              func() { cfg.UploadDir = fl.UploadDir },
		"metrics":              func() { cfg.MetricsAddr = fl.MetricsAddr },
		"metrics-log-interval": func() { cfg.MetricsLogInterval = fl.MetricsLogInterval },
		"max-line":             func() { cfg.MaxLineLength = fl.MaxLineLength },
		"mirror-bucket":        func() { cfg.Mirror.Bucket = fl.Mirror.Bucket },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	return cfg, cfg.Validate()
}

func runActions(cfg server.Config, act actions) error {
	if cfg.CredentialsDB == "" {
		return errors.New("-credentials-db is required for import and export")
	}
	st, err := datastore.Open(cfg.CredentialsDB)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if act.importCredentials != "" {
		if _, err := server.ImportCredentialsFile(context.Background(), act.importCredentials, st, act.replace); err != nil {
			return err
		}
	}
	if act.exportUsers {
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			return fmt.Errorf("export users: %w", err)
		}
		fmt.Print(string(data))
	}
	if act.exportUploads {
		data, err := server.ExportUploadsYAML(st)
		if err != nil {
			return fmt.Errorf("export uploads: %w", err)
		}
		fmt.Print(string(data))
	}
	return nil
}

func run(cfg server.Config) error {
	var deps server.Dependencies
	if cfg.CredentialsDB != "" {
		st, err := datastore.Open(cfg.CredentialsDB)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		deps.Credentials = st
		deps.Ledger = st
		slog.Info("using credential database", "path", cfg.CredentialsDB)
	} else {
		deps.Credentials = credentials.NewFileStore(cfg.CredentialsFile)
		deps.Ledger = datastore.NewMemory(recentUploads)
		slog.Info("using credential file", "path", cfg.CredentialsFile)
	}

	if cfg.Mirror.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m, err := mirror.New(ctx, cfg.Mirror)
		cancel()
		if err != nil {
			return err
		}
		deps.Mirror = m
		slog.Info("mirroring uploads", "bucket", cfg.Mirror.Bucket, "prefix", cfg.Mirror.Prefix)
	}

	slog.Info("starting chat server", "version", version.String())
	return server.New(cfg, deps).Run()
}
