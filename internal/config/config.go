// Package config loads runtime settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/model"
)

// Config holds all runtime settings.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
}

type ServerConfig struct {
	Addr            string
	GRPCAddr        string
	ShutdownTimeout int // seconds
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type LoggerConfig struct {
	Level         string
	Encoding      string
	Path          string
	DisableCaller bool
}

type AuthConfig struct {
	AdminUser string
	JWTSecret string
}

type LedgerConfig struct {
	// ConfirmKinds lists the transfer kinds that support the confirmed tier.
	// "*" enables it for every kind.
	ConfirmKinds []string
}

// ConfirmPolicy returns the deployment's confirmation policy.
func (c LedgerConfig) ConfirmPolicy() model.ConfirmPolicy {
	return model.ParseConfirmPolicy(strings.Join(c.ConfirmKinds, ","))
}

// envFileVar names the variable pointing at an alternative .env file.
const envFileVar = "POVRATNA_ENV_FILE"

const usage = `Usage: povratna [flags]

Flags:
  -d, -db <dsn>           database path or DSN (default: povratna.sqlite3)
      -driver <name>      database driver, sqlite or postgres (default: sqlite)
  -a, -addr <host:port>   HTTP listen address (default: :8080)
  -g, -grpc <host:port>   gRPC health listen address (default: disabled)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
      -log-level <level>  debug, info, warn or error (default: info)
      -confirm <kinds>    comma separated kinds with a confirmed tier, * for all
  -h, -help               show this help and exit

Every flag also has a POVRATNA_* environment variable, optionally read from .env.
`

// Load reads the configuration. Values from the environment override the
// .env file and flags in args override both.
func Load(args []string) (*Config, error) {
	env, err := readEnvFile(getEnvOS(envFileVar, ".env"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            env.get("POVRATNA_ADDR", ":8080"),
			GRPCAddr:        env.get("POVRATNA_GRPC_ADDR", ""),
			ShutdownTimeout: env.getInt("POVRATNA_SHUTDOWN_TIMEOUT", 5),
		},
		Database: DatabaseConfig{
			Driver:       env.get("POVRATNA_DB_DRIVER", db.DriverSQLite),
			DSN:          env.get("POVRATNA_DB", "povratna.sqlite3"),
			MaxOpenConns: env.getInt("POVRATNA_DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: env.getInt("POVRATNA_DB_MAX_IDLE_CONNS", 5),
		},
		Logger: LoggerConfig{
			Level:         env.get("POVRATNA_LOG_LEVEL", "info"),
			Encoding:      env.get("POVRATNA_LOG_ENCODING", "console"),
			Path:          env.get("POVRATNA_LOG", ""),
			DisableCaller: env.getBool("POVRATNA_LOG_DISABLE_CALLER", false),
		},
		Auth: AuthConfig{
			AdminUser: env.get("POVRATNA_ADMIN_USER", "Admin"),
			JWTSecret: env.get("POVRATNA_JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			ConfirmKinds: env.getSlice("POVRATNA_CONFIRM_KINDS", []string{model.KindDailyReturn}),
		},
	}

	fset := flag.NewFlagSet("povratna", flag.ContinueOnError)
	fset.Usage = func() { fmt.Fprint(fset.Output(), usage) }

	stringFlag(fset, &cfg.Database.DSN, "db", "d")
	stringFlag(fset, &cfg.Database.Driver, "driver", "")
	stringFlag(fset, &cfg.Server.Addr, "addr", "a")
	stringFlag(fset, &cfg.Server.GRPCAddr, "grpc", "g")
	stringFlag(fset, &cfg.Auth.AdminUser, "user", "u")
	stringFlag(fset, &cfg.Logger.Path, "log", "l")
	stringFlag(fset, &cfg.Logger.Level, "log-level", "")

	confirm := strings.Join(cfg.Ledger.ConfirmKinds, ",")
	fset.StringVar(&confirm, "confirm", confirm, "")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fset.Arg(0))
	}
	cfg.Ledger.ConfirmKinds = splitList(confirm)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case db.DriverSQLite, db.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database path or DSN required")
	}
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Logger.Level)
	}
	if c.Logger.Encoding != "console" && c.Logger.Encoding != "json" {
		return fmt.Errorf("invalid log encoding %q", c.Logger.Encoding)
	}
	if c.Auth.AdminUser == "" {
		return errors.New("admin username required")
	}
	return nil
}

func stringFlag(fset *flag.FlagSet, p *string, long, short string) {
	fset.StringVar(p, long, *p, "")
	if short != "" {
		fset.StringVar(p, short, *p, "")
	}
}

// envSource resolves variables from the process environment first and the
// .env file second.
type envSource map[string]string

func readEnvFile(path string) (envSource, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return envSource{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return values, nil
}

func (e envSource) lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := e[key]
	return value, ok
}

func (e envSource) get(key, fallback string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return fallback
}

func (e envSource) getInt(key string, fallback int) int {
	if value, ok := e.lookup(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func (e envSource) getBool(key string, fallback bool) bool {
	if value, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func (e envSource) getSlice(key string, fallback []string) []string {
	if value, ok := e.lookup(key); ok {
		return splitList(value)
	}
	return fallback
}

func getEnvOS(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
