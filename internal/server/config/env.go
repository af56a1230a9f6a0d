package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by the config loader.
const EnvPrefix = "BACKOFFICE_"

// envFileVar names the variable that points at an alternative .env file.
const envFileVar = EnvPrefix + "ENV_FILE"

// lookupEnv resolves a variable from the process environment first and
// from the .env file second. A missing .env file is not an error.
func lookupEnv(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := dotEnv()[key]
	return v, ok
}

// dotEnv reads the .env file named by BACKOFFICE_ENV_FILE, or ./.env.
func dotEnv() map[string]string {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
		return nil
	}
	return vals
}

type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

func envString(name string, field func(*Config) *string) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func envDuration(name string, field func(*Config) *time.Duration) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

func envBool(name string, field func(*Config) *bool) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

func envInt(name string, field func(*Config) *int) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}}
}

var envVars = []envVar{
	envString("HTTP_ADDR", func(c *Config) *string { return &c.HTTPAddr }),
	envString("GRPC_ADDR", func(c *Config) *string { return &c.GRPCAddr }),
	envString("STORE", func(c *Config) *string { return &c.Store }),
	envString("DATABASE_DSN", func(c *Config) *string { return &c.DatabaseDSN }),
	envString("LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }),
	envString("LOG_FORMAT", func(c *Config) *string { return &c.LogFormat }),
	envString("SECRET_KEY", func(c *Config) *string { return &c.SecretKey }),
	envDuration("ACCESS_TOKEN_TTL", func(c *Config) *time.Duration { return &c.AccessTokenValidityDuration }),
	envDuration("REFRESH_TOKEN_TTL", func(c *Config) *time.Duration { return &c.RefreshTokenValidityDuration }),
	envInt("MAX_REFRESH_TOKENS", func(c *Config) *int { return &c.MaxRefreshTokensPerUser }),
	envDuration("PASSWORD_RESET_TTL", func(c *Config) *time.Duration { return &c.PasswordResetValidityDuration }),
	envString("PASSWORD_RESET_URL", func(c *Config) *string { return &c.PasswordResetURL }),
	envBool("COOKIE_SECURE", func(c *Config) *bool { return &c.CookieSecure }),
	envBool("SCHEDULER_ENABLED", func(c *Config) *bool { return &c.SchedulerEnabled }),
	envString("JOBS_MODE", func(c *Config) *string { return &c.JobsMode }),
	envDuration("CLEANUP_INTERVAL", func(c *Config) *time.Duration { return &c.CleanupInterval }),
	envDuration("CLEANUP_TIMEOUT", func(c *Config) *time.Duration { return &c.CleanupTimeout }),
	envDuration("CRON_INTERVAL", func(c *Config) *time.Duration { return &c.CronInterval }),
	envDuration("CRON_TIMEOUT", func(c *Config) *time.Duration { return &c.CronTimeout }),
	envDuration("EVENTS_INTERVAL", func(c *Config) *time.Duration { return &c.EventsInterval }),
	envDuration("EVENTS_TIMEOUT", func(c *Config) *time.Duration { return &c.EventsTimeout }),
	envDuration("EVENTS_HORIZON", func(c *Config) *time.Duration { return &c.EventsHorizon }),
	envString("REPORTS_DIR", func(c *Config) *string { return &c.ReportsDir }),
	envString("S3_ROOT_USER", func(c *Config) *string { return &c.S3RootUser }),
	envString("S3_ROOT_PASSWORD", func(c *Config) *string { return &c.S3RootPassword }),
	envString("S3_BUCKET", func(c *Config) *string { return &c.S3Bucket }),
	envString("S3_REGION", func(c *Config) *string { return &c.S3Region }),
	envString("S3_BASE_ENDPOINT", func(c *Config) *string { return &c.S3BaseEndpoint }),
	envString("NATS_URL", func(c *Config) *string { return &c.NATSURL }),
}

// parseEnv overlays cfg with BACKOFFICE_* variables resolved through lookup.
func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}
