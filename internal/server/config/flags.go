package config

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	flagConfig           = "config"
	flagHTTPAddr         = "http-addr"
	flagGRPCAddr         = "grpc-addr"
	flagStore            = "store"
	flagDatabaseDSN      = "database-dsn"
	flagLogLevel         = "log-level"
	flagLogFormat        = "log-format"
	flagSecretKey        = "secret-key"
	flagAccessTokenTTL   = "access-token-ttl"
	flagRefreshTokenTTL  = "refresh-token-ttl"
	flagMaxRefreshTokens = "max-refresh-tokens"
	flagCookieSecure     = "cookie-secure"
	flagScheduler        = "scheduler"
	flagJobsMode         = "jobs-mode"
	flagReportsDir       = "reports-dir"
	flagNATSURL          = "nats-url"
)

// RegisterFlags declares the configuration flags on fs. Defaults shown in
// help come from LoadDefaults; only flags the user actually sets override
// the file and environment layers.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(flagConfig, "c", "", "path to a JSON or YAML config file")
	fs.StringP(flagHTTPAddr, "a", d.HTTPAddr, "address for the HTTP API")
	fs.String(flagGRPCAddr, d.GRPCAddr, "address for the gRPC health service")
	fs.String(flagStore, d.Store, "storage backend: postgres or memory")
	fs.StringP(flagDatabaseDSN, "d", d.DatabaseDSN, "Postgres connection string")
	fs.String(flagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	fs.String(flagLogFormat, d.LogFormat, "log format: json or text")
	fs.String(flagSecretKey, d.SecretKey, "HMAC secret for signing access tokens")
	fs.Duration(flagAccessTokenTTL, d.AccessTokenValidityDuration, "access token lifetime")
	fs.Duration(flagRefreshTokenTTL, d.RefreshTokenValidityDuration, "refresh token lifetime")
	fs.Int(flagMaxRefreshTokens, d.MaxRefreshTokensPerUser, "outstanding refresh tokens per user, 0 for no limit")
	fs.Bool(flagCookieSecure, d.CookieSecure, "set the Secure attribute on the refresh token cookie")
	fs.Bool(flagScheduler, d.SchedulerEnabled, "run scheduled jobs inside serve")
	fs.String(flagJobsMode, d.JobsMode, "job execution mode: inprocess or subprocess")
	fs.String(flagReportsDir, d.ReportsDir, "directory for archived job reports")
	fs.String(flagNATSURL, d.NATSURL, "NATS server URL for job events")
}

// applyFlags copies every flag explicitly set on fs into cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		flagHTTPAddr:    &cfg.HTTPAddr,
		flagGRPCAddr:    &cfg.GRPCAddr,
		flagStore:       &cfg.Store,
		flagDatabaseDSN: &cfg.DatabaseDSN,
		flagLogLevel:    &cfg.LogLevel,
		flagLogFormat:   &cfg.LogFormat,
		flagSecretKey:   &cfg.SecretKey,
		flagJobsMode:    &cfg.JobsMode,
		flagReportsDir:  &cfg.ReportsDir,
		flagNATSURL:     &cfg.NATSURL,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durs := map[string]*time.Duration{
		flagAccessTokenTTL:  &cfg.AccessTokenValidityDuration,
		flagRefreshTokenTTL: &cfg.RefreshTokenValidityDuration,
	}
	for name, dst := range durs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	bools := map[string]*bool{
		flagCookieSecure: &cfg.CookieSecure,
		flagScheduler:    &cfg.SchedulerEnabled,
	}
	for name, dst := range bools {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed(flagMaxRefreshTokens) {
		v, err := fs.GetInt(flagMaxRefreshTokens)
		if err != nil {
			return err
		}
		cfg.MaxRefreshTokensPerUser = v
	}
	return nil
}
