package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cateringhub/backoffice/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used exclusively for file unmarshalling.
// Durations go through timex.Duration so files can specify "15m" or
// integer nanoseconds. Only non-zero values are copied into Config, so a
// file may set a subset of fields.
type FileConfig struct {
	HTTPAddr    string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr"`
	Store       string `json:"store" yaml:"store"`
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFormat   string `json:"log_format" yaml:"log_format"`

	SecretKey                     string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration   timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration  timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	MaxRefreshTokensPerUser       *int           `json:"max_refresh_tokens_per_user" yaml:"max_refresh_tokens_per_user"`
	PasswordResetValidityDuration timex.Duration `json:"password_reset_validity_duration" yaml:"password_reset_validity_duration"`
	PasswordResetURL              string         `json:"password_reset_url" yaml:"password_reset_url"`
	CookieSecure                  *bool          `json:"cookie_secure" yaml:"cookie_secure"`

	Jobs struct {
		SchedulerEnabled *bool          `json:"scheduler_enabled" yaml:"scheduler_enabled"`
		Mode             string         `json:"mode" yaml:"mode"`
		CleanupInterval  timex.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
		CleanupTimeout   timex.Duration `json:"cleanup_timeout" yaml:"cleanup_timeout"`
		CronInterval     timex.Duration `json:"cron_interval" yaml:"cron_interval"`
		CronTimeout      timex.Duration `json:"cron_timeout" yaml:"cron_timeout"`
		EventsInterval   timex.Duration `json:"events_interval" yaml:"events_interval"`
		EventsTimeout    timex.Duration `json:"events_timeout" yaml:"events_timeout"`
		EventsHorizon    timex.Duration `json:"events_horizon" yaml:"events_horizon"`
	} `json:"jobs" yaml:"jobs"`

	Reports struct {
		Dir            string `json:"dir" yaml:"dir"`
		S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user"`
		S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password"`
		S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
		S3Region       string `json:"s3_region" yaml:"s3_region"`
		S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	} `json:"reports" yaml:"reports"`

	NATSURL string `json:"nats_url" yaml:"nats_url"`
}

// parseFile overlays cfg with values from a JSON or YAML file. The format
// is chosen by extension: .yaml and .yml are YAML, anything else is JSON.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.GRPCAddr, fc.GRPCAddr)
	setString(&cfg.Store, fc.Store)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)

	setString(&cfg.SecretKey, fc.SecretKey)
	setDuration(&cfg.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration)
	if fc.MaxRefreshTokensPerUser != nil {
		cfg.MaxRefreshTokensPerUser = *fc.MaxRefreshTokensPerUser
	}
	setDuration(&cfg.PasswordResetValidityDuration, fc.PasswordResetValidityDuration)
	setString(&cfg.PasswordResetURL, fc.PasswordResetURL)
	if fc.CookieSecure != nil {
		cfg.CookieSecure = *fc.CookieSecure
	}

	if fc.Jobs.SchedulerEnabled != nil {
		cfg.SchedulerEnabled = *fc.Jobs.SchedulerEnabled
	}
	setString(&cfg.JobsMode, fc.Jobs.Mode)
	setDuration(&cfg.CleanupInterval, fc.Jobs.CleanupInterval)
	setDuration(&cfg.CleanupTimeout, fc.Jobs.CleanupTimeout)
	setDuration(&cfg.CronInterval, fc.Jobs.CronInterval)
	setDuration(&cfg.CronTimeout, fc.Jobs.CronTimeout)
	setDuration(&cfg.EventsInterval, fc.Jobs.EventsInterval)
	setDuration(&cfg.EventsTimeout, fc.Jobs.EventsTimeout)
	setDuration(&cfg.EventsHorizon, fc.Jobs.EventsHorizon)

	setString(&cfg.ReportsDir, fc.Reports.Dir)
	setString(&cfg.S3RootUser, fc.Reports.S3RootUser)
	setString(&cfg.S3RootPassword, fc.Reports.S3RootPassword)
	setString(&cfg.S3Bucket, fc.Reports.S3Bucket)
	setString(&cfg.S3Region, fc.Reports.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.Reports.S3BaseEndpoint)

	setString(&cfg.NATSURL, fc.NATSURL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
