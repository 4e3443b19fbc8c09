// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package config

import (
	"time"
)

// Config is the top-level configuration container for the sync core. It is
// populated by merging values from environment variables, an optional JSON
// file, and built-in defaults.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type Config struct {
	// Adapter holds the remote API address and timeout settings.
	Adapter Adapter `envPrefix:"ADAPTER_" json:"adapter"`

	// Storage holds configuration for the two persistence partitions: the
	// general sqlite database and the encrypted credential file.
	Storage Storage `envPrefix:"STORAGE_" json:"storage"`

	// Sync holds retry and backoff settings for the sync engine.
	Sync Sync `envPrefix:"SYNC_" json:"sync"`

	// LogToFile routes log output to a file next to the executable instead
	// of stdout. Host shells that own stdout (or discard it) set this.
	// Env: OFFSYNC_LOG_TO_FILE
	LogToFile bool `env:"LOG_TO_FILE" json:"log_to_file"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables.
	// Populated via the OFFSYNC_CONFIG environment variable.
	JSONFilePath string `env:"CONFIG" json:"-"`
}

// Adapter holds network settings for the outbound transport layer.
type Adapter struct {
	// BaseURL is the remote API endpoint, e.g. "https://erp.example.com".
	// Env: OFFSYNC_ADAPTER_BASE_URL
	BaseURL string `env:"BASE_URL" json:"base_url"`

	// RequestTimeout bounds every individual network call. A timeout maps
	// to the recoverable-failure transition of the sync engine.
	// Env: OFFSYNC_ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" json:"request_timeout"`
}

// Storage groups the configuration of the persistence backends. The two
// partitions are deliberately separate: business data never lives in the
// credential file and credentials never live in the general database.
type Storage struct {
	// DB holds the general (non-sensitive) sqlite settings.
	DB DB `envPrefix:"DB_" json:"db"`

	// Secure holds the encrypted credential file settings.
	Secure Secure `envPrefix:"SECURE_" json:"secure"`
}

// DB contains local database settings for the durable state store.
type DB struct {
	// DSN is the sqlite file path used for the durable partitions.
	// Env: OFFSYNC_STORAGE_DB_DSN
	DSN string `env:"DSN" json:"dsn"`
}

// Secure contains settings for the encrypted credential store.
type Secure struct {
	// Path is the file the sealed credential blob is written to.
	// Env: OFFSYNC_STORAGE_SECURE_PATH
	Path string `env:"PATH" json:"path"`

	// DeviceKey is the device-bound secret the at-rest encryption key is
	// derived from. Supplied by the platform shell (keystore-backed).
	// Env: OFFSYNC_STORAGE_SECURE_DEVICE_KEY
	DeviceKey string `env:"DEVICE_KEY" json:"device_key"`
}

// Sync contains retry and backoff settings for the sync engine.
type Sync struct {
	// RetryCeiling is the number of server-rejected attempts after which a
	// mutation is failed terminally.
	// Env: OFFSYNC_SYNC_RETRY_CEILING
	RetryCeiling int `env:"RETRY_CEILING" json:"retry_ceiling"`

	// BackoffBase is the first delay of the exponential backoff schedule.
	// Env: OFFSYNC_SYNC_BACKOFF_BASE
	BackoffBase time.Duration `env:"BACKOFF_BASE" json:"backoff_base"`

	// BackoffCap bounds the exponential backoff delay.
	// Env: OFFSYNC_SYNC_BACKOFF_CAP
	BackoffCap time.Duration `env:"BACKOFF_CAP" json:"backoff_cap"`
}

// defaults returns the configuration used when neither the environment nor
// the JSON file provides a value.
func defaults() *Config {
	return &Config{
		Adapter: Adapter{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
		},
		Storage: Storage{
			DB: DB{DSN: "offsync.db"},
			Secure: Secure{
				Path: "credentials.sealed",
			},
		},
		Sync: Sync{
			RetryCeiling: 3,
			BackoffBase:  500 * time.Millisecond,
			BackoffCap:   30 * time.Second,
		},
	}
}

func (c *Config) validate() error {
	if c.Adapter.BaseURL == "" || c.Adapter.RequestTimeout <= 0 {
		return ErrInvalidAdapterConfigs
	}
	if c.Storage.DB.DSN == "" || c.Storage.Secure.Path == "" {
		return ErrInvalidStorageConfigs
	}
	if c.Sync.RetryCeiling <= 0 || c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return ErrInvalidSyncConfigs
	}
	return nil
}

// GetConfig builds and validates the merged configuration. Sources are
// merged in priority order: environment variables win over the optional JSON
// file, which wins over built-in defaults.
func GetConfig() (*Config, error) {
	return newConfigBuilder().
		withEnv().
		withJSON().
		withDefaults().
		build()
}
