// Package app holds the process configuration shared by the graphmix
// commands and the logger they build from it.
package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"graphmix/internal/blob"
	"graphmix/internal/core"
	"graphmix/pkg/protocol"
)

// Config is everything a command needs to reach its collaborators.
type Config struct {
	LogLevel  string
	LogFormat string
	Output    protocol.Format

	Storage core.StorageConfig
	Blob    blob.Config

	PubChemURL     string
	PubChemRPS     float64
	PubChemTimeout time.Duration
}

const (
	DefaultPubChemURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	DefaultPubChemRPS = 5
)

// FromEnv reads the GRAPHMIX_* variables through getenv.
//
//	GRAPHMIX_LOG_LEVEL, GRAPHMIX_LOG_FORMAT: logger (default info, text)
//	GRAPHMIX_OUTPUT: json|yaml document format (default json)
//	GRAPHMIX_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GRAPHMIX_SQLITE_PATH: sqlite file (default graphmix.db)
//	GRAPHMIX_POSTGRES_DSN: postgres DSN
//	GRAPHMIX_BLOB_DRIVER: fs|s3|memory (default fs)
//	GRAPHMIX_BLOB_FS_ROOT: archive directory (default ./blobdata)
//	GRAPHMIX_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE
//	GRAPHMIX_PUBCHEM_URL, GRAPHMIX_PUBCHEM_RPS, GRAPHMIX_PUBCHEM_TIMEOUT
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		LogLevel:  "info",
		LogFormat: "text",
		Output:    protocol.JSON,
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(getenv("GRAPHMIX_STORAGE_DRIVER")),
			SQLitePath:  getenv("GRAPHMIX_SQLITE_PATH"),
			PostgresDSN: getenv("GRAPHMIX_POSTGRES_DSN"),
		},
		Blob: blob.Config{
			Driver: blob.Driver(getenv("GRAPHMIX_BLOB_DRIVER")),
			FSRoot: getenv("GRAPHMIX_BLOB_FS_ROOT"),
			S3: blob.S3Config{
				Bucket:    getenv("GRAPHMIX_BLOB_S3_BUCKET"),
				Region:    getenv("GRAPHMIX_BLOB_S3_REGION"),
				Endpoint:  getenv("GRAPHMIX_BLOB_S3_ENDPOINT"),
				PathStyle: strings.EqualFold(getenv("GRAPHMIX_BLOB_S3_PATH_STYLE"), "true"),
			},
		},
		PubChemURL:     getenv("GRAPHMIX_PUBCHEM_URL"),
		PubChemRPS:     DefaultPubChemRPS,
		PubChemTimeout: 10 * time.Second,
	}
	if v := getenv("GRAPHMIX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("GRAPHMIX_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("GRAPHMIX_OUTPUT"); v != "" {
		cfg.Output = protocol.Format(v)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = core.StorageSQLite
	}
	if cfg.Blob.Driver == "" {
		cfg.Blob.Driver = blob.DriverFilesystem
	}
	if cfg.PubChemURL == "" {
		cfg.PubChemURL = DefaultPubChemURL
	}
	if v := getenv("GRAPHMIX_PUBCHEM_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("GRAPHMIX_PUBCHEM_RPS: %w", err)
		}
		cfg.PubChemRPS = rps
	}
	if v := getenv("GRAPHMIX_PUBCHEM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("GRAPHMIX_PUBCHEM_TIMEOUT: %w", err)
		}
		cfg.PubChemTimeout = d
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated fields and driver-specific requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be text or json", c.LogFormat))
	}
	if c.Output != protocol.JSON && c.Output != protocol.YAML {
		errs = append(errs, fmt.Errorf("invalid output format %q: must be json or yaml", c.Output))
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("GRAPHMIX_BLOB_S3_BUCKET required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.PubChemRPS <= 0 {
		errs = append(errs, fmt.Errorf("pubchem rate must be positive, got %g", c.PubChemRPS))
	}
	return errors.Join(errs...)
}
