package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"graphmix/internal/blob"
	"graphmix/internal/core"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Blob.Driver != blob.DriverFilesystem {
		t.Fatalf("drivers = %s, %s", cfg.Storage.Driver, cfg.Blob.Driver)
	}
	if cfg.PubChemURL != DefaultPubChemURL || cfg.PubChemRPS != DefaultPubChemRPS || cfg.PubChemTimeout != 10*time.Second {
		t.Fatalf("pubchem = %s %g %s", cfg.PubChemURL, cfg.PubChemRPS, cfg.PubChemTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"GRAPHMIX_STORAGE_DRIVER":     "memory",
		"GRAPHMIX_BLOB_DRIVER":        "s3",
		"GRAPHMIX_BLOB_S3_BUCKET":     "protocols",
		"GRAPHMIX_BLOB_S3_PATH_STYLE": "TRUE",
		"GRAPHMIX_PUBCHEM_RPS":        "2.5",
		"GRAPHMIX_PUBCHEM_TIMEOUT":    "3s",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Storage.Driver != core.StorageMemory || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "protocols" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PubChemRPS != 2.5 || cfg.PubChemTimeout != 3*time.Second {
		t.Fatalf("pubchem = %g %s", cfg.PubChemRPS, cfg.PubChemTimeout)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"s3 without bucket": {"GRAPHMIX_BLOB_DRIVER": "s3"},
		"storage driver":    {"GRAPHMIX_STORAGE_DRIVER": "csv"},
		"rate":              {"GRAPHMIX_PUBCHEM_RPS": "fast"},
		"zero rate":         {"GRAPHMIX_PUBCHEM_RPS": "0"},
		"timeout":           {"GRAPHMIX_PUBCHEM_TIMEOUT": "soon"},
	}
	for name, vars := range cases {
		if _, err := FromEnv(env(vars)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidateLogSettings(t *testing.T) {
	cfg, _ := FromEnv(env(nil))
	cfg.LogLevel, cfg.LogFormat = "loud", "xml"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "log level") || !strings.Contains(err.Error(), "log format") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("warn", "json", &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn: %q", buf.String())
	}
	NewLogger("debug", "json", &buf).Debug("shown", "node", "saline")
	if !strings.Contains(buf.String(), `"node":"saline"`) {
		t.Fatalf("output = %q", buf.String())
	}
	buf.Reset()
	NewLogger("bogus", "text", &buf).Info("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestFromEnvLoggingAndOutput(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"GRAPHMIX_LOG_LEVEL":  "debug",
		"GRAPHMIX_LOG_FORMAT": "json",
		"GRAPHMIX_OUTPUT":     "yaml",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" || cfg.Output != "yaml" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if _, err := FromEnv(env(map[string]string{"GRAPHMIX_OUTPUT": "xml"})); err == nil {
		t.Fatalf("xml output accepted")
	}
}
