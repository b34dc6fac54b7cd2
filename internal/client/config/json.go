package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cryptchat/internal/flagx"
	"github.com/dmitrijs2005/cryptchat/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify the fetch timeout either
// as a string like "30s" or as integer nanoseconds.
type JsonConfig struct {
	UserID           string         `json:"user_id"`
	DataDir          string         `json:"data_dir"`
	GalleryDir       string         `json:"gallery_dir"`
	DatabaseDSN      string         `json:"database_dsn"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	FetchTimeout     timex.Duration `json:"fetch_timeout"`
	LogLevel         string         `json:"log_level"`
	PromptPassphrase bool           `json:"prompt_passphrase"`
}

// parseJson overlays Config with values loaded from a JSON file selected by
// -c or -config. Fields absent from the file keep their current value.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlay(&cfg.UserID, jc.UserID)
	overlay(&cfg.DataDir, jc.DataDir)
	overlay(&cfg.GalleryDir, jc.GalleryDir)
	overlay(&cfg.DatabaseDSN, jc.DatabaseDSN)
	overlay(&cfg.S3AccessKey, jc.S3AccessKey)
	overlay(&cfg.S3SecretKey, jc.S3SecretKey)
	overlay(&cfg.S3Bucket, jc.S3Bucket)
	overlay(&cfg.S3Region, jc.S3Region)
	overlay(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	overlay(&cfg.LogLevel, jc.LogLevel)
	if jc.FetchTimeout.Duration > 0 {
		cfg.FetchTimeout = jc.FetchTimeout.Duration
	}
	if jc.PromptPassphrase {
		cfg.PromptPassphrase = true
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
