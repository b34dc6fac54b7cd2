package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cryptchat/internal/flagx"
	"github.com/dmitrijs2005/cryptchat/internal/timex"
)

// JsonConfig is the DTO used for reading JSON configuration files. The purge
// interval uses timex.Duration, so both "30s" and integer nanoseconds parse.
type JsonConfig struct {
	DatabaseDSN   string         `json:"database_dsn"`
	PurgeInterval timex.Duration `json:"purge_interval"`
	LogLevel      string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config into config. Keys missing from the file leave the current value.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.PurgeInterval.Duration > 0 {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}
