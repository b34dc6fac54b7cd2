package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/filex"
)

// Config holds runtime settings for the cryptchat CLI.
//
// Fields:
//   - UserID: local participant id used to derive conversation ids.
//   - DataDir: root for the encrypted stores, the vault and the device key.
//   - GalleryDir: destination for exported and moved-out images.
//   - DatabaseDSN: optional PostgreSQL DSN for the message repository; empty
//     keeps messages in memory.
//   - S3*: object storage for image message content; an empty bucket keeps
//     content under DataDir instead.
//   - FetchTimeout: per-request timeout for downloading image content.
//   - LogLevel: debug, info, warn or error.
//   - PromptPassphrase: derive the device key from a typed passphrase instead
//     of the generated key file.
type Config struct {
	UserID           string
	DataDir          string
	GalleryDir       string
	DatabaseDSN      string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3Region         string
	S3BaseEndpoint   string
	FetchTimeout     time.Duration
	LogLevel         string
	PromptPassphrase bool
}

var userConfigDir = os.UserConfigDir

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.UserID = "me"
	c.DataDir = defaultDataDir()
	c.GalleryDir = filepath.Join(c.DataDir, "gallery")
	c.S3Region = "us-east-1"
	c.FetchTimeout = 30 * time.Second
	c.LogLevel = "info"
}

func defaultDataDir() string {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		// no per-user config dir (containers, CI): keep data next to the binary's cwd
		if local, err := filex.EnsureSubdDir(".cryptchat"); err == nil {
			return local
		}
		return ".cryptchat"
	}
	return filepath.Join(dir, "cryptchat")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

func (c *Config) KeyStorePath() string    { return filepath.Join(c.DataDir, "conversation_keys.db") }
func (c *Config) CredentialsPath() string { return filepath.Join(c.DataDir, "vault_credentials.db") }
func (c *Config) BiometricPath() string   { return filepath.Join(c.DataDir, "vault_biometric.db") }
func (c *Config) PreferencesPath() string { return filepath.Join(c.DataDir, "preferences.db") }
func (c *Config) VaultDir() string        { return filepath.Join(c.DataDir, "vault") }
func (c *Config) ContentDir() string      { return filepath.Join(c.DataDir, "content") }
func (c *Config) MasterKeyPath() string   { return filepath.Join(c.DataDir, "master.key") }
func (c *Config) MasterSaltPath() string  { return filepath.Join(c.DataDir, "master.salt") }
