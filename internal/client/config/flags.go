package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   local user id
//	-d string   data directory
//	-g string   gallery directory for exports
//	-m string   PostgreSQL DSN for messages
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-t int      image fetch timeout (in seconds)
//	-l string   log level
//	-P          prompt for a device passphrase
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-d", "-g", "-m", "-u", "-p", "-b", "-r", "-e", "-t", "-l", "-P"}, "-P")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.UserID, "n", cfg.UserID, "local user id")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.GalleryDir, "g", cfg.GalleryDir, "gallery directory for exported images")
	fs.StringVar(&cfg.DatabaseDSN, "m", cfg.DatabaseDSN, "PostgreSQL DSN for messages")
	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "r", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fetchTimeout := fs.Int("t", int(cfg.FetchTimeout.Seconds()), "image fetch timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.PromptPassphrase, "P", cfg.PromptPassphrase, "prompt for a device passphrase")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.FetchTimeout = time.Duration(*fetchTimeout) * time.Second
}
