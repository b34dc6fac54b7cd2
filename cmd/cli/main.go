package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/cryptchat/internal/buildinfo"
	"github.com/dmitrijs2005/cryptchat/internal/client/cli"
	"github.com/dmitrijs2005/cryptchat/internal/client/config"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredential) {
			log.Fatalf("device passphrase does not open the data in %s", cfg.DataDir)
		}
		if errors.Is(err, common.ErrStorageCorruption) {
			log.Fatalf("secure storage in %s could not be recovered: %v", cfg.DataDir, err)
		}
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
