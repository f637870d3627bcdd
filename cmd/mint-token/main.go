package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/inventory-sync/pkg/auth"
	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// mint-token prints a service token for a storefront or automation caller.
// Only the INVSYNC_AUTH_* variables are read.
func main() {
	subject := flag.String("subject", "", "caller identity, e.g. storefront")
	scopes := flag.String("scopes", "", "comma separated scopes; empty grants full access")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "mint-token", Output: os.Stderr, Format: logger.FormatConsole})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, ".env file not found, relying on environment")
	}

	var cfg config.AuthConfig
	if err := envconfig.Process(config.EnvPrefix, &cfg); err != nil {
		logg.Error(ctx, "failed to load auth config", err)
		os.Exit(1)
	}

	var requested []string
	if *scopes != "" {
		requested = strings.Split(*scopes, ",")
	}
	token, err := auth.MintServiceToken(cfg, time.Now().UTC(), auth.ServiceTokenPayload{
		Subject: *subject,
		Scopes:  requested,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(2)
	}
	fmt.Println(token)
}
