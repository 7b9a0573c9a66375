// Command client is the GrabSmart command-line client.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/grabsmart/internal/client/cli"
	"github.com/dmitrijs2005/grabsmart/internal/client/config"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
