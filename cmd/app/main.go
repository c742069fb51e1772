package main

import (
	"flag"
	"log"
	"os"

	"MidgardPull/internal/di"
	"MidgardPull/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s source=%s pool=%s interval=%s mirror=%s",
		cfg.Environment, cfg.Source.BaseURL, cfg.Source.Pool, cfg.Source.Interval, cfg.Mirror.Type)

	// Wire DI. Failing to reach the interval store here is the only fatal startup error.
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
