package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/uprightlabs/posture_monitor/internal/app"
	"github.com/uprightlabs/posture_monitor/internal/config"
)

func main() {
	configPath := flag.String("config", "./posture_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting posture-monitor console (MQTT subscriber)")

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
