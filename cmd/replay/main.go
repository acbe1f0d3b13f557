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
	logPath := flag.String("log", "", "sample log to replay (CSV: ts,ax,ay,az,gx,gy,gz)")
	persist := flag.Bool("persist", false, "store the replayed session in the database")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("missing -log: nothing to replay")
	}

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReplay(cfg, *logPath, *persist); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
