// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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

	log.Println("starting posture-monitor recorder (MQTT → sqlite)")

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunRecorder(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
