// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibrate/main.go
//
// Guided zero-point calibration for the posture sensor. The wearer sits
// in their neutral upright posture while the tool averages the
// accelerometer tilt over a stationary window, then writes the offset
// file the sampler loads at boot.
//
// Run:
//
//	go run ./cmd/calibrate
//
// Notes:
//   - The offset is stored in radians; the sampler subtracts it from the
//     fused orientation before classification.
//   - The reported stddev is the spread of the window in degrees. A large
//     spread means the wearer moved; re-run in that case.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/uprightlabs/posture_monitor/internal/app"
	"github.com/uprightlabs/posture_monitor/internal/config"
	"github.com/uprightlabs/posture_monitor/internal/orientation"
)

// Spread above this many degrees suggests the wearer moved during the
// window.
const qualityWarnDeg = 2.0

func main() {
	configPath := flag.String("config", "./posture_config.txt", "path to configuration file")
	outPath := flag.String("out", "", "offset file to write (default: CALIBRATION_FILE from config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *outPath == "" {
		*outPath = cfg.CalibrationFile
	}

	src, err := app.OpenSource(cfg)
	if err != nil {
		log.Fatalf("failed to open %s source: %v", cfg.SensorSource, err)
	}
	if c, ok := src.(interface{ Close() error }); ok {
		defer c.Close()
	}

	window := cfg.CalibrationWindow
	interval := time.Duration(cfg.CalibrationIntervalMs) * time.Millisecond

	fmt.Println("=== Posture zero-point calibration ===")
	fmt.Println()
	fmt.Println("Sit (or have the wearer sit) in a comfortable, upright,")
	fmt.Println("neutral posture. This pose becomes the 0° reference.")
	fmt.Println()
	fmt.Print("Press Enter to start sampling... ")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		log.Fatalf("stdin: %v", err)
	}

	fmt.Printf("Sampling %d readings over ~%.1fs, hold still...\n",
		window, (time.Duration(window) * interval).Seconds())

	off, quality, err := orientation.Calibrate(src, window, interval)
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("Offset:  pitch %+.4f rad, roll %+.4f rad\n", off.Pitch, off.Roll)
	fmt.Printf("Quality: stddev pitch %.2f°, roll %.2f°\n", quality.PitchStdDev, quality.RollStdDev)
	if quality.PitchStdDev > qualityWarnDeg || quality.RollStdDev > qualityWarnDeg {
		fmt.Println()
		fmt.Println("WARNING: large spread, the device probably moved. Re-run for a cleaner zero point.")
	}

	if err := orientation.SaveOffset(*outPath, off, quality); err != nil {
		log.Fatalf("failed to write offset file: %v", err)
	}
	fmt.Printf("\nWrote %s\n", *outPath)
}
