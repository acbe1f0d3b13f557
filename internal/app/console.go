package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/uprightlabs/posture_monitor/internal/config"
)

// RunConsole prints the classified stream and every event to the
// terminal. State lines are throttled to the configured interval so a
// 10 Hz stream stays readable.
func RunConsole(cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	interval := time.Duration(cfg.ConsoleLogIntervalMs) * time.Millisecond
	var (
		mu        sync.Mutex
		lastPrint time.Time
	)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m StateMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: state unmarshal error: %v", err)
			return
		}

		mu.Lock()
		if time.Since(lastPrint) < interval {
			mu.Unlock()
			return
		}
		lastPrint = time.Now()
		mu.Unlock()

		fmt.Printf(
			"[STATE] %-9s  angle=%6.2f  raw=%6.2f  score=%3d\n",
			strings.ToUpper(m.State.String()), m.Angle, m.Raw, m.Score,
		)
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicState)

	eventToken := client.Subscribe(cfg.TopicEvents, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev EventMessage
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("console: event unmarshal error: %v", err)
			return
		}

		fmt.Printf("[EVENT] %-13s %s\n", ev.Type, ev.Message)
	})
	eventToken.Wait()
	if eventToken.Error() != nil {
		return eventToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicEvents)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
