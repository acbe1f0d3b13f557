package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/uprightlabs/posture_monitor/internal/config"
)

// eventHold is how long an alert or milestone stays on the panel.
const eventHold = 15 * time.Second

// displayData holds the latest stream values for the redraw loop.
type displayData struct {
	mu sync.RWMutex

	state     StateMessage
	haveState bool

	event     EventMessage
	haveEvent bool
}

// RunDisplay drives the SSD1306 desk indicator: big state word, current
// angle, and the most recent event while it is fresh.
func RunDisplay(cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m StateMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("display: state unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.state = m
		data.haveState = true
		data.mu.Unlock()
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicState)

	eventToken := client.Subscribe(cfg.TopicEvents, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev EventMessage
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("display: event unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.event = ev
		data.haveEvent = true
		data.mu.Unlock()
	})
	eventToken.Wait()
	if eventToken.Error() != nil {
		return eventToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicEvents)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		state, haveState := data.state, data.haveState
		event, haveEvent := data.event, data.haveEvent
		data.mu.RUnlock()

		if err := drawPosture(dev, state, haveState, event, haveEvent); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func drawPosture(dev *ssd1306.Dev, state StateMessage, haveState bool, event EventMessage, haveEvent bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveState {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Posture"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(strings.ToUpper(state.State.String())))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("%6.1f deg", state.Angle)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("score %d", state.Score)))

	if haveEvent && time.Since(event.TS) < eventHold {
		drawer.Dot = fixed.P(0, 56)
		line := "! " + event.Type
		if event.Type == EventStreak {
			line = fmt.Sprintf("* streak %ds", event.StreakSec)
		}
		drawer.DrawBytes([]byte(line))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Upright Labs"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Posture"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("Monitor"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
