package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/uprightlabs/posture_monitor/internal/posture"
)

// Config holds all application configuration values. Binaries load one
// Config and hand it (or pieces of it) to the components they construct;
// there is no shared global instance.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDSampler  string
	MQTTClientIDRecorder string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicAngle   string // live angle stream
	TopicState   string // classified state stream
	TopicEvents  string // alerts + streak milestones
	TopicControl string // session start/stop commands

	// Sensor source: "mock", "serial" or "mpu9250"
	SensorSource string

	// Serial wearable
	SerialPort string
	SerialBaud int

	// MPU-9250 over SPI
	SPIDevice string
	SPICSPin  string

	// Raw count scaling
	AccelCountsPerG  float64
	GyroCountsPerDPS float64

	// Sampling & calibration
	SampleIntervalMs      int
	CalibrationWindow     int
	CalibrationIntervalMs int
	CalibrationFile       string

	// Filtering & classification
	BlendAlpha     float64 // complementary filter gyro weight, [0,1]
	SmoothingAlpha float64 // client-side exponential smoothing, (0,1]
	PrimaryAxis    string  // "pitch" or "roll"

	ThresholdExcellentDeg float64
	ThresholdGoodDeg      float64
	ThresholdFairDeg      float64

	// Alerting
	MinAlertDurationSec  int
	AlertCooldownSec     int
	ReinforceIntervalSec int

	// Haptic motor (sampler); empty pin disables the actuator
	MotorGPIOPin string
	MotorPulseMs int

	// Display
	DisplayI2CBus           string // empty means the platform default bus
	DisplayI2CAddr          uint16
	DisplayUpdateIntervalMs int

	// Storage & retention (recorder)
	DBPath        string
	RetentionDays int
	RollupCron    string

	// HTTP
	WebServerPort   int
	SamplerHTTPPort int // single-value /angle responder on the device

	// Console
	ConsoleLogIntervalMs int
}

// Default returns the configuration every binary starts from; a config
// file only needs the keys that differ.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDSampler:  "posture-sampler",
		MQTTClientIDRecorder: "posture-recorder",
		MQTTClientIDConsole:  "posture-console",
		MQTTClientIDWeb:      "posture-web",
		MQTTClientIDDisplay:  "posture-display",

		TopicAngle:   "posture/angle",
		TopicState:   "posture/state",
		TopicEvents:  "posture/events",
		TopicControl: "posture/control",

		SensorSource: "mock",
		SerialPort:   "/dev/ttyUSB0",
		SerialBaud:   115200,
		SPIDevice:    "/dev/spidev0.0",
		SPICSPin:     "18",

		AccelCountsPerG:  16384, // ±2g full scale
		GyroCountsPerDPS: 131,   // ±250 deg/s full scale

		SampleIntervalMs:      100,
		CalibrationWindow:     500,
		CalibrationIntervalMs: 5,
		CalibrationFile:       "posture_offset.json",

		BlendAlpha:     0.98,
		SmoothingAlpha: 0.30,
		PrimaryAxis:    "pitch",

		ThresholdExcellentDeg: 5,
		ThresholdGoodDeg:      15,
		ThresholdFairDeg:      25,

		MinAlertDurationSec:  30,
		AlertCooldownSec:     300,
		ReinforceIntervalSec: 1800,

		MotorGPIOPin: "",
		MotorPulseMs: 400,

		DisplayI2CBus:           "",
		DisplayI2CAddr:          0x3C,
		DisplayUpdateIntervalMs: 1000,

		DBPath:        "posture.db",
		RetentionDays: 14,
		RollupCron:    "0 3 * * *",

		WebServerPort:   8085,
		SamplerHTTPPort: 8081,

		ConsoleLogIntervalMs: 1000,
	}
}

// Load reads a KEY=VALUE configuration file over the defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load, but a missing file is not an error:
// the defaults plus environment overrides are used instead. Deployments
// that configure everything through the environment run without a file.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configKeys lists every key setValue recognizes, for environment
// overrides.
var configKeys = []string{
	"MQTT_BROKER",
	"MQTT_CLIENT_ID_SAMPLER", "MQTT_CLIENT_ID_RECORDER", "MQTT_CLIENT_ID_CONSOLE",
	"MQTT_CLIENT_ID_WEB", "MQTT_CLIENT_ID_DISPLAY",
	"TOPIC_ANGLE", "TOPIC_STATE", "TOPIC_EVENTS", "TOPIC_CONTROL",
	"SENSOR_SOURCE", "SERIAL_PORT", "SERIAL_BAUD", "SPI_DEVICE", "SPI_CS_PIN",
	"ACCEL_COUNTS_PER_G", "GYRO_COUNTS_PER_DPS",
	"SAMPLE_INTERVAL_MS", "CALIBRATION_WINDOW", "CALIBRATION_INTERVAL_MS", "CALIBRATION_FILE",
	"BLEND_ALPHA", "SMOOTHING_ALPHA", "PRIMARY_AXIS",
	"THRESHOLD_EXCELLENT_DEG", "THRESHOLD_GOOD_DEG", "THRESHOLD_FAIR_DEG",
	"MIN_ALERT_DURATION_SEC", "ALERT_COOLDOWN_SEC", "REINFORCE_INTERVAL_SEC",
	"MOTOR_GPIO_PIN", "MOTOR_PULSE_MS",
	"DISPLAY_I2C_BUS", "DISPLAY_I2C_ADDR", "DISPLAY_UPDATE_INTERVAL_MS",
	"DB_PATH", "RETENTION_DAYS", "ROLLUP_CRON",
	"WEB_SERVER_PORT", "SAMPLER_HTTP_PORT",
	"CONSOLE_LOG_INTERVAL_MS",
}

// ApplyEnv overrides values from same-named environment variables. A
// .env file loaded into the process environment beforehand works the
// same way.
func (c *Config) ApplyEnv() error {
	for _, key := range configKeys {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("environment override: %w", err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SAMPLER":
		c.MQTTClientIDSampler = value
	case "MQTT_CLIENT_ID_RECORDER":
		c.MQTTClientIDRecorder = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ANGLE":
		c.TopicAngle = value
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_EVENTS":
		c.TopicEvents = value
	case "TOPIC_CONTROL":
		c.TopicControl = value

	// Sensor source
	case "SENSOR_SOURCE":
		c.SensorSource = value
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaud = rate
	case "SPI_DEVICE":
		c.SPIDevice = value
	case "SPI_CS_PIN":
		c.SPICSPin = value
	case "ACCEL_COUNTS_PER_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_COUNTS_PER_G %q: %w", value, err)
		}
		c.AccelCountsPerG = v
	case "GYRO_COUNTS_PER_DPS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid GYRO_COUNTS_PER_DPS %q: %w", value, err)
		}
		c.GyroCountsPerDPS = v

	// Sampling & calibration
	case "SAMPLE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		c.SampleIntervalMs = interval
	case "CALIBRATION_WINDOW":
		window, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_WINDOW %q: %w", value, err)
		}
		c.CalibrationWindow = window
	case "CALIBRATION_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_INTERVAL_MS %q: %w", value, err)
		}
		c.CalibrationIntervalMs = interval
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Filtering & classification
	case "BLEND_ALPHA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid BLEND_ALPHA %q: %w", value, err)
		}
		c.BlendAlpha = v
	case "SMOOTHING_ALPHA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SMOOTHING_ALPHA %q: %w", value, err)
		}
		c.SmoothingAlpha = v
	case "PRIMARY_AXIS":
		c.PrimaryAxis = value
	case "THRESHOLD_EXCELLENT_DEG":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid THRESHOLD_EXCELLENT_DEG %q: %w", value, err)
		}
		c.ThresholdExcellentDeg = v
	case "THRESHOLD_GOOD_DEG":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid THRESHOLD_GOOD_DEG %q: %w", value, err)
		}
		c.ThresholdGoodDeg = v
	case "THRESHOLD_FAIR_DEG":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid THRESHOLD_FAIR_DEG %q: %w", value, err)
		}
		c.ThresholdFairDeg = v

	// Alerting
	case "MIN_ALERT_DURATION_SEC":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MIN_ALERT_DURATION_SEC %q: %w", value, err)
		}
		c.MinAlertDurationSec = v
	case "ALERT_COOLDOWN_SEC":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ALERT_COOLDOWN_SEC %q: %w", value, err)
		}
		c.AlertCooldownSec = v
	case "REINFORCE_INTERVAL_SEC":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REINFORCE_INTERVAL_SEC %q: %w", value, err)
		}
		c.ReinforceIntervalSec = v

	// Motor
	case "MOTOR_GPIO_PIN":
		c.MotorGPIOPin = value
	case "MOTOR_PULSE_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOTOR_PULSE_MS %q: %w", value, err)
		}
		c.MotorPulseMs = v

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL_MS %q: %w", value, err)
		}
		c.DisplayUpdateIntervalMs = v

	// Storage & retention
	case "DB_PATH":
		c.DBPath = value
	case "RETENTION_DAYS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RETENTION_DAYS %q: %w", value, err)
		}
		c.RetentionDays = v
	case "ROLLUP_CRON":
		c.RollupCron = value

	// HTTP
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "SAMPLER_HTTP_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLER_HTTP_PORT %q: %w", value, err)
		}
		c.SamplerHTTPPort = port

	// Console
	case "CONSOLE_LOG_INTERVAL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL_MS %q: %w", value, err)
		}
		c.ConsoleLogIntervalMs = v

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// Thresholds returns the classification boundaries as the posture package
// consumes them.
func (c *Config) Thresholds() posture.Thresholds {
	return posture.Thresholds{
		Excellent: c.ThresholdExcellentDeg,
		Good:      c.ThresholdGoodDeg,
		Fair:      c.ThresholdFairDeg,
	}
}

// Validate rejects configurations no component could run with. A caller
// holding a previous valid Config should keep using it when Validate
// fails.
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}

	switch c.SensorSource {
	case "mock", "serial", "mpu9250":
	default:
		return fmt.Errorf("SENSOR_SOURCE must be mock, serial or mpu9250, got %q", c.SensorSource)
	}
	if c.SensorSource == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required for the serial source")
	}
	if c.SensorSource == "mpu9250" && c.SPIDevice == "" {
		return fmt.Errorf("SPI_DEVICE is required for the mpu9250 source")
	}
	if c.AccelCountsPerG <= 0 || c.GyroCountsPerDPS <= 0 {
		return fmt.Errorf("count scales must be positive")
	}

	if c.SampleIntervalMs <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL_MS must be positive, got %d", c.SampleIntervalMs)
	}
	if c.CalibrationWindow < 2 {
		return fmt.Errorf("CALIBRATION_WINDOW must be at least 2, got %d", c.CalibrationWindow)
	}
	if c.CalibrationIntervalMs < 0 {
		return fmt.Errorf("CALIBRATION_INTERVAL_MS must not be negative, got %d", c.CalibrationIntervalMs)
	}

	if c.BlendAlpha < 0 || c.BlendAlpha > 1 {
		return fmt.Errorf("BLEND_ALPHA must be within [0,1], got %v", c.BlendAlpha)
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("SMOOTHING_ALPHA must be within (0,1], got %v", c.SmoothingAlpha)
	}
	if c.PrimaryAxis != "pitch" && c.PrimaryAxis != "roll" {
		return fmt.Errorf("PRIMARY_AXIS must be pitch or roll, got %q", c.PrimaryAxis)
	}

	if err := c.Thresholds().Validate(); err != nil {
		return err
	}

	if c.MinAlertDurationSec < 0 || c.AlertCooldownSec < 0 || c.ReinforceIntervalSec < 0 {
		return fmt.Errorf("alert durations must not be negative")
	}
	if c.MotorGPIOPin != "" && c.MotorPulseMs <= 0 {
		return fmt.Errorf("MOTOR_PULSE_MS must be positive when a motor pin is set, got %d", c.MotorPulseMs)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be a valid port, got %d", c.WebServerPort)
	}
	if c.SamplerHTTPPort <= 0 || c.SamplerHTTPPort > 65535 {
		return fmt.Errorf("SAMPLER_HTTP_PORT must be a valid port, got %d", c.SamplerHTTPPort)
	}
	if c.ConsoleLogIntervalMs <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL_MS must be positive, got %d", c.ConsoleLogIntervalMs)
	}
	if c.DisplayUpdateIntervalMs <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL_MS must be positive, got %d", c.DisplayUpdateIntervalMs)
	}

	return nil
}
