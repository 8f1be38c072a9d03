package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ztkent/lux-meter/veml7700"
)

const (
	BusDevfs  = "devfs"
	BusPeriph = "periph"

	SensorReal       = "real"
	SensorSimulation = "simulation"
)

// Duration reads "30s" style strings from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id"`
}

type Config struct {
	LogLevel  string `json:"log_level"`
	LogPath   string `json:"log_path"`
	Port      string `json:"port"`
	SSL       bool   `json:"ssl"`
	CertPath  string `json:"cert_path"`
	KeyPath   string `json:"key_path"`
	LocalOnly bool   `json:"local_only"`

	SensorType   string  `json:"sensor_type"`
	BusDriver    string  `json:"bus_driver"`
	I2CBus       string  `json:"i2c_bus"`
	I2CAddress   int     `json:"i2c_address"`
	SimulatedLux float64 `json:"simulated_lux"`

	Gain          string `json:"gain"`
	IntegrationMs int    `json:"integration_ms"`
	AutoLow       uint16 `json:"auto_low"`
	AutoHigh      uint16 `json:"auto_high"`
	Correction    bool   `json:"correction"`

	RecordInterval Duration `json:"record_interval"`
	MaxJobDuration Duration `json:"max_job_duration"`
	DBPath         string   `json:"db_path"`
	Timezone       string   `json:"timezone"`

	MQTT *MQTTConfig `json:"mqtt,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		LogPath:        "slm.log",
		Port:           "80",
		CertPath:       "cert.pem",
		KeyPath:        "key.pem",
		LocalOnly:      true,
		SensorType:     SensorReal,
		BusDriver:      BusDevfs,
		I2CBus:         "/dev/i2c-1",
		I2CAddress:     int(veml7700.VEML7700_ADDR),
		SimulatedLux:   500,
		Gain:           veml7700.VEML7700_GAIN_1.String(),
		IntegrationMs:  100,
		AutoLow:        veml7700.DefaultThresholds.Low,
		AutoHigh:       veml7700.DefaultThresholds.High,
		Correction:     true,
		RecordInterval: Duration(30 * time.Second),
		MaxJobDuration: Duration(8 * time.Hour),
		DBPath:         "sunlightmeter.db",
		Timezone:       "America/Indiana/Indianapolis",
	}
}

// Load reads the JSON file named by -config or CONFIG_PATH over the defaults,
// then applies environment overrides and validates the result.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("lux-meter", flag.ContinueOnError)
	cfgPath := fs.String("config", os.Getenv("CONFIG_PATH"), "Path to JSON config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if cfg.SSL && cfg.Port == "80" {
		cfg.Port = "443"
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg with any environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	count := func(key string, dst *uint16) {
		if v := getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = uint16(n)
		}
	}
	duration := func(key string, dst *Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	str("PORT", &c.Port)
	boolean("SSL", &c.SSL)
	boolean("LOCAL_ONLY", &c.LocalOnly)
	str("SENSOR_TYPE", &c.SensorType)
	str("BUS_DRIVER", &c.BusDriver)
	str("I2C_BUS", &c.I2CBus)
	if v := getenv("I2C_ADDRESS"); v != "" {
		n, err := parseIntOrHex(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("I2C_ADDRESS: %w", err))
		} else {
			c.I2CAddress = n
		}
	}
	if v := getenv("SIMULATED_LUX"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIMULATED_LUX: %w", err))
		} else {
			c.SimulatedLux = f
		}
	}
	str("GAIN", &c.Gain)
	if v := getenv("INTEGRATION_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INTEGRATION_MS: %w", err))
		} else {
			c.IntegrationMs = n
		}
	}
	count("AUTO_LOW", &c.AutoLow)
	count("AUTO_HIGH", &c.AutoHigh)
	boolean("CORRECTION", &c.Correction)
	duration("RECORD_INTERVAL", &c.RecordInterval)
	duration("MAX_JOB_DURATION", &c.MaxJobDuration)
	str("DB_PATH", &c.DBPath)
	str("TIMEZONE", &c.Timezone)

	if server := getenv("MQTT_SERVER"); server != "" || c.MQTT != nil {
		if c.MQTT == nil {
			c.MQTT = &MQTTConfig{}
		}
		str("MQTT_SERVER", &c.MQTT.Server)
		str("MQTT_USER", &c.MQTT.Username)
		str("MQTT_PASS", &c.MQTT.Password)
		str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
		str("MQTT_STATE_TOPIC", &c.MQTT.StateTopic)
		str("MQTT_DISCOVERY_TOPIC", &c.MQTT.DiscoveryTopic)
	}
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		errs = append(errs, fmt.Errorf("sensor_type must be %q or %q, got %q", SensorReal, SensorSimulation, c.SensorType))
	}
	switch c.BusDriver {
	case BusDevfs, BusPeriph:
	default:
		errs = append(errs, fmt.Errorf("bus_driver must be %q or %q, got %q", BusDevfs, BusPeriph, c.BusDriver))
	}
	if c.I2CAddress <= 0 || c.I2CAddress > 0x7F {
		errs = append(errs, fmt.Errorf("i2c_address 0x%x is not a 7-bit address", c.I2CAddress))
	}
	if c.SensorType == SensorSimulation && c.SimulatedLux < 0 {
		errs = append(errs, errors.New("simulated_lux must be >= 0"))
	}
	if _, _, err := c.Exposure(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RecordInterval <= 0 {
		errs = append(errs, errors.New("record_interval must be > 0"))
	}
	if c.MaxJobDuration < c.RecordInterval {
		errs = append(errs, errors.New("max_job_duration must be at least record_interval"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT != nil && c.MQTT.Server == "" {
		errs = append(errs, errors.New("mqtt.server is required when mqtt is configured"))
	}
	return errors.Join(errs...)
}

// Exposure decodes the configured starting gain and integration time.
func (c Config) Exposure() (veml7700.Gain, veml7700.IntegrationTime, error) {
	gain, err := veml7700.ParseGain(c.Gain)
	if err != nil {
		return 0, 0, fmt.Errorf("gain %q: %w", c.Gain, err)
	}
	it, err := veml7700.IntegrationTimeFromMs(c.IntegrationMs)
	if err != nil {
		return 0, 0, fmt.Errorf("integration_ms %d: %w", c.IntegrationMs, err)
	}
	return gain, it, nil
}

func (c Config) Thresholds() veml7700.Thresholds {
	return veml7700.Thresholds{Low: c.AutoLow, High: c.AutoHigh}
}

// Location is where dashboard date ranges are entered.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SensorOpts builds driver options from the configuration.
func (c Config) SensorOpts() (*veml7700.Opts, error) {
	gain, it, err := c.Exposure()
	if err != nil {
		return nil, err
	}
	opts := veml7700.DefaultOpts
	opts.Address = uint16(c.I2CAddress)
	opts.Gain = gain
	opts.IntegrationTime = it
	opts.Thresholds = c.Thresholds()
	opts.DisableCorrection = !c.Correction
	return &opts, nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}
