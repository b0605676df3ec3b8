// v1
// internal/config/config.go

// Package config loads the runtime configuration from environment
// variables plus an optional YAML tuning file for the learning
// parameters and band tables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
)

// AppConfig holds the fully resolved runtime configuration.
type AppConfig struct {
	HTTPBind         string   // address:port for the HTTP server
	KafkaBrokers     []string // bootstrap servers; empty disables all Kafka wiring
	InteractionTopic string   // topic carrying thermostat interaction events
	ConsumerGroup    string   // consumer group for the interaction stream
	ActivityEnabled  bool     // publish activity records to Kafka
	ActivityTopic    string   // topic for activity records
	RoomServiceURL   string   // base URL of the room inventory; empty disables lookups
	RoomCacheTTL     time.Duration
	SnapshotPath     string // bolt database file; empty disables persistence
	WindowDuration   time.Duration
	TuningPath       string // optional YAML tuning file

	Learning     learning.ParamsConfig
	OutdoorBands bands.Table
	TargetBands  bands.Table
}

// LoadEnvAndFiles loads environment variables and the optional tuning file.
func LoadEnvAndFiles() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPBind:         getEnv("HTTP_BIND", ":8080"),
		KafkaBrokers:     splitAndTrim(os.Getenv("KAFKA_BROKERS"), ","),
		InteractionTopic: getEnv("INTERACTION_TOPIC", "thermostat.interactions"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "recommender"),
		ActivityEnabled:  getEnvBool("ACTIVITY_ENABLED", false),
		ActivityTopic:    getEnv("ACTIVITY_TOPIC", "thermostat.activity"),
		RoomServiceURL:   getEnv("ROOM_SERVICE_URL", ""),
		RoomCacheTTL:     getEnvDuration("ROOM_CACHE_TTL", 10*time.Minute),
		SnapshotPath:     getEnv("SNAPSHOT_PATH", "./data/recommender.db"),
		WindowDuration:   getEnvDuration("WINDOW_DURATION", time.Hour),
		TuningPath:       getEnv("TUNING_PATH", ""),
		Learning:         learning.DefaultParamsConfig(),
	}

	if cfg.ActivityEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ACTIVITY_ENABLED requires KAFKA_BROKERS (comma-separated)")
	}

	if cfg.TuningPath != "" {
		if err := cfg.loadTuning(cfg.TuningPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Learning.Validate(); err != nil {
		return nil, fmt.Errorf("learning parameters: %w", err)
	}
	return cfg, nil
}

// bandSpec mirrors one band entry in the tuning file.
type bandSpec struct {
	Label string  `yaml:"label"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// tuningFile is the YAML tuning document.
type tuningFile struct {
	Learning     *learning.ParamsConfig `yaml:"learning"`
	OutdoorBands []bandSpec             `yaml:"outdoorBands"`
	TargetBands  []bandSpec             `yaml:"targetBands"`
}

func (c *AppConfig) loadTuning(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot open tuning file %s: %w", path, err)
	}
	var doc tuningFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}

	if doc.Learning != nil {
		c.Learning = *doc.Learning
	}
	if len(doc.OutdoorBands) > 0 {
		table, err := bands.NewTable(toBands(doc.OutdoorBands))
		if err != nil {
			return fmt.Errorf("outdoorBands: %w", err)
		}
		c.OutdoorBands = table
	}
	if len(doc.TargetBands) > 0 {
		table, err := bands.NewTable(toBands(doc.TargetBands))
		if err != nil {
			return fmt.Errorf("targetBands: %w", err)
		}
		c.TargetBands = table
	}
	return nil
}

func toBands(specs []bandSpec) []bands.Band {
	out := make([]bands.Band, 0, len(specs))
	for _, s := range specs {
		out = append(out, bands.Band{Label: s.Label, Min: s.Min, Max: s.Max})
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
