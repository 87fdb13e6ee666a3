// Package conf handles loading and providing application settings via viper.
package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
)

// Settings is the root configuration for the escalation engine.
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name string // node name, used as client id on the stream
	}

	Escalation EscalationSettings
	Dedup      DedupSettings
	Deterrent  DeterrentSettings
	Ingest     IngestSettings
	Datastore  DatastoreSettings

	Notification struct {
		MaxNotifications int           // in-memory notification cap
		CleanupInterval  time.Duration // expired notification sweep interval
	}

	Metrics struct {
		Enabled bool   // expose Prometheus metrics over HTTP
		Listen  string // listen address of the metrics endpoint
	}

	Logging struct {
		Dir string // rotated per-service log directory, empty to disable
	}
}

// EscalationSettings controls session windows and countdowns.
type EscalationSettings struct {
	Window         time.Duration // max event age eligible to start a session
	Confirmation   time.Duration // operator override countdown for HIGH tier
	Acknowledgment time.Duration // informational ack window for CRITICAL tier
}

// DedupSettings controls the alert key history.
type DedupSettings struct {
	MaxKeys int // bounded FIFO key history size
}

// DeterrentSettings controls dispatch and effectiveness measurement.
type DeterrentSettings struct {
	Endpoint            string        // deterrent hardware controller base URL
	EffectivenessWindow time.Duration // delay between activation and measurement
	SoundCacheTTL       time.Duration // recommended-sound lookup cache TTL
}

// IngestSettings controls the inbound detection stream.
type IngestSettings struct {
	Broker         string        // MQTT broker URL, e.g. tcp://localhost:1883
	Topic          string        // detections topic
	Username       string
	Password       string
	ReconnectDelay time.Duration // fixed retry delay after connection loss
	ConnectTimeout time.Duration
}

// DatastoreSettings controls alert/activation persistence.
type DatastoreSettings struct {
	Path string // SQLite database path
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads configuration from file, environment and defaults into a
// Settings instance and stores it as the global instance.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/birdstrike")
	viper.AddConfigPath("/etc/birdstrike")
	viper.SetEnvPrefix("birdstrike")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("reading config file: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		// No config file is fine, defaults plus env apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("unmarshaling settings: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := validate(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// validate rejects settings the engine cannot run with.
func validate(s *Settings) error {
	if s.Escalation.Window <= 0 {
		return errors.Newf("escalation.window must be positive, got %v", s.Escalation.Window).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Escalation.Confirmation <= 0 {
		return errors.Newf("escalation.confirmation must be positive, got %v", s.Escalation.Confirmation).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Deterrent.EffectivenessWindow <= 0 {
		return errors.Newf("deterrent.effectivenesswindow must be positive, got %v", s.Deterrent.EffectivenessWindow).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Dedup.MaxKeys <= 0 {
		return errors.Newf("dedup.maxkeys must be positive, got %d", s.Dedup.MaxKeys).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	once.Do(func() {
		if _, err := Load(); err != nil {
			panic(fmt.Sprintf("error loading settings: %v", err))
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
