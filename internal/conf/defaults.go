// defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "birdstrike-engine")

	viper.SetDefault("escalation.window", 10*time.Second)
	viper.SetDefault("escalation.confirmation", 5*time.Second)
	viper.SetDefault("escalation.acknowledgment", 5*time.Second)

	viper.SetDefault("dedup.maxkeys", 1000)

	viper.SetDefault("deterrent.endpoint", "http://localhost:8811")
	viper.SetDefault("deterrent.effectivenesswindow", 20*time.Second)
	viper.SetDefault("deterrent.soundcachettl", 10*time.Minute)

	viper.SetDefault("ingest.broker", "tcp://localhost:1883")
	viper.SetDefault("ingest.topic", "birdstrike/detections")
	viper.SetDefault("ingest.username", "")
	viper.SetDefault("ingest.password", "")
	viper.SetDefault("ingest.reconnectdelay", 3*time.Second)
	viper.SetDefault("ingest.connecttimeout", 30*time.Second)

	viper.SetDefault("datastore.path", "birdstrike.db")

	viper.SetDefault("notification.maxnotifications", 1000)
	viper.SetDefault("notification.cleanupinterval", 5*time.Minute)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "0.0.0.0:9102")

	viper.SetDefault("logging.dir", "logs")
}
