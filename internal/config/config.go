package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DaemonConfigName = "presenced.cfg.json"
	ClientConfigName = "arsim.cfg.json"
)

func setDaemonDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("listen", ":8090")
	viper.SetDefault("proxyProtocol", false)

	viper.SetDefault("auth.tokenHash", "")

	viper.SetDefault("ws.authTimeout", "5s")
	viper.SetDefault("ws.writeTimeout", "10s")

	viper.SetDefault("cors.allowedOrigins", []string{"https://*", "http://*"})

	viper.SetDefault("db.url", "")
	viper.SetDefault("db.table", "presence_users")

	viper.SetDefault("journal.bufSize", 64)
	viper.SetDefault("journal.tickerDur", "1s")
	viper.SetDefault("journal.maxAgeFlush", "2s")
	viper.SetDefault("journal.writeTimeout", "5s")
}

func setClientDefaults() {
	viper.SetDefault("logLevel", "info")

	viper.SetDefault("server.url", "ws://localhost:8090/ws")
	viper.SetDefault("server.token", "")

	viper.SetDefault("user.name", "arsim")
	viper.SetDefault("user.group", "demo")

	viper.SetDefault("sim.latitude", -6.2088)
	viper.SetDefault("sim.longitude", 106.8456)
	viper.SetDefault("sim.bearing", 45.0)
	viper.SetDefault("sim.speed", 1.4)
	viper.SetDefault("sim.interval", "1s")
	viper.SetDefault("sim.failEvery", 0)
	viper.SetDefault("sim.turnRate", 5.0)
	viper.SetDefault("sim.pitch", 0.0)
	viper.SetDefault("sim.sensorInterval", "200ms")

	viper.SetDefault("view.fieldOfView", 70.0)
}

func load(configDir, name, envPrefix string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configDir == "" {
		return nil
	}
	viper.SetConfigName(name)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}
	return nil
}

// LoadDaemon sets the daemon defaults and reads presenced.cfg.json from
// configDir when present. PRESENCE_* environment variables override both.
func LoadDaemon(configDir string) error {
	setDaemonDefaults()
	return load(configDir, DaemonConfigName, "PRESENCE")
}

// LoadClient is LoadDaemon for the simulated client, with ARSIM_* variables.
func LoadClient(configDir string) error {
	setClientDefaults()
	return load(configDir, ClientConfigName, "ARSIM")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
